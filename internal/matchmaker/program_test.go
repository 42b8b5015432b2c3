package matchmaker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/types"
	"github.com/tendermint/intentd/vm"
)

func TestExactSwapProgram(t *testing.T) {
	p, err := NewProgram(log.TestingLogger(), vm.DefaultParams(), ExactSwapCode)
	require.NoError(t, err)

	a := intentAt(alice, "xan", 10, "btc", 1, 0)
	b := intentAt(bob, "btc", 1, "xan", 10, 1)

	data, err := p.Craft(a, b)
	require.NoError(t, err)

	want := &types.IntentTransfers{
		Transfers: []types.Transfer{
			{Source: alice.Address, Target: bob.Address, Token: "xan", Amount: 10},
			{Source: bob.Address, Target: alice.Address, Token: "btc", Amount: 1},
		},
		Intents: []*types.Intent{a, b},
	}
	assert.Equal(t, want.Encode(), data)

	it, err := types.DecodeIntentTransfers(data)
	require.NoError(t, err)
	assert.Equal(t, want.Transfers, it.Transfers)
	require.Len(t, it.Intents, 2)
	assert.NoError(t, it.Intents[1].VerifySignature())
}

func TestExactSwapProgramRejectsMismatch(t *testing.T) {
	p, err := NewProgram(log.TestingLogger(), vm.DefaultParams(), ExactSwapCode)
	require.NoError(t, err)

	a := intentAt(alice, "xan", 10, "btc", 1, 0)
	testCases := map[string]*types.Intent{
		"amount":      intentAt(bob, "btc", 1, "xan", 9, 1),
		"token":       intentAt(bob, "eth", 1, "xan", 10, 1),
		"same sender": intentAt(alice, "btc", 1, "xan", 10, 1),
	}
	for name, b := range testCases {
		b := b
		t.Run(name, func(t *testing.T) {
			_, err := p.Craft(a, b)
			require.Error(t, err)
			assert.True(t, errors.Is(err, vm.ErrTrap), err)
		})
	}
}

func TestProgramHasNoStorage(t *testing.T) {
	code := vm.MustAssemble(`
		PUSH "xan/balance/alice"
		HOST read
		RETURN
	`)
	p, err := NewProgram(log.TestingLogger(), vm.DefaultParams(), code)
	require.NoError(t, err)

	_, err = p.Craft(intentAt(alice, "xan", 10, "btc", 1, 0), intentAt(bob, "btc", 1, "xan", 10, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, vm.ErrHostCall), err)
}

func TestProgramFuel(t *testing.T) {
	params := vm.DefaultParams()
	params.GasLimit = 10
	p, err := NewProgram(log.TestingLogger(), params, ExactSwapCode)
	require.NoError(t, err)

	_, err = p.Craft(intentAt(alice, "xan", 10, "btc", 1, 0), intentAt(bob, "btc", 1, "xan", 10, 1))
	assert.ErrorIs(t, err, vm.ErrResourceExhausted)
}

func TestNewProgramRejectsInvalidCode(t *testing.T) {
	_, err := NewProgram(log.TestingLogger(), vm.DefaultParams(), []byte("not a module"))
	assert.ErrorIs(t, err, vm.ErrInvalidModule)

	_, err = NewProgram(log.TestingLogger(), vm.DefaultParams(), vm.NativeCode("vp_user"))
	assert.ErrorIs(t, err, vm.ErrInvalidModule)
}
