package vm

import (
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/intentd/internal/store"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/types"
)

type fakeEnv struct {
	kvs       map[string][]byte
	verifiers []types.Address
	signer    []byte
	logs      []string
	readOnly  bool
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{kvs: make(map[string][]byte)}
}

func (e *fakeEnv) Read(k types.Key) ([]byte, bool, error) {
	v, ok := e.kvs[k.String()]
	return v, ok, nil
}

func (e *fakeEnv) Write(k types.Key, v []byte) error {
	if e.readOnly {
		return errors.New("read only")
	}
	e.kvs[k.String()] = v
	return nil
}

func (e *fakeEnv) Delete(k types.Key) error {
	if e.readOnly {
		return errors.New("read only")
	}
	delete(e.kvs, k.String())
	return nil
}

func (e *fakeEnv) IterPrefix(prefix string) ([]store.KV, error) {
	var out []store.KV
	for k, v := range e.kvs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, store.KV{Key: types.MustParseKey(k), Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out, nil
}

func (e *fakeEnv) ReadPre(k types.Key) ([]byte, bool, error)  { return e.Read(k) }
func (e *fakeEnv) ReadPost(k types.Key) ([]byte, bool, error) { return e.Read(k) }

func (e *fakeEnv) InsertVerifier(addr types.Address) error {
	e.verifiers = append(e.verifiers, addr)
	return nil
}

func (e *fakeEnv) InitAccount(code []byte) (types.Address, error) {
	return "", errors.New("not supported")
}

func (e *fakeEnv) TxSignedBy(pk []byte) (bool, error) {
	return string(pk) == string(e.signer), nil
}

func (e *fakeEnv) BlockHeight() int64   { return 7 }
func (e *fakeEnv) BlockTime() time.Time { return time.Unix(1600000000, 0) }
func (e *fakeEnv) ChainID() string      { return "test-chain" }
func (e *fakeEnv) Log(msg string)       { e.logs = append(e.logs, msg) }

func newTestVM(t *testing.T, params Params) (*VM, *Loader) {
	t.Helper()
	loader, err := NewLoader(16, map[string]NativeFunc{
		"echo": func(h *Host, input []byte) ([]byte, error) { return input, nil },
		"panic": func(h *Host, input []byte) ([]byte, error) {
			panic("boom")
		},
		"reader": func(h *Host, input []byte) ([]byte, error) {
			return h.Read(types.MustParseKey(string(input)))
		},
	})
	require.NoError(t, err)
	return NewVM(params, log.TestingLogger()), loader
}

func execAsm(t *testing.T, params Params, env Env, src string, input []byte) (Result, error) {
	t.Helper()
	vm, loader := newTestVM(t, params)
	code, err := Assemble(src)
	require.NoError(t, err)
	mod, err := loader.Load(code)
	require.NoError(t, err)
	return vm.Execute(mod, env, input)
}

func TestArithmetic(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want uint64
		err  error
	}{
		{"add", "PUSHU 2\nPUSHU 3\nADD\nRETURN", 5, nil},
		{"sub", "PUSHU 10\nPUSHU 3\nSUB\nRETURN", 7, nil},
		{"mul", "PUSHU 6\nPUSHU 7\nMUL\nRETURN", 42, nil},
		{"div", "PUSHU 42\nPUSHU 5\nDIV\nRETURN", 8, nil},
		{"mod", "PUSHU 42\nPUSHU 5\nMOD\nRETURN", 2, nil},
		{"lt", "PUSHU 1\nPUSHU 2\nLT\nRETURN", 1, nil},
		{"gt", "PUSHU 1\nPUSHU 2\nGT\nRETURN", 0, nil},
		{"underflow", "PUSHU 1\nPUSHU 2\nSUB\nRETURN", 0, ErrIntegerUnderflow},
		{"overflow", "PUSHU 0xffffffffffffffff\nPUSHU 1\nADD\nRETURN", 0, ErrIntegerOverflow},
		{"div by zero", "PUSHU 1\nPUSHU 0\nDIV\nRETURN", 0, ErrDivisionByZero},
		{"not an integer", "PUSH \"123456789\"\nPUSHU 1\nADD\nRETURN", 0, ErrNotAnInteger},
		{"stack underflow", "PUSHU 1\nADD\nRETURN", 0, ErrDataStackUnderflow},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			res, err := execAsm(t, DefaultParams(), newFakeEnv(), tc.src, nil)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				assert.ErrorIs(t, err, ErrTrap)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, types.EncodeU64(tc.want), res.Output)
			assert.NotZero(t, res.GasUsed)
		})
	}
}

func TestFramesAndFlow(t *testing.T) {
	// Sums every amount in a frame of u64 items.
	src := `
		PUSHU 0
		STORE 0         ; sum
		PUSHU 0
		STORE 1         ; index
	loop:
		LOAD 1
		INPUT
		COUNT
		LT
		ISZERO
		JUMPI done
		LOAD 0
		INPUT
		LOAD 1
		FIELD
		ADD
		STORE 0
		LOAD 1
		PUSHU 1
		ADD
		STORE 1
		JUMP loop
	done:
		LOAD 0
		PUSH "sum="
		SWAP 1
		PACK 2
		RETURN
	`
	input := types.EncodeFrame(types.EncodeU64(3), types.EncodeU64(4), types.EncodeU64(5))
	res, err := execAsm(t, DefaultParams(), newFakeEnv(), src, input)
	require.NoError(t, err)
	items, err := types.DecodeFrameN(res.Output, 2)
	require.NoError(t, err)
	assert.Equal(t, "sum=", string(items[0]))
	assert.Equal(t, types.EncodeU64(12), items[1])

	_, err = execAsm(t, DefaultParams(), newFakeEnv(), "INPUT\nPUSHU 5\nFIELD\nRETURN", input)
	assert.ErrorIs(t, err, ErrFrameIndex)

	_, err = execAsm(t, DefaultParams(), newFakeEnv(), "PUSH 0x0000\nCOUNT\nRETURN", nil)
	assert.ErrorIs(t, err, ErrBadFrame)
}

func TestAssertAndRevert(t *testing.T) {
	_, err := execAsm(t, DefaultParams(), newFakeEnv(), "PUSHU 0\nASSERT\nPUSHU 1\nRETURN", nil)
	assert.ErrorIs(t, err, ErrAssertion)

	_, err = execAsm(t, DefaultParams(), newFakeEnv(), "PUSH \"nope\"\nREVERT", nil)
	require.ErrorIs(t, err, ErrReverted)
	assert.Contains(t, err.Error(), "nope")

	res, err := execAsm(t, DefaultParams(), newFakeEnv(), "PUSHU 1\nPOP", nil)
	require.NoError(t, err)
	assert.Nil(t, res.Output)
}

func TestResourceLimits(t *testing.T) {
	params := DefaultParams()
	params.GasLimit = 10_000
	res, err := execAsm(t, params, newFakeEnv(), "loop:\nJUMP loop", nil)
	require.ErrorIs(t, err, ErrInsufficientGas)
	assert.ErrorIs(t, err, ErrResourceExhausted)
	assert.Equal(t, params.GasLimit, res.GasUsed)

	params = DefaultParams()
	params.MaxStackDepth = 16
	_, err = execAsm(t, params, newFakeEnv(), "loop:\nPUSHU 1\nJUMP loop", nil)
	assert.ErrorIs(t, err, ErrDataStackOverflow)

	params = DefaultParams()
	params.MaxMemory = 1024
	_, err = execAsm(t, params, newFakeEnv(), "PUSH \"ab\"\nloop:\nDUP 1\nCONCAT\nJUMP loop", nil)
	assert.ErrorIs(t, err, ErrMemoryLimit)
}

func TestHostFunctions(t *testing.T) {
	env := newFakeEnv()
	env.kvs["alice/counter"] = types.EncodeU64(41)
	env.signer = []byte("pk")

	src := `
		PUSH "alice/counter"
		DUP 1
		HOST read
		PUSHU 1
		ADD
		HOST write
		PUSH "bob"
		HOST insert_verifier
		PUSH "hello"
		HOST log
		PUSH "pk"
		HOST verify_tx_signature
		ASSERT
		HOST get_block_height
		HOST get_chain_id
		PACK 2
		RETURN
	`
	res, err := execAsm(t, DefaultParams(), env, src, nil)
	require.NoError(t, err)
	assert.Equal(t, types.EncodeU64(42), env.kvs["alice/counter"])
	assert.Equal(t, []types.Address{"bob"}, env.verifiers)
	assert.Equal(t, []string{"hello"}, env.logs)
	assert.Equal(t, types.EncodeFrame(types.EncodeU64(7), []byte("test-chain")), res.Output)

	env.readOnly = true
	_, err = execAsm(t, DefaultParams(), env, "PUSH \"alice/x\"\nPUSH \"v\"\nHOST write", nil)
	assert.ErrorIs(t, err, ErrHostCall)

	_, err = execAsm(t, DefaultParams(), env, "PUSH \"no separator\"\nHOST read", nil)
	assert.ErrorIs(t, err, ErrHostCall)
}

func TestIterators(t *testing.T) {
	env := newFakeEnv()
	env.kvs["tok/balance/a"] = types.EncodeU64(1)
	env.kvs["tok/balance/b"] = types.EncodeU64(2)
	env.kvs["tok/other"] = types.EncodeU64(3)

	src := `
		PUSH "tok/balance/"
		HOST iter_prefix
		STORE 0
		LOAD 0
		HOST iter_next
		LOAD 0
		HOST iter_next
		LOAD 0
		HOST iter_next
		PACK 3
		RETURN
	`
	res, err := execAsm(t, DefaultParams(), env, src, nil)
	require.NoError(t, err)
	items, err := types.DecodeFrameN(res.Output, 3)
	require.NoError(t, err)
	assert.Equal(t, types.EncodeFrame([]byte("tok/balance/a"), types.EncodeU64(1)), items[0])
	assert.Equal(t, types.EncodeFrame([]byte("tok/balance/b"), types.EncodeU64(2)), items[1])
	assert.Empty(t, items[2])

	_, err = execAsm(t, DefaultParams(), env, "PUSHU 3\nHOST iter_next", nil)
	assert.ErrorIs(t, err, ErrInvalidIterator)

	params := DefaultParams()
	params.MaxIterators = 1
	_, err = execAsm(t, params, env, "PUSH \"tok\"\nHOST iter_prefix\nPUSH \"tok\"\nHOST iter_prefix", nil)
	assert.ErrorIs(t, err, ErrTooManyIterators)
}

func TestNatives(t *testing.T) {
	vm, loader := newTestVM(t, DefaultParams())

	mod, err := loader.Load(NativeCode("echo"))
	require.NoError(t, err)
	assert.Equal(t, KindNative, mod.Kind)
	res, err := vm.Execute(mod, newFakeEnv(), []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), res.Output)

	mod, err = loader.Load(NativeCode("panic"))
	require.NoError(t, err)
	_, err = vm.Execute(mod, newFakeEnv(), nil)
	assert.ErrorIs(t, err, ErrTrap)

	params := DefaultParams()
	params.GasLimit = GasHostBase + 10
	vm = NewVM(params, log.NewNopLogger())
	mod, err = loader.Load(NativeCode("reader"))
	require.NoError(t, err)
	_, err = vm.Execute(mod, newFakeEnv(), []byte("alice/x"))
	assert.ErrorIs(t, err, ErrInsufficientGas)

	_, err = loader.Load(NativeCode("missing"))
	assert.ErrorIs(t, err, ErrInvalidModule)
	assert.Equal(t, []string{"echo", "panic", "reader"}, loader.NativeNames())
}

func TestLoader(t *testing.T) {
	_, loader := newTestVM(t, DefaultParams())

	code := MustAssemble("PUSHU 1\nRETURN")
	m1, err := loader.Load(code)
	require.NoError(t, err)
	m2, err := loader.Load(code)
	require.NoError(t, err)
	assert.Same(t, m1, m2)

	testCases := []struct {
		name string
		code []byte
		err  error
	}{
		{"no magic", []byte{0x01, 0x02}, ErrInvalidModule},
		{"unknown opcode", BytecodeCode([]byte{0xfe}), ErrInvalidModule},
		{"truncated push", BytecodeCode([]byte{byte(PUSH), 0x00, 0x05, 'a'}), ErrInvalidModule},
		{"truncated pushu", BytecodeCode([]byte{byte(PUSHU), 0x00}), ErrInvalidModule},
		{"jump into immediate", BytecodeCode([]byte{byte(PUSHU), 0, 0, 0, 0, 0, 0, 0, 0, byte(JUMP), 0, 0, 0, 1}), ErrInvalidJumpDest},
		{"unknown host", BytecodeCode([]byte{byte(HOST), 0xee}), ErrUnknownHostFunc},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := loader.Load(tc.code)
			assert.ErrorIs(t, err, tc.err)
			assert.ErrorIs(t, err, ErrTrap)
		})
	}
}

func TestAssemble(t *testing.T) {
	code, err := Assemble("start: PUSH \"a;b\" ; comment\nJUMP start")
	require.NoError(t, err)
	want := BytecodeCode([]byte{byte(PUSH), 0, 3, 'a', ';', 'b', byte(JUMP), 0, 0, 0, 0})
	assert.Equal(t, want, code)

	for _, src := range []string{
		"FOO",
		"PUSH",
		"ADD 1",
		"JUMP nowhere",
		"x:\nx:",
		"PUSH \"unterminated",
		"HOST nothing",
		"DUP 300",
	} {
		_, err := Assemble(src)
		assert.ErrorIs(t, err, ErrAssembly, src)
	}
}

func TestHostAliases(t *testing.T) {
	for alias, name := range map[string]string{
		"delete_key":   "delete",
		"read_temp":    "read_post",
		"has_key_temp": "has_key_post",
	} {
		got, err := Assemble("HOST " + alias)
		require.NoError(t, err, alias)
		want, err := Assemble("HOST " + name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, alias)
	}
}

func TestParseCode(t *testing.T) {
	code := MustAssemble("PUSHU 1\nRETURN")

	got, err := ParseCode(code)
	require.NoError(t, err)
	assert.Equal(t, code, got)

	got, err = ParseCode([]byte("PUSHU 1 ; text form\nRETURN\n"))
	require.NoError(t, err)
	assert.Equal(t, code, got)

	native := NativeCode("vp_always_accept")
	got, err = ParseCode(native)
	require.NoError(t, err)
	assert.Equal(t, native, got)

	_, err = ParseCode([]byte("NOPE"))
	assert.ErrorIs(t, err, ErrAssembly)
}
