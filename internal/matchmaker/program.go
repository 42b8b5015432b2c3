package matchmaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/tendermint/intentd/internal/store"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/types"
	"github.com/tendermint/intentd/vm"
)

// ExactSwapSrc is the default matchmaker program. Its input is
// frame(fieldsA, rawA, fieldsB, rawB), where fields is the output of
// intentFields and raw the signed intent. It checks that the intents are
// exact opposites of different senders and returns the encoded
// IntentTransfers moving each sold amount to the other party.
//
// locals: 0 fields of a, 1 fields of b
const ExactSwapSrc = `
	INPUT
	PUSHU 0
	FIELD
	STORE 0
	INPUT
	PUSHU 2
	FIELD
	STORE 1

	LOAD 0          ; different senders
	PUSHU 0
	FIELD
	LOAD 1
	PUSHU 0
	FIELD
	EQ
	ISZERO
	ASSERT
	LOAD 0          ; a.token_sell == b.token_buy
	PUSHU 1
	FIELD
	LOAD 1
	PUSHU 3
	FIELD
	EQ
	ASSERT
	LOAD 0          ; a.amount_sell == b.amount_buy
	PUSHU 2
	FIELD
	LOAD 1
	PUSHU 4
	FIELD
	EQ
	ASSERT
	LOAD 0          ; a.token_buy == b.token_sell
	PUSHU 3
	FIELD
	LOAD 1
	PUSHU 1
	FIELD
	EQ
	ASSERT
	LOAD 0          ; a.amount_buy == b.amount_sell
	PUSHU 4
	FIELD
	LOAD 1
	PUSHU 2
	FIELD
	EQ
	ASSERT

	LOAD 0          ; a pays b
	PUSHU 0
	FIELD
	LOAD 1
	PUSHU 0
	FIELD
	LOAD 0
	PUSHU 1
	FIELD
	LOAD 0
	PUSHU 2
	FIELD
	PACK 4
	LOAD 1          ; b pays a
	PUSHU 0
	FIELD
	LOAD 0
	PUSHU 0
	FIELD
	LOAD 1
	PUSHU 1
	FIELD
	LOAD 1
	PUSHU 2
	FIELD
	PACK 4
	PACK 2

	INPUT
	PUSHU 1
	FIELD
	INPUT
	PUSHU 3
	FIELD
	PACK 2

	PACK 2
	RETURN
`

var ExactSwapCode = vm.MustAssemble(ExactSwapSrc)

// ErrNoState is returned by every storage access of a matchmaker program.
var ErrNoState = errors.New("matchmaker programs have no storage access")

// intentFields returns frame(sender, token_sell, amount_sell, token_buy,
// amount_buy).
func intentFields(in *types.Intent) []byte {
	return types.EncodeFrame(
		[]byte(in.Sender),
		[]byte(in.TokenSell),
		types.EncodeU64(in.AmountSell),
		[]byte(in.TokenBuy),
		types.EncodeU64(in.AmountBuy),
	)
}

// ProgramInput is the input of a matchmaker program for the pair (a, b).
func ProgramInput(a, b *types.Intent) []byte {
	return types.EncodeFrame(intentFields(a), a.Marshal(), intentFields(b), b.Marshal())
}

// programEnv is the host environment of matchmaker programs. They are pure
// functions of their input and may only log.
type programEnv struct {
	logger log.Logger
}

var _ vm.Env = programEnv{}

func (programEnv) Read(types.Key) ([]byte, bool, error)     { return nil, false, ErrNoState }
func (programEnv) Write(types.Key, []byte) error            { return ErrNoState }
func (programEnv) Delete(types.Key) error                   { return ErrNoState }
func (programEnv) IterPrefix(string) ([]store.KV, error)    { return nil, ErrNoState }
func (programEnv) ReadPre(types.Key) ([]byte, bool, error)  { return nil, false, ErrNoState }
func (programEnv) ReadPost(types.Key) ([]byte, bool, error) { return nil, false, ErrNoState }
func (programEnv) InsertVerifier(types.Address) error       { return ErrNoState }
func (programEnv) InitAccount([]byte) (types.Address, error) {
	return "", ErrNoState
}
func (programEnv) TxSignedBy([]byte) (bool, error) { return false, ErrNoState }
func (programEnv) BlockHeight() int64              { return 0 }
func (programEnv) BlockTime() time.Time            { return time.Time{} }
func (programEnv) ChainID() string                 { return "" }
func (e programEnv) Log(msg string)                { e.logger.Debug("matchmaker program", "msg", msg) }

// Program runs a matchmaker program in the sandbox.
type Program struct {
	vm     *vm.VM
	module *vm.Module
	env    programEnv
}

// NewProgram loads code, which may be bytecode or a registered native.
func NewProgram(logger log.Logger, params vm.Params, code []byte) (*Program, error) {
	loader, err := vm.NewLoader(1, nil)
	if err != nil {
		return nil, err
	}
	mod, err := loader.Load(code)
	if err != nil {
		return nil, fmt.Errorf("loading matchmaker program: %w", err)
	}
	return &Program{
		vm:     vm.NewVM(params, logger),
		module: mod,
		env:    programEnv{logger: logger},
	}, nil
}

// Craft returns the tx data settling the pair (a, b).
func (p *Program) Craft(a, b *types.Intent) ([]byte, error) {
	res, err := p.vm.Execute(p.module, p.env, ProgramInput(a, b))
	if err != nil {
		return nil, err
	}
	if len(res.Output) == 0 {
		return nil, fmt.Errorf("%w: matchmaker program returned no data", vm.ErrTrap)
	}
	return res.Output, nil
}
