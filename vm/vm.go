package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/types"
)

const numLocals = 256

// Params bounds a single execution.
type Params struct {
	GasLimit      uint64
	MaxMemory     int
	MaxStackDepth int
	MaxIterators  int
}

func DefaultParams() Params {
	return Params{
		GasLimit:      1_000_000,
		MaxMemory:     1 << 20, // 1 MB
		MaxStackDepth: 1024,
		MaxIterators:  16,
	}
}

func (p Params) ValidateBasic() error {
	if p.GasLimit == 0 {
		return fmt.Errorf("gas limit must be positive")
	}
	if p.MaxMemory <= 0 {
		return fmt.Errorf("max memory must be positive")
	}
	if p.MaxStackDepth <= 0 {
		return fmt.Errorf("max stack depth must be positive")
	}
	if p.MaxIterators < 0 {
		return fmt.Errorf("max iterators can't be negative")
	}
	return nil
}

// Result is the outcome of a successful execution.
type Result struct {
	Output  []byte
	GasUsed uint64
}

// VM runs modules in isolation. A VM holds no per-execution state and may
// be shared.
type VM struct {
	params Params
	logger log.Logger
}

func NewVM(params Params, logger log.Logger) *VM {
	return &VM{params: params, logger: logger}
}

func (vm *VM) Params() Params { return vm.params }

// Execute runs mod against env with input. Every failure is one of the
// sandbox error classes; the gas used is reported alongside.
func (vm *VM) Execute(mod *Module, env Env, input []byte) (res Result, err error) {
	gas := NewGasMeter(vm.params.GasLimit)
	host := newHost(env, gas, vm.params)

	defer func() {
		res.GasUsed = gas.Used()
		if err != nil && !IsSandboxError(err) {
			err = fmt.Errorf("%w: %v", ErrTrap, err)
		}
	}()

	switch mod.Kind {
	case KindNative:
		res.Output, err = vm.runNative(mod, host, input)
	case KindBytecode:
		res.Output, err = vm.run(mod, host, input)
	default:
		err = ErrInvalidModule
	}
	if err != nil {
		vm.logger.Debug("execution failed", "module", mod.Kind, "err", err, "gas", gas.Used())
	}
	return res, err
}

func (vm *VM) runNative(mod *Module, host *Host, input []byte) (output []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: native %s panicked: %v", ErrTrap, mod.Name, r)
		}
	}()
	if err := host.gas.Consume(GasHostBase + byteGas(len(input))); err != nil {
		return nil, err
	}
	return mod.Native(host, input)
}

func (vm *VM) run(mod *Module, host *Host, input []byte) (output []byte, err error) {
	var (
		code   = mod.Code
		pc     = 0
		gas    = host.gas
		mem    = &memory{limit: vm.params.MaxMemory}
		stack  = NewStack(vm.params.MaxStackDepth, mem, &err)
		locals [numLocals][]byte
	)

	if err := mem.grow(len(input)); err != nil {
		return nil, err
	}

	jump := func(dest uint32) int {
		if _, ok := mod.jumpDests[dest]; !ok {
			stack.setErr(ErrInvalidJumpDest)
			return pc
		}
		return int(dest)
	}

	for pc < len(code) {
		op := OpCode(code[pc])
		size, _ := immediateSize(op)
		imm := code[pc+1 : pc+1+size]
		next := pc + 1 + size

		if err := gas.Consume(opGas(op)); err != nil {
			return nil, err
		}

		switch op {
		case STOP:
			return nil, nil

		case PUSH:
			n := int(binary.BigEndian.Uint16(imm))
			d := code[next : next+n]
			next += n
			if e := gas.Consume(wordGas(n)); e != nil {
				return nil, e
			}
			stack.Push(d)

		case PUSHU:
			stack.Push(imm)

		case POP:
			stack.Pop()

		case DUP:
			stack.Dup(int(imm[0]))

		case SWAP:
			stack.Swap(int(imm[0]))

		case LOAD:
			stack.Push(locals[imm[0]])

		case STORE:
			d := stack.Pop()
			if err == nil {
				mem.shrink(len(locals[imm[0]]))
				if e := mem.grow(len(d)); e != nil {
					return nil, e
				}
				locals[imm[0]] = d
			}

		case ADD, SUB, MUL, DIV, MOD:
			y, x := stack.PopU64(), stack.PopU64()
			if err != nil {
				break
			}
			r, e := arith(op, x, y)
			if e != nil {
				return nil, e
			}
			stack.PushU64(r)

		case LT, GT:
			y, x := stack.PopU64(), stack.PopU64()
			if op == LT {
				stack.PushBool(x < y)
			} else {
				stack.PushBool(x > y)
			}

		case EQ:
			y, x := stack.Pop(), stack.Pop()
			stack.PushBool(bytes.Equal(x, y))

		case ISZERO:
			stack.PushBool(!IsTrue(stack.Pop()))

		case AND:
			y, x := stack.Pop(), stack.Pop()
			stack.PushBool(IsTrue(x) && IsTrue(y))

		case OR:
			y, x := stack.Pop(), stack.Pop()
			stack.PushBool(IsTrue(x) || IsTrue(y))

		case CONCAT:
			y, x := stack.Pop(), stack.Pop()
			if e := gas.Consume(wordGas(len(x) + len(y))); e != nil {
				return nil, e
			}
			d := make([]byte, 0, len(x)+len(y))
			stack.Push(append(append(d, x...), y...))

		case LEN:
			stack.PushU64(uint64(len(stack.Pop())))

		case FIELD:
			idx := stack.PopU64()
			frame := stack.Pop()
			if err != nil {
				break
			}
			items, e := types.DecodeFrame(frame)
			if e != nil {
				return nil, ErrBadFrame
			}
			if idx >= uint64(len(items)) {
				return nil, fmt.Errorf("%w: %d of %d", ErrFrameIndex, idx, len(items))
			}
			stack.Push(items[idx])

		case COUNT:
			items, e := types.DecodeFrame(stack.Pop())
			if err == nil && e != nil {
				return nil, ErrBadFrame
			}
			stack.PushU64(uint64(len(items)))

		case PACK:
			items := stack.PopN(int(imm[0]))
			if err != nil {
				break
			}
			d := types.EncodeFrame(items...)
			if e := gas.Consume(wordGas(len(d))); e != nil {
				return nil, e
			}
			stack.Push(d)

		case JUMP:
			next = jump(binary.BigEndian.Uint32(imm))

		case JUMPI:
			if IsTrue(stack.Pop()) && err == nil {
				next = jump(binary.BigEndian.Uint32(imm))
			}

		case ASSERT:
			if !IsTrue(stack.Pop()) && err == nil {
				return nil, ErrAssertion
			}

		case INPUT:
			stack.Push(input)

		case RETURN:
			d := stack.Pop()
			if err != nil {
				return nil, err
			}
			return d, nil

		case REVERT:
			msg := stack.Pop()
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s", ErrReverted, msg)

		case HOST:
			fn := HostFunc(imm[0])
			sig := hostFuncs[fn]
			args := stack.PopN(sig.args)
			if err != nil {
				break
			}
			rets, e := host.call(fn, args)
			if e != nil {
				return nil, e
			}
			for _, r := range rets {
				stack.Push(r)
			}

		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidOpcode, op)
		}

		if err != nil {
			return nil, err
		}
		pc = next
	}
	return nil, err
}

func opGas(op OpCode) uint64 {
	switch op {
	case ADD, SUB, MUL, DIV, MOD, LT, GT:
		return GasArithmetic
	case JUMP, JUMPI:
		return GasJump
	case FIELD, COUNT, PACK, CONCAT:
		return GasFrameOp
	}
	return GasBaseOp
}

// arith computes x op y with checked unsigned 64-bit arithmetic.
func arith(op OpCode, x, y uint64) (uint64, error) {
	switch op {
	case ADD:
		sum, carry := bits.Add64(x, y, 0)
		if carry != 0 {
			return 0, ErrIntegerOverflow
		}
		return sum, nil
	case SUB:
		if x < y {
			return 0, ErrIntegerUnderflow
		}
		return x - y, nil
	case MUL:
		if x != 0 && y > math.MaxUint64/x {
			return 0, ErrIntegerOverflow
		}
		return x * y, nil
	case DIV:
		if y == 0 {
			return 0, ErrDivisionByZero
		}
		return x / y, nil
	case MOD:
		if y == 0 {
			return 0, ErrDivisionByZero
		}
		return x % y, nil
	}
	return 0, ErrInvalidOpcode
}
