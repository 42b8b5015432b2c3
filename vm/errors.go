package vm

import (
	"errors"
	"fmt"
)

// Every failure of sandboxed code falls in one of three classes. All of them
// reject the transaction or predicate that caused them and leave storage
// untouched.
var (
	// ErrTrap is an illegal operation inside executed code.
	ErrTrap = errors.New("sandbox trap")
	// ErrResourceExhausted is a gas, memory or stack budget overrun.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrHostCall is a host function refusing or failing a request.
	ErrHostCall = errors.New("host call failed")
)

var (
	ErrInsufficientGas    = fmt.Errorf("%w: insufficient gas", ErrResourceExhausted)
	ErrMemoryLimit        = fmt.Errorf("%w: memory limit exceeded", ErrResourceExhausted)
	ErrDataStackOverflow  = fmt.Errorf("%w: data stack overflow", ErrResourceExhausted)
	ErrTooManyIterators   = fmt.Errorf("%w: too many iterators", ErrResourceExhausted)
	ErrDataStackUnderflow = fmt.Errorf("%w: data stack underflow", ErrTrap)
	ErrInvalidModule      = fmt.Errorf("%w: invalid module", ErrTrap)
	ErrInvalidOpcode      = fmt.Errorf("%w: invalid opcode", ErrTrap)
	ErrInvalidJumpDest    = fmt.Errorf("%w: invalid jump destination", ErrTrap)
	ErrIntegerOverflow    = fmt.Errorf("%w: integer overflow", ErrTrap)
	ErrIntegerUnderflow   = fmt.Errorf("%w: integer underflow", ErrTrap)
	ErrDivisionByZero     = fmt.Errorf("%w: division by zero", ErrTrap)
	ErrNotAnInteger       = fmt.Errorf("%w: value is not an integer", ErrTrap)
	ErrBadFrame           = fmt.Errorf("%w: malformed frame", ErrTrap)
	ErrFrameIndex         = fmt.Errorf("%w: frame index out of range", ErrTrap)
	ErrReverted           = fmt.Errorf("%w: reverted", ErrTrap)
	ErrAssertion          = fmt.Errorf("%w: assertion failed", ErrTrap)
	ErrUnknownHostFunc    = fmt.Errorf("%w: unknown host function", ErrTrap)
	ErrInvalidIterator    = fmt.Errorf("%w: invalid iterator", ErrHostCall)
)

// IsSandboxError reports whether err belongs to one of the sandbox error
// classes.
func IsSandboxError(err error) bool {
	return errors.Is(err, ErrTrap) || errors.Is(err, ErrResourceExhausted) || errors.Is(err, ErrHostCall)
}
