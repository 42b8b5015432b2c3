package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru"

	"github.com/tendermint/intentd/crypto"
)

var (
	// BytecodeMagic prefixes interpreted modules.
	BytecodeMagic = []byte("\x00ivm\x01")
	// NativeMagic prefixes references to native programs.
	NativeMagic = []byte("\x00nat")
)

type Kind uint8

const (
	KindBytecode Kind = iota + 1
	KindNative
)

func (k Kind) String() string {
	switch k {
	case KindBytecode:
		return "bytecode"
	case KindNative:
		return "native"
	}
	return "unknown"
}

// NativeFunc is a program compiled into the node. It sees the world only
// through the metered Host.
type NativeFunc func(h *Host, input []byte) ([]byte, error)

// Module is validated code ready to run.
type Module struct {
	Kind Kind
	Hash [32]byte

	// bytecode modules
	Code      []byte
	jumpDests map[uint32]struct{}

	// native modules
	Name   string
	Native NativeFunc
}

// NativeCode returns the code referencing the native program name.
func NativeCode(name string) []byte {
	return append(append([]byte{}, NativeMagic...), name...)
}

// BytecodeCode prefixes body with the bytecode magic.
func BytecodeCode(body []byte) []byte {
	return append(append([]byte{}, BytecodeMagic...), body...)
}

// Loader validates code and caches the resulting modules by code hash.
// Safe for concurrent use.
type Loader struct {
	cache   *lru.Cache
	natives map[string]NativeFunc
}

func NewLoader(cacheSize int, natives map[string]NativeFunc) (*Loader, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	if natives == nil {
		natives = make(map[string]NativeFunc)
	}
	return &Loader{cache: cache, natives: natives}, nil
}

// NativeNames lists the registered native programs.
func (l *Loader) NativeNames() []string {
	names := make([]string, 0, len(l.natives))
	for name := range l.natives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load returns the module for code. Invalid code fails with
// ErrInvalidModule.
func (l *Loader) Load(code []byte) (*Module, error) {
	hash := crypto.Blake2b(code)
	if m, ok := l.cache.Get(hash); ok {
		return m.(*Module), nil
	}

	var (
		mod *Module
		err error
	)
	switch {
	case bytes.HasPrefix(code, NativeMagic):
		name := string(code[len(NativeMagic):])
		fn, ok := l.natives[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown native program %q", ErrInvalidModule, name)
		}
		mod = &Module{Kind: KindNative, Name: name, Native: fn}
	case bytes.HasPrefix(code, BytecodeMagic):
		mod, err = validateBytecode(code[len(BytecodeMagic):])
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unrecognized code prefix", ErrInvalidModule)
	}
	mod.Hash = hash
	l.cache.Add(hash, mod)
	return mod, nil
}

// validateBytecode checks every instruction is known and complete and
// every jump lands on an instruction boundary.
func validateBytecode(code []byte) (*Module, error) {
	starts := make(map[uint32]struct{})
	var targets []uint32
	for pc := 0; pc < len(code); {
		starts[uint32(pc)] = struct{}{}
		op := OpCode(code[pc])
		size, ok := immediateSize(op)
		if !ok {
			return nil, fmt.Errorf("%w: %v at %d", ErrInvalidModule, op, pc)
		}
		if pc+1+size > len(code) {
			return nil, fmt.Errorf("%w: truncated %v at %d", ErrInvalidModule, op, pc)
		}
		imm := code[pc+1 : pc+1+size]
		switch op {
		case PUSH:
			n := int(binary.BigEndian.Uint16(imm))
			if pc+3+n > len(code) {
				return nil, fmt.Errorf("%w: truncated PUSH at %d", ErrInvalidModule, pc)
			}
			size += n
		case JUMP, JUMPI:
			targets = append(targets, binary.BigEndian.Uint32(imm))
		case HOST:
			if _, ok := hostFuncs[HostFunc(imm[0])]; !ok {
				return nil, fmt.Errorf("%w: %v at %d", ErrUnknownHostFunc, HostFunc(imm[0]), pc)
			}
		}
		pc += 1 + size
	}
	for _, t := range targets {
		if _, ok := starts[t]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrInvalidJumpDest, t)
		}
	}
	return &Module{Kind: KindBytecode, Code: code, jumpDests: starts}, nil
}
