package vm

import (
	"fmt"
)

type OpCode byte

const (
	// 0x0 range - stack and locals
	STOP  OpCode = 0x00
	PUSH  OpCode = 0x01 // u16 length, bytes
	PUSHU OpCode = 0x02 // u64
	POP   OpCode = 0x03
	DUP   OpCode = 0x04 // u8 depth, 1 is the top
	SWAP  OpCode = 0x05 // u8 depth, swaps the top with the n-th item below it
	LOAD  OpCode = 0x06 // u8 slot
	STORE OpCode = 0x07 // u8 slot

	// 0x10 range - arithmetic and comparison
	ADD    OpCode = 0x10
	SUB    OpCode = 0x11
	MUL    OpCode = 0x12
	DIV    OpCode = 0x13
	MOD    OpCode = 0x14
	LT     OpCode = 0x15
	GT     OpCode = 0x16
	EQ     OpCode = 0x17
	ISZERO OpCode = 0x18
	AND    OpCode = 0x19
	OR     OpCode = 0x1a

	// 0x20 range - byte strings and frames
	CONCAT OpCode = 0x20
	LEN    OpCode = 0x21
	FIELD  OpCode = 0x22
	COUNT  OpCode = 0x23
	PACK   OpCode = 0x24 // u8 count

	// 0x30 range - control flow
	JUMP   OpCode = 0x30 // u32 offset
	JUMPI  OpCode = 0x31 // u32 offset
	ASSERT OpCode = 0x32

	// 0x40 range - input and output
	INPUT  OpCode = 0x40
	RETURN OpCode = 0x41
	REVERT OpCode = 0x42

	// 0x50 range - host
	HOST OpCode = 0x50 // u8 host function
)

var opCodeNames = map[OpCode]string{
	STOP:   "STOP",
	PUSH:   "PUSH",
	PUSHU:  "PUSHU",
	POP:    "POP",
	DUP:    "DUP",
	SWAP:   "SWAP",
	LOAD:   "LOAD",
	STORE:  "STORE",
	ADD:    "ADD",
	SUB:    "SUB",
	MUL:    "MUL",
	DIV:    "DIV",
	MOD:    "MOD",
	LT:     "LT",
	GT:     "GT",
	EQ:     "EQ",
	ISZERO: "ISZERO",
	AND:    "AND",
	OR:     "OR",
	CONCAT: "CONCAT",
	LEN:    "LEN",
	FIELD:  "FIELD",
	COUNT:  "COUNT",
	PACK:   "PACK",
	JUMP:   "JUMP",
	JUMPI:  "JUMPI",
	ASSERT: "ASSERT",
	INPUT:  "INPUT",
	RETURN: "RETURN",
	REVERT: "REVERT",
	HOST:   "HOST",
}

var opCodesByName = func() map[string]OpCode {
	m := make(map[string]OpCode, len(opCodeNames))
	for op, name := range opCodeNames {
		m[name] = op
	}
	return m
}()

func (o OpCode) String() string {
	if name, ok := opCodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Missing opcode 0x%x", byte(o))
}

// immediateSize returns the size of the fixed immediate following op, and
// whether op is valid. PUSH carries a variable immediate and reports the
// size of its length prefix.
func immediateSize(op OpCode) (int, bool) {
	switch op {
	case PUSH:
		return 2, true
	case PUSHU:
		return 8, true
	case DUP, SWAP, LOAD, STORE, PACK, HOST:
		return 1, true
	case JUMP, JUMPI:
		return 4, true
	}
	_, ok := opCodeNames[op]
	return 0, ok
}
