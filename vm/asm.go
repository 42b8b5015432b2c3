package vm

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrAssembly = errors.New("assembly error")

/*
Assemble translates the textual form of a program into a bytecode module,
magic prefix included.

One instruction per line. A trailing colon defines a label, a semicolon
starts a comment. Operands:

	PUSH "text" | PUSH 0xdeadbeef
	PUSHU 42 | PUSHU 0x2a
	DUP n, SWAP n, LOAD n, STORE n, PACK n
	JUMP label, JUMPI label
	HOST read
*/
func Assemble(src string) ([]byte, error) {
	type fixup struct {
		at    int
		label string
		line  int
	}
	var (
		out    []byte
		labels = make(map[string]int)
		fixups []fixup
	)

	for i, line := range strings.Split(src, "\n") {
		lineNo := i + 1
		toks, err := tokenize(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrAssembly, lineNo, err)
		}
		for len(toks) > 0 && strings.HasSuffix(toks[0], ":") {
			label := strings.TrimSuffix(toks[0], ":")
			if _, ok := labels[label]; ok {
				return nil, fmt.Errorf("%w: line %d: duplicate label %q", ErrAssembly, lineNo, label)
			}
			labels[label] = len(out)
			toks = toks[1:]
		}
		if len(toks) == 0 {
			continue
		}

		op, ok := opCodesByName[strings.ToUpper(toks[0])]
		if !ok {
			return nil, fmt.Errorf("%w: line %d: unknown instruction %q", ErrAssembly, lineNo, toks[0])
		}
		size, _ := immediateSize(op)
		if (size == 0) != (len(toks) == 1) || len(toks) > 2 {
			return nil, fmt.Errorf("%w: line %d: %v takes %d operand(s)", ErrAssembly, lineNo, op, boolInt(size > 0))
		}
		out = append(out, byte(op))
		if size == 0 {
			continue
		}

		arg := toks[1]
		switch op {
		case PUSH:
			bz, err := parseBytes(arg)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrAssembly, lineNo, err)
			}
			if len(bz) > math.MaxUint16 {
				return nil, fmt.Errorf("%w: line %d: push of %d bytes", ErrAssembly, lineNo, len(bz))
			}
			var l [2]byte
			binary.BigEndian.PutUint16(l[:], uint16(len(bz)))
			out = append(append(out, l[:]...), bz...)

		case PUSHU:
			v, err := strconv.ParseUint(arg, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrAssembly, lineNo, err)
			}
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], v)
			out = append(out, b[:]...)

		case JUMP, JUMPI:
			fixups = append(fixups, fixup{at: len(out), label: arg, line: lineNo})
			out = append(out, 0, 0, 0, 0)

		case HOST:
			fn, ok := hostFuncsByName[arg]
			if !ok {
				return nil, fmt.Errorf("%w: line %d: unknown host function %q", ErrAssembly, lineNo, arg)
			}
			out = append(out, byte(fn))

		default:
			v, err := strconv.ParseUint(arg, 0, 8)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrAssembly, lineNo, err)
			}
			out = append(out, byte(v))
		}
	}

	for _, f := range fixups {
		dest, ok := labels[f.label]
		if !ok {
			return nil, fmt.Errorf("%w: line %d: undefined label %q", ErrAssembly, f.line, f.label)
		}
		binary.BigEndian.PutUint32(out[f.at:], uint32(dest))
	}
	return BytecodeCode(out), nil
}

// ParseCode returns bz unchanged when it already is a bytecode or native
// module, and assembles it as text otherwise.
func ParseCode(bz []byte) ([]byte, error) {
	if bytes.HasPrefix(bz, BytecodeMagic) || bytes.HasPrefix(bz, NativeMagic) {
		return bz, nil
	}
	return Assemble(string(bz))
}

// MustAssemble is like Assemble but panics on error. For built-in
// programs.
func MustAssemble(src string) []byte {
	code, err := Assemble(src)
	if err != nil {
		panic(err)
	}
	return code
}

func tokenize(line string) ([]string, error) {
	var toks []string
	for {
		line = strings.TrimLeft(line, " \t\r")
		if line == "" || line[0] == ';' {
			return toks, nil
		}
		if line[0] == '"' {
			end := 1
			for ; end < len(line); end++ {
				if line[end] == '\\' {
					end++
					continue
				}
				if line[end] == '"' {
					break
				}
			}
			if end >= len(line) {
				return nil, errors.New("unterminated string")
			}
			toks = append(toks, line[:end+1])
			line = line[end+1:]
			continue
		}
		end := strings.IndexAny(line, " \t\r;")
		if end < 0 {
			end = len(line)
		}
		toks = append(toks, line[:end])
		line = line[end:]
	}
}

func parseBytes(arg string) ([]byte, error) {
	switch {
	case strings.HasPrefix(arg, `"`):
		s, err := strconv.Unquote(arg)
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	case strings.HasPrefix(arg, "0x"):
		return hex.DecodeString(arg[2:])
	}
	return nil, fmt.Errorf("bad byte string %q", arg)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
