package vm

import (
	"fmt"
	"io"
	"math"

	"github.com/tendermint/intentd/types"
)

// Stack holds byte string operands. The first error encountered sticks in
// *err and later operations become no-ops returning zero values, so the
// interpreter checks once per instruction.
//
// Not goroutine safe
type Stack struct {
	data [][]byte

	maxDepth int
	mem      *memory
	err      *error
}

func NewStack(maxDepth int, mem *memory, err *error) *Stack {
	return &Stack{
		data:     make([][]byte, 0, minInt(maxDepth, 64)),
		maxDepth: maxDepth,
		mem:      mem,
		err:      err,
	}
}

func (st *Stack) setErr(err error) {
	if *st.err == nil {
		*st.err = err
	}
}

func (st *Stack) Push(d []byte) {
	if *st.err != nil {
		return
	}
	if len(st.data) == st.maxDepth {
		st.setErr(ErrDataStackOverflow)
		return
	}
	if err := st.mem.grow(len(d)); err != nil {
		st.setErr(err)
		return
	}
	st.data = append(st.data, d)
}

func (st *Stack) PushU64(i uint64) {
	st.Push(types.EncodeU64(i))
}

func (st *Stack) PushBool(b bool) {
	st.Push(boolBytes(b))
}

func (st *Stack) Pop() []byte {
	if *st.err != nil {
		return nil
	}
	if len(st.data) == 0 {
		st.setErr(ErrDataStackUnderflow)
		return nil
	}
	d := st.data[len(st.data)-1]
	st.data[len(st.data)-1] = nil
	st.data = st.data[:len(st.data)-1]
	st.mem.shrink(len(d))
	return d
}

// PopU64 pops an integer operand of at most 8 bytes.
func (st *Stack) PopU64() uint64 {
	d := st.Pop()
	if *st.err != nil {
		return 0
	}
	i, err := types.DecodeU64(d)
	if err != nil {
		st.setErr(ErrNotAnInteger)
		return 0
	}
	return i
}

// PopN pops n items and returns them in push order.
func (st *Stack) PopN(n int) [][]byte {
	if *st.err != nil {
		return nil
	}
	if len(st.data) < n {
		st.setErr(ErrDataStackUnderflow)
		return nil
	}
	out := make([][]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = st.Pop()
	}
	return out
}

func (st *Stack) Len() int {
	return len(st.data)
}

func (st *Stack) Swap(n int) {
	if *st.err != nil {
		return
	}
	if n < 1 || len(st.data) <= n {
		st.setErr(ErrDataStackUnderflow)
		return
	}
	top := len(st.data) - 1
	st.data[top-n], st.data[top] = st.data[top], st.data[top-n]
}

func (st *Stack) Dup(n int) {
	if *st.err != nil {
		return
	}
	if n < 1 || len(st.data) < n {
		st.setErr(ErrDataStackUnderflow)
		return
	}
	st.Push(st.data[len(st.data)-n])
}

// Not an opcode, costs no gas.
func (st *Stack) Peek() []byte {
	if len(st.data) == 0 {
		st.setErr(ErrDataStackUnderflow)
		return nil
	}
	return st.data[len(st.data)-1]
}

func (st *Stack) Print(w io.Writer, n int) {
	fmt.Fprintln(w, "### stack ###")
	if len(st.data) > 0 {
		nn := minInt(n, len(st.data))
		for j, i := 0, len(st.data)-1; i > len(st.data)-1-nn; i-- {
			fmt.Fprintf(w, "%-3d  %X\n", j, st.data[i])
			j++
		}
	} else {
		fmt.Fprintln(w, "-- empty --")
	}
	fmt.Fprintln(w, "#############")
}

// memory accounts the bytes held by the stack and the locals of one
// execution.
type memory struct {
	used  int
	limit int
}

func (m *memory) grow(n int) error {
	if n > math.MaxInt32 || m.used+n > m.limit {
		return ErrMemoryLimit
	}
	m.used += n
	return nil
}

func (m *memory) shrink(n int) {
	m.used -= n
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
