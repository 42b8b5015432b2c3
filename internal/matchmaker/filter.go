package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/tendermint/intentd/types"
)

// FilterFunc is the global a filter script must define.
const FilterFunc = "filter"

// ErrFilter wraps failures to load or run a filter script.
var ErrFilter = errors.New("intent filter")

// maxLuaAmount is the largest amount a Lua number holds exactly.
const maxLuaAmount = 1 << 53

// Filter decides, with a Lua script, which intents the matchmaker
// considers. The script defines
//
//	function filter(intent) ... end
//
// which receives a table with the fields sender, token_sell, amount_sell,
// token_buy, amount_buy, topic and timestamp (unix seconds) and returns
// true to keep the intent. Intents with an amount above 2^53 are refused
// since Lua numbers can't represent them exactly.
//
// Only the base, table, string and math libraries are available.
type Filter struct {
	mtx sync.Mutex
	L   *lua.LState
	fn  *lua.LFunction
}

// LoadFilter reads and runs the script in fileName.
func LoadFilter(fileName string) (*Filter, error) {
	return newFilter(func(L *lua.LState) error { return L.DoFile(fileName) })
}

// NewFilter runs the script in src.
func NewFilter(src string) (*Filter, error) {
	return newFilter(func(L *lua.LState) error { return L.DoString(src) })
}

func newFilter(load func(*lua.LState) error) (*Filter, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	if err := load(L); err != nil {
		L.Close()
		return nil, fmt.Errorf("%w: %v", ErrFilter, err)
	}
	fn, ok := L.GetGlobal(FilterFunc).(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("%w: script does not define function %q", ErrFilter, FilterFunc)
	}
	return &Filter{L: L, fn: fn}, nil
}

// Allow runs the filter on intent. The script is interrupted when ctx is
// done.
func (f *Filter) Allow(ctx context.Context, intent *types.Intent) (bool, error) {
	if intent.AmountSell > maxLuaAmount || intent.AmountBuy > maxLuaAmount {
		return false, fmt.Errorf("%w: amount exceeds 2^53", ErrFilter)
	}

	f.mtx.Lock()
	defer f.mtx.Unlock()

	L := f.L
	L.SetContext(ctx)
	defer L.RemoveContext()

	err := L.CallByParam(lua.P{Fn: f.fn, NRet: 1, Protect: true}, intentTable(L, intent))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrFilter, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret), nil
}

// Close releases the interpreter.
func (f *Filter) Close() {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.L.Close()
}

func intentTable(L *lua.LState, in *types.Intent) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("sender", lua.LString(in.Sender))
	t.RawSetString("token_sell", lua.LString(in.TokenSell))
	t.RawSetString("amount_sell", lua.LNumber(in.AmountSell))
	t.RawSetString("token_buy", lua.LString(in.TokenBuy))
	t.RawSetString("amount_buy", lua.LNumber(in.AmountBuy))
	t.RawSetString("topic", lua.LString(in.Topic))
	t.RawSetString("timestamp", lua.LNumber(in.Timestamp.Unix()))
	return t
}
