package vm

import (
	"fmt"
	"time"

	"github.com/tendermint/intentd/internal/store"
	"github.com/tendermint/intentd/types"
)

// HostFunc identifies a function of the host ABI, the only channel from
// sandboxed code to the world.
type HostFunc byte

const (
	HostRead           HostFunc = 0x01 // key -> value
	HostHasKey         HostFunc = 0x02 // key -> bool
	HostWrite          HostFunc = 0x03 // key value ->
	HostDelete         HostFunc = 0x04 // key ->
	HostIterPrefix     HostFunc = 0x05 // prefix -> iterator
	HostIterNext       HostFunc = 0x06 // iterator -> frame(key, value) or empty when done
	HostBlockHeight    HostFunc = 0x07 // -> u64
	HostBlockTime      HostFunc = 0x08 // -> u64 unix seconds
	HostChainID        HostFunc = 0x09 // -> bytes
	HostLog            HostFunc = 0x0a // message ->
	HostInsertVerifier HostFunc = 0x0b // address ->
	HostInitAccount    HostFunc = 0x0c // vp code -> address
	HostTxSignedBy     HostFunc = 0x0d // public key -> bool
	HostReadPre        HostFunc = 0x10 // key -> value
	HostReadPost       HostFunc = 0x11 // key -> value
	HostHasKeyPost     HostFunc = 0x12 // key -> bool
)

type hostSig struct {
	name string
	args int
	rets int
}

var hostFuncs = map[HostFunc]hostSig{
	HostRead:           {"read", 1, 1},
	HostHasKey:         {"has_key", 1, 1},
	HostWrite:          {"write", 2, 0},
	HostDelete:         {"delete", 1, 0},
	HostIterPrefix:     {"iter_prefix", 1, 1},
	HostIterNext:       {"iter_next", 1, 1},
	HostBlockHeight:    {"get_block_height", 0, 1},
	HostBlockTime:      {"get_block_time", 0, 1},
	HostChainID:        {"get_chain_id", 0, 1},
	HostLog:            {"log", 1, 0},
	HostInsertVerifier: {"insert_verifier", 1, 0},
	HostInitAccount:    {"init_account", 1, 1},
	HostTxSignedBy:     {"verify_tx_signature", 1, 1},
	HostReadPre:        {"read_pre", 1, 1},
	HostReadPost:       {"read_post", 1, 1},
	HostHasKeyPost:     {"has_key_post", 1, 1},
}

// hostAliases are alternative assembler names of host functions.
var hostAliases = map[string]HostFunc{
	"delete_key":   HostDelete,
	"read_temp":    HostReadPost,
	"has_key_temp": HostHasKeyPost,
}

var hostFuncsByName = func() map[string]HostFunc {
	m := make(map[string]HostFunc, len(hostFuncs)+len(hostAliases))
	for fn, sig := range hostFuncs {
		m[sig.name] = fn
	}
	for name, fn := range hostAliases {
		m[name] = fn
	}
	return m
}()

func (f HostFunc) String() string {
	if sig, ok := hostFuncs[f]; ok {
		return sig.name
	}
	return fmt.Sprintf("host_0x%x", byte(f))
}

// Env is implemented by the ledger for each execution context. Transaction
// environments refuse the predicate-only functions and predicate
// environments refuse every mutation; both refusals are reported as
// ErrHostCall.
type Env interface {
	Read(key types.Key) ([]byte, bool, error)
	Write(key types.Key, value []byte) error
	Delete(key types.Key) error
	IterPrefix(prefix string) ([]store.KV, error)

	ReadPre(key types.Key) ([]byte, bool, error)
	ReadPost(key types.Key) ([]byte, bool, error)

	InsertVerifier(addr types.Address) error
	InitAccount(vpCode []byte) (types.Address, error)
	TxSignedBy(pubKey []byte) (bool, error)

	BlockHeight() int64
	BlockTime() time.Time
	ChainID() string
	Log(msg string)
}

// Host exposes an Env to sandboxed code. It charges gas for every call and
// normalises errors into the sandbox error classes. Native programs receive
// a Host, so they are metered exactly like bytecode.
type Host struct {
	env    Env
	gas    *GasMeter
	params Params

	iters [][]store.KV
}

func newHost(env Env, gas *GasMeter, params Params) *Host {
	return &Host{env: env, gas: gas, params: params}
}

func (h *Host) charge(base uint64, bytes int) error {
	if err := h.gas.Consume(GasHostBase + base); err != nil {
		return err
	}
	return h.gas.Consume(byteGas(bytes))
}

func hostErr(fn HostFunc, err error) error {
	if err == nil {
		return nil
	}
	if IsSandboxError(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrHostCall, fn, err)
}

func parseKey(fn HostFunc, raw []byte) (types.Key, error) {
	k, err := types.ParseKey(string(raw))
	if err != nil {
		return types.Key{}, hostErr(fn, err)
	}
	return k, nil
}

// Read returns the value of key as seen by the caller, nil when absent.
func (h *Host) Read(key types.Key) ([]byte, error) {
	return h.read(HostRead, key, h.env.Read)
}

// ReadPre returns the value of key before the transaction under validation.
func (h *Host) ReadPre(key types.Key) ([]byte, error) {
	return h.read(HostReadPre, key, h.env.ReadPre)
}

// ReadPost returns the value of key after the transaction under validation.
func (h *Host) ReadPost(key types.Key) ([]byte, error) {
	return h.read(HostReadPost, key, h.env.ReadPost)
}

func (h *Host) read(fn HostFunc, key types.Key, f func(types.Key) ([]byte, bool, error)) ([]byte, error) {
	if err := h.charge(GasStorageRead, len(key.Sub)); err != nil {
		return nil, err
	}
	v, _, err := f(key)
	if err != nil {
		return nil, hostErr(fn, err)
	}
	return v, h.gas.Consume(byteGas(len(v)))
}

// HasKey reports whether key holds a value as seen by the caller.
func (h *Host) HasKey(key types.Key) (bool, error) {
	return h.has(HostHasKey, key, h.env.Read)
}

// HasKeyPost reports whether key holds a value after the transaction under
// validation.
func (h *Host) HasKeyPost(key types.Key) (bool, error) {
	return h.has(HostHasKeyPost, key, h.env.ReadPost)
}

func (h *Host) has(fn HostFunc, key types.Key, f func(types.Key) ([]byte, bool, error)) (bool, error) {
	if err := h.charge(GasStorageRead, len(key.Sub)); err != nil {
		return false, err
	}
	_, ok, err := f(key)
	return ok, hostErr(fn, err)
}

func (h *Host) Write(key types.Key, value []byte) error {
	if err := h.charge(GasStorageWrite, len(key.Sub)+len(value)); err != nil {
		return err
	}
	return hostErr(HostWrite, h.env.Write(key, value))
}

func (h *Host) Delete(key types.Key) error {
	if err := h.charge(GasStorageWrite, len(key.Sub)); err != nil {
		return err
	}
	return hostErr(HostDelete, h.env.Delete(key))
}

// IterPrefix returns the slots under prefix, sorted by key.
func (h *Host) IterPrefix(prefix string) ([]store.KV, error) {
	if err := h.charge(GasStorageRead, len(prefix)); err != nil {
		return nil, err
	}
	kvs, err := h.env.IterPrefix(prefix)
	if err != nil {
		return nil, hostErr(HostIterPrefix, err)
	}
	n := 0
	for _, kv := range kvs {
		n += len(kv.Key.Sub) + len(kv.Value)
	}
	return kvs, h.gas.Consume(byteGas(n))
}

func (h *Host) openIterator(prefix string) (uint64, error) {
	if len(h.iters) >= h.params.MaxIterators {
		return 0, ErrTooManyIterators
	}
	kvs, err := h.IterPrefix(prefix)
	if err != nil {
		return 0, err
	}
	h.iters = append(h.iters, kvs)
	return uint64(len(h.iters) - 1), nil
}

func (h *Host) nextItem(id uint64) ([]byte, error) {
	if err := h.charge(0, 0); err != nil {
		return nil, err
	}
	if id >= uint64(len(h.iters)) {
		return nil, ErrInvalidIterator
	}
	if len(h.iters[id]) == 0 {
		return nil, nil
	}
	kv := h.iters[id][0]
	h.iters[id] = h.iters[id][1:]
	return types.EncodeFrame(kv.Key.Bytes(), kv.Value), nil
}

func (h *Host) InsertVerifier(addr types.Address) error {
	if err := h.charge(0, len(addr)); err != nil {
		return err
	}
	if err := addr.ValidateBasic(); err != nil {
		return hostErr(HostInsertVerifier, err)
	}
	return hostErr(HostInsertVerifier, h.env.InsertVerifier(addr))
}

func (h *Host) InitAccount(vpCode []byte) (types.Address, error) {
	if err := h.charge(GasStorageWrite, len(vpCode)); err != nil {
		return "", err
	}
	addr, err := h.env.InitAccount(vpCode)
	return addr, hostErr(HostInitAccount, err)
}

func (h *Host) TxSignedBy(pubKey []byte) (bool, error) {
	if err := h.charge(GasSigVerify, len(pubKey)); err != nil {
		return false, err
	}
	ok, err := h.env.TxSignedBy(pubKey)
	return ok, hostErr(HostTxSignedBy, err)
}

func (h *Host) BlockHeight() (int64, error) {
	return h.env.BlockHeight(), h.charge(0, 0)
}

func (h *Host) BlockTime() (time.Time, error) {
	return h.env.BlockTime(), h.charge(0, 0)
}

func (h *Host) ChainID() (string, error) {
	return h.env.ChainID(), h.charge(0, 0)
}

func (h *Host) Log(msg string) error {
	if err := h.charge(0, len(msg)); err != nil {
		return err
	}
	h.env.Log(msg)
	return nil
}

// call dispatches a HOST opcode. args are in push order.
func (h *Host) call(fn HostFunc, args [][]byte) ([][]byte, error) {
	switch fn {
	case HostRead, HostReadPre, HostReadPost:
		k, err := parseKey(fn, args[0])
		if err != nil {
			return nil, err
		}
		var v []byte
		switch fn {
		case HostRead:
			v, err = h.Read(k)
		case HostReadPre:
			v, err = h.ReadPre(k)
		default:
			v, err = h.ReadPost(k)
		}
		return [][]byte{v}, err

	case HostHasKey, HostHasKeyPost:
		k, err := parseKey(fn, args[0])
		if err != nil {
			return nil, err
		}
		var ok bool
		if fn == HostHasKey {
			ok, err = h.HasKey(k)
		} else {
			ok, err = h.HasKeyPost(k)
		}
		return [][]byte{boolBytes(ok)}, err

	case HostWrite:
		k, err := parseKey(fn, args[0])
		if err != nil {
			return nil, err
		}
		return nil, h.Write(k, args[1])

	case HostDelete:
		k, err := parseKey(fn, args[0])
		if err != nil {
			return nil, err
		}
		return nil, h.Delete(k)

	case HostIterPrefix:
		id, err := h.openIterator(string(args[0]))
		return [][]byte{types.EncodeU64(id)}, err

	case HostIterNext:
		id, err := types.DecodeU64(args[0])
		if err != nil {
			return nil, ErrNotAnInteger
		}
		item, err := h.nextItem(id)
		return [][]byte{item}, err

	case HostBlockHeight:
		height, err := h.BlockHeight()
		return [][]byte{types.EncodeU64(uint64(height))}, err

	case HostBlockTime:
		t, err := h.BlockTime()
		return [][]byte{types.EncodeU64(uint64(t.Unix()))}, err

	case HostChainID:
		id, err := h.ChainID()
		return [][]byte{[]byte(id)}, err

	case HostLog:
		return nil, h.Log(string(args[0]))

	case HostInsertVerifier:
		return nil, h.InsertVerifier(types.Address(args[0]))

	case HostInitAccount:
		addr, err := h.InitAccount(args[0])
		return [][]byte{[]byte(addr)}, err

	case HostTxSignedBy:
		ok, err := h.TxSignedBy(args[0])
		return [][]byte{boolBytes(ok)}, err
	}
	return nil, ErrUnknownHostFunc
}

func boolBytes(b bool) []byte {
	if b {
		return types.EncodeU64(1)
	}
	return types.EncodeU64(0)
}

// IsTrue reports whether a predicate output means acceptance: any non-zero
// byte is true.
func IsTrue(bz []byte) bool {
	for _, b := range bz {
		if b != 0 {
			return true
		}
	}
	return false
}
