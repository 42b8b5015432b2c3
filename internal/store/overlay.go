package store

import (
	"bytes"
	"errors"
	"sort"
	"strings"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/tendermint/intentd/types"
)

// ErrOverlaySealed is returned when writing to an overlay whose diff was
// already produced.
var ErrOverlaySealed = errors.New("overlay is sealed")

// Reader is the read side shared by the store, overlays and the post-state
// view of a diff.
type Reader interface {
	Read(key types.Key) ([]byte, bool, error)
	IterPrefix(prefix string) ([]KV, error)
}

var (
	_ Reader = (*Store)(nil)
	_ Reader = (*Overlay)(nil)
	_ Reader = (*PostState)(nil)
)

type staged struct {
	key     types.Key
	value   []byte
	deleted bool
}

// Overlay isolates the writes of one transaction. Reads see the base state
// plus the overlay's own writes. Nothing reaches the base until the diff
// produced by the overlay is committed.
type Overlay struct {
	base     Reader
	baseRoot Hash
	writes   *treemap.Map // key string -> staged
	sealed   bool
}

func newOverlay(base Reader, root Hash) *Overlay {
	return &Overlay{
		base:     base,
		baseRoot: root,
		writes:   treemap.NewWithStringComparator(),
	}
}

// BaseRoot is the root of the state the overlay was opened on.
func (o *Overlay) BaseRoot() Hash { return o.baseRoot }

// Read returns the value of key as seen by the transaction.
func (o *Overlay) Read(key types.Key) ([]byte, bool, error) {
	if w, ok := o.writes.Get(key.String()); ok {
		st := w.(staged)
		if st.deleted {
			return nil, false, nil
		}
		return st.value, true, nil
	}
	return o.base.Read(key)
}

// Write stages value under key.
func (o *Overlay) Write(key types.Key, value []byte) error {
	if o.sealed {
		return ErrOverlaySealed
	}
	if err := key.ValidateBasic(); err != nil {
		return err
	}
	o.writes.Put(key.String(), staged{key: key, value: append([]byte(nil), value...)})
	return nil
}

// Delete stages the removal of key.
func (o *Overlay) Delete(key types.Key) error {
	if o.sealed {
		return ErrOverlaySealed
	}
	if err := key.ValidateBasic(); err != nil {
		return err
	}
	o.writes.Put(key.String(), staged{key: key, deleted: true})
	return nil
}

// IterPrefix returns the slots visible to the transaction whose key string
// starts with prefix, sorted by key.
func (o *Overlay) IterPrefix(prefix string) ([]KV, error) {
	base, err := o.base.IterPrefix(prefix)
	if err != nil {
		return nil, err
	}
	return mergeKVs(base, o.writes, prefix), nil
}

// Len returns the number of staged writes.
func (o *Overlay) Len() int { return o.writes.Size() }

// Diff seals the overlay and returns its frozen write set.
func (o *Overlay) Diff() (*Diff, error) {
	o.sealed = true

	d := &Diff{BaseRoot: o.baseRoot, Entries: make([]DiffEntry, 0, o.writes.Size())}
	it := o.writes.Iterator()
	for it.Next() {
		st := it.Value().(staged)
		old, existed, err := o.base.Read(st.key)
		if err != nil {
			return nil, err
		}
		d.Entries = append(d.Entries, DiffEntry{
			Key:     st.key,
			Old:     old,
			Existed: existed,
			New:     st.value,
			Deleted: st.deleted,
		})
	}
	return d, nil
}

// DiffEntry is the change of a single key.
type DiffEntry struct {
	Key     types.Key
	Old     []byte
	Existed bool
	New     []byte
	Deleted bool
}

// Changed reports whether the entry alters the stored value.
func (e DiffEntry) Changed() bool {
	if e.Deleted {
		return e.Existed
	}
	return !e.Existed || !bytes.Equal(e.Old, e.New)
}

// Diff is the frozen write set of one transaction, sorted by key. It is
// committed entirely or not at all.
type Diff struct {
	BaseRoot Hash
	Entries  []DiffEntry
}

// Keys returns the changed keys in order.
func (d *Diff) Keys() []types.Key {
	keys := make([]types.Key, len(d.Entries))
	for i, e := range d.Entries {
		keys[i] = e.Key
	}
	return keys
}

// Owners returns the namespace owners of the changed keys, in key order
// and without duplicates.
func (d *Diff) Owners() []types.Address {
	var out []types.Address
	seen := make(map[types.Address]bool)
	for _, e := range d.Entries {
		if !seen[e.Key.Owner] {
			seen[e.Key.Owner] = true
			out = append(out, e.Key.Owner)
		}
	}
	return out
}

// Get returns the entry of key, if the diff changes it.
func (d *Diff) Get(key types.Key) (DiffEntry, bool) {
	ks := key.String()
	i := sort.Search(len(d.Entries), func(i int) bool {
		return d.Entries[i].Key.String() >= ks
	})
	if i < len(d.Entries) && d.Entries[i].Key == key {
		return d.Entries[i], true
	}
	return DiffEntry{}, false
}

// Len returns the number of entries.
func (d *Diff) Len() int { return len(d.Entries) }

// PostState is the read-only view of base with a diff applied.
type PostState struct {
	base Reader
	diff *Diff
}

// NewPostState returns the state base would have after committing diff.
func NewPostState(base Reader, diff *Diff) *PostState {
	return &PostState{base: base, diff: diff}
}

func (p *PostState) Read(key types.Key) ([]byte, bool, error) {
	if e, ok := p.diff.Get(key); ok {
		if e.Deleted {
			return nil, false, nil
		}
		return e.New, true, nil
	}
	return p.base.Read(key)
}

func (p *PostState) IterPrefix(prefix string) ([]KV, error) {
	base, err := p.base.IterPrefix(prefix)
	if err != nil {
		return nil, err
	}
	writes := treemap.NewWithStringComparator()
	for _, e := range p.diff.Entries {
		writes.Put(e.Key.String(), staged{key: e.Key, value: e.New, deleted: e.Deleted})
	}
	return mergeKVs(base, writes, prefix), nil
}

func mergeKVs(base []KV, writes *treemap.Map, prefix string) []KV {
	merged := treemap.NewWithStringComparator()
	for _, kv := range base {
		merged.Put(kv.Key.String(), kv)
	}
	it := writes.Iterator()
	for it.Next() {
		ks := it.Key().(string)
		if !strings.HasPrefix(ks, prefix) {
			continue
		}
		st := it.Value().(staged)
		if st.deleted {
			merged.Remove(ks)
		} else {
			merged.Put(ks, KV{Key: st.key, Value: st.value})
		}
	}
	out := make([]KV, 0, merged.Size())
	for _, v := range merged.Values() {
		out = append(out, v.(KV))
	}
	return out
}
