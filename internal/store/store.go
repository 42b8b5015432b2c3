package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/intentd/types"
)

var (
	// ErrStorageConflict is returned when a diff computed against a root
	// that is no longer current is committed. The transaction must be
	// re-executed against fresh state.
	ErrStorageConflict = errors.New("storage conflict: stale base root")

	ErrInvalidHeight = errors.New("invalid block height")
	ErrKeyNotFound   = errors.New("key not found")
)

// State describes the last committed block.
type State struct {
	Height int64
	Time   time.Time
	Root   Hash
}

// Slot is a stored value along with the height of the block that wrote it.
type Slot struct {
	Value  []byte
	Height int64
}

// KV is a key and its value, as returned by prefix iteration.
type KV struct {
	Key   types.Key
	Value []byte
}

// pendingSlot is a block-level write not yet persisted. A nil slot marks a
// deletion.
type pendingSlot struct {
	key  types.Key
	slot *Slot
}

/*
Store is a Merklized key-value store.

Values live in three layers. Persisted slots sit in the database. Diffs
committed during the current block sit in a pending layer kept in memory,
and CommitBlock flushes that layer in one atomic batch. Transactions stage
their writes in an Overlay on top of both.

Every committed diff recomputes the root over the full working state, so
the root a transaction observes always matches the values it reads.
*/
type Store struct {
	db dbm.DB

	mtx       sync.RWMutex
	leaves    map[Hash]Hash // path -> leaf hash, working state
	root      Hash
	pending   *treemap.Map // key string -> pendingSlot
	height    int64
	blockTime time.Time
	last      State
	hasLast   bool
}

// NewStore opens the store backed by db and loads the last committed state.
func NewStore(db dbm.DB) (*Store, error) {
	s := &Store{
		db:      db,
		leaves:  make(map[Hash]Hash),
		pending: treemap.NewWithStringComparator(),
	}
	if err := s.loadLastState(); err != nil {
		return nil, err
	}
	if err := s.loadLeaves(); err != nil {
		return nil, err
	}
	s.root = s.computeRoot()
	if s.hasLast && s.root != s.last.Root {
		return nil, fmt.Errorf("stored root %s does not match recomputed root %s", s.last.Root, s.root)
	}
	return s, nil
}

func (s *Store) loadLastState() error {
	bz, err := s.db.Get(lastStateKey())
	if err != nil {
		return err
	}
	if len(bz) == 0 {
		return nil
	}
	st, err := decodeState(bz)
	if err != nil {
		return fmt.Errorf("decoding last state: %w", err)
	}
	s.last, s.hasLast = st, true
	s.height = st.Height
	s.blockTime = st.Time
	return nil
}

func (s *Store) loadLeaves() error {
	start, end := slotRange("")
	itr, err := s.db.Iterator(start, end)
	if err != nil {
		return err
	}
	defer itr.Close()

	for ; itr.Valid(); itr.Next() {
		k, err := decodeSlotKey(itr.Key())
		if err != nil {
			return err
		}
		slot, err := decodeSlot(itr.Value())
		if err != nil {
			return fmt.Errorf("decoding slot %s: %w", k, err)
		}
		path := keyPath(k.Bytes())
		s.leaves[path] = leafHash(path, slot.Value)
	}
	return itr.Error()
}

// LastState returns the last committed block state. The boolean is false
// for a store that never committed a block.
func (s *Store) LastState() (State, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.last, s.hasLast
}

// Root returns the root of the working state, including diffs committed in
// the current block.
func (s *Store) Root() Hash {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.root
}

// Height returns the height of the block being built, or of the last
// committed block between blocks.
func (s *Store) Height() int64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.height
}

// BlockTime returns the time of the block being built.
func (s *Store) BlockTime() time.Time {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.blockTime
}

// Read returns the working value of key.
func (s *Store) Read(key types.Key) ([]byte, bool, error) {
	slot, err := s.ReadSlot(key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return slot.Value, true, nil
}

// ReadSlot returns the working slot of key, or ErrKeyNotFound.
func (s *Store) ReadSlot(key types.Key) (Slot, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if p, ok := s.pending.Get(key.String()); ok {
		ps := p.(pendingSlot)
		if ps.slot == nil {
			return Slot{}, ErrKeyNotFound
		}
		return *ps.slot, nil
	}

	bz, err := s.db.Get(slotKey(key))
	if err != nil {
		return Slot{}, err
	}
	if bz == nil {
		return Slot{}, ErrKeyNotFound
	}
	return decodeSlot(bz)
}

// Has reports whether key holds a value in the working state.
func (s *Store) Has(key types.Key) (bool, error) {
	_, ok, err := s.Read(key)
	return ok, err
}

// IterPrefix returns every working slot whose key string starts with
// prefix, sorted by key.
func (s *Store) IterPrefix(prefix string) ([]KV, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	merged := treemap.NewWithStringComparator()

	start, end := slotRange(prefix)
	itr, err := s.db.Iterator(start, end)
	if err != nil {
		return nil, err
	}
	for ; itr.Valid(); itr.Next() {
		k, err := decodeSlotKey(itr.Key())
		if err != nil {
			itr.Close()
			return nil, err
		}
		slot, err := decodeSlot(itr.Value())
		if err != nil {
			itr.Close()
			return nil, err
		}
		merged.Put(k.String(), KV{Key: k, Value: slot.Value})
	}
	if err := itr.Error(); err != nil {
		itr.Close()
		return nil, err
	}
	if err := itr.Close(); err != nil {
		return nil, err
	}

	it := s.pending.Iterator()
	for it.Next() {
		ks := it.Key().(string)
		if !strings.HasPrefix(ks, prefix) {
			continue
		}
		ps := it.Value().(pendingSlot)
		if ps.slot == nil {
			merged.Remove(ks)
		} else {
			merged.Put(ks, KV{Key: ps.key, Value: ps.slot.Value})
		}
	}

	out := make([]KV, 0, merged.Size())
	for _, v := range merged.Values() {
		out = append(out, v.(KV))
	}
	return out, nil
}

// NewOverlay returns an overlay staging writes on top of the working state.
func (s *Store) NewOverlay() *Overlay {
	return newOverlay(s, s.Root())
}

// Commit merges diff into the working state and returns the new root. The
// diff is applied entirely or not at all. It fails with ErrStorageConflict
// if the working root moved since the diff was produced.
func (s *Store) Commit(diff *Diff) (Hash, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if diff.BaseRoot != s.root {
		return s.root, fmt.Errorf("%w: diff base %s, current %s", ErrStorageConflict, diff.BaseRoot, s.root)
	}

	for _, e := range diff.Entries {
		path := keyPath(e.Key.Bytes())
		if e.Deleted {
			s.pending.Put(e.Key.String(), pendingSlot{key: e.Key})
			delete(s.leaves, path)
			continue
		}
		value := append([]byte(nil), e.New...)
		s.pending.Put(e.Key.String(), pendingSlot{key: e.Key, slot: &Slot{Value: value, Height: s.height}})
		s.leaves[path] = leafHash(path, value)
	}

	s.root = s.computeRoot()
	return s.root, nil
}

// BeginBlock starts a new block. height must follow the last committed
// height. A store that never committed accepts height 0 for genesis.
func (s *Store) BeginBlock(height int64, t time.Time) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if want := s.last.Height + 1; s.hasLast && height != want {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidHeight, height, want)
	}
	if height < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidHeight, height)
	}
	s.height = height
	s.blockTime = t
	return nil
}

// CommitBlock persists the pending layer and the block metadata in one
// atomic batch and returns the committed root. Before the first
// BeginBlock it commits the genesis state at height 0.
func (s *Store) CommitBlock() (Hash, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.hasLast && s.height == s.last.Height {
		return s.root, fmt.Errorf("%w: block %d already committed", ErrInvalidHeight, s.height)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	it := s.pending.Iterator()
	for it.Next() {
		ps := it.Value().(pendingSlot)
		var err error
		if ps.slot == nil {
			err = batch.Delete(slotKey(ps.key))
		} else {
			err = batch.Set(slotKey(ps.key), encodeSlot(*ps.slot))
		}
		if err != nil {
			return s.root, err
		}
	}

	st := State{Height: s.height, Time: s.blockTime, Root: s.root}
	if err := batch.Set(lastStateKey(), encodeState(st)); err != nil {
		return s.root, err
	}
	if err := batch.Set(blockRootKey(st.Height), st.Root.Bytes()); err != nil {
		return s.root, err
	}
	if err := batch.WriteSync(); err != nil {
		return s.root, err
	}

	s.pending.Clear()
	s.last, s.hasLast = st, true
	return s.root, nil
}

// RootAt returns the root committed at height.
func (s *Store) RootAt(height int64) (Hash, error) {
	bz, err := s.db.Get(blockRootKey(height))
	if err != nil {
		return Hash{}, err
	}
	h, ok := HashFromBytes(bz)
	if !ok {
		return Hash{}, fmt.Errorf("no root for height %d", height)
	}
	return h, nil
}

// Prove returns the working value of key and a proof of its membership
// under Root.
func (s *Store) Prove(key types.Key) ([]byte, *Proof, error) {
	value, ok, err := s.Read(key)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrKeyNotFound
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()
	siblings, ok := buildProof(s.sortedLeaves(), keyPath(key.Bytes()))
	if !ok {
		return nil, nil, ErrKeyNotFound
	}
	return value, &Proof{Key: key.Bytes(), Siblings: siblings}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) sortedLeaves() []leaf {
	leaves := make([]leaf, 0, len(s.leaves))
	for p, h := range s.leaves {
		leaves = append(leaves, leaf{path: p, hash: h})
	}
	sortLeaves(leaves)
	return leaves
}

func (s *Store) computeRoot() Hash {
	return computeRoot(s.sortedLeaves(), 0)
}

//---------------------------------- VALUE ENCODING -----------------------------------------

func encodeSlot(slot Slot) []byte {
	out := types.EncodeU64(uint64(slot.Height))
	return append(out, slot.Value...)
}

func decodeSlot(bz []byte) (Slot, error) {
	if len(bz) < 8 {
		return Slot{}, errors.New("slot too short")
	}
	h, _ := types.DecodeU64(bz[:8])
	return Slot{Height: int64(h), Value: append([]byte(nil), bz[8:]...)}, nil
}

func encodeState(st State) []byte {
	var nanos uint64
	if !st.Time.IsZero() {
		nanos = uint64(st.Time.UnixNano())
	}
	return types.EncodeFrame(
		types.EncodeU64(uint64(st.Height)),
		types.EncodeU64(nanos),
		st.Root.Bytes(),
	)
}

func decodeState(bz []byte) (State, error) {
	items, err := types.DecodeFrameN(bz, 3)
	if err != nil {
		return State{}, err
	}
	height, err := types.DecodeU64(items[0])
	if err != nil {
		return State{}, err
	}
	nanos, err := types.DecodeU64(items[1])
	if err != nil {
		return State{}, err
	}
	root, ok := HashFromBytes(items[2])
	if !ok {
		return State{}, errors.New("invalid root length")
	}
	st := State{Height: int64(height), Root: root}
	if nanos != 0 {
		st.Time = time.Unix(0, int64(nanos)).UTC()
	}
	return st, nil
}
