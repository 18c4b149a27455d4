// Package kv implements the kernel's nested transactional key-value store:
// a lazy snapshot of durable storage at the point a transaction begins,
// isolated from sibling transactions, with reads memoized and writes
// buffered until Commit folds them one level up.
//
// Transactions offer ACID guarantees at the level of serializability: a
// transaction may only commit if nothing it read was concurrently
// committed by another transaction. Because the kernel runs single
// threaded and transactions nest strictly (a child never outlives its
// parent's call frame), this reduces to a simple rule enforced by Go's
// type system rather than runtime locking: there is at most one writer
// per level, and a child transaction always commits or is discarded
// before its parent resumes.
package kv

import (
	"sort"

	"github.com/jstz-dev/jstz/internal/storage"
)

// entry is one snapshot slot: the raw encoded value and whether it has
// been written (dirty) within this transaction versus merely read
// through from a parent/root.
type entry struct {
	dirty bool
	value []byte
}

// Transaction is a lazy, isolated snapshot over either a parent
// Transaction or, at the root, durable Storage.
type Transaction struct {
	parent *Transaction
	root   *storage.Storage

	removeSet map[string]struct{}
	snapshot  map[string]*entry

	beginTimestamp uint64
}

// New begins a root transaction directly over durable storage.
func New(root *storage.Storage) *Transaction {
	return &Transaction{
		root:      root,
		removeSet: make(map[string]struct{}),
		snapshot:  make(map[string]*entry),
	}
}

// Begin starts a child transaction nested within t. The child's writes
// are invisible to t and to durable storage until the child Commits.
func (t *Transaction) Begin() *Transaction {
	return &Transaction{
		parent:         t,
		removeSet:      make(map[string]struct{}),
		snapshot:       make(map[string]*entry),
		beginTimestamp: t.beginTimestamp + 1,
	}
}

// lookup resolves key through the snapshot, recursing into the parent
// (or durable storage at the root) on a miss, and memoizes whatever it
// finds as a non-dirty entry in this transaction's snapshot.
func (t *Transaction) lookup(key string) (*entry, bool, error) {
	if e, ok := t.snapshot[key]; ok {
		return e, true, nil
	}
	if _, removed := t.removeSet[key]; removed {
		return nil, false, nil
	}

	if t.parent != nil {
		parentEntry, found, err := t.parent.lookup(key)
		if err != nil || !found {
			return nil, false, err
		}
		e := &entry{dirty: false, value: parentEntry.value}
		t.snapshot[key] = e
		return e, true, nil
	}

	has, err := t.root.ContainsKey(key)
	if err != nil || !has {
		return nil, false, err
	}
	raw, ok, err := t.root.GetRaw(key)
	if err != nil || !ok {
		return nil, false, err
	}
	e := &entry{dirty: false, value: raw}
	t.snapshot[key] = e
	return e, true, nil
}

// Get decodes the value stored at key using dec, reporting (zero, false)
// if the key is absent along the full parent/root chain.
func Get[V any](t *Transaction, key string, dec storage.Decoder[V]) (V, bool, error) {
	var zero V
	e, found, err := t.lookup(key)
	if err != nil || !found {
		return zero, false, err
	}
	v, err := dec(e.value)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// ContainsKey reports whether key resolves along the snapshot/parent/root
// chain. A key in this transaction's removal set is reported absent
// without consulting the parent or durable storage.
func (t *Transaction) ContainsKey(key string) (bool, error) {
	if _, ok := t.snapshot[key]; ok {
		return true, nil
	}
	if _, removed := t.removeSet[key]; removed {
		return false, nil
	}
	if t.parent != nil {
		return t.parent.ContainsKey(key)
	}
	return t.root.ContainsKey(key)
}

// Insert writes value into the transaction's snapshot as a dirty (pending)
// entry; it becomes visible to durable storage only once every enclosing
// transaction up to the root has committed.
func Insert[V storage.Value](t *Transaction, key string, value V) error {
	raw, err := value.Encode()
	if err != nil {
		return err
	}
	t.snapshot[key] = &entry{dirty: true, value: raw}
	return nil
}

// Remove deletes key from the transaction's view. If key existed anywhere
// along the snapshot/parent/root chain, it is added to the removal set so
// Commit propagates the deletion outward.
func (t *Transaction) Remove(key string) error {
	existed, err := t.ContainsKey(key)
	if err != nil {
		return err
	}
	delete(t.snapshot, key)
	if existed {
		t.removeSet[key] = struct{}{}
	}
	return nil
}

// GetOrInsertDefault returns the value at key, decoding it with dec if
// present, or inserts and returns def() if absent.
func GetOrInsertDefault[V storage.Value](t *Transaction, key string, dec storage.Decoder[V], def func() V) (V, error) {
	v, found, err := Get(t, key, dec)
	if err != nil {
		return v, err
	}
	if found {
		return v, nil
	}
	v = def()
	if err := Insert(t, key, v); err != nil {
		return v, err
	}
	return v, nil
}

// GetMut is Get, except the entry is eagerly marked dirty so that Commit
// folds it outward even if the caller never calls Insert again. Go has no
// analogue to Rust's `&mut V` borrowed out of a map slot, so GetMut's
// contract here is: decode the current value, mark it dirty now, and hand
// the caller an owned copy to mutate and persist with Insert (or, in one
// step, with Mutate below).
func GetMut[V any](t *Transaction, key string, dec storage.Decoder[V]) (V, bool, error) {
	var zero V
	e, found, err := t.lookup(key)
	if err != nil || !found {
		return zero, false, err
	}
	e.dirty = true
	v, err := dec(e.value)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Mutate reads the value at key (or def() if absent), applies fn, and
// writes the result back as a dirty entry in one step — the Go rendition
// of a get_mut-then-insert read-modify-write cycle, since Go cannot return
// a live mutable reference into the snapshot map the way Rust's entry API
// does.
func Mutate[V storage.Value](t *Transaction, key string, dec storage.Decoder[V], def func() V, fn func(V) V) (V, error) {
	v, found, err := GetMut(t, key, dec)
	if err != nil {
		return v, err
	}
	if !found {
		v = def()
	}
	v = fn(v)
	if err := Insert(t, key, v); err != nil {
		return v, err
	}
	return v, nil
}

// EntryState classifies an Entry as absent along the whole snapshot/
// parent/root chain (Vacant) or present in this transaction's snapshot
// (Occupied, memoized from a parent/root hit if necessary by GetEntry).
type EntryState int

const (
	// Vacant means key resolves nowhere along the chain.
	Vacant EntryState = iota
	// Occupied means key currently has a value visible to this transaction.
	Occupied
)

// Entry is a view into one key's current slot for in-place manipulation,
// the Go rendition of Rust's `btree_map::Entry<Vacant|Occupied>` collapsed
// into a single value type: Go's map entries can't yield a long-lived
// mutable reference the way Rust's entry API does, so Vacant/Occupied
// here are a tag plus a cached decode rather than two distinct borrowed
// views.
type Entry[V storage.Value] struct {
	t     *Transaction
	key   string
	state EntryState
	value V
}

// GetEntry looks up key and classifies it as Vacant or Occupied, memoizing
// a parent/root hit into this transaction's snapshot exactly as lookup
// does (so a Vacant entry found in an ancestor is actually resolved via
// the normal lazy-snapshot path, not specially elided).
func GetEntry[V storage.Value](t *Transaction, key string, dec storage.Decoder[V]) (Entry[V], error) {
	e, found, err := t.lookup(key)
	if err != nil {
		return Entry[V]{}, err
	}
	if !found {
		return Entry[V]{t: t, key: key, state: Vacant}, nil
	}
	v, err := dec(e.value)
	if err != nil {
		return Entry[V]{}, err
	}
	return Entry[V]{t: t, key: key, state: Occupied, value: v}, nil
}

// State reports whether the entry was Vacant or Occupied at the time
// GetEntry resolved it.
func (e Entry[V]) State() EntryState { return e.state }

// Get returns the entry's cached value and whether it is Occupied.
func (e Entry[V]) Get() (V, bool) {
	return e.value, e.state == Occupied
}

// OrInsertDefault returns the entry's value if Occupied, or inserts def()
// as a dirty entry and returns it — Rust's Entry::or_insert_default.
func (e Entry[V]) OrInsertDefault(def func() V) (V, error) {
	if e.state == Occupied {
		return e.value, nil
	}
	v := def()
	if err := Insert(e.t, e.key, v); err != nil {
		return v, err
	}
	return v, nil
}

// Insert overwrites the entry's value, Vacant or Occupied, marking it
// dirty — Rust's VacantEntry::insert and OccupiedEntry::insert collapsed
// into one call since Go's Entry isn't split into two concrete types.
func (e Entry[V]) Insert(v V) error {
	return Insert(e.t, e.key, v)
}

// Remove deletes an Occupied entry and returns its prior value; it is a
// no-op returning (zero, false) on a Vacant entry — Rust's
// OccupiedEntry::remove.
func (e Entry[V]) Remove() (V, bool, error) {
	if e.state != Occupied {
		var zero V
		return zero, false, nil
	}
	if err := e.t.Remove(e.key); err != nil {
		var zero V
		return zero, false, err
	}
	return e.value, true, nil
}

// Commit folds this transaction's removals and insertions one level up,
// in sorted key order so application is deterministic regardless of Go's
// randomized map iteration. At the root, removals and insertions apply
// directly to durable storage; removals are applied before insertions so
// a remove-then-reinsert of the same key within one transaction lands as
// an insert.
func (t *Transaction) Commit() error {
	removeKeys := make([]string, 0, len(t.removeSet))
	for k := range t.removeSet {
		removeKeys = append(removeKeys, k)
	}
	sort.Strings(removeKeys)

	for _, key := range removeKeys {
		if t.parent != nil {
			delete(t.parent.snapshot, key)
			t.parent.removeSet[key] = struct{}{}
			continue
		}
		if err := t.root.Remove(key); err != nil {
			return err
		}
	}

	insertKeys := make([]string, 0, len(t.snapshot))
	for k, e := range t.snapshot {
		if e.dirty {
			insertKeys = append(insertKeys, k)
		}
	}
	sort.Strings(insertKeys)

	for _, key := range insertKeys {
		e := t.snapshot[key]
		if t.parent != nil {
			t.parent.snapshot[key] = &entry{dirty: true, value: e.value}
			delete(t.parent.removeSet, key)
			continue
		}
		if err := t.root.InsertRaw(key, e.value); err != nil {
			return err
		}
	}

	return nil
}

// Rollback discards the transaction. It exists for symmetry with Begin
// and Commit at call sites (defer tx.Rollback() guarding an early return);
// an uncommitted transaction is already invisible to its parent, so this
// is a no-op.
func (t *Transaction) Rollback() {}

// ReadSet returns every key this transaction read without writing,
// matching the original's conflict-detection surface (unused for
// enforcement here since the kernel is single threaded, but preserved so
// callers can still reason about a transaction's read footprint).
func (t *Transaction) ReadSet() []string {
	keys := make([]string, 0, len(t.snapshot))
	for k, e := range t.snapshot {
		if !e.dirty {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// UpdateSet returns every key this transaction wrote or removed.
func (t *Transaction) UpdateSet() []string {
	seen := make(map[string]struct{})
	for k, e := range t.snapshot {
		if e.dirty {
			seen[k] = struct{}{}
		}
	}
	for k := range t.removeSet {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
