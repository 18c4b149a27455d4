package storage

import (
	"github.com/jstz-dev/jstz/internal/host"
	"github.com/jstz-dev/jstz/internal/jstzerrors"
)

// Storage is a typed view over a Host's durable key-value surface. It is
// the root frame every nested transaction ultimately reads through and
// commits into — the durable-storage equivalent of the teacher's
// infrastructure/state backend, but speaking the canonical codec above
// instead of JSON.
type Storage struct {
	h host.Host
}

// New wraps h as a durable Storage root.
func New(h host.Host) *Storage {
	return &Storage{h: h}
}

// ContainsKey reports whether path holds a value in durable storage.
func (s *Storage) ContainsKey(path string) (bool, error) {
	_, ok, err := s.GetRaw(path)
	return ok, err
}

// GetRaw reads path's full raw value, or (nil, false) if absent.
func (s *Storage) GetRaw(path string) ([]byte, bool, error) {
	has, err := s.h.StoreHas(path)
	if err != nil {
		return nil, false, err
	}
	if !has {
		return nil, false, nil
	}
	data, err := s.h.StoreRead(path, 0, -1)
	if err != nil {
		if jstzerrors.Is(err, jstzerrors.CodeNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// InsertRaw fully replaces path's value with data.
func (s *Storage) InsertRaw(path string, data []byte) error {
	return s.h.StoreWriteAll(path, data)
}

// Remove deletes path and everything beneath it.
func (s *Storage) Remove(path string) error {
	return s.h.StoreDelete(path)
}

// Get decodes the value at path using dec, returning (zero, false) if the
// key is absent.
func Get[V any](s *Storage, path string, dec Decoder[V]) (V, bool, error) {
	var zero V
	raw, ok, err := s.GetRaw(path)
	if err != nil || !ok {
		return zero, ok, err
	}
	v, err := dec(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Insert encodes v with its Value.Encode method and writes it at path.
func Insert[V Value](s *Storage, path string, v V) error {
	raw, err := v.Encode()
	if err != nil {
		return err
	}
	return s.InsertRaw(path, raw)
}

// CountSubkeys returns the number of direct children under prefix.
func (s *Storage) CountSubkeys(prefix string) (uint64, error) {
	return s.h.StoreCountSubkeys(prefix)
}

// Move relocates a subtree.
func (s *Storage) Move(from, to string) error {
	return s.h.StoreMove(from, to)
}

// Copy duplicates a subtree.
func (s *Storage) Copy(from, to string) error {
	return s.h.StoreCopy(from, to)
}
