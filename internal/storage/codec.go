// Package storage implements the kernel's durable-storage codec and path
// scheme. Encoding is canonical: the same Go value always produces the
// same bytes. Rather than lean on a reflection-based codec (encoding/json,
// gob), each persisted type hand-rolls Encode/Decode over a small binary
// grammar — the same discipline the teacher's domain types use when they
// mirror an on-chain Michelson/contract layout field-by-field instead of
// serializing structs generically.
package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/jstz-dev/jstz/internal/jstzerrors"
)

// Value is anything the durable store and transaction snapshot can hold.
type Value interface {
	Encode() ([]byte, error)
}

// Decoder decodes bytes produced by a Value's Encode into a concrete type.
type Decoder[V any] func([]byte) (V, error)

// PutUint64 appends v, big-endian, to buf.
func PutUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// TakeUint64 reads a big-endian uint64 from the front of buf, returning
// the value and whatever remains.
func TakeUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, serializationErr("truncated uint64")
	}
	return binary.BigEndian.Uint64(buf[:8]), buf[8:], nil
}

// PutString appends a length-prefixed UTF-8 string to buf.
func PutString(buf []byte, s string) []byte {
	buf = PutUint64(buf, uint64(len(s)))
	return append(buf, s...)
}

// TakeString reads a length-prefixed UTF-8 string from the front of buf.
func TakeString(buf []byte) (string, []byte, error) {
	n, rest, err := TakeUint64(buf)
	if err != nil {
		return "", nil, err
	}
	if uint64(len(rest)) < n {
		return "", nil, serializationErr("truncated string")
	}
	return string(rest[:n]), rest[n:], nil
}

// PutBytes appends a length-prefixed byte slice to buf.
func PutBytes(buf []byte, b []byte) []byte {
	buf = PutUint64(buf, uint64(len(b)))
	return append(buf, b...)
}

// TakeBytes reads a length-prefixed byte slice from the front of buf.
func TakeBytes(buf []byte) ([]byte, []byte, error) {
	n, rest, err := TakeUint64(buf)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, serializationErr("truncated bytes")
	}
	out := make([]byte, n)
	copy(out, rest[:n])
	return out, rest[n:], nil
}

// PutBool appends a single-byte boolean to buf.
func PutBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// TakeBool reads a single-byte boolean from the front of buf.
func TakeBool(buf []byte) (bool, []byte, error) {
	if len(buf) < 1 {
		return false, nil, serializationErr("truncated bool")
	}
	return buf[0] != 0, buf[1:], nil
}

func serializationErr(msg string) error {
	return jstzerrors.New(jstzerrors.CodeSerialization, fmt.Sprintf("decode: %s", msg))
}
