// Package address implements jstz's tagged-sum account address: either a
// user account (derived from a public key) or a smart function (derived
// from its deployment's content hash), both base58check-encoded.
package address

import (
	"github.com/jstz-dev/jstz/internal/crypto"
	"github.com/jstz-dev/jstz/internal/jstzerrors"
)

// Kind distinguishes the two address families.
type Kind uint8

const (
	KindUser Kind = iota
	KindSmartFunction
)

// Version bytes for Base58CheckEncode; chosen so the two kinds never
// collide under decode.
const (
	versionUser          byte = 0x02
	versionSmartFunction byte = 0x4c
)

// Address is a content-addressed account identifier: a kind tag plus a
// 20-byte hash.
type Address struct {
	Kind Kind
	Hash [20]byte
}

// FromPublicKeyHash builds a user address from a 20-byte public key hash.
func FromPublicKeyHash(hash []byte) (Address, error) {
	return fromHash(KindUser, hash)
}

// FromDeployHash builds a smart function address from a 20-byte
// deployment content hash.
func FromDeployHash(hash []byte) (Address, error) {
	return fromHash(KindSmartFunction, hash)
}

func fromHash(kind Kind, hash []byte) (Address, error) {
	if len(hash) != 20 {
		return Address{}, jstzerrors.New(jstzerrors.CodeInvalidAddress, "address hash must be 20 bytes")
	}
	var a Address
	a.Kind = kind
	copy(a.Hash[:], hash)
	return a, nil
}

// String returns the address's base58check encoding.
func (a Address) String() string {
	v := versionUser
	if a.Kind == KindSmartFunction {
		v = versionSmartFunction
	}
	return crypto.Base58CheckEncode(v, a.Hash[:])
}

// Parse decodes a base58check-encoded address, determining its Kind from
// the version byte.
func Parse(s string) (Address, error) {
	version, payload, err := crypto.Base58CheckDecode(s)
	if err != nil {
		return Address{}, jstzerrors.Wrap(jstzerrors.CodeInvalidAddress, "parse address", err)
	}
	if len(payload) != 20 {
		return Address{}, jstzerrors.New(jstzerrors.CodeInvalidAddress, "address payload must be 20 bytes")
	}
	var kind Kind
	switch version {
	case versionUser:
		kind = KindUser
	case versionSmartFunction:
		kind = KindSmartFunction
	default:
		return Address{}, jstzerrors.New(jstzerrors.CodeInvalidAddress, "unrecognised address version")
	}
	var a Address
	a.Kind = kind
	copy(a.Hash[:], payload)
	return a, nil
}

// IsUser reports whether a is a user account address.
func (a Address) IsUser() bool { return a.Kind == KindUser }

// IsSmartFunction reports whether a is a smart function address.
func (a Address) IsSmartFunction() bool { return a.Kind == KindSmartFunction }

// Equal reports whether a and b denote the same address.
func (a Address) Equal(b Address) bool {
	return a.Kind == b.Kind && a.Hash == b.Hash
}
