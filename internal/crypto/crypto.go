// Package crypto provides the kernel's signing, hashing, and address
// derivation primitives: ECDSA P-256 signatures over operation hashes,
// and blake2b-based content addressing for both accounts and smart
// function deployments.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// KeyPair is an ECDSA P-256 signing key and its public counterpart.
type KeyPair struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
}

// GenerateKeyPair generates a new signing key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{PrivateKey: priv, PublicKey: &priv.PublicKey}, nil
}

// Sign signs data's SHA-256 digest, returning a fixed 64-byte r‖s
// signature.
func Sign(priv *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 64)
	rBytes, sBytes := r.Bytes(), s.Bytes()
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	return sig, nil
}

// Verify reports whether sig is a valid signature of data's SHA-256
// digest under pub.
func Verify(pub *ecdsa.PublicKey, data, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}
	digest := sha256.Sum256(data)
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	return ecdsa.Verify(pub, digest[:], r, s)
}

// PublicKeyToBytes encodes pub in SEC1 compressed form (33 bytes).
func PublicKeyToBytes(pub *ecdsa.PublicKey) []byte {
	x := pub.X.Bytes()
	xPadded := make([]byte, 32)
	copy(xPadded[32-len(x):], x)

	prefix := byte(0x02)
	if pub.Y.Bit(0) == 1 {
		prefix = 0x03
	}

	out := make([]byte, 33)
	out[0] = prefix
	copy(out[1:], xPadded)
	return out
}

// PublicKeyFromBytes parses a compressed or uncompressed SEC1 public key.
func PublicKeyFromBytes(data []byte) (*ecdsa.PublicKey, error) {
	curve := elliptic.P256()
	switch len(data) {
	case 33:
		x := new(big.Int).SetBytes(data[1:])
		y := decompressPoint(curve, x, data[0] == 0x03)
		if y == nil {
			return nil, fmt.Errorf("crypto: invalid compressed public key")
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
	case 65:
		if data[0] != 0x04 {
			return nil, fmt.Errorf("crypto: invalid uncompressed public key prefix")
		}
		x := new(big.Int).SetBytes(data[1:33])
		y := new(big.Int).SetBytes(data[33:65])
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
	default:
		return nil, fmt.Errorf("crypto: invalid public key length %d", len(data))
	}
}

func decompressPoint(curve elliptic.Curve, x *big.Int, yOdd bool) *big.Int {
	params := curve.Params()
	x3 := new(big.Int).Mul(x, x)
	x3.Mul(x3, x)

	threeX := new(big.Int).Mul(x, big.NewInt(3))
	x3.Sub(x3, threeX)
	x3.Add(x3, params.B)
	x3.Mod(x3, params.P)

	y := new(big.Int).ModSqrt(x3, params.P)
	if y == nil {
		return nil
	}
	if (y.Bit(0) != 0) != yOdd {
		y.Sub(params.P, y)
	}
	return y
}

// Hash256 returns data's blake2b-256 digest, used for operation hashes.
func Hash256(data []byte) []byte {
	h := blake2b.Sum256(data)
	return h[:]
}

// Hash160 returns the first 20 bytes of data's blake2b-256 digest, used
// to derive both user and smart-function address hashes.
func Hash160(data []byte) []byte {
	h := blake2b.Sum256(data)
	return h[:20]
}

// PublicKeyHash derives the 20-byte address hash of a user account from
// its public key.
func PublicKeyHash(pub *ecdsa.PublicKey) []byte {
	return Hash160(PublicKeyToBytes(pub))
}

// DeployHash derives the 20-byte content-addressed hash of a smart
// function deployment: H(source ‖ code ‖ nonce). Submitting the same
// (source, code, nonce) triple always re-derives the same hash.
func DeployHash(source, code string, nonce uint64) []byte {
	buf := make([]byte, 0, len(source)+len(code)+8)
	buf = append(buf, source...)
	buf = append(buf, code...)
	var n [8]byte
	for i := 0; i < 8; i++ {
		n[i] = byte(nonce >> (8 * (7 - i)))
	}
	buf = append(buf, n[:]...)
	return Hash160(buf)
}

// Base58CheckEncode encodes payload with a version byte and a 4-byte
// double-SHA256 checksum, matching the rollup's account address format.
func Base58CheckEncode(version byte, payload []byte) string {
	data := make([]byte, 0, 1+len(payload)+4)
	data = append(data, version)
	data = append(data, payload...)

	h1 := sha256.Sum256(data)
	h2 := sha256.Sum256(h1[:])
	data = append(data, h2[:4]...)

	return base58.Encode(data)
}

// Base58CheckDecode reverses Base58CheckEncode, validating the checksum.
func Base58CheckDecode(s string) (version byte, payload []byte, err error) {
	data, err := base58.Decode(s)
	if err != nil {
		return 0, nil, fmt.Errorf("crypto: invalid base58: %w", err)
	}
	if len(data) < 5 {
		return 0, nil, fmt.Errorf("crypto: address too short")
	}
	body, checksum := data[:len(data)-4], data[len(data)-4:]
	h1 := sha256.Sum256(body)
	h2 := sha256.Sum256(h1[:])
	if string(h2[:4]) != string(checksum) {
		return 0, nil, fmt.Errorf("crypto: bad checksum")
	}
	return body[0], body[1:], nil
}
