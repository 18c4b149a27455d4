// Package operation defines the kernel's signed operation envelope and
// its content variants, plus the receipt persisted once an operation has
// been executed.
package operation

import (
	"github.com/jstz-dev/jstz/internal/crypto"
	"github.com/jstz-dev/jstz/internal/storage"
)

// Kind tags which Content variant a SignedOperation carries.
type Kind uint8

const (
	KindDeployFunction Kind = iota
	KindRunFunction
	KindDeposit
	KindFaDeposit
	KindRevealLargePayload
	KindOracleResponse
	KindWithdraw
	KindFaWithdraw
)

// DeployFunction deploys a new smart function.
type DeployFunction struct {
	Code           string
	InitialCredit  uint64
}

// RunFunction invokes a deployed smart function (or a user/no-op
// address) as an HTTP-shaped request.
type RunFunction struct {
	URI      string
	Method   string
	Headers  map[string]string
	Body     []byte
	GasLimit uint64
}

// Deposit is a native-token transfer originating from L1.
type Deposit struct {
	InboxLevel uint32
	InboxMsgID uint32
	Amount     uint64
	Receiver   string // hex-encoded 20-byte address hash
	Source     string // hex-encoded 20-byte L1 source hash
}

// FaDeposit is an FA-ticket transfer originating from L1, optionally
// routed through a proxy smart function.
type FaDeposit struct {
	InboxLevel uint32
	InboxMsgID uint32
	Amount     uint64
	Receiver   string
	Source     string
	TicketHash string
	Proxy      *string
}

// RevealLargePayload carries the root hash of a chunked, preimage-revealed
// payload too large to fit inline (e.g. a large DeployFunction code body).
type RevealLargePayload struct {
	RootHash []byte
	Reveal   Kind // the Kind of operation content the reconstructed payload decodes to
}

// OracleResponse delivers the result of a previously requested oracle
// call back into the kernel.
type OracleResponse struct {
	RequestID uint64
	Body      []byte
	StatusCode uint16
}

// Withdraw burns native balance and enqueues an outbox withdrawal.
type Withdraw struct {
	Amount      uint64
	Destination string // L1 contract address
}

// FaWithdraw burns an FA ticket balance and enqueues an outbox withdrawal.
type FaWithdraw struct {
	Amount      uint64
	TicketHash  string
	Destination string
	Proxy       *string
}

// Content is the sum type every SignedOperation carries. Exactly one
// field matching Kind is populated; callers switch on Kind rather than
// testing every field for nil.
type Content struct {
	Kind Kind

	DeployFunction     *DeployFunction
	RunFunction        *RunFunction
	Deposit            *Deposit
	FaDeposit          *FaDeposit
	RevealLargePayload *RevealLargePayload
	OracleResponse     *OracleResponse
	Withdraw           *Withdraw
	FaWithdraw         *FaWithdraw
}

// SignedOperation is the wire envelope for every externally submitted
// operation: a nonce-bound, signed Content.
type SignedOperation struct {
	PublicKey []byte // SEC1-compressed
	Nonce     uint64
	Content   Content
	Signature []byte // 64-byte r‖s ECDSA signature
}

// signingPayload returns the canonical bytes whose hash is signed: the
// encoded content followed by the nonce and public key, matching
// H(canonical(content) ‖ nonce ‖ public_key).
func (op SignedOperation) signingPayload() ([]byte, error) {
	contentBytes, err := EncodeContent(op.Content)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(contentBytes)+8+len(op.PublicKey))
	buf = append(buf, contentBytes...)
	buf = storage.PutUint64(buf, op.Nonce)
	buf = append(buf, op.PublicKey...)
	return buf, nil
}

// Hash returns the operation's content-addressed hash, used as its
// receipt key.
func (op SignedOperation) Hash() ([]byte, error) {
	payload, err := op.signingPayload()
	if err != nil {
		return nil, err
	}
	return crypto.Hash256(payload), nil
}

// Verify reports whether op's signature is valid over its signing
// payload under its own public key.
func (op SignedOperation) Verify() (bool, error) {
	pub, err := crypto.PublicKeyFromBytes(op.PublicKey)
	if err != nil {
		return false, err
	}
	payload, err := op.signingPayload()
	if err != nil {
		return false, err
	}
	return crypto.Verify(pub, payload, op.Signature), nil
}

// Sign produces a SignedOperation at the given nonce by signing, under
// priv, the encoding of content, nonce and public key (signingPayload).
func Sign(priv *crypto.KeyPair, nonce uint64, content Content) (SignedOperation, error) {
	op := SignedOperation{
		PublicKey: crypto.PublicKeyToBytes(priv.PublicKey),
		Nonce:     nonce,
		Content:   content,
	}
	payload, err := op.signingPayload()
	if err != nil {
		return SignedOperation{}, err
	}
	sig, err := crypto.Sign(priv.PrivateKey, payload)
	if err != nil {
		return SignedOperation{}, err
	}
	op.Signature = sig
	return op, nil
}

var _ storage.Value = Receipt{}
