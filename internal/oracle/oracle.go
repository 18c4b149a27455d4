// Package oracle tracks smart-function requests awaiting an
// OracleResponse delivered back from L1. The actual HTTP fetch that
// services a request is an explicit non-goal of the kernel; this package
// only owns the pending-request table that Create populates and a later
// OracleResponse operation drains.
package oracle

import (
	"github.com/jstz-dev/jstz/internal/jstzerrors"
	"github.com/jstz-dev/jstz/internal/kv"
	"github.com/jstz-dev/jstz/internal/storage"
)

// Request is one pending oracle call: the address that issued it and,
// once Delivered, the response it was given.
type Request struct {
	Caller     string
	Delivered  bool
	StatusCode uint16
	Body       []byte
}

// Encode implements storage.Value.
func (r Request) Encode() ([]byte, error) {
	buf := storage.PutString(nil, r.Caller)
	buf = storage.PutBool(buf, r.Delivered)
	buf = storage.PutUint64(buf, uint64(r.StatusCode))
	buf = storage.PutBytes(buf, r.Body)
	return buf, nil
}

// DecodeRequest decodes bytes produced by Request.Encode.
func DecodeRequest(b []byte) (Request, error) {
	caller, b, err := storage.TakeString(b)
	if err != nil {
		return Request{}, err
	}
	delivered, b, err := storage.TakeBool(b)
	if err != nil {
		return Request{}, err
	}
	status, b, err := storage.TakeUint64(b)
	if err != nil {
		return Request{}, err
	}
	body, _, err := storage.TakeBytes(b)
	if err != nil {
		return Request{}, err
	}
	return Request{Caller: caller, Delivered: delivered, StatusCode: uint16(status), Body: body}, nil
}

var _ storage.Value = Request{}

// requestCounter is the durable counter's own storage.Value wrapper.
type requestCounter uint64

func (c requestCounter) Encode() ([]byte, error) {
	return storage.PutUint64(nil, uint64(c)), nil
}

func decodeCounter(b []byte) (requestCounter, error) {
	n, _, err := storage.TakeUint64(b)
	return requestCounter(n), err
}

// Create allocates a fresh request ID for caller and records it as
// pending, returning the ID a RunFunction handler embeds in whatever it
// hands back to L1 so a later OracleResponse can find its way home.
func Create(tx *kv.Transaction, caller string) (uint64, error) {
	entry, err := kv.GetEntry(tx, storage.OracleCounterPath(), decodeCounter)
	if err != nil {
		return 0, err
	}
	counter, err := entry.OrInsertDefault(func() requestCounter { return 0 })
	if err != nil {
		return 0, err
	}
	id := uint64(counter)
	if err := kv.Insert(tx, storage.OracleCounterPath(), requestCounter(id+1)); err != nil {
		return 0, err
	}
	if err := kv.Insert(tx, storage.OraclePath(id), Request{Caller: caller}); err != nil {
		return 0, err
	}
	return id, nil
}

// Get returns the pending (or already-delivered) request recorded under
// requestID.
func Get(tx *kv.Transaction, requestID uint64) (Request, bool, error) {
	return kv.Get(tx, storage.OraclePath(requestID), DecodeRequest)
}

// Deliver records an OracleResponse's payload against requestID, failing
// if the request is unknown or has already been delivered.
func Deliver(tx *kv.Transaction, requestID uint64, statusCode uint16, body []byte) (Request, error) {
	req, found, err := Get(tx, requestID)
	if err != nil {
		return Request{}, err
	}
	if !found {
		return Request{}, jstzerrors.New(jstzerrors.CodeNotFound, "oracle request not found")
	}
	if req.Delivered {
		return Request{}, jstzerrors.New(jstzerrors.CodeNotFound, "oracle request already delivered")
	}
	req.Delivered = true
	req.StatusCode = statusCode
	req.Body = body
	if err := kv.Insert(tx, storage.OraclePath(requestID), req); err != nil {
		return Request{}, err
	}
	return req, nil
}
