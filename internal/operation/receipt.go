package operation

import "github.com/jstz-dev/jstz/internal/storage"

// ReceiptStatus tags whether an operation's execution succeeded.
type ReceiptStatus uint8

const (
	StatusSuccess ReceiptStatus = iota
	StatusFailed
)

// Receipt is the persisted outcome of one executed operation, keyed by
// the operation's hash at /jstz_receipt/<hash>.
type Receipt struct {
	OpHash  []byte
	Status  ReceiptStatus
	Result  []byte // canonical-encoded success payload, kind-specific
	Address string // deployed/derived address, when applicable
	Error   string // populated only when Status == StatusFailed
}

// Encode implements storage.Value.
func (r Receipt) Encode() ([]byte, error) {
	buf := make([]byte, 0, 64+len(r.Result)+len(r.Error))
	buf = storage.PutBytes(buf, r.OpHash)
	buf = storage.PutBool(buf, r.Status == StatusFailed)
	buf = storage.PutBytes(buf, r.Result)
	buf = storage.PutString(buf, r.Address)
	buf = storage.PutString(buf, r.Error)
	return buf, nil
}

// DecodeReceipt decodes bytes produced by Receipt.Encode.
func DecodeReceipt(b []byte) (Receipt, error) {
	opHash, b, err := storage.TakeBytes(b)
	if err != nil {
		return Receipt{}, err
	}
	failed, b, err := storage.TakeBool(b)
	if err != nil {
		return Receipt{}, err
	}
	result, b, err := storage.TakeBytes(b)
	if err != nil {
		return Receipt{}, err
	}
	addr, b, err := storage.TakeString(b)
	if err != nil {
		return Receipt{}, err
	}
	errMsg, _, err := storage.TakeString(b)
	if err != nil {
		return Receipt{}, err
	}
	status := StatusSuccess
	if failed {
		status = StatusFailed
	}
	return Receipt{OpHash: opHash, Status: status, Result: result, Address: addr, Error: errMsg}, nil
}
