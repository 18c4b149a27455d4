package address

import (
	"github.com/jstz-dev/jstz/internal/storage"
)

// Account is the durable state held at /jstz_account/<addr>: balance and
// nonce for every address, plus deployed code for smart functions.
type Account struct {
	Balance uint64
	Nonce   uint64
	Code    *string // nil for user accounts, set for smart functions
}

// Encode implements storage.Value.
func (a Account) Encode() ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = storage.PutUint64(buf, a.Balance)
	buf = storage.PutUint64(buf, a.Nonce)
	hasCode := a.Code != nil
	buf = storage.PutBool(buf, hasCode)
	if hasCode {
		buf = storage.PutString(buf, *a.Code)
	}
	return buf, nil
}

// DecodeAccount decodes bytes produced by Account.Encode.
func DecodeAccount(b []byte) (Account, error) {
	balance, b, err := storage.TakeUint64(b)
	if err != nil {
		return Account{}, err
	}
	nonce, b, err := storage.TakeUint64(b)
	if err != nil {
		return Account{}, err
	}
	hasCode, b, err := storage.TakeBool(b)
	if err != nil {
		return Account{}, err
	}
	var code *string
	if hasCode {
		var c string
		c, _, err = storage.TakeString(b)
		if err != nil {
			return Account{}, err
		}
		code = &c
	}
	return Account{Balance: balance, Nonce: nonce, Code: code}, nil
}

var _ storage.Value = Account{}
