package fetchrouter

import (
	"github.com/jstz-dev/jstz/internal/address"
	"github.com/jstz-dev/jstz/internal/kv"
	"github.com/jstz-dev/jstz/internal/runtime"
	"github.com/jstz-dev/jstz/internal/storage"
)

var (
	_ runtime.Kv     = (*kvAdapter)(nil)
	_ runtime.Ledger = (*ledgerAdapter)(nil)
)

// kvValue adapts a raw string into storage.Value so arbitrary JS-set
// strings can ride through the existing Put*/Take* codec.
type kvValue string

func (v kvValue) Encode() ([]byte, error) {
	return storage.PutString(nil, string(v)), nil
}

func decodeKvValue(b []byte) (kvValue, error) {
	s, _, err := storage.TakeString(b)
	return kvValue(s), err
}

// kvAdapter implements runtime.Kv against one smart function's own
// key-value namespace, scoped under its address so two smart functions
// never see each other's custom state.
type kvAdapter struct {
	tx   *kv.Transaction
	addr string
}

func (a *kvAdapter) Get(key string) (string, bool, error) {
	v, found, err := kv.Get(a.tx, storage.KvPath(a.addr, key), decodeKvValue)
	return string(v), found, err
}

func (a *kvAdapter) Set(key, value string) error {
	return kv.Insert(a.tx, storage.KvPath(a.addr, key), kvValue(value))
}

func (a *kvAdapter) Has(key string) (bool, error) {
	return a.tx.ContainsKey(storage.KvPath(a.addr, key))
}

func (a *kvAdapter) Delete(key string) error {
	return a.tx.Remove(storage.KvPath(a.addr, key))
}

// ledgerAdapter implements runtime.Ledger by reading Account balances.
type ledgerAdapter struct {
	tx *kv.Transaction
}

func (a *ledgerAdapter) Balance(addr string) (uint64, error) {
	parsed, err := address.Parse(addr)
	if err != nil {
		return 0, err
	}
	account, found, err := kv.Get(a.tx, storage.AccountPath(parsed.String()), address.DecodeAccount)
	if err != nil || !found {
		return 0, err
	}
	return account.Balance, nil
}
