// Package gasbank implements the kernel's per-ticket balance ledger:
// every address holds a balance for each FA ticket it has received,
// independent of its native balance tracked in internal/address.Account.
// It backs FaDeposit (credit) and FaWithdraw (debit + outbox enqueue).
package gasbank

import (
	"github.com/jstz-dev/jstz/internal/jstzerrors"
	"github.com/jstz-dev/jstz/internal/kv"
	"github.com/jstz-dev/jstz/internal/storage"
)

// Account is one address's holding of one ticket, trimmed from the
// richer balance/available/locked/pending model down to what the
// kernel's synchronous debit/credit path actually needs: a single
// settled balance, no scheduling, no approvals.
type Account struct {
	Balance uint64
}

// Encode implements storage.Value.
func (a Account) Encode() ([]byte, error) {
	return storage.PutUint64(nil, a.Balance), nil
}

// DecodeAccount decodes bytes produced by Account.Encode.
func DecodeAccount(b []byte) (Account, error) {
	balance, _, err := storage.TakeUint64(b)
	if err != nil {
		return Account{}, err
	}
	return Account{Balance: balance}, nil
}

var _ storage.Value = Account{}

// Path returns the durable path for addr's holding of ticketHash.
func Path(addr, ticketHash string) string {
	return storage.TicketAccountPath(addr, ticketHash)
}

// Credit adds amount to addr's holding of ticketHash, creating the
// account if it doesn't yet exist.
func Credit(tx *kv.Transaction, addr, ticketHash string, amount uint64) error {
	_, err := kv.Mutate(tx, Path(addr, ticketHash), DecodeAccount,
		func() Account { return Account{} },
		func(account Account) Account {
			account.Balance += amount
			return account
		})
	return err
}

// Debit subtracts amount from addr's holding of ticketHash, failing with
// jstzerrors.CodeInsufficientFunds if the balance is too low.
func Debit(tx *kv.Transaction, addr, ticketHash string, amount uint64) error {
	account, found, err := kv.Get(tx, Path(addr, ticketHash), DecodeAccount)
	if err != nil {
		return err
	}
	if !found || account.Balance < amount {
		return jstzerrors.New(jstzerrors.CodeInsufficientFunds, "insufficient ticket balance")
	}
	account.Balance -= amount
	return kv.Insert(tx, Path(addr, ticketHash), account)
}

// Balance reports addr's current holding of ticketHash, zero if absent.
func Balance(tx *kv.Transaction, addr, ticketHash string) (uint64, error) {
	account, _, err := kv.Get(tx, Path(addr, ticketHash), DecodeAccount)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}
