package gasbank_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstz-dev/jstz/internal/gasbank"
	"github.com/jstz-dev/jstz/internal/host"
	"github.com/jstz-dev/jstz/internal/kv"
	"github.com/jstz-dev/jstz/internal/storage"
)

func newTx(t *testing.T) *kv.Transaction {
	t.Helper()
	store := storage.New(host.NewMemory("rollup", 0))
	return kv.New(store)
}

func TestCreditAccumulatesOnFreshAccount(t *testing.T) {
	tx := newTx(t)
	require.NoError(t, gasbank.Credit(tx, "tz1abc", "tkt1", 10))
	require.NoError(t, gasbank.Credit(tx, "tz1abc", "tkt1", 5))

	balance, err := gasbank.Balance(tx, "tz1abc", "tkt1")
	require.NoError(t, err)
	assert.Equal(t, uint64(15), balance)
}

func TestDebitRejectsInsufficientBalance(t *testing.T) {
	tx := newTx(t)
	require.NoError(t, gasbank.Credit(tx, "tz1abc", "tkt1", 3))

	err := gasbank.Debit(tx, "tz1abc", "tkt1", 4)
	assert.Error(t, err)

	balance, err := gasbank.Balance(tx, "tz1abc", "tkt1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), balance)
}

func TestDebitSucceedsAndLowersBalance(t *testing.T) {
	tx := newTx(t)
	require.NoError(t, gasbank.Credit(tx, "tz1abc", "tkt1", 10))
	require.NoError(t, gasbank.Debit(tx, "tz1abc", "tkt1", 4))

	balance, err := gasbank.Balance(tx, "tz1abc", "tkt1")
	require.NoError(t, err)
	assert.Equal(t, uint64(6), balance)
}

func TestBalanceOfUnknownTicketIsZero(t *testing.T) {
	tx := newTx(t)
	balance, err := gasbank.Balance(tx, "tz1abc", "tkt1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), balance)
}

func TestBalancesAreScopedByTicketHash(t *testing.T) {
	tx := newTx(t)
	require.NoError(t, gasbank.Credit(tx, "tz1abc", "tkt1", 10))

	balance, err := gasbank.Balance(tx, "tz1abc", "tkt2")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), balance)
}
