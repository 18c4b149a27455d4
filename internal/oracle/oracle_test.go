package oracle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstz-dev/jstz/internal/host"
	"github.com/jstz-dev/jstz/internal/kv"
	"github.com/jstz-dev/jstz/internal/oracle"
	"github.com/jstz-dev/jstz/internal/storage"
)

func newTx(t *testing.T) *kv.Transaction {
	t.Helper()
	store := storage.New(host.NewMemory("rollup", 0))
	return kv.New(store)
}

func TestCreateAllocatesMonotonicIDs(t *testing.T) {
	tx := newTx(t)
	first, err := oracle.Create(tx, "tz1caller")
	require.NoError(t, err)
	second, err := oracle.Create(tx, "tz1caller")
	require.NoError(t, err)
	assert.Equal(t, first+1, second)
}

func TestDeliverMarksRequestDelivered(t *testing.T) {
	tx := newTx(t)
	id, err := oracle.Create(tx, "tz1caller")
	require.NoError(t, err)

	req, err := oracle.Deliver(tx, id, 200, []byte("ok"))
	require.NoError(t, err)
	assert.True(t, req.Delivered)
	assert.Equal(t, uint16(200), req.StatusCode)
	assert.Equal(t, []byte("ok"), req.Body)

	stored, found, err := oracle.Get(tx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, stored.Delivered)
}

func TestDeliverRejectsUnknownRequest(t *testing.T) {
	tx := newTx(t)
	_, err := oracle.Deliver(tx, 999, 200, nil)
	assert.Error(t, err)
}

func TestDeliverRejectsDoubleDelivery(t *testing.T) {
	tx := newTx(t)
	id, err := oracle.Create(tx, "tz1caller")
	require.NoError(t, err)

	_, err = oracle.Deliver(tx, id, 200, []byte("ok"))
	require.NoError(t, err)

	_, err = oracle.Deliver(tx, id, 200, []byte("again"))
	assert.Error(t, err)
}
