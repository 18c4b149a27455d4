package fetchrouter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstz-dev/jstz/internal/address"
	"github.com/jstz-dev/jstz/internal/fetchrouter"
	"github.com/jstz-dev/jstz/internal/host"
	"github.com/jstz-dev/jstz/internal/kv"
	"github.com/jstz-dev/jstz/internal/storage"
)

func newRouter(t *testing.T) (*fetchrouter.Router, *kv.Transaction) {
	t.Helper()
	mem := host.NewMemory("rollup", 0)
	store := storage.New(mem)
	return fetchrouter.New(store), kv.New(store)
}

func seedAccount(t *testing.T, tx *kv.Transaction, addr address.Address, account address.Account) {
	t.Helper()
	require.NoError(t, kv.Insert(tx, storage.AccountPath(addr.String()), account))
}

func userAddress(t *testing.T, seed byte) address.Address {
	t.Helper()
	var hash [20]byte
	hash[0] = seed
	a, err := address.FromPublicKeyHash(hash[:])
	require.NoError(t, err)
	return a
}

func deployedFunction(t *testing.T, seed byte) address.Address {
	t.Helper()
	var hash [20]byte
	hash[0] = seed
	a, err := address.FromDeployHash(hash[:])
	require.NoError(t, err)
	return a
}

func TestFetchTransfersBalanceOnSuccess(t *testing.T) {
	router, tx := newRouter(t)
	caller := userAddress(t, 1)
	callee := userAddress(t, 2)
	seedAccount(t, tx, caller, address.Account{Balance: 1})

	resp, err := router.Fetch(tx, caller, fetchrouter.Request{
		URL:     "jstz://" + callee.String() + "/-/noop",
		Method:  "GET",
		Headers: map[string]string{"X-JSTZ-TRANSFER": "1"},
	}, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)

	callerAccount, _, err := kv.Get(tx, storage.AccountPath(caller.String()), address.DecodeAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), callerAccount.Balance)

	calleeAccount, _, err := kv.Get(tx, storage.AccountPath(callee.String()), address.DecodeAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), calleeAccount.Balance)
}

func TestFetchRejectsTransferWithInsufficientFunds(t *testing.T) {
	router, tx := newRouter(t)
	caller := userAddress(t, 1)
	callee := userAddress(t, 2)
	seedAccount(t, tx, caller, address.Account{Balance: 0})

	resp, err := router.Fetch(tx, caller, fetchrouter.Request{
		URL:     "jstz://" + callee.String() + "/-/noop",
		Headers: map[string]string{"X-JSTZ-TRANSFER": "1"},
	}, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.Status)

	callerAccount, _, err := kv.Get(tx, storage.AccountPath(caller.String()), address.DecodeAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), callerAccount.Balance)
	_, found, err := kv.Get(tx, storage.AccountPath(callee.String()), address.DecodeAccount)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFetchCommitsSmartFunctionWritesOn2xx(t *testing.T) {
	router, tx := newRouter(t)
	caller := userAddress(t, 1)
	code := `export default function(request) {
		Kv.set("k", "v");
		return new Response(null, { status: 200 });
	}`
	fn := deployedFunction(t, 9)
	seedAccount(t, tx, fn, address.Account{Code: &code})

	resp, err := router.Fetch(tx, caller, fetchrouter.Request{
		URL: "jstz://" + fn.String() + "/",
	}, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)

	val, found, err := kv.Get(tx, storage.KvPath(fn.String(), "k"), func(b []byte) (string, error) {
		s, _, err := storage.TakeString(b)
		return s, err
	})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", val)
}

func TestFetchRollsBackSmartFunctionWritesOnNon2xx(t *testing.T) {
	router, tx := newRouter(t)
	caller := userAddress(t, 1)
	code := `export default function(request) {
		Kv.set("k", "v");
		return new Response(null, { status: 500 });
	}`
	fn := deployedFunction(t, 9)
	seedAccount(t, tx, fn, address.Account{Code: &code})

	resp, err := router.Fetch(tx, caller, fetchrouter.Request{
		URL: "jstz://" + fn.String() + "/",
	}, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.Status)

	_, found, err := kv.Get(tx, storage.KvPath(fn.String(), "k"), func(b []byte) (string, error) {
		s, _, err := storage.TakeString(b)
		return s, err
	})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFetchReturns404ForUndeployedAddress(t *testing.T) {
	router, tx := newRouter(t)
	caller := userAddress(t, 1)
	missing := deployedFunction(t, 77)

	resp, err := router.Fetch(tx, caller, fetchrouter.Request{
		URL: "jstz://" + missing.String() + "/",
	}, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.Status)
}

func TestFetchHostAPIReportsBalance(t *testing.T) {
	router, tx := newRouter(t)
	caller := userAddress(t, 1)
	seedAccount(t, tx, caller, address.Account{Balance: 7})

	resp, err := router.Fetch(tx, caller, fetchrouter.Request{
		URL: "jstz://jstz/balance/" + caller.String(),
	}, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.JSONEq(t, `{"balance":7}`, string(resp.Body))
}

func TestFetchGasLimitExceededUnwindsNestedFrame(t *testing.T) {
	router, tx := newRouter(t)
	caller := userAddress(t, 1)
	code := `export default function(request) {
		Kv.set("k", "v");
		while (true) {}
	}`
	fn := deployedFunction(t, 9)
	seedAccount(t, tx, fn, address.Account{Code: &code})

	_, err := router.Fetch(tx, caller, fetchrouter.Request{
		URL: "jstz://" + fn.String() + "/",
	}, time.Now().Add(10*time.Millisecond))
	assert.Error(t, err)

	_, found, err := kv.Get(tx, storage.KvPath(fn.String(), "k"), func(b []byte) (string, error) {
		s, _, err := storage.TakeString(b)
		return s, err
	})
	require.NoError(t, err)
	assert.False(t, found)
}
