package runtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstz-dev/jstz/internal/runtime"
)

type memKv struct{ m map[string]string }

func newMemKv() *memKv { return &memKv{m: map[string]string{}} }

func (k *memKv) Get(key string) (string, bool, error) { v, ok := k.m[key]; return v, ok, nil }
func (k *memKv) Set(key, value string) error          { k.m[key] = value; return nil }
func (k *memKv) Has(key string) (bool, error)          { _, ok := k.m[key]; return ok, nil }
func (k *memKv) Delete(key string) error               { delete(k.m, key); return nil }

type memLedger struct{ balances map[string]uint64 }

func (l *memLedger) Balance(addr string) (uint64, error) { return l.balances[addr], nil }

func TestRunModuleInvokesDefaultExport(t *testing.T) {
	rt, err := runtime.New(runtime.Bindings{})
	require.NoError(t, err)

	code := `export default function(request) {
		return new Response("hello " + request.url, { status: 201 });
	}`

	resp, err := rt.RunModule(code, runtime.Request{URL: "tezos://kt1abc/"})
	require.NoError(t, err)
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, "hello tezos://kt1abc/", resp.Body)
}

func TestRunModuleRejectsImports(t *testing.T) {
	rt, err := runtime.New(runtime.Bindings{})
	require.NoError(t, err)

	code := `import foo from "bar"; export default function() { return new Response(); }`
	_, err = rt.RunModule(code, runtime.Request{URL: "tezos://kt1abc/"})
	assert.Error(t, err)
}

func TestRunModuleRejectsMissingDefaultExport(t *testing.T) {
	rt, err := runtime.New(runtime.Bindings{})
	require.NoError(t, err)

	code := `function handler(request) { return new Response(); }`
	_, err = rt.RunModule(code, runtime.Request{URL: "tezos://kt1abc/"})
	assert.Error(t, err)
}

func TestKvBindingsRoundTripThroughScript(t *testing.T) {
	kv := newMemKv()
	rt, err := runtime.New(runtime.Bindings{Kv: kv})
	require.NoError(t, err)

	code := `export default function(request) {
		Kv.set("greeting", "hi");
		return new Response(Kv.get("greeting") + " " + Kv.has("missing"));
	}`

	resp, err := rt.RunModule(code, runtime.Request{URL: "tezos://kt1abc/"})
	require.NoError(t, err)
	assert.Equal(t, "hi false", resp.Body)
	assert.Equal(t, "hi", kv.m["greeting"])
}

func TestLedgerBalanceBinding(t *testing.T) {
	ledger := &memLedger{balances: map[string]uint64{"tz1abc": 42}}
	rt, err := runtime.New(runtime.Bindings{Ledger: ledger})
	require.NoError(t, err)

	code := `export default function(request) {
		return new Response(String(Ledger.balance("tz1abc")));
	}`

	resp, err := rt.RunModule(code, runtime.Request{URL: "tezos://kt1abc/"})
	require.NoError(t, err)
	assert.Equal(t, "42", resp.Body)
}

func TestFetchBindingDelegatesToHandler(t *testing.T) {
	handler := func(req runtime.Request) (runtime.Response, error) {
		return runtime.Response{Status: 200, Body: "nested:" + req.URL}, nil
	}
	rt, err := runtime.New(runtime.Bindings{Fetch: handler})
	require.NoError(t, err)

	code := `export default function(request) {
		const inner = fetch("tezos://kt1other/");
		return new Response(inner._body);
	}`

	resp, err := rt.RunModule(code, runtime.Request{URL: "tezos://kt1abc/"})
	require.NoError(t, err)
	assert.Equal(t, "nested:tezos://kt1other/", resp.Body)
}

func TestDebugBindingReceivesConsoleOutput(t *testing.T) {
	var captured []string
	rt, err := runtime.New(runtime.Bindings{
		Debug: func(msg string) { captured = append(captured, msg) },
	})
	require.NoError(t, err)

	code := `export default function(request) {
		console.log("hello", "world");
		return new Response("ok");
	}`

	_, err = rt.RunModule(code, runtime.Request{URL: "tezos://kt1abc/"})
	require.NoError(t, err)
	require.Len(t, captured, 1)
	assert.Equal(t, "hello world", captured[0])
}

func TestRunWithDeadlineInterruptsLongRunningScript(t *testing.T) {
	rt, err := runtime.New(runtime.Bindings{})
	require.NoError(t, err)

	_, err = rt.RunWithDeadline(1, func() (runtime.Response, error) {
		return rt.RunModule(`export default function() {
			while (true) {}
		}`, runtime.Request{URL: "tezos://kt1abc/"})
	})
	assert.ErrorIs(t, err, runtime.ErrGasLimitExceeded)
}
