// Package runtime implements the kernel's per-request JavaScript engine:
// a goja VM preloaded with fetch-style Web primitives and a small set of
// native host bindings (console, Kv, Ledger, SmartFunction.call/fetch),
// gas-limited via an interrupt watchdog the way the teacher bounds
// function execution by context cancellation.
package runtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/jstz-dev/jstz/internal/jstzerrors"
)

// Request is the Go-side mirror of the JS Request object passed to
// fetch.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
}

// Response is the Go-side mirror of the JS Response object a handler
// (or FetchHandler) returns.
type Response struct {
	Status  int
	Headers map[string]string
	Body    string
}

// FetchHandler services one `fetch(request)` call from inside the
// engine: a user/no-op address commit with an empty response, or a
// nested smart-function invocation. It is supplied by internal/fetchrouter
// so internal/runtime never needs to import the dispatch/transaction
// packages directly.
type FetchHandler func(req Request) (Response, error)

// Kv is the native Kv.get/set/has/delete binding, backed by the calling
// transaction.
type Kv interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Has(key string) (bool, error)
	Delete(key string) error
}

// Ledger is the native Ledger.balance binding.
type Ledger interface {
	Balance(addr string) (uint64, error)
}

// Debug receives console.log/info/warn/error output, routed to the
// host's debug channel.
type Debug func(msg string)

// Bindings collects every native capability a Runtime exposes to script
// code.
type Bindings struct {
	Kv     Kv
	Ledger Ledger
	Fetch  FetchHandler
	Debug  Debug
}

// ErrGasLimitExceeded is returned when execution is interrupted by the
// gas watchdog.
var ErrGasLimitExceeded = jstzerrors.New(jstzerrors.CodeGasLimitExceeded, "gas limit exceeded")

// gasMillisPerUnit approximates one gas unit as a slice of wall-clock
// time, since goja exposes no bytecode-level instruction counter to
// meter against. This makes gas a soft execution deadline rather than a
// true deterministic instruction count; see the grounding ledger.
const gasMillisPerUnit = 0.01

// Runtime is one request's JS engine instance: never reused across
// requests, matching the rollup's single-invocation-per-request model.
type Runtime struct {
	vm *goja.Runtime
}

// New constructs a Runtime preloaded with the Web-primitive prelude and
// wired to bindings. Execution time is bounded per call by RunUntil or
// RunWithDeadline, not by New.
func New(bindings Bindings) (*Runtime, error) {
	vm := goja.New()

	if _, err := vm.RunString(preludeSource); err != nil {
		return nil, fmt.Errorf("runtime: load prelude: %w", err)
	}

	debug := bindings.Debug
	if debug == nil {
		debug = func(string) {}
	}
	if err := vm.Set("__jstz_host_debug", func(msg string) { debug(msg) }); err != nil {
		return nil, err
	}

	if err := bindKv(vm, bindings.Kv); err != nil {
		return nil, err
	}
	if err := bindLedger(vm, bindings.Ledger); err != nil {
		return nil, err
	}
	if err := bindFetch(vm, bindings.Fetch); err != nil {
		return nil, err
	}

	return &Runtime{vm: vm}, nil
}

func bindKv(vm *goja.Runtime, kv Kv) error {
	if kv == nil {
		return nil
	}
	if err := vm.Set("__jstz_kv_get", func(key string) goja.Value {
		v, found, err := kv.Get(key)
		if err != nil || !found {
			return goja.Null()
		}
		return vm.ToValue(v)
	}); err != nil {
		return err
	}
	if err := vm.Set("__jstz_kv_set", func(key, value string) { _ = kv.Set(key, value) }); err != nil {
		return err
	}
	if err := vm.Set("__jstz_kv_has", func(key string) bool {
		ok, _ := kv.Has(key)
		return ok
	}); err != nil {
		return err
	}
	if err := vm.Set("__jstz_kv_delete", func(key string) { _ = kv.Delete(key) }); err != nil {
		return err
	}
	return nil
}

func bindLedger(vm *goja.Runtime, ledger Ledger) error {
	if ledger == nil {
		return nil
	}
	return vm.Set("__jstz_ledger_balance", func(addr string) uint64 {
		bal, _ := ledger.Balance(addr)
		return bal
	})
}

func bindFetch(vm *goja.Runtime, handler FetchHandler) error {
	if handler == nil {
		return nil
	}
	return vm.Set("__jstz_fetch", func(call goja.FunctionCall) goja.Value {
		obj := call.Argument(0).ToObject(vm)

		req := Request{
			URL:     obj.Get("url").String(),
			Method:  obj.Get("method").String(),
			Headers: objectHeaders(vm, obj.Get("headers")),
		}
		if bodyVal := obj.Get("_body"); bodyVal != nil && !goja.IsUndefined(bodyVal) && !goja.IsNull(bodyVal) {
			req.Body = bodyVal.String()
		}

		resp, err := handler(req)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}

		return vm.ToValue(newResponseValue(vm, resp))
	})
}

// objectHeaders reads header entries off any object exposing an
// entries() method (a Headers instance or plain object literal).
func objectHeaders(vm *goja.Runtime, headersVal goja.Value) map[string]string {
	out := map[string]string{}
	if headersVal == nil || goja.IsUndefined(headersVal) || goja.IsNull(headersVal) {
		return out
	}
	headersObj := headersVal.ToObject(vm)
	entriesFn, ok := goja.AssertFunction(headersObj.Get("entries"))
	if !ok {
		return out
	}
	entriesVal, err := entriesFn(headersVal)
	if err != nil {
		return out
	}
	arr, ok := entriesVal.Export().([]interface{})
	if !ok {
		return out
	}
	for _, pair := range arr {
		if p, ok := pair.([]interface{}); ok && len(p) == 2 {
			out[fmt.Sprint(p[0])] = fmt.Sprint(p[1])
		}
	}
	return out
}

// newResponseValue builds a real Response instance (not a plain object)
// so nested fetch() results support .text()/.json() like top-level
// handler results do.
func newResponseValue(vm *goja.Runtime, resp Response) goja.Value {
	headers := vm.NewObject()
	for k, v := range resp.Headers {
		_ = headers.Set(k, v)
	}
	init := vm.NewObject()
	_ = init.Set("status", resp.Status)
	_ = init.Set("headers", headers)

	ctor, ok := goja.AssertFunction(vm.Get("Response"))
	if !ok {
		fallback := vm.NewObject()
		_ = fallback.Set("status", resp.Status)
		_ = fallback.Set("_body", resp.Body)
		return fallback
	}
	val, err := ctor(goja.Undefined(), vm.ToValue(resp.Body), init)
	if err != nil {
		fallback := vm.NewObject()
		_ = fallback.Set("status", resp.Status)
		_ = fallback.Set("_body", resp.Body)
		return fallback
	}
	return val
}

// RunModule compiles a module-shaped source (an expression containing
// exactly one "export default"), invokes its default export with
// request, and returns the resulting Response. code is rejected up
// front if it contains import statements or no default export, matching
// the deploy-time module validation rules.
func (r *Runtime) RunModule(code string, req Request) (resp Response, err error) {
	body, err := stripDefaultExport(code)
	if err != nil {
		return Response{}, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = translatePanic(rec)
		}
	}()

	if err := r.vm.Set("__jstz_request", r.buildRequest(req)); err != nil {
		return Response{}, err
	}

	script := "(function(){ const __handler = (" + body + "); return __handler(__jstz_request); })();"
	val, err := r.vm.RunString(script)
	if err != nil {
		return Response{}, translateRunError(err)
	}

	return r.exportResponse(val)
}

// GasDeadline converts a gas limit into an absolute wall-clock deadline,
// letting a caller compute one budget up front and thread it through a
// chain of nested executions (each gets its own Runtime, but they all
// race against the same deadline, approximating one shared gas counter
// across a nested fetch call graph).
func GasDeadline(gasLimit uint64) time.Time {
	return time.Now().Add(time.Duration(float64(gasLimit)*gasMillisPerUnit) * time.Millisecond)
}

// RunWithDeadline runs fn, interrupting the VM with ErrGasLimitExceeded
// if it does not return within budget's wall-clock approximation.
func (r *Runtime) RunWithDeadline(gasLimit uint64, fn func() (Response, error)) (Response, error) {
	if gasLimit == 0 {
		return fn()
	}
	return r.RunUntil(GasDeadline(gasLimit), fn)
}

// RunUntil runs fn, interrupting the VM with ErrGasLimitExceeded if it is
// still running at deadline. A deadline already in the past fails fast
// without starting fn, so a chain of nested runtimes sharing one
// top-level deadline keeps unwinding once the shared budget is spent.
func (r *Runtime) RunUntil(deadline time.Time, fn func() (Response, error)) (Response, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return Response{}, ErrGasLimitExceeded
	}
	timer := time.AfterFunc(remaining, func() {
		r.vm.Interrupt(ErrGasLimitExceeded)
	})
	defer timer.Stop()

	return fn()
}

func (r *Runtime) buildRequest(req Request) *goja.Object {
	headers := r.vm.NewObject()
	for k, v := range req.Headers {
		_ = headers.Set(k, v)
	}
	init := r.vm.NewObject()
	_ = init.Set("method", req.Method)
	_ = init.Set("headers", headers)
	_ = init.Set("body", req.Body)

	ctor, ok := goja.AssertFunction(r.vm.Get("Request"))
	if !ok {
		obj := r.vm.NewObject()
		_ = obj.Set("url", req.URL)
		_ = obj.Set("method", req.Method)
		_ = obj.Set("_body", req.Body)
		_ = obj.Set("headers", headers)
		return obj
	}
	val, err := ctor(goja.Undefined(), r.vm.ToValue(req.URL), init)
	if err != nil {
		obj := r.vm.NewObject()
		_ = obj.Set("url", req.URL)
		_ = obj.Set("method", req.Method)
		_ = obj.Set("_body", req.Body)
		_ = obj.Set("headers", headers)
		return obj
	}
	return val.ToObject(r.vm)
}

func (r *Runtime) exportResponse(val goja.Value) (Response, error) {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return Response{}, jstzerrors.New(jstzerrors.CodeNotCallable, "handler returned no response")
	}
	obj := val.ToObject(r.vm)
	status := 200
	if s := obj.Get("status"); s != nil && !goja.IsUndefined(s) {
		status = int(s.ToInteger())
	}
	body := ""
	if b := obj.Get("_body"); b != nil && !goja.IsUndefined(b) && !goja.IsNull(b) {
		body = b.String()
	}
	headers := objectHeaders(r.vm, obj.Get("headers"))
	return Response{Status: status, Headers: headers, Body: body}, nil
}

func translatePanic(rec interface{}) error {
	if err, ok := rec.(error); ok {
		return translateRunError(err)
	}
	panic(rec)
}

func translateRunError(err error) error {
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if v := interrupted.Value(); v != nil {
			if inner, ok := v.(error); ok {
				return inner
			}
		}
		return ErrGasLimitExceeded
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return jstzerrors.Wrap(jstzerrors.CodeNotCallable, "script exception", exc)
	}
	return err
}
