// Package fetchrouter implements fetch(request): the sole way JS code
// mutates state or invokes another smart function. Every call opens a
// nested transaction, applies the X-JSTZ-TRANSFER header if present, and
// commits or rolls back that nested transaction based on the HTTP status
// class of the returned response.
package fetchrouter

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jstz-dev/jstz/internal/address"
	"github.com/jstz-dev/jstz/internal/jstzerrors"
	"github.com/jstz-dev/jstz/internal/kv"
	"github.com/jstz-dev/jstz/internal/runtime"
	"github.com/jstz-dev/jstz/internal/storage"
)

// reservedHost is the host API's address: balance queries are served
// here rather than at a deployed address.
const reservedHost = "jstz"

// noopPath is the path a transfer-only call targets when the caller just
// wants to move balance without invoking a handler.
const noopPath = "/-/noop"

// transferHeader carries the amount debited from the caller and credited
// to the callee before the handler (if any) runs.
const transferHeader = "X-JSTZ-TRANSFER"

// Request is one fetch() call, either the top-level one built by
// internal/executor.Run or a nested one issued by running JS.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
}

// Response is the result of a fetch() call.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Router dispatches fetch() calls against durable storage.
type Router struct {
	store *storage.Storage
}

// New constructs a Router over store.
func New(store *storage.Storage) *Router {
	return &Router{store: store}
}

// Fetch resolves one request, nesting tx and committing or rolling back
// per the returned response's status class. deadline bounds every JS
// execution reached transitively from this call, approximating one
// shared gas budget across the whole nested call graph.
func (r *Router) Fetch(tx *kv.Transaction, caller address.Address, req Request, deadline time.Time) (Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil || u.Scheme != "jstz" {
		return Response{}, jstzerrors.New(jstzerrors.CodeInvalidScheme, "fetch request must use the jstz:// scheme")
	}
	host := u.Hostname()
	path := u.Path
	if path == "" {
		path = "/"
	}

	child := tx.Begin()

	if host != reservedHost {
		target, err := address.Parse(host)
		if err != nil {
			return Response{}, jstzerrors.Wrap(jstzerrors.CodeInvalidHost, "fetch request targets an invalid address", err)
		}
		if amount, ok := req.Headers[transferHeader]; ok {
			resp, transferred := applyTransfer(child, caller, target, amount)
			if !transferred {
				child.Rollback()
				return resp, nil
			}
		}

		if target.IsUser() || path == noopPath {
			if err := child.Commit(); err != nil {
				return Response{}, err
			}
			return Response{Status: 200, Headers: map[string]string{}}, nil
		}

		return r.invoke(child, caller, target, req, deadline)
	}

	resp, err := hostAPI(child, path)
	if err != nil {
		return Response{}, err
	}
	if isSuccess(resp.Status) {
		if err := child.Commit(); err != nil {
			return Response{}, err
		}
	} else {
		child.Rollback()
	}
	return resp, nil
}

// invoke loads target's deployed code and runs its default export,
// tying the nested transaction's fate to the response status.
func (r *Router) invoke(child *kv.Transaction, caller, target address.Address, req Request, deadline time.Time) (Response, error) {
	account, found, err := kv.Get(child, storage.AccountPath(target.String()), address.DecodeAccount)
	if err != nil {
		return Response{}, err
	}
	if !found || account.Code == nil {
		child.Rollback()
		return Response{Status: 404, Headers: map[string]string{}, Body: []byte("smart function not found")}, nil
	}

	headers := map[string]string{}
	for k, v := range req.Headers {
		headers[k] = v
	}
	headers["Referer"] = caller.String()

	bindings := runtime.Bindings{
		Kv:     &kvAdapter{tx: child, addr: target.String()},
		Ledger: &ledgerAdapter{tx: child},
		Fetch: func(nested runtime.Request) (runtime.Response, error) {
			resp, err := r.Fetch(child, target, Request{
				URL:     nested.URL,
				Method:  nested.Method,
				Headers: nested.Headers,
				Body:    []byte(nested.Body),
			}, deadline)
			if err != nil {
				return runtime.Response{}, err
			}
			return runtime.Response{Status: resp.Status, Headers: resp.Headers, Body: string(resp.Body)}, nil
		},
	}

	rt, err := runtime.New(bindings)
	if err != nil {
		return Response{}, err
	}

	result, err := rt.RunUntil(deadline, func() (runtime.Response, error) {
		return rt.RunModule(*account.Code, runtime.Request{
			URL:     req.URL,
			Method:  req.Method,
			Headers: headers,
			Body:    string(req.Body),
		})
	})
	if err != nil {
		return Response{}, err
	}

	resp := Response{Status: result.Status, Headers: result.Headers, Body: []byte(result.Body)}
	if isSuccess(resp.Status) {
		if err := child.Commit(); err != nil {
			return Response{}, err
		}
	} else {
		child.Rollback()
	}
	return resp, nil
}

// applyTransfer debits caller and credits target by amount within tx. ok
// is false if the transfer could not be completed, in which case resp is
// the synthesised error response the caller should return without ever
// committing tx.
func applyTransfer(tx *kv.Transaction, caller, target address.Address, amount string) (resp Response, ok bool) {
	value, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return Response{Status: 400, Body: []byte("invalid " + transferHeader + " header")}, false
	}

	callerAccount, found, err := kv.Get(tx, storage.AccountPath(caller.String()), address.DecodeAccount)
	if err != nil || !found || callerAccount.Balance < value {
		return Response{Status: 400, Body: []byte("insufficient funds")}, false
	}

	targetAccount, found, err := kv.Get(tx, storage.AccountPath(target.String()), address.DecodeAccount)
	if err != nil {
		return Response{Status: 500, Body: []byte("transfer failed")}, false
	}
	if !found {
		targetAccount = address.Account{}
	}

	callerAccount.Balance -= value
	targetAccount.Balance += value

	if err := kv.Insert(tx, storage.AccountPath(caller.String()), callerAccount); err != nil {
		return Response{Status: 500, Body: []byte("transfer failed")}, false
	}
	if err := kv.Insert(tx, storage.AccountPath(target.String()), targetAccount); err != nil {
		return Response{Status: 500, Body: []byte("transfer failed")}, false
	}

	return Response{}, true
}

// hostAPI serves the reserved "jstz" host: read-only balance queries.
// Anything else is a 404; withdrawals are operations, not fetch targets.
func hostAPI(tx *kv.Transaction, path string) (Response, error) {
	const balancePrefix = "/balance/"
	if !strings.HasPrefix(path, balancePrefix) {
		return Response{Status: 404, Headers: map[string]string{}}, nil
	}
	addrStr := strings.TrimPrefix(path, balancePrefix)
	target, err := address.Parse(addrStr)
	if err != nil {
		return Response{Status: 400, Headers: map[string]string{}, Body: []byte("invalid address")}, nil
	}
	account, found, err := kv.Get(tx, storage.AccountPath(target.String()), address.DecodeAccount)
	if err != nil {
		return Response{}, err
	}
	balance := uint64(0)
	if found {
		balance = account.Balance
	}
	return Response{
		Status:  200,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    []byte(`{"balance":` + strconv.FormatUint(balance, 10) + `}`),
	}, nil
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }
