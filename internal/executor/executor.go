// Package executor implements the two smart-function lifecycle
// operations driven by the operation dispatcher: Deploy validates and
// installs new code at a content-addressed address, Run builds a
// Request from a RunFunction operation and drives it through the fetch
// router under a gas-limited deadline.
package executor

import (
	"github.com/jstz-dev/jstz/internal/address"
	"github.com/jstz-dev/jstz/internal/crypto"
	"github.com/jstz-dev/jstz/internal/fetchrouter"
	"github.com/jstz-dev/jstz/internal/kv"
	"github.com/jstz-dev/jstz/internal/runtime"
	"github.com/jstz-dev/jstz/internal/storage"
)

// Executor drives Deploy/Run against one fetch router.
type Executor struct {
	router *fetchrouter.Router
}

// New constructs an Executor over store.
func New(store *storage.Storage) *Executor {
	return &Executor{router: fetchrouter.New(store)}
}

// Deploy validates code's module shape and installs it at its
// content-addressed address, crediting initialCredit. Deploying the same
// (source, code, nonce) twice re-derives the same address and is a
// no-op the second time, matching the content-addressing invariant.
func (e *Executor) Deploy(tx *kv.Transaction, source address.Address, code string, nonce uint64, initialCredit uint64) (address.Address, error) {
	if err := runtime.ValidateModule(code); err != nil {
		return address.Address{}, err
	}

	hash := crypto.DeployHash(source.String(), code, nonce)
	addr, err := address.FromDeployHash(hash)
	if err != nil {
		return address.Address{}, err
	}

	existing, found, err := kv.Get(tx, storage.AccountPath(addr.String()), address.DecodeAccount)
	if err != nil {
		return address.Address{}, err
	}
	if found && existing.Code != nil {
		return addr, nil
	}

	account := address.Account{Balance: initialCredit, Code: &code}
	if found {
		account.Balance += existing.Balance
		account.Nonce = existing.Nonce
	}
	if err := kv.Insert(tx, storage.AccountPath(addr.String()), account); err != nil {
		return address.Address{}, err
	}
	return addr, nil
}

// RunResult is the outcome of Run, carried into the operation receipt.
type RunResult struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Run builds a Request from the given RunFunction-shaped inputs, sets
// Referer to caller, and drives it through the fetch router under a
// gas-limited deadline. uri must use the jstz:// scheme.
func (e *Executor) Run(tx *kv.Transaction, caller address.Address, uri, method string, headers map[string]string, body []byte, gasLimit uint64) (RunResult, error) {
	req := fetchrouter.Request{
		URL:     uri,
		Method:  method,
		Headers: headers,
		Body:    body,
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	req.Headers["Referer"] = caller.String()

	deadline := runtime.GasDeadline(gasLimit)
	resp, err := e.router.Fetch(tx, caller, req, deadline)
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{Status: resp.Status, Headers: resp.Headers, Body: resp.Body}, nil
}
