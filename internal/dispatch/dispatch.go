// Package dispatch implements the kernel's operation dispatcher: given
// one decoded inbox message, it opens a transaction, validates and
// routes the message to its executor, persists a receipt, and commits —
// the routing table of spec §4.6.
package dispatch

import (
	"bytes"
	"encoding/hex"

	"github.com/jstz-dev/jstz/internal/address"
	"github.com/jstz-dev/jstz/internal/crypto"
	"github.com/jstz-dev/jstz/internal/executor"
	"github.com/jstz-dev/jstz/internal/gasbank"
	"github.com/jstz-dev/jstz/internal/host"
	"github.com/jstz-dev/jstz/internal/inbox"
	"github.com/jstz-dev/jstz/internal/jstzerrors"
	"github.com/jstz-dev/jstz/internal/kv"
	"github.com/jstz-dev/jstz/internal/metrics"
	"github.com/jstz-dev/jstz/internal/operation"
	"github.com/jstz-dev/jstz/internal/oracle"
	"github.com/jstz-dev/jstz/internal/outbox"
	"github.com/jstz-dev/jstz/internal/reveal"
	"github.com/jstz-dev/jstz/internal/storage"
)

// defaultGasLimit is used when New is given 0, matching pkg/config's
// RuntimeConfig.DefaultGasLimit default.
const defaultGasLimit = 100000

// Dispatcher routes decoded inbox messages through the kernel's
// operation pipeline against one durable store.
type Dispatcher struct {
	store          *storage.Storage
	exec           *executor.Executor
	outbox         *outbox.SnapshotQueue
	defaultGasUnit uint64
}

// New constructs a Dispatcher over store, queuing any Withdraw/FaWithdraw
// outbox messages onto snapshot. gasLimit is applied to a RunFunction
// operation that specifies none; 0 falls back to defaultGasLimit.
func New(store *storage.Storage, snapshot *outbox.SnapshotQueue, gasLimit uint64) *Dispatcher {
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	return &Dispatcher{store: store, exec: executor.New(store), outbox: snapshot, defaultGasUnit: gasLimit}
}

// Apply executes one parsed inbox message to completion: it opens its own
// top-level transaction, dispatches, persists a receipt (save for
// LevelInfo messages, which never get one per spec §9), and commits. A
// nil, nil result means the message carried no dispatchable content.
func (d *Dispatcher) Apply(h host.Host, parsed inbox.Parsed) (*operation.Receipt, error) {
	msg := parsed.Message
	if msg.Level != nil {
		return nil, nil
	}

	tx := kv.New(d.store)

	var (
		receipt *operation.Receipt
		kind    string
		err     error
	)
	switch {
	case msg.Deposit != nil:
		kind = "deposit"
		receipt, err = d.applyDeposit(tx, parsed.ID, *msg.Deposit)
	case msg.FaDeposit != nil:
		kind = "fa_deposit"
		receipt, err = d.applyFaDeposit(tx, parsed.ID, *msg.FaDeposit)
	case msg.External != nil:
		kind = "external"
		receipt, err = d.applyExternal(h, tx, *msg.External)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if receipt != nil {
		path := storage.ReceiptPath(hex.EncodeToString(receipt.OpHash))
		if err := kv.Insert(tx, path, *receipt); err != nil {
			return nil, err
		}
		status := "success"
		if receipt.Status == operation.StatusFailed {
			status = "failed"
		}
		metrics.OperationDispatched(kind, status)
	}

	if err := tx.Commit(); err != nil {
		return nil, jstzerrors.Wrap(jstzerrors.CodeCommitFailed, "commit dispatch transaction", err)
	}
	return receipt, nil
}

// internalHash derives a stable, nonce-free receipt key for an internal
// (unsigned) message from its inbox coordinates, since Deposit/FaDeposit
// carry no operation hash of their own.
func internalHash(id inbox.ID, kind string) []byte {
	buf := storage.PutUint64(nil, uint64(id.Level))
	buf = storage.PutUint64(buf, uint64(id.MessageID))
	buf = storage.PutString(buf, kind)
	return crypto.Hash256(buf)
}

func failed(hash []byte, err error) *operation.Receipt {
	return &operation.Receipt{OpHash: hash, Status: operation.StatusFailed, Error: err.Error()}
}

// applyDeposit credits a native-token deposit to its receiver, creating
// the account lazily if this is its first credit.
func (d *Dispatcher) applyDeposit(tx *kv.Transaction, id inbox.ID, dep operation.Deposit) (*operation.Receipt, error) {
	hash := internalHash(id, "deposit")
	receiver, err := parseRawAddress(dep.Receiver)
	if err != nil {
		return failed(hash, err), nil
	}

	account, _, err := kv.Get(tx, storage.AccountPath(receiver.String()), address.DecodeAccount)
	if err != nil {
		return nil, err
	}
	account.Balance += dep.Amount
	if err := kv.Insert(tx, storage.AccountPath(receiver.String()), account); err != nil {
		return nil, err
	}

	return &operation.Receipt{
		OpHash:  hash,
		Status:  operation.StatusSuccess,
		Result:  storage.PutUint64(nil, account.Balance),
		Address: receiver.String(),
	}, nil
}

// applyFaDeposit credits an FA-ticket deposit to the gas bank, or — when
// a proxy smart function is named — invokes the proxy's default handler
// with the deposit details instead of crediting directly.
func (d *Dispatcher) applyFaDeposit(tx *kv.Transaction, id inbox.ID, dep operation.FaDeposit) (*operation.Receipt, error) {
	hash := internalHash(id, "fa_deposit")
	receiver, err := parseRawAddress(dep.Receiver)
	if err != nil {
		return failed(hash, err), nil
	}

	if dep.Proxy == nil {
		if err := gasbank.Credit(tx, receiver.String(), dep.TicketHash, dep.Amount); err != nil {
			return failed(hash, err), nil
		}
		balance, err := gasbank.Balance(tx, receiver.String(), dep.TicketHash)
		if err != nil {
			return nil, err
		}
		return &operation.Receipt{
			OpHash:  hash,
			Status:  operation.StatusSuccess,
			Result:  storage.PutUint64(nil, balance),
			Address: receiver.String(),
		}, nil
	}

	proxy, err := address.Parse(*dep.Proxy)
	if err != nil {
		return failed(hash, err), nil
	}
	headers := map[string]string{"X-JSTZ-TICKET-HASH": dep.TicketHash}
	result, err := d.exec.Run(tx, receiver, "jstz://"+proxy.String()+"/-/fa-deposit", "POST", headers, storage.PutUint64(nil, dep.Amount), d.defaultGasUnit)
	if err != nil {
		return failed(hash, err), nil
	}
	return &operation.Receipt{
		OpHash:  hash,
		Status:  operation.StatusSuccess,
		Result:  encodeRunResult(result),
		Address: proxy.String(),
	}, nil
}

// applyExternal verifies op's signature and nonce against its signer's
// account, bumps the nonce, and routes the validated content. Auth
// failures never change state beyond the receipt write performed by the
// caller; executor failures roll back only what their own nested
// transaction touched (see internal/fetchrouter), leaving the nonce bump
// intact.
func (d *Dispatcher) applyExternal(h host.Host, tx *kv.Transaction, op operation.SignedOperation) (*operation.Receipt, error) {
	hash, err := op.Hash()
	if err != nil {
		return nil, err
	}

	ok, err := op.Verify()
	if err != nil || !ok {
		return &operation.Receipt{OpHash: hash, Status: operation.StatusFailed, Error: "invalid signature"}, nil
	}

	pub, err := crypto.PublicKeyFromBytes(op.PublicKey)
	if err != nil {
		return failed(hash, err), nil
	}
	signer, err := address.FromPublicKeyHash(crypto.PublicKeyHash(pub))
	if err != nil {
		return failed(hash, err), nil
	}

	account, _, err := kv.Get(tx, storage.AccountPath(signer.String()), address.DecodeAccount)
	if err != nil {
		return nil, err
	}
	if op.Nonce != account.Nonce+1 {
		return &operation.Receipt{OpHash: hash, Status: operation.StatusFailed, Error: "invalid nonce"}, nil
	}
	account.Nonce = op.Nonce
	if err := kv.Insert(tx, storage.AccountPath(signer.String()), account); err != nil {
		return nil, err
	}

	if op.Content.Kind == operation.KindRevealLargePayload {
		return d.applyReveal(h, tx, op)
	}

	return d.route(tx, hash, signer, op.Nonce, op.Content)
}

// applyReveal reconstructs a RevealLargePayload's chunked preimage into
// the original SignedOperation it represents and dispatches that
// operation as if it had been submitted inline, so its receipt is keyed
// by its own hash rather than the reveal submission's.
func (d *Dispatcher) applyReveal(h host.Host, tx *kv.Transaction, op operation.SignedOperation) (*operation.Receipt, error) {
	injector, found, err := kv.Get(tx, storage.InjectorPath(), decodeInjector)
	if err != nil {
		return nil, err
	}
	outerHash, _ := op.Hash()
	if !found || !bytes.Equal([]byte(injector), op.PublicKey) {
		return &operation.Receipt{OpHash: outerHash, Status: operation.StatusFailed, Error: "reveal not signed by configured injector"}, nil
	}

	r := op.Content.RevealLargePayload
	payload, err := reveal.Reconstruct(h, r.RootHash)
	if err != nil {
		return failed(outerHash, err), nil
	}
	inner, err := operation.DecodeSignedOperation(payload)
	if err != nil {
		return failed(outerHash, err), nil
	}
	return d.applyExternal(h, tx, inner)
}

// route dispatches a validated operation content to its executor.
// RevealLargePayload is handled by applyExternal before this point; signed
// Deposit or FaDeposit content falls through to the unsupported-kind
// failure below, since deposits arrive as internal inbox messages.
func (d *Dispatcher) route(tx *kv.Transaction, hash []byte, signer address.Address, nonce uint64, content operation.Content) (*operation.Receipt, error) {
	switch content.Kind {
	case operation.KindDeployFunction:
		dep := content.DeployFunction
		addr, err := d.exec.Deploy(tx, signer, dep.Code, nonce, dep.InitialCredit)
		if err != nil {
			return failed(hash, err), nil
		}
		return &operation.Receipt{OpHash: hash, Status: operation.StatusSuccess, Address: addr.String()}, nil

	case operation.KindRunFunction:
		run := content.RunFunction
		gasLimit := run.GasLimit
		if gasLimit == 0 {
			gasLimit = d.defaultGasUnit
		}
		result, err := d.exec.Run(tx, signer, run.URI, run.Method, run.Headers, run.Body, gasLimit)
		if err != nil {
			return failed(hash, err), nil
		}
		return &operation.Receipt{OpHash: hash, Status: operation.StatusSuccess, Result: encodeRunResult(result)}, nil

	case operation.KindWithdraw:
		w := content.Withdraw
		account, found, err := kv.Get(tx, storage.AccountPath(signer.String()), address.DecodeAccount)
		if err != nil {
			return nil, err
		}
		if !found || account.Balance < w.Amount {
			return &operation.Receipt{OpHash: hash, Status: operation.StatusFailed, Error: "insufficient funds"}, nil
		}
		account.Balance -= w.Amount
		if err := kv.Insert(tx, storage.AccountPath(signer.String()), account); err != nil {
			return nil, err
		}
		d.outbox.QueueMessage(outbox.WithdrawalMessage{Destination: w.Destination, Amount: w.Amount})
		return &operation.Receipt{OpHash: hash, Status: operation.StatusSuccess, Address: w.Destination}, nil

	case operation.KindFaWithdraw:
		w := content.FaWithdraw
		if err := gasbank.Debit(tx, signer.String(), w.TicketHash, w.Amount); err != nil {
			return failed(hash, err), nil
		}
		d.outbox.QueueMessage(outbox.WithdrawalMessage{Destination: w.Destination, TicketHash: w.TicketHash, Amount: w.Amount})
		return &operation.Receipt{OpHash: hash, Status: operation.StatusSuccess, Address: w.Destination}, nil

	case operation.KindOracleResponse:
		o := content.OracleResponse
		req, err := oracle.Deliver(tx, o.RequestID, o.StatusCode, o.Body)
		if err != nil {
			return failed(hash, err), nil
		}
		return &operation.Receipt{OpHash: hash, Status: operation.StatusSuccess, Address: req.Caller}, nil

	default:
		return &operation.Receipt{OpHash: hash, Status: operation.StatusFailed, Error: "unsupported operation kind"}, nil
	}
}

func encodeRunResult(r executor.RunResult) []byte {
	buf := storage.PutUint64(nil, uint64(r.Status))
	buf = storage.PutUint64(buf, uint64(len(r.Headers)))
	for k, v := range r.Headers {
		buf = storage.PutString(buf, k)
		buf = storage.PutString(buf, v)
	}
	buf = storage.PutBytes(buf, r.Body)
	return buf
}

// parseRawAddress decodes a hex-encoded 20-byte address hash, as carried
// by inbox.Deposit/FaDeposit, into a user Address. L1 deposits target
// implicit (user) accounts; a smart function wishing to receive a deposit
// does so via an FaDeposit proxy instead.
func parseRawAddress(hexHash string) (address.Address, error) {
	raw, err := hex.DecodeString(hexHash)
	if err != nil {
		return address.Address{}, jstzerrors.Wrap(jstzerrors.CodeInvalidAddress, "decode deposit receiver", err)
	}
	return address.FromPublicKeyHash(raw)
}

// injectorValue is a raw-bytes storage.Value wrapper for the configured
// RevealLargePayload signer key persisted at /injector.
type injectorValue []byte

func (v injectorValue) Encode() ([]byte, error) { return []byte(v), nil }

func decodeInjector(b []byte) (injectorValue, error) { return injectorValue(b), nil }

// SetInjector persists pubKey as the sole public key authorised to submit
// RevealLargePayload operations.
func SetInjector(tx *kv.Transaction, pubKey []byte) error {
	return kv.Insert(tx, storage.InjectorPath(), injectorValue(pubKey))
}
