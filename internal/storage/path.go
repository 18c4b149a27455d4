package storage

import "fmt"

// Root path scheme. Callers build paths deterministically with the
// helpers below; there is no path escaping or normalisation.
const (
	rootAccount          = "/jstz_account"
	rootReceipt          = "/jstz_receipt"
	pathTicketer         = "/ticketer"
	pathInjector         = "/injector"
	rootOutbox           = "/outbox"
	pathOutboxMeta       = rootOutbox + "/meta"
	rootOutboxPersistent = rootOutbox + "/persistent"
	rootKv               = "/jstz_kv"
	rootOracle           = "/jstz_oracle"
	pathOracleCounter    = rootOracle + "/_next_id"
	rootTicket           = "/jstz_ticket"
)

// AccountPath returns the durable path for an account keyed by its
// base58check address.
func AccountPath(addr string) string {
	return fmt.Sprintf("%s/%s", rootAccount, addr)
}

// ReceiptPath returns the durable path for an operation's receipt.
func ReceiptPath(opHash string) string {
	return fmt.Sprintf("%s/%s", rootReceipt, opHash)
}

// TicketerPath is the fixed path holding the configured L1 ticketer.
func TicketerPath() string { return pathTicketer }

// InjectorPath is the fixed path holding the RevealLargePayload signer key.
func InjectorPath() string { return pathInjector }

// OutboxMetaPath is the fixed path holding {head, tail, max} outbox metadata.
func OutboxMetaPath() string { return pathOutboxMeta }

// OutboxPersistentRoot is the subtree root owned by the outbox queue's
// persistent tier.
func OutboxPersistentRoot() string { return rootOutboxPersistent }

// OutboxPersistentEntry returns the path for the n-th persisted outbox
// message (0-indexed), preserving FIFO order under lexicographic sort by
// zero-padding the index.
func OutboxPersistentEntry(n uint64) string {
	return fmt.Sprintf("%s/%020d", rootOutboxPersistent, n)
}

// KvPath returns the durable path for one key in a smart function's own
// custom key-value namespace, distinct from its Account record.
func KvPath(addr, key string) string {
	return fmt.Sprintf("%s/%s/%s", rootKv, addr, key)
}

// OraclePath returns the durable path for a pending oracle request.
func OraclePath(requestID uint64) string {
	return fmt.Sprintf("%s/%020d", rootOracle, requestID)
}

// OracleCounterPath is the fixed path holding the next oracle request ID
// to be allocated.
func OracleCounterPath() string { return pathOracleCounter }

// TicketAccountPath returns the durable path for an address's balance of
// one FA ticket.
func TicketAccountPath(addr, ticketHash string) string {
	return fmt.Sprintf("%s/%s/%s", rootTicket, addr, ticketHash)
}

// IsValidSegment reports whether s is a legal path segment:
// one or more of [A-Za-z0-9_.].
func IsValidSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
