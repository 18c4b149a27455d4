// Package host defines the kernel's erased view of the rollup syscall set —
// the minimum surface every other package needs from the host, expressed
// as a plain Go interface so it can be used both as a dynamically dispatched
// value (passed into the JS runtime bridge) and concretely (in the hot
// kernel loop). Every operation here must be deterministic given the
// rollup's input tape and current storage.
package host


// Input is one message pulled off the inbox tape for a given level.
type Input struct {
	Level   uint32
	ID      uint32
	Payload []byte
}

// Host is the object-safe syscall surface the rollup exposes to the kernel.
// It mirrors the Rust SDK's Runtime trait, erased to a single interface
// value the way the teacher's services take a *logger.Logger or a storage
// interface rather than a concrete struct.
type Host interface {
	// ReadInput pulls the next inbox message for the current level, or
	// (nil, false) once the tape is exhausted.
	ReadInput() (*Input, bool, error)
	// WriteOutput appends one message to the level's outbox tape. Returns
	// jstzerrors.CodeOutboxFull if the per-level cap has been reached.
	WriteOutput(data []byte) error

	// StoreHas reports whether path exists (as a value, a subtree, or both).
	StoreHas(path string) (bool, error)
	// StoreRead reads up to maxBytes starting at offset. Returns
	// jstzerrors.ErrOutOfBounds if offset is past the stored value's end.
	StoreRead(path string, offset, maxBytes int) ([]byte, error)
	// StoreWrite writes src at offset, extending the value if needed.
	StoreWrite(path string, offset int, src []byte) error
	// StoreWriteAll fully replaces path's value with src.
	StoreWriteAll(path string, src []byte) error
	// StoreDelete removes path and its entire subtree.
	StoreDelete(path string) error
	// StoreDeleteValue removes only path's leaf value, keeping any children.
	StoreDeleteValue(path string) error
	// StoreCountSubkeys returns the number of direct children under prefix.
	StoreCountSubkeys(prefix string) (uint64, error)
	// StoreMove relocates a subtree from one path to another.
	StoreMove(from, to string) error
	// StoreCopy duplicates a subtree from one path to another.
	StoreCopy(from, to string) error

	// RevealPreimage resolves a content hash to its bytes (up to 4096 per
	// call); large payloads are chunked by the caller.
	RevealPreimage(hash []byte) ([]byte, error)
	// RevealMetadata returns rollup identity metadata (e.g. its own address).
	RevealMetadata() Metadata

	// MarkForReboot requests that the host re-invoke the kernel for the
	// same level once the current invocation returns.
	MarkForReboot() error
	// RebootLeft reports how many reboots remain in the current level's
	// budget.
	RebootLeft() (uint32, error)

	// WriteDebug emits a debug line; never observable in committed state.
	WriteDebug(msg string)
}

// Metadata describes the rollup instance itself.
type Metadata struct {
	Address string // smart-rollup address, base58check-encoded
}
