// Package sequencer models the external sequencer's in-memory mirror of
// the kernel's committed receipts. It has no authority over durable
// state — a gap between what it has ingested and what the rollup has
// actually committed is just staleness, never a correctness problem for
// the kernel itself (spec.md §5). It exists so a node operator can serve
// fast receipt lookups without replaying the kernel.
package sequencer

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/jstz-dev/jstz/internal/operation"
)

// Mirror is a fair-admission, read-only view over committed receipts.
type Mirror struct {
	admission *semaphore.Weighted

	mu       sync.RWMutex
	receipts []operation.Receipt
	byHash   map[string]int
}

// New constructs a Mirror admitting at most maxInflight concurrent
// Ingest calls.
func New(maxInflight int64) *Mirror {
	return &Mirror{
		admission: semaphore.NewWeighted(maxInflight),
		byHash:    make(map[string]int),
	}
}

// Ingest admits one committed receipt, blocking in FIFO order behind
// semaphore.Weighted's waiter queue until a slot frees or ctx ends.
func (m *Mirror) Ingest(ctx context.Context, receipt operation.Receipt) error {
	if err := m.admission.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.admission.Release(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byHash[string(receipt.OpHash)] = len(m.receipts)
	m.receipts = append(m.receipts, receipt)
	return nil
}

// Run drains committed receipts from ch into the mirror until ch closes
// or ctx is cancelled.
func (m *Mirror) Run(ctx context.Context, ch <-chan operation.Receipt) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case receipt, ok := <-ch:
			if !ok {
				return nil
			}
			if err := m.Ingest(ctx, receipt); err != nil {
				return err
			}
		}
	}
}

// Lookup returns the receipt recorded for opHash, if the mirror has seen it.
func (m *Mirror) Lookup(opHash []byte) (operation.Receipt, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byHash[string(opHash)]
	if !ok {
		return operation.Receipt{}, false
	}
	return m.receipts[idx], true
}

// Len returns how many receipts the mirror currently holds.
func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.receipts)
}
