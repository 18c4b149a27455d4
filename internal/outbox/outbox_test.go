package outbox_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstz-dev/jstz/internal/host"
	"github.com/jstz-dev/jstz/internal/outbox"
	"github.com/jstz-dev/jstz/internal/storage"
)

type withdrawal struct{ account string }

func (w withdrawal) Encode() ([]byte, error) { return []byte("withdrawal:" + w.account), nil }

func makeWithdrawal(i int) withdrawal {
	return withdrawal{account: fmt.Sprintf("account%d", i)}
}

func newQueue(cap int) (*outbox.PersistentQueue, host.Host) {
	m := host.NewMemory("sr1", cap)
	return outbox.New(storage.New(m)), m
}

func TestFlushEmptyOutboxQueueNoop(t *testing.T) {
	persistent, h := newQueue(100)
	snapshot := &outbox.SnapshotQueue{}

	flushed, err := outbox.Flush(h, persistent, snapshot)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), flushed)
	assert.Equal(t, 0, len(h.(*host.Memory).Outputs()))
}

func TestFlushEmptySnapshotFlushesPersistentQueue(t *testing.T) {
	persistent, h := newQueue(100)

	msgs := []outbox.Message{makeWithdrawal(1), makeWithdrawal(2)}
	require.NoError(t, persistent.BatchQueueMessage(msgs))

	snapshot := &outbox.SnapshotQueue{}
	flushed, err := outbox.Flush(h, persistent, snapshot)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), flushed)

	length, err := persistent.Len()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), length)

	outputs := h.(*host.Memory).Outputs()
	require.Len(t, outputs, 2)
	assert.Equal(t, "withdrawal:account1", string(outputs[0]))
	assert.Equal(t, "withdrawal:account2", string(outputs[1]))
}

func TestFlushPersistentQueueFirstThenSnapshot(t *testing.T) {
	persistent, h := newQueue(100)

	require.NoError(t, persistent.QueueMessage(makeWithdrawal(1)))
	require.NoError(t, persistent.QueueMessage(makeWithdrawal(2)))

	snapshot := &outbox.SnapshotQueue{}
	snapshot.QueueMessage(makeWithdrawal(3))
	snapshot.QueueMessage(makeWithdrawal(4))

	flushed, err := outbox.Flush(h, persistent, snapshot)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), flushed)

	length, err := persistent.Len()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), length)

	outputs := h.(*host.Memory).Outputs()
	require.Len(t, outputs, 4)
	for i, out := range outputs {
		assert.Equal(t, fmt.Sprintf("withdrawal:account%d", i+1), string(out))
	}
}

func TestFlushEnqueuesRemainingMessagesToPersistentQueue(t *testing.T) {
	persistent, h := newQueue(100)

	for i := 0; i < 60; i++ {
		require.NoError(t, persistent.QueueMessage(makeWithdrawal(i)))
	}

	snapshot := &outbox.SnapshotQueue{}
	for i := 60; i < 120; i++ {
		snapshot.QueueMessage(makeWithdrawal(i))
	}

	flushed, err := outbox.Flush(h, persistent, snapshot)
	require.NoError(t, err)

	length, err := persistent.Len()
	require.NoError(t, err)
	assert.Equal(t, uint64(20), length)
	assert.Equal(t, uint32(100), flushed)

	outputs := h.(*host.Memory).Outputs()
	assert.Len(t, outputs, 100)
}

func TestPersistentQueueSurvivesAcrossInstances(t *testing.T) {
	m := host.NewMemory("sr1", 100)
	root := storage.New(m)

	q1 := outbox.New(root)
	require.NoError(t, q1.QueueMessage(makeWithdrawal(1)))

	q2 := outbox.New(root)
	length, err := q2.Len()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), length)
}

// failingOutputHost wraps a real *host.Memory but makes WriteOutput fail
// with a non-capacity error, so tests can exercise the "genuine I/O bug"
// branch of Flush distinctly from ordinary outbox-full capacity exhaustion.
type failingOutputHost struct {
	*host.Memory
}

func (f failingOutputHost) WriteOutput([]byte) error {
	return errors.New("write output: disk gremlin")
}

func TestFlushLogsWriteDebugOnNonFullOutboxError(t *testing.T) {
	m := host.NewMemory("sr1", 100)
	h := failingOutputHost{Memory: m}
	root := storage.New(h)

	persistent := outbox.New(root)
	snapshot := &outbox.SnapshotQueue{}
	snapshot.QueueMessage(makeWithdrawal(1))

	flushed, err := outbox.Flush(h, persistent, snapshot)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), flushed)

	logs := m.DebugLog()
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[0], "disk gremlin")
}

func TestPersistentQueueFlushLogsWriteDebugOnNonFullOutboxError(t *testing.T) {
	m := host.NewMemory("sr1", 100)
	h := failingOutputHost{Memory: m}
	root := storage.New(h)

	persistent := outbox.New(root)
	require.NoError(t, persistent.QueueMessage(makeWithdrawal(1)))

	flushed, err := persistent.Flush(h)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), flushed)

	logs := m.DebugLog()
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[0], "disk gremlin")
}

func TestSnapshotQueueExtend(t *testing.T) {
	a := &outbox.SnapshotQueue{}
	a.QueueMessage(makeWithdrawal(1))
	b := &outbox.SnapshotQueue{}
	b.QueueMessage(makeWithdrawal(2))

	a.Extend(b)
	require.Len(t, a.Messages(), 2)
	assert.Equal(t, makeWithdrawal(1), a.Messages()[0])
	assert.Equal(t, makeWithdrawal(2), a.Messages()[1])
}
