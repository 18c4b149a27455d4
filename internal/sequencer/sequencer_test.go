package sequencer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstz-dev/jstz/internal/operation"
	"github.com/jstz-dev/jstz/internal/sequencer"
)

func TestIngestRecordsReceiptByHash(t *testing.T) {
	m := sequencer.New(4)
	receipt := operation.Receipt{OpHash: []byte("h1"), Status: operation.StatusSuccess}

	require.NoError(t, m.Ingest(context.Background(), receipt))
	assert.Equal(t, 1, m.Len())

	got, found := m.Lookup([]byte("h1"))
	require.True(t, found)
	assert.Equal(t, receipt, got)
}

func TestLookupMissesUnknownHash(t *testing.T) {
	m := sequencer.New(4)
	_, found := m.Lookup([]byte("missing"))
	assert.False(t, found)
}

func TestIngestRespectsContextCancellation(t *testing.T) {
	m := sequencer.New(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Ingest(ctx, operation.Receipt{OpHash: []byte("b")})
	assert.Error(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestRunDrainsChannelUntilClosed(t *testing.T) {
	m := sequencer.New(4)
	ch := make(chan operation.Receipt, 2)
	ch <- operation.Receipt{OpHash: []byte("x")}
	ch <- operation.Receipt{OpHash: []byte("y")}
	close(ch)

	err := m.Run(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
}
