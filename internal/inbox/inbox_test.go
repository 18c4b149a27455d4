package inbox_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstz-dev/jstz/internal/crypto"
	"github.com/jstz-dev/jstz/internal/host"
	"github.com/jstz-dev/jstz/internal/inbox"
	"github.com/jstz-dev/jstz/internal/operation"
	"github.com/jstz-dev/jstz/internal/storage"
)

var rollup = [20]byte{1, 2, 3}

func noLog(string) {}

func TestParseStartOfLevel(t *testing.T) {
	in := &host.Input{Level: 1, ID: 0, Payload: []byte{0x00, 0x00}}
	parsed, ok := inbox.Parse(noLog, in, inbox.Ticketer{}, rollup)
	require.True(t, ok)
	require.NotNil(t, parsed.Message.Level)
	assert.Equal(t, inbox.LevelStart, parsed.Message.Level.Kind)
}

func TestParseEndOfLevel(t *testing.T) {
	in := &host.Input{Payload: []byte{0x00, 0x02}}
	parsed, ok := inbox.Parse(noLog, in, inbox.Ticketer{}, rollup)
	require.True(t, ok)
	assert.Equal(t, inbox.LevelEnd, parsed.Message.Level.Kind)
}

func TestParseInfoPerLevel(t *testing.T) {
	payload := []byte{0x00, 0x01}
	payload = append(payload, make([]byte, 32)...) // predecessor hash
	ts := storage.PutUint64(nil, 1700000000)
	payload = append(payload, ts...)

	in := &host.Input{Payload: payload}
	parsed, ok := inbox.Parse(noLog, in, inbox.Ticketer{}, rollup)
	require.True(t, ok)
	require.Equal(t, inbox.LevelInfo, parsed.Message.Level.Kind)
	assert.Equal(t, int64(1700000000), parsed.Message.Level.PredecessorTimestamp)
}

func buildNativeDeposit(dest [20]byte, source, receiver, creator [20]byte, ticketID uint64, contents []byte, amount uint64) []byte {
	buf := []byte{0x00, 0x03}
	buf = append(buf, dest[:]...)
	buf = append(buf, source[:]...)
	buf = append(buf, 0x00) // Left discriminant
	buf = append(buf, receiver[:]...)
	buf = append(buf, creator[:]...)
	buf = storage.PutUint64(buf, ticketID)
	buf = storage.PutBytes(buf, contents)
	buf = storage.PutUint64(buf, amount)
	return buf
}

func TestParseNativeDepositAcceptsConfiguredTicketer(t *testing.T) {
	var src, recv, creator [20]byte
	src[0] = 9
	recv[0] = 7
	creator[0] = 5

	payload := buildNativeDeposit(rollup, src, recv, creator, 0, nil, 42)
	in := &host.Input{Level: 3, ID: 1, Payload: payload}

	ticketer := inbox.Ticketer{Creator: creator, TicketID: 0}
	parsed, ok := inbox.Parse(noLog, in, ticketer, rollup)
	require.True(t, ok)
	require.NotNil(t, parsed.Message.Deposit)
	assert.Equal(t, uint64(42), parsed.Message.Deposit.Amount)
	assert.Equal(t, uint32(3), parsed.Message.Deposit.InboxLevel)
}

func TestParseNativeDepositRejectsWrongTicketer(t *testing.T) {
	var src, recv, creator, otherCreator [20]byte
	creator[0] = 5
	otherCreator[0] = 6

	payload := buildNativeDeposit(rollup, src, recv, creator, 0, nil, 42)
	in := &host.Input{Payload: payload}

	ticketer := inbox.Ticketer{Creator: otherCreator, TicketID: 0}
	_, ok := inbox.Parse(noLog, in, ticketer, rollup)
	assert.False(t, ok)
}

func TestParseTransferWrongRollupIsDropped(t *testing.T) {
	var src, recv, creator, wrongRollup [20]byte
	wrongRollup[19] = 0xff

	payload := buildNativeDeposit(wrongRollup, src, recv, creator, 0, nil, 1)
	in := &host.Input{Payload: payload}

	_, ok := inbox.Parse(noLog, in, inbox.Ticketer{Creator: creator}, rollup)
	assert.False(t, ok)
}

func TestParseExternalMessage(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	content := operation.Content{Kind: operation.KindWithdraw, Withdraw: &operation.Withdraw{Amount: 5, Destination: "KT1x"}}
	op, err := operation.Sign(kp, 1, content)
	require.NoError(t, err)
	encodedOp, err := op.Encode()
	require.NoError(t, err)

	payload := []byte{0x01}
	payload = append(payload, rollup[:]...)
	payload = append(payload, encodedOp...)

	in := &host.Input{Payload: payload}
	parsed, ok := inbox.Parse(noLog, in, inbox.Ticketer{}, rollup)
	require.True(t, ok)
	require.NotNil(t, parsed.Message.External)
	assert.Equal(t, op.Nonce, parsed.Message.External.Nonce)
}

func TestParseExternalMessageWrongTargetDropped(t *testing.T) {
	var wrong [20]byte
	wrong[0] = 0xaa
	payload := []byte{0x01}
	payload = append(payload, wrong[:]...)
	payload = append(payload, 0, 0, 0)

	in := &host.Input{Payload: payload}
	_, ok := inbox.Parse(noLog, in, inbox.Ticketer{}, rollup)
	assert.False(t, ok)
}

func TestParseEmptyPayloadDropped(t *testing.T) {
	in := &host.Input{Payload: nil}
	_, ok := inbox.Parse(noLog, in, inbox.Ticketer{}, rollup)
	assert.False(t, ok)
}

func TestParseUnknownTagDropped(t *testing.T) {
	in := &host.Input{Payload: []byte{0xee}}
	_, ok := inbox.Parse(noLog, in, inbox.Ticketer{}, rollup)
	assert.False(t, ok)
}
