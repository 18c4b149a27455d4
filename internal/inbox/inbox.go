// Package inbox decodes one rollup input into a jstz-level message. It
// never errors: any malformed, mistargeted, or unrecognised input is
// silently dropped (after a debug log), matching the kernel's rule that
// parsing never aborts a level.
package inbox

import (
	"fmt"

	"github.com/jstz-dev/jstz/internal/host"
	"github.com/jstz-dev/jstz/internal/operation"
	"github.com/jstz-dev/jstz/internal/storage"
)

// Wire tags for the outermost message byte.
const (
	tagInternal byte = 0x00
	tagExternal byte = 0x01
)

// Internal message subtypes.
const (
	internalStartOfLevel byte = 0x00
	internalInfoPerLevel byte = 0x01
	internalEndOfLevel   byte = 0x02
	internalTransfer     byte = 0x03
)

// Michelson either-of discriminants carried by a Transfer payload.
const (
	transferLeftNativeDeposit byte = 0x00
	transferRightFaDeposit    byte = 0x01
)

// ID identifies one inbox message by its rollup-assigned coordinates; it
// doubles as a nonce-free identity for internal messages like deposits.
type ID struct {
	Level     uint32
	MessageID uint32
}

// LevelKind distinguishes the three bracketing messages L1 sends around
// every level's batch of transfers.
type LevelKind uint8

const (
	LevelStart LevelKind = iota
	LevelInfo
	LevelEnd
)

// LevelMessage is the decoded content of a StartOfLevel/InfoPerLevel/
// EndOfLevel internal message.
type LevelMessage struct {
	Kind                  LevelKind
	PredecessorHash       []byte // 32 bytes, set only when Kind == LevelInfo
	PredecessorTimestamp  int64  // unix seconds, set only when Kind == LevelInfo
}

// Message is the decoded payload of one inbox input. Exactly one field
// is set.
type Message struct {
	Level     *LevelMessage
	Deposit   *operation.Deposit
	FaDeposit *operation.FaDeposit
	External  *operation.SignedOperation
}

// Parsed pairs a decoded Message with the inbox coordinates it arrived
// at.
type Parsed struct {
	ID      ID
	Message Message
}

// Logger receives a human-readable trace line for every message
// processed, mirroring the kernel's debug_msg calls.
type Logger func(string)

// Ticketer identifies the configured L1 contract authorised to mint
// native deposit tickets.
type Ticketer struct {
	Creator  [20]byte
	TicketID uint64
}

// Parse decodes one rollup Input into a Parsed message. It returns
// (nil, false) if the input is empty, malformed, targets a different
// rollup, or (for native deposits) was not minted by the configured
// ticketer — never an error.
func Parse(log Logger, in *host.Input, ticketer Ticketer, rollupAddress [20]byte) (*Parsed, bool) {
	if log == nil {
		log = func(string) {}
	}
	id := ID{Level: in.Level, MessageID: in.ID}
	payload := in.Payload
	if len(payload) < 1 {
		log("inbox: empty message")
		return nil, false
	}

	switch payload[0] {
	case tagInternal:
		msg, ok := parseInternal(log, id, payload[1:], ticketer, rollupAddress)
		if !ok {
			return nil, false
		}
		return &Parsed{ID: id, Message: msg}, true
	case tagExternal:
		msg, ok := parseExternal(log, payload[1:], rollupAddress)
		if !ok {
			return nil, false
		}
		return &Parsed{ID: id, Message: msg}, true
	default:
		log("inbox: unrecognised message tag")
		return nil, false
	}
}

func parseInternal(log Logger, id ID, b []byte, ticketer Ticketer, rollupAddress [20]byte) (Message, bool) {
	if len(b) < 1 {
		log("inbox: truncated internal message")
		return Message{}, false
	}
	switch b[0] {
	case internalStartOfLevel:
		log("internal message: start of level")
		return Message{Level: &LevelMessage{Kind: LevelStart}}, true
	case internalInfoPerLevel:
		rest := b[1:]
		if len(rest) < 40 {
			log("inbox: truncated info-per-level message")
			return Message{}, false
		}
		hash := append([]byte(nil), rest[:32]...)
		ts, _, err := storage.TakeUint64(rest[32:40])
		if err != nil {
			log("inbox: malformed info-per-level timestamp")
			return Message{}, false
		}
		log(fmt.Sprintf("internal message: level info (predecessor_timestamp: %d)", ts))
		return Message{Level: &LevelMessage{Kind: LevelInfo, PredecessorHash: hash, PredecessorTimestamp: int64(ts)}}, true
	case internalEndOfLevel:
		log("internal message: end of level")
		return Message{Level: &LevelMessage{Kind: LevelEnd}}, true
	case internalTransfer:
		return parseTransfer(log, id, b[1:], ticketer, rollupAddress)
	default:
		log("inbox: unrecognised internal message subtype")
		return Message{}, false
	}
}

func parseTransfer(log Logger, id ID, b []byte, ticketer Ticketer, rollupAddress [20]byte) (Message, bool) {
	if len(b) < 20 {
		log("inbox: truncated transfer destination")
		return Message{}, false
	}
	var dest [20]byte
	copy(dest[:], b[:20])
	b = b[20:]
	if dest != rollupAddress {
		log("internal message ignored because of different smart rollup address")
		return Message{}, false
	}

	if len(b) < 21 {
		log("inbox: truncated transfer source")
		return Message{}, false
	}
	source := encodeAddr(b[:20])
	discriminant := b[20]
	b = b[21:]

	switch discriminant {
	case transferLeftNativeDeposit:
		return parseNativeDeposit(log, id, b, source, ticketer)
	case transferRightFaDeposit:
		return parseFaDeposit(log, id, b, source)
	default:
		log("inbox: unrecognised transfer payload discriminant")
		return Message{}, false
	}
}

func parseNativeDeposit(log Logger, id ID, b []byte, source string, ticketer Ticketer) (Message, bool) {
	if len(b) < 20 {
		log("inbox: truncated native deposit receiver")
		return Message{}, false
	}
	receiver := encodeAddr(b[:20])
	b = b[20:]

	if len(b) < 20 {
		log("deposit ignored because of different ticketer: truncated creator")
		return Message{}, false
	}
	var creator [20]byte
	copy(creator[:], b[:20])
	b = b[20:]

	ticketID, b, err := storage.TakeUint64(b)
	if err != nil {
		log("inbox: truncated ticket id")
		return Message{}, false
	}
	contents, b, err := storage.TakeBytes(b)
	if err != nil {
		log("inbox: truncated ticket contents")
		return Message{}, false
	}
	amount, _, err := storage.TakeUint64(b)
	if err != nil {
		log("inbox: truncated deposit amount")
		return Message{}, false
	}

	if creator != ticketer.Creator {
		log("deposit ignored because of different ticketer")
		return Message{}, false
	}
	if ticketID != ticketer.TicketID {
		log("deposit ignored because of different ticket id")
		return Message{}, false
	}
	if len(contents) != 0 {
		log("deposit ignored because of different ticket content")
		return Message{}, false
	}

	log(fmt.Sprintf("deposit: receiver=%s amount=%d", receiver, amount))
	return Message{Deposit: &operation.Deposit{
		InboxLevel: id.Level,
		InboxMsgID: id.MessageID,
		Amount:     amount,
		Receiver:   receiver,
		Source:     source,
	}}, true
}

func parseFaDeposit(log Logger, id ID, b []byte, source string) (Message, bool) {
	if len(b) < 20 {
		log("inbox: truncated fa-deposit receiver")
		return Message{}, false
	}
	receiver := encodeAddr(b[:20])
	b = b[20:]

	hasProxy, b, err := storage.TakeBool(b)
	if err != nil {
		log("inbox: truncated fa-deposit proxy flag")
		return Message{}, false
	}
	var proxy *string
	if hasProxy {
		if len(b) < 20 {
			log("inbox: truncated fa-deposit proxy")
			return Message{}, false
		}
		p := encodeAddr(b[:20])
		proxy = &p
		b = b[20:]
	}

	ticketHash, b, err := storage.TakeBytes(b)
	if err != nil {
		log("inbox: truncated fa-deposit ticket hash")
		return Message{}, false
	}
	amount, _, err := storage.TakeUint64(b)
	if err != nil {
		log("inbox: truncated fa-deposit amount")
		return Message{}, false
	}

	log(fmt.Sprintf("fa-deposit: receiver=%s amount=%d", receiver, amount))
	return Message{FaDeposit: &operation.FaDeposit{
		InboxLevel: id.Level,
		InboxMsgID: id.MessageID,
		Amount:     amount,
		Receiver:   receiver,
		Source:     source,
		TicketHash: string(ticketHash),
		Proxy:      proxy,
	}}, true
}

func parseExternal(log Logger, b []byte, rollupAddress [20]byte) (Message, bool) {
	if len(b) < 20 {
		log("inbox: truncated external frame address")
		return Message{}, false
	}
	var target [20]byte
	copy(target[:], b[:20])
	b = b[20:]

	if target != rollupAddress {
		log("external message ignored because of different smart rollup address")
		return Message{}, false
	}

	op, err := operation.DecodeSignedOperation(b)
	if err != nil {
		log("failed to parse the external message")
		return Message{}, false
	}
	log("external message parsed")
	return Message{External: &op}, true
}

// encodeAddr renders a raw 20-byte address hash as a hex string; the
// protocol layer re-derives the typed address.Address from Receiver/
// Source fields where a Kind is known (user vs smart function).
func encodeAddr(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}
