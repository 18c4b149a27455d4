package outbox

import "github.com/jstz-dev/jstz/internal/storage"

// WithdrawalMessage is the outbox's sole concrete message shape: an
// atomic withdrawal batch addressed to an L1 ticketer contract, mirroring
// the wire-level OutboxMessageTransactionBatch<(contract, ticket)>. An
// empty TicketHash denotes a native-balance withdrawal rather than an FA
// ticket.
type WithdrawalMessage struct {
	Destination string
	TicketHash  string
	Amount      uint64
}

// Encode implements storage.Value / Message.
func (w WithdrawalMessage) Encode() ([]byte, error) {
	buf := storage.PutString(nil, w.Destination)
	buf = storage.PutString(buf, w.TicketHash)
	buf = storage.PutUint64(buf, w.Amount)
	return buf, nil
}

// DecodeWithdrawalMessage decodes bytes produced by
// WithdrawalMessage.Encode.
func DecodeWithdrawalMessage(b []byte) (WithdrawalMessage, error) {
	dest, b, err := storage.TakeString(b)
	if err != nil {
		return WithdrawalMessage{}, err
	}
	ticketHash, b, err := storage.TakeString(b)
	if err != nil {
		return WithdrawalMessage{}, err
	}
	amount, _, err := storage.TakeUint64(b)
	if err != nil {
		return WithdrawalMessage{}, err
	}
	return WithdrawalMessage{Destination: dest, TicketHash: ticketHash, Amount: amount}, nil
}

var _ Message = WithdrawalMessage{}
