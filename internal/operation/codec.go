package operation

import (
	"github.com/jstz-dev/jstz/internal/jstzerrors"
	"github.com/jstz-dev/jstz/internal/storage"
)

func optString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toOptString(set bool, s string) *string {
	if !set {
		return nil
	}
	return &s
}

// EncodeContent canonically encodes a Content value: a one-byte kind tag
// followed by the populated variant's fields.
func EncodeContent(c Content) ([]byte, error) {
	buf := []byte{byte(c.Kind)}
	switch c.Kind {
	case KindDeployFunction:
		d := c.DeployFunction
		buf = storage.PutString(buf, d.Code)
		buf = storage.PutUint64(buf, d.InitialCredit)
	case KindRunFunction:
		r := c.RunFunction
		buf = storage.PutString(buf, r.URI)
		buf = storage.PutString(buf, r.Method)
		buf = storage.PutUint64(buf, uint64(len(r.Headers)))
		for k, v := range r.Headers {
			buf = storage.PutString(buf, k)
			buf = storage.PutString(buf, v)
		}
		buf = storage.PutBytes(buf, r.Body)
		buf = storage.PutUint64(buf, r.GasLimit)
	case KindDeposit:
		d := c.Deposit
		buf = storage.PutUint64(buf, uint64(d.InboxLevel))
		buf = storage.PutUint64(buf, uint64(d.InboxMsgID))
		buf = storage.PutUint64(buf, d.Amount)
		buf = storage.PutString(buf, d.Receiver)
		buf = storage.PutString(buf, d.Source)
	case KindFaDeposit:
		f := c.FaDeposit
		buf = storage.PutUint64(buf, uint64(f.InboxLevel))
		buf = storage.PutUint64(buf, uint64(f.InboxMsgID))
		buf = storage.PutUint64(buf, f.Amount)
		buf = storage.PutString(buf, f.Receiver)
		buf = storage.PutString(buf, f.Source)
		buf = storage.PutString(buf, f.TicketHash)
		buf = storage.PutBool(buf, f.Proxy != nil)
		buf = storage.PutString(buf, optString(f.Proxy))
	case KindRevealLargePayload:
		r := c.RevealLargePayload
		buf = storage.PutBytes(buf, r.RootHash)
		buf = append(buf, byte(r.Reveal))
	case KindOracleResponse:
		o := c.OracleResponse
		buf = storage.PutUint64(buf, o.RequestID)
		buf = storage.PutBytes(buf, o.Body)
		buf = storage.PutUint64(buf, uint64(o.StatusCode))
	case KindWithdraw:
		w := c.Withdraw
		buf = storage.PutUint64(buf, w.Amount)
		buf = storage.PutString(buf, w.Destination)
	case KindFaWithdraw:
		w := c.FaWithdraw
		buf = storage.PutUint64(buf, w.Amount)
		buf = storage.PutString(buf, w.TicketHash)
		buf = storage.PutString(buf, w.Destination)
		buf = storage.PutBool(buf, w.Proxy != nil)
		buf = storage.PutString(buf, optString(w.Proxy))
	default:
		return nil, jstzerrors.New(jstzerrors.CodeInvalidModule, "unknown operation content kind")
	}
	return buf, nil
}

// DecodeContent decodes bytes produced by EncodeContent.
func DecodeContent(b []byte) (Content, error) {
	if len(b) < 1 {
		return Content{}, jstzerrors.New(jstzerrors.CodeSerialization, "empty operation content")
	}
	kind := Kind(b[0])
	b = b[1:]

	var c Content
	c.Kind = kind

	switch kind {
	case KindDeployFunction:
		code, b, err := storage.TakeString(b)
		if err != nil {
			return Content{}, err
		}
		credit, _, err := storage.TakeUint64(b)
		if err != nil {
			return Content{}, err
		}
		c.DeployFunction = &DeployFunction{Code: code, InitialCredit: credit}
	case KindRunFunction:
		uri, rest, err := storage.TakeString(b)
		if err != nil {
			return Content{}, err
		}
		method, rest, err := storage.TakeString(rest)
		if err != nil {
			return Content{}, err
		}
		n, rest, err := storage.TakeUint64(rest)
		if err != nil {
			return Content{}, err
		}
		headers := make(map[string]string, n)
		for i := uint64(0); i < n; i++ {
			var k, v string
			k, rest, err = storage.TakeString(rest)
			if err != nil {
				return Content{}, err
			}
			v, rest, err = storage.TakeString(rest)
			if err != nil {
				return Content{}, err
			}
			headers[k] = v
		}
		body, rest, err := storage.TakeBytes(rest)
		if err != nil {
			return Content{}, err
		}
		gas, _, err := storage.TakeUint64(rest)
		if err != nil {
			return Content{}, err
		}
		c.RunFunction = &RunFunction{URI: uri, Method: method, Headers: headers, Body: body, GasLimit: gas}
	case KindDeposit:
		level, rest, err := storage.TakeUint64(b)
		if err != nil {
			return Content{}, err
		}
		msgID, rest, err := storage.TakeUint64(rest)
		if err != nil {
			return Content{}, err
		}
		amount, rest, err := storage.TakeUint64(rest)
		if err != nil {
			return Content{}, err
		}
		receiver, rest, err := storage.TakeString(rest)
		if err != nil {
			return Content{}, err
		}
		source, _, err := storage.TakeString(rest)
		if err != nil {
			return Content{}, err
		}
		c.Deposit = &Deposit{InboxLevel: uint32(level), InboxMsgID: uint32(msgID), Amount: amount, Receiver: receiver, Source: source}
	case KindFaDeposit:
		level, rest, err := storage.TakeUint64(b)
		if err != nil {
			return Content{}, err
		}
		msgID, rest, err := storage.TakeUint64(rest)
		if err != nil {
			return Content{}, err
		}
		amount, rest, err := storage.TakeUint64(rest)
		if err != nil {
			return Content{}, err
		}
		receiver, rest, err := storage.TakeString(rest)
		if err != nil {
			return Content{}, err
		}
		source, rest, err := storage.TakeString(rest)
		if err != nil {
			return Content{}, err
		}
		ticketHash, rest, err := storage.TakeString(rest)
		if err != nil {
			return Content{}, err
		}
		hasProxy, rest, err := storage.TakeBool(rest)
		if err != nil {
			return Content{}, err
		}
		proxy, _, err := storage.TakeString(rest)
		if err != nil {
			return Content{}, err
		}
		c.FaDeposit = &FaDeposit{
			InboxLevel: uint32(level), InboxMsgID: uint32(msgID), Amount: amount,
			Receiver: receiver, Source: source, TicketHash: ticketHash,
			Proxy: toOptString(hasProxy, proxy),
		}
	case KindRevealLargePayload:
		rootHash, rest, err := storage.TakeBytes(b)
		if err != nil {
			return Content{}, err
		}
		if len(rest) < 1 {
			return Content{}, jstzerrors.New(jstzerrors.CodeSerialization, "truncated reveal kind")
		}
		c.RevealLargePayload = &RevealLargePayload{RootHash: rootHash, Reveal: Kind(rest[0])}
	case KindOracleResponse:
		reqID, rest, err := storage.TakeUint64(b)
		if err != nil {
			return Content{}, err
		}
		body, rest, err := storage.TakeBytes(rest)
		if err != nil {
			return Content{}, err
		}
		status, _, err := storage.TakeUint64(rest)
		if err != nil {
			return Content{}, err
		}
		c.OracleResponse = &OracleResponse{RequestID: reqID, Body: body, StatusCode: uint16(status)}
	case KindWithdraw:
		amount, rest, err := storage.TakeUint64(b)
		if err != nil {
			return Content{}, err
		}
		dest, _, err := storage.TakeString(rest)
		if err != nil {
			return Content{}, err
		}
		c.Withdraw = &Withdraw{Amount: amount, Destination: dest}
	case KindFaWithdraw:
		amount, rest, err := storage.TakeUint64(b)
		if err != nil {
			return Content{}, err
		}
		ticketHash, rest, err := storage.TakeString(rest)
		if err != nil {
			return Content{}, err
		}
		dest, rest, err := storage.TakeString(rest)
		if err != nil {
			return Content{}, err
		}
		hasProxy, rest, err := storage.TakeBool(rest)
		if err != nil {
			return Content{}, err
		}
		proxy, _, err := storage.TakeString(rest)
		if err != nil {
			return Content{}, err
		}
		c.FaWithdraw = &FaWithdraw{Amount: amount, TicketHash: ticketHash, Destination: dest, Proxy: toOptString(hasProxy, proxy)}
	default:
		return Content{}, jstzerrors.New(jstzerrors.CodeInvalidModule, "unknown operation content kind")
	}

	return c, nil
}

// Encode implements storage.Value for SignedOperation.
func (op SignedOperation) Encode() ([]byte, error) {
	contentBytes, err := EncodeContent(op.Content)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(contentBytes)+len(op.PublicKey)+len(op.Signature)+24)
	buf = storage.PutBytes(buf, op.PublicKey)
	buf = storage.PutUint64(buf, op.Nonce)
	buf = storage.PutBytes(buf, contentBytes)
	buf = storage.PutBytes(buf, op.Signature)
	return buf, nil
}

// DecodeSignedOperation decodes bytes produced by SignedOperation.Encode.
func DecodeSignedOperation(b []byte) (SignedOperation, error) {
	pub, rest, err := storage.TakeBytes(b)
	if err != nil {
		return SignedOperation{}, err
	}
	nonce, rest, err := storage.TakeUint64(rest)
	if err != nil {
		return SignedOperation{}, err
	}
	contentBytes, rest, err := storage.TakeBytes(rest)
	if err != nil {
		return SignedOperation{}, err
	}
	sig, _, err := storage.TakeBytes(rest)
	if err != nil {
		return SignedOperation{}, err
	}
	content, err := DecodeContent(contentBytes)
	if err != nil {
		return SignedOperation{}, err
	}
	return SignedOperation{PublicKey: pub, Nonce: nonce, Content: content, Signature: sig}, nil
}
