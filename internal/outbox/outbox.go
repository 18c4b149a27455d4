// Package outbox implements the kernel's two-tier outbox queue: a
// snapshot tier accumulated in memory during the current transaction and
// a persistent tier durable across reboots. Flush writes the persistent
// tier first, then the snapshot tier, into the rollup's outbox tape,
// which accepts at most 100 messages per level.
package outbox

import (
	"encoding/binary"

	"github.com/jstz-dev/jstz/internal/host"
	"github.com/jstz-dev/jstz/internal/jstzerrors"
	"github.com/jstz-dev/jstz/internal/storage"
)

// Message is anything the outbox can carry out to layer one.
type Message interface {
	storage.Value
}

// DefaultMax is the persistent queue's headroom once a level's 100-message
// outbox cap is exhausted: comfortably above any plausible per-level
// backlog, without being unbounded.
const DefaultMax = 65535

// SnapshotQueue accumulates outbox messages produced during the current
// transaction. It lives only in memory; Flush drains it into the
// persistent queue or the rollup outbox tape.
type SnapshotQueue struct {
	messages []Message
}

// QueueMessage appends message to the snapshot queue.
func (q *SnapshotQueue) QueueMessage(message Message) {
	q.messages = append(q.messages, message)
}

// Extend appends every message from other onto q, in order.
func (q *SnapshotQueue) Extend(other *SnapshotQueue) {
	if other == nil {
		return
	}
	q.messages = append(q.messages, other.messages...)
}

// Messages returns the queued messages in FIFO order.
func (q *SnapshotQueue) Messages() []Message {
	return q.messages
}

// Len reports how many messages are queued.
func (q *SnapshotQueue) Len() int { return len(q.messages) }

// Meta is the persistent queue's durable bookkeeping: a half-open index
// range [Head, Tail) of entries waiting to be flushed, and the queue's
// recorded capacity Max. Max is stored and reported by Max();
// QueueMessage and BatchQueueMessage do not check it.
type Meta struct {
	Head uint64
	Tail uint64
	Max  uint64
}

// Encode implements storage.Value.
func (m Meta) Encode() ([]byte, error) {
	buf := make([]byte, 0, 24)
	buf = appendUint64(buf, m.Head)
	buf = appendUint64(buf, m.Tail)
	buf = appendUint64(buf, m.Max)
	return buf, nil
}

// DecodeMeta decodes bytes produced by Meta.Encode.
func DecodeMeta(b []byte) (Meta, error) {
	if len(b) != 24 {
		return Meta{}, jstzerrors.New(jstzerrors.CodeOutboxSerialization, "malformed outbox meta")
	}
	return Meta{
		Head: binary.BigEndian.Uint64(b[0:8]),
		Tail: binary.BigEndian.Uint64(b[8:16]),
		Max:  binary.BigEndian.Uint64(b[16:24]),
	}, nil
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// PersistentQueue is a lazily initialized, durable FIFO of outbox
// messages that survive reboots. Only one instance may exist in durable
// storage for the lifetime of the kernel; Len/Max/QueueMessage/Flush all
// initialize it on first use if it is not already present.
type PersistentQueue struct {
	root *storage.Storage
	meta *Meta
}

// New wraps root as a persistent outbox queue. The underlying meta record
// is loaded (or created, with DefaultMax) lazily on first use.
func New(root *storage.Storage) *PersistentQueue {
	return &PersistentQueue{root: root}
}

func (p *PersistentQueue) initInner() error {
	if p.meta != nil {
		return nil
	}
	m, found, err := storage.Get(p.root, storage.OutboxMetaPath(), DecodeMeta)
	if err != nil {
		return err
	}
	if found {
		p.meta = &m
		return nil
	}
	fresh := Meta{Head: 0, Tail: 0, Max: DefaultMax}
	if err := storage.Insert(p.root, storage.OutboxMetaPath(), fresh); err != nil {
		return err
	}
	p.meta = &fresh
	return nil
}

func (p *PersistentQueue) save() error {
	return storage.Insert(p.root, storage.OutboxMetaPath(), *p.meta)
}

// Len reports the number of messages currently queued.
func (p *PersistentQueue) Len() (uint64, error) {
	if err := p.initInner(); err != nil {
		return 0, err
	}
	return p.meta.Tail - p.meta.Head, nil
}

// Max reports the queue's configured capacity.
func (p *PersistentQueue) Max() (uint64, error) {
	if err := p.initInner(); err != nil {
		return 0, err
	}
	return p.meta.Max, nil
}

// SetMax overrides the queue's capacity if its meta record has not yet
// been created; a no-op once a prior run has already seeded one, so a
// changed config value never silently shrinks below messages already
// queued.
func (p *PersistentQueue) SetMax(max uint64) error {
	_, found, err := storage.Get(p.root, storage.OutboxMetaPath(), DecodeMeta)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	if err := p.initInner(); err != nil {
		return err
	}
	p.meta.Max = max
	return p.save()
}

// QueueMessage appends one message to the tail of the persistent queue.
func (p *PersistentQueue) QueueMessage(message Message) error {
	if err := p.initInner(); err != nil {
		return err
	}
	raw, err := message.Encode()
	if err != nil {
		return err
	}
	if err := p.root.InsertRaw(storage.OutboxPersistentEntry(p.meta.Tail), raw); err != nil {
		return err
	}
	p.meta.Tail++
	return p.save()
}

// BatchQueueMessage appends every message in messages to the tail of the
// persistent queue, saving the metadata once at the end.
func (p *PersistentQueue) BatchQueueMessage(messages []Message) error {
	if err := p.initInner(); err != nil {
		return err
	}
	for _, message := range messages {
		raw, err := message.Encode()
		if err != nil {
			return err
		}
		if err := p.root.InsertRaw(storage.OutboxPersistentEntry(p.meta.Tail), raw); err != nil {
			return err
		}
		p.meta.Tail++
	}
	return p.save()
}

// Flush writes queued persistent messages to h's outbox tape in FIFO
// order until either the queue is empty or the tape reports full,
// returning the number of messages actually flushed.
func (p *PersistentQueue) Flush(h host.Host) (uint32, error) {
	if err := p.initInner(); err != nil {
		return 0, err
	}
	var flushed uint32
	for p.meta.Head < p.meta.Tail {
		path := storage.OutboxPersistentEntry(p.meta.Head)
		raw, ok, err := p.root.GetRaw(path)
		if err != nil {
			return flushed, err
		}
		if !ok {
			break
		}
		if err := h.WriteOutput(raw); err != nil {
			if !jstzerrors.Is(err, jstzerrors.CodeOutboxFull) {
				h.WriteDebug("outbox: persistent flush write failed: " + err.Error())
			}
			break
		}
		if err := p.root.Remove(path); err != nil {
			return flushed, err
		}
		p.meta.Head++
		flushed++
	}
	if err := p.save(); err != nil {
		return flushed, err
	}
	return flushed, nil
}

// Flush drains the outbox in rollup-queue-then-snapshot order: the
// persistent tier first, then as many snapshot messages as fit in the
// remainder of the level's outbox tape. Once a write reports the tape is
// full (or fails for any other reason), that message and everything
// after it in the snapshot is appended to the persistent queue for the
// next level's flush.
func Flush(h host.Host, persistent *PersistentQueue, snapshot *SnapshotQueue) (uint32, error) {
	flushed, err := persistent.Flush(h)
	if err != nil {
		return flushed, err
	}

	messages := snapshot.Messages()
	i := 0
	for ; i < len(messages); i++ {
		raw, err := messages[i].Encode()
		if err != nil {
			return flushed, err
		}
		if err := h.WriteOutput(raw); err != nil {
			if !jstzerrors.Is(err, jstzerrors.CodeOutboxFull) {
				h.WriteDebug("outbox: snapshot flush write failed: " + err.Error())
			}
			break
		}
		flushed++
	}

	if i < len(messages) {
		if err := persistent.BatchQueueMessage(messages[i:]); err != nil {
			return flushed, err
		}
	}

	return flushed, nil
}
