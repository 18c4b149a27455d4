package host

import (
	"strings"
	"sync"

	"github.com/jstz-dev/jstz/internal/jstzerrors"
)

// Memory is an in-memory Host used for local development, sequencer
// preview, and tests. It is grounded on the same pattern the teacher uses
// for its in-memory persistence backend (an RWMutex-guarded map with
// prefix listing), generalized here to the full Host surface: a value
// store, an input tape, an output tape, and a reveal-preimage table.
type Memory struct {
	mu sync.RWMutex

	values map[string][]byte // leaf values, keyed by exact path
	kids   map[string]int    // path -> number of direct+indirect descendants with values

	inputs     []Input
	inputIndex int

	outputs    [][]byte
	outputCap  int // 0 means unlimited
	reveals    map[string][]byte
	rebootLeft uint32
	metadata   Metadata

	debugLog []string
}

// NewMemory constructs an empty in-memory host. outputCap bounds the
// number of WriteOutput calls per "level" (reset via ResetLevel); 0 means
// unlimited, matching a host used outside the rollup's 100-per-level cap.
// WriteOutput reports CodeOutboxFull once the cap is reached; internal/outbox
// reacts to that error rather than counting writes itself.
func NewMemory(rollupAddress string, outputCap int) *Memory {
	return &Memory{
		values:     make(map[string][]byte),
		kids:       make(map[string]int),
		outputCap:  outputCap,
		reveals:    make(map[string][]byte),
		rebootLeft: 1000,
		metadata:   Metadata{Address: rollupAddress},
	}
}

// QueueInput appends a raw inbox message to be returned by ReadInput.
func (m *Memory) QueueInput(level, id uint32, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, Input{Level: level, ID: id, Payload: payload})
}

// ResetLevel clears the output tape and rewinds reboot accounting for a new
// level, without touching durable storage.
func (m *Memory) ResetLevel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs = nil
	m.rebootLeft = 1000
}

// Outputs returns the messages written via WriteOutput since the last
// ResetLevel, in emission order.
func (m *Memory) Outputs() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.outputs))
	copy(out, m.outputs)
	return out
}

// PutReveal registers preimage bytes retrievable via RevealPreimage.
func (m *Memory) PutReveal(hash []byte, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reveals[string(hash)] = data
}

func (m *Memory) ReadInput() (*Input, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inputIndex >= len(m.inputs) {
		return nil, false, nil
	}
	in := m.inputs[m.inputIndex]
	m.inputIndex++
	return &in, true, nil
}

func (m *Memory) WriteOutput(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outputCap > 0 && len(m.outputs) >= m.outputCap {
		return jstzerrors.New(jstzerrors.CodeOutboxFull, "full outbox")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.outputs = append(m.outputs, buf)
	return nil
}

func (m *Memory) StoreHas(path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.values[path]; ok {
		return true, nil
	}
	_, ok := m.kids[path]
	return ok, nil
}

func (m *Memory) StoreRead(path string, offset, maxBytes int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.values[path]
	if !ok {
		return nil, jstzerrors.ErrNotFound
	}
	if offset > len(val) {
		return nil, jstzerrors.ErrOutOfBounds
	}
	end := offset + maxBytes
	if end > len(val) || maxBytes < 0 {
		end = len(val)
	}
	out := make([]byte, end-offset)
	copy(out, val[offset:end])
	return out, nil
}

func (m *Memory) StoreWrite(path string, offset int, src []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, existed := m.values[path]
	need := offset + len(src)
	if need > len(val) {
		grown := make([]byte, need)
		copy(grown, val)
		val = grown
	}
	copy(val[offset:], src)
	m.values[path] = val
	if !existed {
		m.touchAncestors(path, 1)
	}
	return nil
}

func (m *Memory) StoreWriteAll(path string, src []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.values[path]
	buf := make([]byte, len(src))
	copy(buf, src)
	m.values[path] = buf
	if !existed {
		m.touchAncestors(path, 1)
	}
	return nil
}

func (m *Memory) StoreDelete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := path + "/"
	for k := range m.values {
		if k == path || strings.HasPrefix(k, prefix) {
			delete(m.values, k)
			m.touchAncestors(k, -1)
		}
	}
	delete(m.kids, path)
	return nil
}

func (m *Memory) StoreDeleteValue(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[path]; ok {
		delete(m.values, path)
		m.touchAncestors(path, -1)
	}
	return nil
}

func (m *Memory) StoreCountSubkeys(prefix string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]struct{}{}
	depth := strings.Count(prefix, "/") + 1
	search := prefix + "/"
	for k := range m.values {
		if !strings.HasPrefix(k, search) {
			continue
		}
		segs := strings.Split(k, "/")
		if len(segs) > depth {
			seen[segs[depth]] = struct{}{}
		}
	}
	return uint64(len(seen)), nil
}

func (m *Memory) StoreMove(from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	moved := make(map[string][]byte)
	prefix := from + "/"
	for k, v := range m.values {
		if k == from {
			moved[to] = v
		} else if strings.HasPrefix(k, prefix) {
			moved[to+strings.TrimPrefix(k, from)] = v
		} else {
			continue
		}
		delete(m.values, k)
		m.touchAncestors(k, -1)
	}
	for k, v := range moved {
		m.values[k] = v
		m.touchAncestors(k, 1)
	}
	return nil
}

func (m *Memory) StoreCopy(from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := from + "/"
	copies := make(map[string][]byte)
	for k, v := range m.values {
		if k == from {
			copies[to] = append([]byte(nil), v...)
		} else if strings.HasPrefix(k, prefix) {
			copies[to+strings.TrimPrefix(k, from)] = append([]byte(nil), v...)
		}
	}
	for k, v := range copies {
		m.values[k] = v
		m.touchAncestors(k, 1)
	}
	return nil
}

func (m *Memory) RevealPreimage(hash []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.reveals[string(hash)]
	if !ok {
		return nil, jstzerrors.New(jstzerrors.CodeHost, "unknown preimage hash")
	}
	const chunk = 4096
	if len(data) > chunk {
		data = data[:chunk]
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) RevealMetadata() Metadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata
}

func (m *Memory) MarkForReboot() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rebootLeft == 0 {
		return jstzerrors.New(jstzerrors.CodeHost, "no reboots left")
	}
	m.rebootLeft--
	return nil
}

func (m *Memory) RebootLeft() (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rebootLeft, nil
}

func (m *Memory) WriteDebug(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugLog = append(m.debugLog, msg)
}

// DebugLog returns every message passed to WriteDebug, in order.
func (m *Memory) DebugLog() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.debugLog))
	copy(out, m.debugLog)
	return out
}

// touchAncestors keeps m.kids (an existence index for StoreHas on
// subtrees) in sync as leaf values are written or removed under path.
func (m *Memory) touchAncestors(path string, delta int) {
	segs := strings.Split(path, "/")
	for i := len(segs) - 1; i > 0; i-- {
		ancestor := strings.Join(segs[:i], "/")
		if ancestor == "" {
			continue
		}
		m.kids[ancestor] += delta
		if m.kids[ancestor] <= 0 {
			delete(m.kids, ancestor)
		}
	}
}

var _ Host = (*Memory)(nil)
