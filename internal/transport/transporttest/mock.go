// Package transporttest provides an in-memory transport.Transport used by
// dialect and session tests to script a device's responses without real
// hardware.
package transporttest

import (
	"bytes"
	"time"

	"stcisp/internal/transport"
)

// Mock is a transport.Transport backed by two in-memory queues: WriteLog
// records everything written, and RxQueue is drained by ReadExactly.
type Mock struct {
	WriteLog  [][]byte
	RxQueue   []byte
	Baud      uint32
	Parity    transport.Parity
	Resets    []time.Duration
	Drains    int
	Closed    bool
	FailAfter int // if > 0, ReadExactly fails once WriteLog reaches this length
}

// New builds a Mock that will hand back rx on successive ReadExactly calls.
func New(rx []byte) *Mock {
	return &Mock{RxQueue: append([]byte(nil), rx...)}
}

// Feed appends more bytes to the receive queue, for scripting a multi-step
// exchange as the test observes what the caller wrote.
func (m *Mock) Feed(b []byte) { m.RxQueue = append(m.RxQueue, b...) }

func (m *Mock) Write(data []byte) error {
	m.WriteLog = append(m.WriteLog, append([]byte(nil), data...))
	return nil
}

func (m *Mock) ReadExactly(n int, deadline time.Time) ([]byte, error) {
	if m.FailAfter > 0 && len(m.WriteLog) >= m.FailAfter {
		return nil, transport.ErrTimeout
	}
	if len(m.RxQueue) < n {
		return nil, transport.ErrTimeout
	}
	out := m.RxQueue[:n]
	m.RxQueue = m.RxQueue[n:]
	return out, nil
}

func (m *Mock) SetBaud(baud uint32) error {
	m.Baud = baud
	return nil
}

func (m *Mock) SetParity(p transport.Parity) error {
	m.Parity = p
	return nil
}

func (m *Mock) AssertReset(d time.Duration) error {
	m.Resets = append(m.Resets, d)
	return nil
}

func (m *Mock) Drain() error {
	m.Drains++
	m.RxQueue = nil
	return nil
}

func (m *Mock) Close() error {
	m.Closed = true
	return nil
}

// AllWritten concatenates every Write call in order, for asserting against
// an expected byte sequence.
func (m *Mock) AllWritten() []byte {
	var buf bytes.Buffer
	for _, w := range m.WriteLog {
		buf.Write(w)
	}
	return buf.Bytes()
}

var _ transport.Transport = (*Mock)(nil)
