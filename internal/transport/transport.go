// Package transport defines the duplex byte-stream contract both link
// backends (serial and USB) implement, per the transport design: the same
// seven operations regardless of which physical link a dialect engine runs
// over.
package transport

import (
	"errors"
	"time"
)

// Parity selects the serial line's parity mode during a given protocol
// phase. USB backends treat SetParity as a no-op.
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
)

// ErrTimeout is returned by ReadExactly when the deadline passes before n
// bytes have arrived.
var ErrTimeout = errors.New("transport: read timeout")

// Transport is the byte-oriented duplex channel a dialect engine drives.
// Both backends guarantee read_exactly never returns a short read: it
// either delivers exactly n bytes or an error, and any bytes read past a
// failed exchange are discarded rather than buffered across frame
// boundaries.
type Transport interface {
	Write(data []byte) error

	// ReadExactly blocks until n bytes have been read or deadline passes,
	// returning ErrTimeout in the latter case. Implements
	// frame.DeadlineReader.
	ReadExactly(n int, deadline time.Time) ([]byte, error)

	// SetBaud reconfigures the link's baud rate. No-op on USB.
	SetBaud(baud uint32) error

	// SetParity reconfigures the link's parity. No-op on USB.
	SetParity(p Parity) error

	// AssertReset asserts a reset condition (DTR toggle, or an external
	// command string the transport treats as opaque) for duration.
	AssertReset(duration time.Duration) error

	// Drain discards any bytes currently buffered for read, so a stale
	// announcement from a previous power cycle can't be mistaken for the
	// next one.
	Drain() error

	// Close releases the underlying device node.
	Close() error
}
