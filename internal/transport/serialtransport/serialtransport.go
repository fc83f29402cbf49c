// Package serialtransport implements the transport.Transport contract over
// a host serial port via go.bug.st/serial, the higher-level serial library
// the rest of the retrieved pack (sergev-fdx, librescoot-bluetooth-service)
// reaches for instead of a bare termios wrapper, since it exposes SetDTR
// and SetRTS directly.
package serialtransport

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"stcisp/internal/transport"
)

// ResetLine selects which modem control line AssertReset toggles.
type ResetLine int

const (
	ResetDTR ResetLine = iota
	ResetRTS
)

// Transport is a serial-backed transport.Transport.
type Transport struct {
	port      serial.Port
	mode      serial.Mode
	resetLine ResetLine
}

// Open opens portName at the given baud with 8 data bits, no parity and one
// stop bit; SetParity changes the parity afterwards.
func Open(portName string, baud int, resetLine ResetLine) (*Transport, error) {
	mode := serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, &mode)
	if err != nil {
		return nil, fmt.Errorf("serialtransport: open %s: %w", portName, err)
	}
	return &Transport{port: port, mode: mode, resetLine: resetLine}, nil
}

// ListPorts enumerates serial device paths the host currently exposes.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialtransport: list ports: %w", err)
	}
	return ports, nil
}

func (t *Transport) Write(data []byte) error {
	if _, err := t.port.Write(data); err != nil {
		return fmt.Errorf("serialtransport: write: %w", err)
	}
	return nil
}

// ReadExactly polls the port with a shrinking read timeout until n bytes
// have accumulated or deadline passes. go.bug.st/serial has no absolute
// read deadline, only a per-call timeout, so each iteration recomputes the
// remaining time.
func (t *Transport) ReadExactly(n int, deadline time.Time) ([]byte, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, transport.ErrTimeout
		}
		if err := t.port.SetReadTimeout(remaining); err != nil {
			return nil, fmt.Errorf("serialtransport: set read timeout: %w", err)
		}
		k, err := t.port.Read(buf[:n-len(out)])
		if err != nil {
			return nil, fmt.Errorf("serialtransport: read: %w", err)
		}
		if k == 0 {
			return nil, transport.ErrTimeout
		}
		out = append(out, buf[:k]...)
	}
	return out, nil
}

func (t *Transport) SetBaud(baud uint32) error {
	t.mode.BaudRate = int(baud)
	if err := t.port.SetMode(&t.mode); err != nil {
		return fmt.Errorf("serialtransport: set baud %d: %w", baud, err)
	}
	return nil
}

func (t *Transport) SetParity(p transport.Parity) error {
	if p == transport.ParityEven {
		t.mode.Parity = serial.EvenParity
	} else {
		t.mode.Parity = serial.NoParity
	}
	if err := t.port.SetMode(&t.mode); err != nil {
		return fmt.Errorf("serialtransport: set parity: %w", err)
	}
	return nil
}

// AssertReset pulses the configured modem control line low-active for
// duration, the DTR/RTS power-cycle trick that pulls the MCU's reset pin.
func (t *Transport) AssertReset(duration time.Duration) error {
	set := t.port.SetDTR
	if t.resetLine == ResetRTS {
		set = t.port.SetRTS
	}
	if err := set(true); err != nil {
		return fmt.Errorf("serialtransport: assert reset: %w", err)
	}
	time.Sleep(duration)
	if err := set(false); err != nil {
		return fmt.Errorf("serialtransport: release reset: %w", err)
	}
	return nil
}

func (t *Transport) Drain() error {
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("serialtransport: drain: %w", err)
	}
	return nil
}

func (t *Transport) Close() error {
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("serialtransport: close: %w", err)
	}
	return nil
}

var _ transport.Transport = (*Transport)(nil)
