// Package usbtransport implements transport.Transport over a USB bulk
// endpoint pair via google/gousb, grounded on the teacher's
// internal/driver/device/usb_device.go: open by VID/PID, claim
// configuration 1 / interface 0, alt-setting 0, and drive the bulk
// endpoints with context-scoped reads.
package usbtransport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"

	"stcisp/internal/transport"
)

// MaxBulkPacket bounds a single bulk transfer; U15 frames never exceed a
// write block plus header, so this is generous headroom rather than a
// tuned value.
const MaxBulkPacket = 4096

// Transport is a USB-backed transport.Transport. SetBaud and SetParity are
// no-ops: the bulk channel has no UART generator to reconfigure.
type Transport struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint

	pending []byte // bytes read past what the last ReadExactly consumed
}

// Open claims the bulk interface exposed by the U15 BSL at vid:pid.
func Open(vid, pid gousb.ID, outEndpoint, inEndpoint int) (*Transport, error) {
	ctx := gousb.NewContext()

	device, err := ctx.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: open device: %w", err)
	}
	if device == nil {
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: device not found (VID:%s PID:%s)", vid, pid)
	}

	config, err := device.Config(1)
	if err != nil {
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: set config: %w", err)
	}

	intf, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: claim interface: %w", err)
	}

	epOut, err := intf.OutEndpoint(outEndpoint)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: open out endpoint: %w", err)
	}

	epIn, err := intf.InEndpoint(inEndpoint)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: open in endpoint: %w", err)
	}

	return &Transport{ctx: ctx, device: device, config: config, intf: intf, epOut: epOut, epIn: epIn}, nil
}

func (t *Transport) Write(data []byte) error {
	if _, err := t.epOut.Write(data); err != nil {
		return fmt.Errorf("usbtransport: write: %w", err)
	}
	return nil
}

// ReadExactly accumulates bulk reads, each scoped to the remaining time
// until deadline, until n bytes are available. Frames arrive whole per
// bulk transfer, so a single ReadContext call commonly satisfies the
// entire request; the loop only matters when the BSL splits a reply
// across more than one transfer.
func (t *Transport) ReadExactly(n int, deadline time.Time) ([]byte, error) {
	for len(t.pending) < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.pending = nil
			return nil, transport.ErrTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), remaining)
		buf := make([]byte, MaxBulkPacket)
		k, err := t.epIn.ReadContext(ctx, buf)
		cancel()
		if err != nil {
			t.pending = nil
			return nil, fmt.Errorf("usbtransport: read: %w", err)
		}
		if k == 0 {
			t.pending = nil
			return nil, transport.ErrTimeout
		}
		t.pending = append(t.pending, buf[:k]...)
	}
	out := t.pending[:n]
	t.pending = t.pending[n:]
	return out, nil
}

// SetBaud is a no-op: bulk transport has no UART generator to negotiate.
func (t *Transport) SetBaud(uint32) error { return nil }

// SetParity is a no-op for the same reason as SetBaud.
func (t *Transport) SetParity(transport.Parity) error { return nil }

// AssertReset is a no-op: U15 parts enumerate fresh after power-up and the
// session's power-cycle hook is the CLI's external concern, not this
// transport's.
func (t *Transport) AssertReset(time.Duration) error { return nil }

// Drain discards any bytes left over from a prior exchange, including
// anything already buffered in pending from a short earlier read.
func (t *Transport) Drain() error {
	t.pending = nil
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	buf := make([]byte, MaxBulkPacket)
	for {
		if _, err := t.epIn.ReadContext(ctx, buf); err != nil {
			return nil
		}
	}
}

func (t *Transport) Close() error {
	if t.intf != nil {
		t.intf.Close()
	}
	if t.config != nil {
		t.config.Close()
	}
	if t.device != nil {
		t.device.Close()
	}
	if t.ctx != nil {
		t.ctx.Close()
	}
	return nil
}

var _ transport.Transport = (*Transport)(nil)
