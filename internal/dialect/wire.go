package dialect

import (
	"fmt"
	"time"

	"stcisp/internal/frame"
	"stcisp/internal/transport"
)

// wireCodec hides whether a dialect rides UART or USB framing behind one
// send/receive shape, so Engine's choreography (§4.6 common choreography)
// doesn't need to know which.
type wireCodec interface {
	SendFrame(t transport.Transport, command byte, payload []byte) error
	RecvFrame(t transport.Transport, deadline time.Time) (frame.Frame, error)
}

// uartWire drives frame.UARTCodec: the host always sends Host-framed
// frames and expects Device-framed frames back.
type uartWire struct {
	codec frame.UARTCodec
}

func (w *uartWire) SendFrame(t transport.Transport, command byte, payload []byte) error {
	wire, err := w.codec.Encode(frame.Frame{Sender: frame.Host, Command: command, Payload: payload})
	if err != nil {
		return err
	}
	return t.Write(wire)
}

func (w *uartWire) RecvFrame(t transport.Transport, deadline time.Time) (frame.Frame, error) {
	return frame.NewUARTReader(t).ReadFrame(deadline)
}

// usbWire drives frame.USBCodec over bulk transfers, tracking the packet
// counter the header carries since the codec itself is stateless.
type usbWire struct {
	codec   frame.USBCodec
	counter uint16
}

func (w *usbWire) SendFrame(t transport.Transport, command byte, payload []byte) error {
	wire, err := w.codec.Encode(frame.Frame{Command: command, Payload: payload}, w.counter)
	if err != nil {
		return err
	}
	w.counter++
	return t.Write(wire)
}

func (w *usbWire) RecvFrame(t transport.Transport, deadline time.Time) (frame.Frame, error) {
	header, err := t.ReadExactly(frame.USBHeaderSize, deadline)
	if err != nil {
		return frame.Frame{}, err
	}
	length := int(header[3])<<8 | int(header[4])
	if length < 0 || length > frame.MaxPayload {
		return frame.Frame{}, fmt.Errorf("%w: %d", frame.ErrLengthOutOfRange, length)
	}
	rest, err := t.ReadExactly(length+2, deadline)
	if err != nil {
		return frame.Frame{}, err
	}
	buf := make([]byte, 0, len(header)+len(rest))
	buf = append(buf, header...)
	buf = append(buf, rest...)
	return w.codec.Decode(buf)
}
