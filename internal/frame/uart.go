package frame

import (
	"fmt"
	"time"
)

// UART preamble, pad and terminator bytes (spec §4.1).
const (
	hostPreambleByte1   = 0x7E
	hostPreambleByte2   = 0x6F
	devicePreambleByte1 = 0x46
	devicePreambleByte2 = 0xB9
	devicePreambleByte3 = 0x68
	uartPad             = 0x6A
	uartTerminator      = 0x16
)

// UARTCodec implements the framing used by every serial dialect: a
// sender-specific preamble, a big-endian length covering the length field
// through the checksum inclusive, one command byte, the payload, a
// big-endian checksum and a terminator (host frames additionally carry a
// pad byte before the terminator).
type UARTCodec struct{}

func (UARTCodec) Encode(f Frame) ([]byte, error) {
	var preamble []byte
	switch f.Sender {
	case Host:
		preamble = []byte{hostPreambleByte1, hostPreambleByte2}
	case Device:
		preamble = []byte{devicePreambleByte1, devicePreambleByte2, devicePreambleByte3}
	default:
		return nil, fmt.Errorf("frame: unknown sender %d", f.Sender)
	}

	// Length field covers itself (2 bytes), the command byte, the payload
	// and the trailing checksum (2 bytes).
	length := 2 + 1 + len(f.Payload) + 2
	if err := checkLength(length); err != nil {
		return nil, err
	}

	body := make([]byte, 0, length)
	body = append(body, byte(length>>8), byte(length))
	body = append(body, f.Command)
	body = append(body, f.Payload...)
	sum := sumBytes(body)
	body = append(body, byte(sum>>8), byte(sum))

	out := make([]byte, 0, len(preamble)+len(body)+2)
	out = append(out, preamble...)
	out = append(out, body...)
	if f.Sender == Host {
		out = append(out, uartPad)
	}
	out = append(out, uartTerminator)
	return out, nil
}

// Decode parses a complete UART frame, preamble through terminator, already
// held in memory. Streaming reads off a live transport go through
// UARTReader instead, since the payload length isn't known up front.
func (UARTCodec) Decode(data []byte) (Frame, error) {
	sender, preambleLen, err := sniffPreamble(data)
	if err != nil {
		return Frame{}, err
	}
	data = data[preambleLen:]

	if len(data) < 2 {
		return Frame{}, ErrTruncated
	}
	length := int(data[0])<<8 | int(data[1])
	if err := checkLength(length); err != nil {
		return Frame{}, err
	}
	if length < 5 {
		return Frame{}, fmt.Errorf("%w: %d", ErrLengthOutOfRange, length)
	}

	trailerLen := 1
	if sender == Host {
		trailerLen = 2
	}
	if len(data) < length+trailerLen {
		return Frame{}, ErrTruncated
	}

	body := data[:length]
	command := body[2]
	payload := body[3 : length-2]
	wantSum := uint16(body[length-2])<<8 | uint16(body[length-1])
	gotSum := sumBytes(body[:length-2])
	if wantSum != gotSum {
		return Frame{}, ErrChecksumMismatch
	}

	trailer := data[length : length+trailerLen]
	if sender == Host {
		if trailer[0] != uartPad || trailer[1] != uartTerminator {
			return Frame{}, ErrTerminatorMissing
		}
	} else if trailer[0] != uartTerminator {
		return Frame{}, ErrTerminatorMissing
	}

	return Frame{Sender: sender, Command: command, Payload: append([]byte(nil), payload...)}, nil
}

func sniffPreamble(data []byte) (Sender, int, error) {
	switch {
	case len(data) >= 2 && data[0] == hostPreambleByte1 && data[1] == hostPreambleByte2:
		return Host, 2, nil
	case len(data) >= 3 && data[0] == devicePreambleByte1 && data[1] == devicePreambleByte2 && data[2] == devicePreambleByte3:
		return Device, 3, nil
	case len(data) < 3:
		return 0, 0, ErrTruncated
	default:
		return 0, 0, ErrPreambleMismatch
	}
}

// DeadlineReader is the subset of the transport contract (§4.2) the frame
// reader needs: a blocking read of exactly n bytes with a deadline. Kept
// local so this package doesn't import internal/transport.
type DeadlineReader interface {
	ReadExactly(n int, deadline time.Time) ([]byte, error)
}

// UARTReader decodes frames incrementally off a live transport, since the
// payload length is only known after the length field has been read.
type UARTReader struct {
	r DeadlineReader
}

func NewUARTReader(r DeadlineReader) *UARTReader {
	return &UARTReader{r: r}
}

// ReadFrame blocks until one complete frame has been read or the deadline
// passes. The first byte determines which sender's preamble to expect.
func (ur *UARTReader) ReadFrame(deadline time.Time) (Frame, error) {
	first, err := ur.r.ReadExactly(1, deadline)
	if err != nil {
		return Frame{}, err
	}

	var sender Sender
	var rest []byte
	switch first[0] {
	case hostPreambleByte1:
		second, err := ur.r.ReadExactly(1, deadline)
		if err != nil {
			return Frame{}, err
		}
		if second[0] != hostPreambleByte2 {
			return Frame{}, ErrPreambleMismatch
		}
		sender = Host
	case devicePreambleByte1:
		rest, err = ur.r.ReadExactly(2, deadline)
		if err != nil {
			return Frame{}, err
		}
		if rest[0] != devicePreambleByte2 || rest[1] != devicePreambleByte3 {
			return Frame{}, ErrPreambleMismatch
		}
		sender = Device
	default:
		return Frame{}, ErrPreambleMismatch
	}

	lengthBytes, err := ur.r.ReadExactly(2, deadline)
	if err != nil {
		return Frame{}, err
	}
	length := int(lengthBytes[0])<<8 | int(lengthBytes[1])
	if err := checkLength(length); err != nil {
		return Frame{}, err
	}
	if length < 5 {
		return Frame{}, fmt.Errorf("%w: %d", ErrLengthOutOfRange, length)
	}

	rest, err = ur.r.ReadExactly(length-2, deadline)
	if err != nil {
		return Frame{}, err
	}
	body := append(append([]byte(nil), lengthBytes...), rest...)

	command := body[2]
	payload := body[3 : length-2]
	wantSum := uint16(body[length-2])<<8 | uint16(body[length-1])
	gotSum := sumBytes(body[:length-2])
	if wantSum != gotSum {
		return Frame{}, ErrChecksumMismatch
	}

	if sender == Host {
		trailer, err := ur.r.ReadExactly(2, deadline)
		if err != nil {
			return Frame{}, err
		}
		if trailer[0] != uartPad || trailer[1] != uartTerminator {
			return Frame{}, ErrTerminatorMissing
		}
	} else {
		trailer, err := ur.r.ReadExactly(1, deadline)
		if err != nil {
			return Frame{}, err
		}
		if trailer[0] != uartTerminator {
			return Frame{}, ErrTerminatorMissing
		}
	}

	return Frame{Sender: sender, Command: command, Payload: append([]byte(nil), payload...)}, nil
}
