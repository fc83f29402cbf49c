package frame

import "fmt"

// USBHeaderSize is the fixed 8-byte header preceding every USB-framed
// payload: a 16-bit packet counter, one command byte, a 16-bit payload
// length and 3 reserved bytes.
const USBHeaderSize = 8

// USBCodec implements the bulk-transfer framing used by the U15 dialect.
// Whole frames are delivered per bulk transfer, so unlike UART framing
// there is no incremental reader: Decode is handed one complete buffer as
// returned by a single endpoint read.
type USBCodec struct{}

// Encode builds a USB frame. counter is the packet sequence number the
// caller is tracking; the codec itself is stateless.
func (USBCodec) Encode(f Frame, counter uint16) ([]byte, error) {
	if err := checkLength(len(f.Payload)); err != nil {
		return nil, err
	}
	out := make([]byte, USBHeaderSize+len(f.Payload)+2)
	out[0] = byte(counter >> 8)
	out[1] = byte(counter)
	out[2] = f.Command
	out[3] = byte(len(f.Payload) >> 8)
	out[4] = byte(len(f.Payload))
	// out[5:8] reserved, left zero.
	copy(out[USBHeaderSize:], f.Payload)

	sum := sumBytes(f.Payload)
	tail := USBHeaderSize + len(f.Payload)
	out[tail] = byte(sum >> 8)
	out[tail+1] = byte(sum)
	return out, nil
}

func (USBCodec) Decode(data []byte) (Frame, error) {
	if len(data) < USBHeaderSize+2 {
		return Frame{}, ErrTruncated
	}
	length := int(data[3])<<8 | int(data[4])
	if err := checkLength(length); err != nil {
		return Frame{}, err
	}
	if len(data) != USBHeaderSize+length+2 {
		return Frame{}, fmt.Errorf("%w: header declares %d, buffer holds %d", ErrLengthOutOfRange, length, len(data)-USBHeaderSize-2)
	}

	command := data[2]
	payload := data[USBHeaderSize : USBHeaderSize+length]
	wantSum := uint16(data[USBHeaderSize+length])<<8 | uint16(data[USBHeaderSize+length+1])
	gotSum := sumBytes(payload)
	if wantSum != gotSum {
		return Frame{}, ErrChecksumMismatch
	}

	return Frame{Command: command, Payload: append([]byte(nil), payload...)}, nil
}
