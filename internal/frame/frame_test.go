package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUARTRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		sender  Sender
		command byte
		payload []byte
	}{
		{"host empty", Host, 0x00, nil},
		{"host short", Host, 0x01, []byte{0xAA, 0xBB, 0xCC}},
		{"device short", Device, 0x80, []byte{0x01, 0x02}},
		{"device long", Device, 0x81, make([]byte, 256)},
	}

	var codec UARTCodec
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wire, err := codec.Encode(Frame{Sender: tc.sender, Command: tc.command, Payload: tc.payload})
			require.NoError(t, err)

			got, err := codec.Decode(wire)
			require.NoError(t, err)
			assert.Equal(t, tc.sender, got.Sender)
			assert.Equal(t, tc.command, got.Command)
			assert.Equal(t, tc.payload, got.Payload)
		})
	}
}

func TestUARTRoundTripRandomLengths(t *testing.T) {
	var codec UARTCodec
	seed := uint32(12345)
	next := func() uint32 {
		seed = seed*1664525 + 1013904223
		return seed
	}
	for i := 0; i < 200; i++ {
		n := int(next() % 1024)
		payload := make([]byte, n)
		for j := range payload {
			payload[j] = byte(next())
		}
		sender := Host
		if next()%2 == 0 {
			sender = Device
		}
		f := Frame{Sender: sender, Command: byte(next()), Payload: payload}
		wire, err := codec.Encode(f)
		require.NoError(t, err)
		got, err := codec.Decode(wire)
		require.NoError(t, err)
		assert.Equal(t, f.Sender, got.Sender)
		assert.Equal(t, f.Command, got.Command)
		assert.Equal(t, f.Payload, got.Payload)
	}
}

func TestUARTDecodeErrors(t *testing.T) {
	var codec UARTCodec

	t.Run("preamble mismatch", func(t *testing.T) {
		_, err := codec.Decode([]byte{0x00, 0x00, 0x00, 0x00, 0x00})
		assert.ErrorIs(t, err, ErrPreambleMismatch)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := codec.Decode([]byte{0x7E, 0x6F, 0x00})
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("checksum mismatch", func(t *testing.T) {
		wire, err := codec.Encode(Frame{Sender: Host, Command: 0x01, Payload: []byte{1, 2, 3}})
		require.NoError(t, err)
		wire[len(wire)-3] ^= 0xFF // corrupt low checksum byte
		_, err = codec.Decode(wire)
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("terminator missing", func(t *testing.T) {
		wire, err := codec.Encode(Frame{Sender: Device, Command: 0x01, Payload: []byte{1, 2, 3}})
		require.NoError(t, err)
		wire[len(wire)-1] = 0x00
		_, err = codec.Decode(wire)
		assert.ErrorIs(t, err, ErrTerminatorMissing)
	})
}

// fakeReader feeds a UARTReader from a fixed byte slice, one ReadExactly
// call at a time.
type fakeReader struct {
	buf []byte
}

func (f *fakeReader) ReadExactly(n int, _ time.Time) ([]byte, error) {
	if len(f.buf) < n {
		return nil, ErrTruncated
	}
	out := f.buf[:n]
	f.buf = f.buf[n:]
	return out, nil
}

func TestUARTReaderMatchesCodec(t *testing.T) {
	var codec UARTCodec
	f := Frame{Sender: Device, Command: 0x42, Payload: []byte("hello, stc")}
	wire, err := codec.Encode(f)
	require.NoError(t, err)

	reader := NewUARTReader(&fakeReader{buf: wire})
	got, err := reader.ReadFrame(time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestUSBRoundTrip(t *testing.T) {
	var codec USBCodec
	f := Frame{Command: 0x10, Payload: []byte{1, 2, 3, 4, 5}}
	wire, err := codec.Encode(f, 7)
	require.NoError(t, err)
	require.Len(t, wire, USBHeaderSize+len(f.Payload)+2)

	got, err := codec.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, f.Command, got.Command)
	assert.Equal(t, f.Payload, got.Payload)
}

func TestUSBDecodeChecksumMismatch(t *testing.T) {
	var codec USBCodec
	wire, err := codec.Encode(Frame{Command: 0x10, Payload: []byte{1, 2, 3}}, 0)
	require.NoError(t, err)
	wire[len(wire)-1] ^= 0xFF
	_, err = codec.Decode(wire)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}
