package autodetect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stcisp/internal/frame"
	"stcisp/internal/stcerr"
	"stcisp/internal/transport/transporttest"
)

func announcementBytes(t *testing.T, magic uint16, major, minor byte, suffix byte, counter uint16) []byte {
	t.Helper()
	payload := []byte{
		byte(magic >> 8), byte(magic),
		major, minor, suffix,
		byte(counter >> 8), byte(counter),
	}
	encoded, err := frame.UARTCodec{}.Encode(frame.Frame{Sender: frame.Device, Command: 0x00, Payload: payload})
	require.NoError(t, err)
	return encoded
}

func TestDetectUnambiguous(t *testing.T) {
	raw := announcementBytes(t, 0xF449, 7, 1, 'S', 0x2B51)
	m := transporttest.New(raw)

	result, err := Detect(m, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, "stc15a", result.Dialect)
	require.Equal(t, uint16(0xF449), result.Magic)
	require.Equal(t, "7.1S", result.BSLVersion)
}

func TestDetectUnknownMagic(t *testing.T) {
	raw := announcementBytes(t, 0xABCD, 1, 0, 'A', 0)
	m := transporttest.New(raw)

	_, err := Detect(m, time.Now().Add(time.Second))
	require.Error(t, err)
	var se *stcerr.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, stcerr.UnknownModel, se.Kind)
}

func TestDetectAmbiguous(t *testing.T) {
	raw := announcementBytes(t, 0xD202, 7, 0, 'A', 0)
	m := transporttest.New(raw)

	_, err := Detect(m, time.Now().Add(time.Second))
	require.Error(t, err)
	var se *stcerr.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, stcerr.AutodetectAmbiguous, se.Kind)
	require.Contains(t, se.Msg, "stc12")
	require.Contains(t, se.Msg, "stc12b")
}

func TestDetectLinkLostOnTimeout(t *testing.T) {
	m := transporttest.New(nil)

	_, err := Detect(m, time.Now().Add(time.Millisecond))
	require.Error(t, err)
	var se *stcerr.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, stcerr.LinkLost, se.Kind)
}

func TestDetectPrefersNewestOnVersionDisambiguatedMatch(t *testing.T) {
	raw := announcementBytes(t, 0xD202, 6, 0, 'A', 0)
	m := transporttest.New(raw)

	result, err := Detect(m, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, "stc12b", result.Dialect)
}
