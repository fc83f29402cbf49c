package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stcisp/internal/dialect"
	"stcisp/internal/frame"
	"stcisp/internal/mcudb"
	"stcisp/internal/transport/transporttest"
)

func deviceFrame(t *testing.T, payload []byte) []byte {
	t.Helper()
	out, err := frame.UARTCodec{}.Encode(frame.Frame{Sender: frame.Device, Command: 0x00, Payload: payload})
	require.NoError(t, err)
	return out
}

func sum(b []byte) byte {
	var s byte
	for _, v := range b {
		s += v
	}
	return s
}

// scriptP12ASession builds the full device-side response sequence for one
// successful STC12A run: announcement, sync echo, baud-switch ack, baud
// ping ack, erase ack, one write-block ack, disconnect ack.
func scriptP12ASession(t *testing.T, magic uint16, codeImage []byte, chosenBaud uint32) *transporttest.Mock {
	t.Helper()
	m := transporttest.New(nil)

	announcement := []byte{byte(magic >> 8), byte(magic), 7, 1, 'S', 0x01, 0x23}
	m.Feed(deviceFrame(t, announcement))

	syncEcho := []byte{byte(magic >> 8), byte(magic)}
	m.Feed(deviceFrame(t, syncEcho))

	baudAck := []byte{byte(chosenBaud >> 24), byte(chosenBaud >> 16), byte(chosenBaud >> 8), byte(chosenBaud)}
	m.Feed(deviceFrame(t, baudAck))
	m.Feed(deviceFrame(t, nil)) // baud ping response

	m.Feed(deviceFrame(t, []byte{0x00})) // erase ack

	// WriteCode pads the image to a full 128-byte block with 0xFF before
	// computing its checksum.
	paddedBlock := make([]byte, 128)
	copy(paddedBlock, codeImage)
	for i := len(codeImage); i < len(paddedBlock); i++ {
		paddedBlock[i] = 0xFF
	}
	m.Feed(deviceFrame(t, []byte{sum(paddedBlock)})) // write-block ack

	m.Feed(deviceFrame(t, nil)) // disconnect ack

	return m
}

func TestRunP12AFusedOptionsSuccess(t *testing.T) {
	magic := mcudb.MustLookup(0xD10F).Magic
	codeImage := []byte{0x02, 0x00, 0x00, 0xAA, 0xBB, 0x22}
	m := scriptP12ASession(t, magic, codeImage, 9600)

	factory := func(name string) (dialect.Engine, error) {
		require.Equal(t, "stc12a", name)
		return dialect.NewP12A(), nil
	}

	result, err := Run(m, factory, codeImage, nil, Options{
		RequestedDialect: "stc12a",
		HandshakeBaud:    2400,
		TransferBaud:     9600,
		OptionChanges:    map[string]any{"reset_pin_enabled": true},
	})
	require.NoError(t, err)
	require.Equal(t, "stc12a", result.Dialect)
	require.Equal(t, dialect.Terminated, result.FinalState)
	require.Equal(t, uint32(9600), result.Target.CurrentBaud)
}

func TestRunAbortsOnBadOptionBeforeAnyTransportByte(t *testing.T) {
	codeImage := []byte{0xAA}
	// No bytes fed into the mock at all: a fixed -P selection resolves the
	// option registry without any device I/O, so a bad option must abort
	// before the handshake ever reads or writes a byte (spec §3, §8
	// scenario 4).
	m := transporttest.New(nil)

	factory := func(string) (dialect.Engine, error) {
		return dialect.NewP12A(), nil
	}

	_, err := Run(m, factory, codeImage, nil, Options{
		RequestedDialect: "stc12a",
		HandshakeBaud:    2400,
		TransferBaud:     9600,
		OptionChanges:    map[string]any{"watchdog_prescale": 5},
	})
	require.Error(t, err)
	require.Empty(t, m.WriteLog)
	require.Empty(t, m.RxQueue)
}

func TestResolveDialectHonorsFixedSelection(t *testing.T) {
	m := transporttest.New(nil)
	name, deadline, err := resolveDialect(m, Options{RequestedDialect: "stc15"}, nil)
	require.NoError(t, err)
	require.Equal(t, "stc15", name)
	require.WithinDuration(t, time.Now().Add(powerCycleTimeout), deadline, 2*time.Second)
}
