package dialect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stcisp/internal/frame"
	"stcisp/internal/mcudb"
	"stcisp/internal/options"
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

func TestDetectRequiresIdleState(t *testing.T) {
	e := NewP15A()
	m := transporttest.New(nil)
	e.(*engine).state = Identified

	_, err := e.Detect(m, time.Now().Add(time.Second))
	require.Error(t, err)
	require.Equal(t, Failed, e.State())
}

func TestDetectSucceedsAndTransitions(t *testing.T) {
	e := NewP15A()
	m := transporttest.New(nil)
	magic := uint16(0xF449)
	m.Feed(deviceFrame(t, []byte{byte(magic >> 8), byte(magic), 7, 1, 'S', 0x2B, 0x51}))
	m.Feed(deviceFrame(t, []byte{byte(magic >> 8), byte(magic)}))

	target, err := e.Detect(m, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, Identified, e.State())
	require.Equal(t, magic, target.Descriptor.Magic)
	require.Equal(t, "7.1S", target.BSLVersion)
	require.InDelta(t, 11089*906.0, target.FactoryFreqHz, 1)
}

func TestTrimP15ATrimsWakeupOscillatorToo(t *testing.T) {
	e := NewP15A()
	eng := e.(*engine)
	eng.state = BaudSwitched
	m := transporttest.New(nil)

	target := &TargetState{
		Descriptor:         mcudb.MustLookup(0xF449),
		FactoryTrimCounter: 100,
	}

	// Main-oscillator measurement: report the counter for 10 MHz at
	// FreqCounterScale (9999.522 kHz), within the 0.5% tolerance of
	// targetKHz, so the loop converges on its first pass.
	mainCounter := int(10000000 / 906.0)
	m.Feed(deviceFrame(t, []byte{byte(mainCounter >> 8), byte(mainCounter)}))
	// Wakeup measurement: the seed counter (256) lands exactly on the
	// 32.768kHz target at WakeupCounterScale=128, converging in one pass.
	m.Feed(deviceFrame(t, []byte{byte(wakeupSeedCounter >> 8), byte(wakeupSeedCounter)}))

	trimBytes, err := e.Trim(m, target, 10000.0)
	require.NoError(t, err)
	require.Equal(t, Trimmed, e.State())
	require.Len(t, trimBytes, 4)
	require.NotNil(t, target.WakeupFreqHz)
	require.InDelta(t, 32768.0, *target.WakeupFreqHz, 1)
}

func TestWriteOptionsAppendsCRCOnP15A(t *testing.T) {
	e := NewP15A()
	m := transporttest.New(nil)
	eng := e.(*engine)
	eng.state = CodeWritten

	optBytes := make([]byte, options.P15A.BufferSize)
	optBytes[0] = 0x80
	want := options.Checksum(optBytes)
	m.Feed(deviceFrame(t, []byte{0x00}))

	err := e.WriteOptions(m, &TargetState{}, optBytes)
	require.NoError(t, err)
	require.Equal(t, OptionsWritten, e.State())

	sentFrame, err := frame.UARTCodec{}.Decode(m.AllWritten())
	require.NoError(t, err)
	require.Len(t, sentFrame.Payload, len(optBytes)+2)
	gotCRC := uint16(sentFrame.Payload[len(optBytes)])<<8 | uint16(sentFrame.Payload[len(optBytes)+1])
	require.Equal(t, want, gotCRC)
}

func TestWriteOptionsStagesWhenFused(t *testing.T) {
	e := NewP12A()
	m := transporttest.New(nil)

	err := e.WriteOptions(m, &TargetState{}, []byte{0x01})
	require.NoError(t, err)
	require.Empty(t, m.WriteLog)
	require.Equal(t, []byte{0x01}, e.(*engine).stagedOptions)
}

func TestSwitchBaudIsNoOpOnUSBDialect(t *testing.T) {
	e := NewU15()
	eng := e.(*engine)
	eng.state = Identified
	m := transporttest.New(nil)

	err := e.SwitchBaud(m, &TargetState{}, BaudPlan{TransferBaud: 19200})
	require.NoError(t, err)
	require.Equal(t, BaudSwitched, e.State())
	require.Empty(t, m.WriteLog)
}

func TestEraseRejectsNak(t *testing.T) {
	e := NewP15()
	m := transporttest.New(nil)
	eng := e.(*engine)
	eng.state = BaudSwitched
	m.Feed(deviceFrame(t, []byte{DeviceNakByte}))

	err := e.Erase(m, &TargetState{})
	require.Error(t, err)
	require.Equal(t, Failed, e.State())
}

func TestWriteCodeVerifiesChecksumPerBlock(t *testing.T) {
	e := NewP12A()
	eng := e.(*engine)
	eng.state = Erased
	m := transporttest.New(nil)
	image := make([]byte, 200) // two blocks at 128 bytes once padded to 256
	for i := range image {
		image[i] = byte(i)
	}
	padded := append(append([]byte(nil), image...), make([]byte, 56)...)
	for i := 200; i < len(padded); i++ {
		padded[i] = 0xFF
	}
	m.Feed(deviceFrame(t, []byte{sum(padded[:128])}))
	m.Feed(deviceFrame(t, []byte{sum(padded[128:])}))

	err := e.WriteCode(m, &TargetState{}, image, nil)
	require.NoError(t, err)
	require.Equal(t, CodeWritten, e.State())
}

func TestWriteCodeFailsOnChecksumMismatch(t *testing.T) {
	e := NewP12A()
	eng := e.(*engine)
	eng.state = Erased
	m := transporttest.New(nil)
	image := []byte{1, 2, 3}
	m.Feed(deviceFrame(t, []byte{0xEE})) // wrong checksum

	err := e.WriteCode(m, &TargetState{}, image, nil)
	require.Error(t, err)
	require.Equal(t, Failed, e.State())
}

func TestTerminateFromFailedIsBestEffort(t *testing.T) {
	e := NewP89()
	eng := e.(*engine)
	eng.state = Failed
	m := transporttest.New(nil) // no response queued; SendFrame still succeeds, RecvFrame will time out

	err := e.Terminate(m, &TargetState{})
	require.NoError(t, err)
	require.Equal(t, Terminated, e.State())
}
