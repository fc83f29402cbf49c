package dialect

import "stcisp/internal/options"

// CommandSet is the tagged-variant-by-another-name (spec §9 Design Notes:
// "replace a dictionary keyed by command byte with a tagged variant")
// mapping of protocol command bytes for one dialect. Not every dialect
// uses every field; the zero value (0x00) is never a legal command for
// any of these, so an unset field simply can't be sent.
type CommandSet struct {
	Sync         byte
	SwitchBaud   byte
	Trim         byte
	Erase        byte
	WriteBlock   byte
	WriteFinish  byte
	WriteOptions byte
	Disconnect   byte

	// WakeupTrim measures and adjusts the wakeup-timer RC oscillator
	// alongside the main one (spec §4.6 P15A/P15). Zero on dialects that
	// don't carry a second trimmable oscillator.
	WakeupTrim byte
}

// Params holds one dialect's parameter table: checksum and framing choices
// live in the frame/wireCodec layer already, so what's left here is block
// geometry and the per-dialect constants the shared Engine choreography
// needs.
type Params struct {
	Name            string
	HandshakeBaud   uint32
	BlockSize       int
	EepromBlockSize int
	SupportsTrim    bool
	FusedOptions    bool
	// USB marks the one dialect (U15) riding bulk transfers instead of a
	// UART: SwitchBaud skips divisor negotiation entirely since there's no
	// UART generator on either end to negotiate (spec §4.6 U15).
	USB             bool
	Options         *options.Registry
	Commands        CommandSet

	// OptionsCRC appends a big-endian CRC-16/MODBUS of the option bytes to
	// the write_options payload (spec §4.6 P15/P15A). Dialects that don't
	// guard option writes this way leave it false.
	OptionsCRC bool

	// FreqCounterScale converts the 16-bit factory-frequency counter the
	// device reports into Hz: FactoryFreqHz = counter * FreqCounterScale.
	// Zero on dialects that report frequency some other way (none
	// currently do; kept per-dialect since the conversion constant is a
	// hardware calibration detail, not a protocol invariant).
	FreqCounterScale float64

	// WakeupCounterScale converts the wakeup-timer trim counter into Hz,
	// the same way FreqCounterScale does for the main oscillator. Only
	// meaningful when Commands.WakeupTrim is set.
	WakeupCounterScale float64
}
