package dialect

import "stcisp/internal/options"

// NewP15A builds the STC15A dialect engine: 256-byte blocks, RC trim
// supported, a wakeup-frequency counter trimmed alongside the main
// oscillator, factory frequency reported as a 16-bit counter (spec §4.6
// P15A/P15).
func NewP15A() Engine {
	return newEngine(Params{
		Name:             "stc15a",
		HandshakeBaud:    2400,
		BlockSize:        256,
		EepromBlockSize:  128,
		SupportsTrim:     true,
		FusedOptions:     false,
		Options:          options.P15A,
		FreqCounterScale:   906.0,
		WakeupCounterScale: 128.0,
		OptionsCRC:         true,
		Commands: CommandSet{
			Sync:         0x80,
			SwitchBaud:   0x83,
			Trim:         0x85,
			Erase:        0x81,
			WriteBlock:   0x82,
			WriteOptions: 0x84,
			Disconnect:   0x89,
			WakeupTrim:   0x86,
		},
	}, &uartWire{})
}
