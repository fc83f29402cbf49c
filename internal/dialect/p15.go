package dialect

import "stcisp/internal/options"

// NewP15 builds the STC15 dialect engine: the newer sibling of P15A with
// one more option byte (eeprom_retention_cycles), same 256-byte blocks and
// RC trim support (spec §4.6 P15A/P15).
func NewP15() Engine {
	return newEngine(Params{
		Name:             "stc15",
		HandshakeBaud:    2400,
		BlockSize:        256,
		EepromBlockSize:  128,
		SupportsTrim:     true,
		FusedOptions:     false,
		Options:          options.P15,
		FreqCounterScale:   906.0,
		WakeupCounterScale: 128.0,
		OptionsCRC:         true,
		Commands: CommandSet{
			Sync:         0x90,
			SwitchBaud:   0x93,
			Trim:         0x95,
			Erase:        0x91,
			WriteBlock:   0x92,
			WriteOptions: 0x94,
			Disconnect:   0x99,
			WakeupTrim:   0x96,
		},
	}, &uartWire{})
}
