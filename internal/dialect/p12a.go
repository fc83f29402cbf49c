package dialect

import "stcisp/internal/options"

// NewP12A builds the STC12A dialect engine: 128-byte write blocks, UID
// present in the announcement, no RC trim, single-byte fused options
// (spec §4.6 P12A).
func NewP12A() Engine {
	return newEngine(Params{
		Name:             "stc12a",
		HandshakeBaud:    2400,
		BlockSize:        128,
		EepromBlockSize:  0,
		SupportsTrim:     false,
		FusedOptions:     true,
		Options:          options.P12A,
		FreqCounterScale: 906.0,
		Commands: CommandSet{
			Sync:       0x60,
			SwitchBaud: 0x63,
			Erase:      0x61,
			WriteBlock: 0x62,
			Disconnect: 0x69,
		},
	}, &uartWire{})
}
