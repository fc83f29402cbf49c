package dialect

import "stcisp/internal/options"

// NewP89 builds the STC89 dialect engine: handshake baud fixed at 2400,
// single-byte fused options, no UID readout, no RC trim (spec §4.6 P89).
func NewP89() Engine {
	return newEngine(Params{
		Name:             "stc89",
		HandshakeBaud:    2400,
		BlockSize:        128,
		EepromBlockSize:  0,
		SupportsTrim:     false,
		FusedOptions:     true,
		Options:          options.P89,
		FreqCounterScale: 906.0,
		Commands: CommandSet{
			Sync:       0x50,
			SwitchBaud: 0x53,
			Erase:      0x51,
			WriteBlock: 0x52,
			Disconnect: 0x59,
		},
	}, &uartWire{})
}
