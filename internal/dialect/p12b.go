package dialect

import "stcisp/internal/options"

// NewP12B builds the STC12/STC12B dialect engine. The CLI exposes this
// family under two -P names, "stc12" and "stc12b", for the two block-size
// generations (spec §4.6 P12/P12B, §6 flag surface); both share one frame
// format and command set, so name and blockSize are both caller-supplied
// rather than the engine guessing from the announcement (spec §9 open
// question: "retain the current behavior of picking by model rather than
// by announcement").
func NewP12B(name string, blockSize int) Engine {
	return newEngine(Params{
		Name:             name,
		HandshakeBaud:    2400,
		BlockSize:        blockSize,
		EepromBlockSize:  0,
		SupportsTrim:     false,
		FusedOptions:     false,
		Options:          options.P12B,
		FreqCounterScale: 906.0,
		Commands: CommandSet{
			Sync:         0x70,
			SwitchBaud:   0x73,
			Erase:        0x71,
			WriteBlock:   0x72,
			WriteOptions: 0x74,
			Disconnect:   0x79,
		},
	}, &uartWire{})
}
