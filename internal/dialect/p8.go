package dialect

import "stcisp/internal/options"

// NewP8 builds the STC8 dialect engine. blockSize is per sub-family (spec
// §4.6 P8); totalSize bounds the registry's program_eeprom_split option,
// which is model-dependent.
func NewP8(blockSize, totalSize int) Engine {
	return newEngine(Params{
		Name:             "stc8",
		HandshakeBaud:    2400,
		BlockSize:        blockSize,
		EepromBlockSize:  128,
		SupportsTrim:     true,
		FusedOptions:     false,
		Options:          options.NewP8(totalSize),
		FreqCounterScale: 906.0,
		Commands: CommandSet{
			Sync:         0xA0,
			SwitchBaud:   0xA3,
			Trim:         0xA5,
			Erase:        0xA1,
			WriteBlock:   0xA2,
			WriteOptions: 0xA4,
			Disconnect:   0xA9,
		},
	}, &uartWire{})
}
