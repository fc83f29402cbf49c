package dialect

import "stcisp/internal/options"

// NewU15 builds the U15 dialect engine: frames carried in USB bulk
// transfers, no handshake baud negotiation, trim unsupported (spec §4.6
// U15). SwitchBaud and Trim are still exposed through the shared Engine
// interface but SwitchBaud is a no-op (USB has no UART generator) and
// Trim returns Unsupported via SupportsTrim=false.
func NewU15() Engine {
	return newEngine(Params{
		Name:             "usb15",
		HandshakeBaud:    0,
		BlockSize:        256,
		EepromBlockSize:  128,
		SupportsTrim:     false,
		FusedOptions:     false,
		USB:              true,
		Options:          options.U15,
		FreqCounterScale: 906.0,
		Commands: CommandSet{
			Sync:         0xB0,
			SwitchBaud:   0xB3,
			Erase:        0xB1,
			WriteBlock:   0xB2,
			WriteOptions: 0xB4,
			Disconnect:   0xB9,
		},
	}, &usbWire{})
}
