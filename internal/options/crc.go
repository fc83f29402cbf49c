package options

import "github.com/sigurn/crc16"

// modbusTable backs Checksum. STC15/STC15A option writes carry a trailing
// CRC-16 so the device can catch a corrupted option frame before it burns
// the fuse bytes (spec §4.6 P15/P15A: "option writes on this generation
// are CRC-guarded"); MODBUS is the variant the field tooling for this
// generation is documented to use.
var modbusTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Checksum computes the CRC-16/MODBUS of an encoded option buffer. Dialects
// that guard option writes with a CRC (P15, P15A) append this, big-endian,
// after the option bytes; dialects that don't simply never call it.
func Checksum(buf []byte) uint16 {
	return crc16.Checksum(buf, modbusTable)
}
