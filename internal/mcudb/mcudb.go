// Package mcudb is the static, read-only model database keyed by the
// 16-bit MCU magic number a device reports during identify.
package mcudb

import "fmt"

// Descriptor describes one MCU model's flash geometry and capabilities.
type Descriptor struct {
	Magic           uint16
	Name            string
	TotalSize       int
	CodeSize        int
	EepromSize      int
	IAPConfigurable bool
	RCTrimCapable   bool
	MCS251          bool
	// EraseTimeoutHint is a coarse per-model upper bound on how long a
	// whole-chip erase may take, carried here because it's a published
	// device characteristic rather than a protocol constant.
	EraseTimeoutHint int // seconds
}

var table = map[uint16]Descriptor{
	// STC89/90 family (P89 dialect).
	0xF000: {Magic: 0xF000, Name: "STC89C52RC", TotalSize: 8192, CodeSize: 8192, EepromSize: 0, EraseTimeoutHint: 5},
	0xF001: {Magic: 0xF001, Name: "STC89C54RD+", TotalSize: 16384, CodeSize: 16384, EepromSize: 0, EraseTimeoutHint: 5},
	0xF002: {Magic: 0xF002, Name: "STC89C58RD+", TotalSize: 32768, CodeSize: 32768, EepromSize: 0, EraseTimeoutHint: 5},

	// STC12A family (P12A dialect).
	0xD10F: {Magic: 0xD10F, Name: "STC12C5410AD", TotalSize: 10240, CodeSize: 10240, EepromSize: 0, EraseTimeoutHint: 8},
	0xD110: {Magic: 0xD110, Name: "STC12C5412AD", TotalSize: 12288, CodeSize: 12288, EepromSize: 0, EraseTimeoutHint: 8},

	// STC12/STC12B family (P12/P12B dialect). IAP-configurable split.
	0xD201: {Magic: 0xD201, Name: "STC12C5601AD", TotalSize: 8192, CodeSize: 8192, EepromSize: 0, IAPConfigurable: true, EraseTimeoutHint: 10},
	0xD202: {Magic: 0xD202, Name: "STC12C5602AD", TotalSize: 16384, CodeSize: 16384, EepromSize: 0, IAPConfigurable: true, EraseTimeoutHint: 10},
	0xD204: {Magic: 0xD204, Name: "STC12C5604AD", TotalSize: 24576, CodeSize: 24576, EepromSize: 0, IAPConfigurable: true, EraseTimeoutHint: 10},

	// STC15A family (P15A dialect). RC trim capable.
	0xF449: {Magic: 0xF449, Name: "IAP15F2K61S2", TotalSize: 63488, CodeSize: 62464, EepromSize: 1024, RCTrimCapable: true, EraseTimeoutHint: 15},
	0xF44A: {Magic: 0xF44A, Name: "IAP15W4K58S4", TotalSize: 61440, CodeSize: 59392, EepromSize: 2048, RCTrimCapable: true, EraseTimeoutHint: 15},

	// STC15 family (P15 dialect). RC trim capable, IAP-configurable split.
	0xF460: {Magic: 0xF460, Name: "STC15F104E", TotalSize: 4096, CodeSize: 4096, EepromSize: 0, RCTrimCapable: true, IAPConfigurable: true, EraseTimeoutHint: 12},
	0xF461: {Magic: 0xF461, Name: "STC15F204EA", TotalSize: 8192, CodeSize: 8192, EepromSize: 0, RCTrimCapable: true, IAPConfigurable: true, EraseTimeoutHint: 12},

	// STC8 family (P8 dialect). Programmable code/EEPROM split.
	0xF500: {Magic: 0xF500, Name: "STC8A8K64S4A12", TotalSize: 65536, CodeSize: 65536, EepromSize: 0, IAPConfigurable: true, RCTrimCapable: true, EraseTimeoutHint: 15},
	0xF501: {Magic: 0xF501, Name: "STC8F2K64S2", TotalSize: 65536, CodeSize: 63488, EepromSize: 2048, IAPConfigurable: true, RCTrimCapable: true, EraseTimeoutHint: 15},

	// USB15 family (U15 dialect). No trim, no UART baud concept.
	0xF5A5: {Magic: 0xF5A5, Name: "IAP15W413AS", TotalSize: 13312, CodeSize: 13312, EepromSize: 0, EraseTimeoutHint: 15},
}

// Lookup resolves magic to a Descriptor. The bool return is false when
// magic is not in the database; callers map that to UnknownModel.
func Lookup(magic uint16) (Descriptor, bool) {
	d, ok := table[magic]
	return d, ok
}

// MustLookup is Lookup for tests and tooling that already know magic is
// registered; it panics otherwise.
func MustLookup(magic uint16) Descriptor {
	d, ok := Lookup(magic)
	if !ok {
		panic(fmt.Sprintf("mcudb: no descriptor for magic 0x%04X", magic))
	}
	return d
}
