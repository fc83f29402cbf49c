package options

// P12A is the option registry for the STC12A dialect: no RC trim support,
// 128-byte write blocks, a single option byte fused with the final write.
var P12A = &Registry{
	BufferSize: 1,
	Fields: []Field{
		BoolField("reset_pin_enabled", 0, 7),
		BoolField("watchdog_por_enabled", 0, 6),
		PowerOfTwoField("watchdog_prescale", 0, 3, 3, 1, 128),
		BoolField("ale_enabled", 0, 1),
		BoolField("low_voltage_reset", 0, 0),
	},
}
