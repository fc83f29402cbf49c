package options

import "fmt"

// P89 is the option registry for the STC89 dialect: options fused into a
// single byte, committed together with the final code write rather than
// as a standalone WRITE_OPTIONS exchange (spec §4.6 dialect deltas).
var P89 = &Registry{
	BufferSize: 1,
	Fields: []Field{
		BoolField("reset_pin_enabled", 0, 7),
		BoolField("watchdog_por_enabled", 0, 6),
		PowerOfTwoField("watchdog_prescale", 0, 3, 3, 1, 128),
		BoolField("low_voltage_reset", 0, 2),
		EnumField("oscillator_startup_delay", 0, 0, 2, map[byte]string{
			0: "short",
			1: "medium",
			2: "long",
			3: "extra_long",
		}),
	},
	Validate: func(v map[string]any) error {
		if enabled, _ := v["watchdog_por_enabled"].(bool); !enabled {
			if prescale, _ := v["watchdog_prescale"].(int); prescale != 1 {
				return fmt.Errorf("watchdog_prescale is only meaningful when watchdog_por_enabled is true")
			}
		}
		return nil
	},
}
