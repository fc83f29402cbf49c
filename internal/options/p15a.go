package options

import "fmt"

// P15A is the option registry for the STC15A dialect: 4 option bytes, RC
// trim supported, a wakeup-timer frequency counter trimmed alongside the
// main RC oscillator (spec §4.6).
var P15A = &Registry{
	BufferSize: 4,
	Fields: []Field{
		BoolField("reset_pin_enabled", 0, 7),
		BoolField("watchdog_por_enabled", 0, 6),
		PowerOfTwoField("watchdog_prescale", 0, 2, 4, 1, 32768),
		EnumField("clock_source", 0, 0, 2, map[byte]string{
			0: "internal_rc",
			1: "external_crystal",
			2: "external_clock",
		}),

		EnumField("low_voltage_detect", 1, 0, 3, map[byte]string{
			0: "2.0v",
			1: "2.2v",
			2: "2.4v",
			3: "2.7v",
			4: "3.0v",
			5: "3.3v",
			6: "3.6v",
			7: "3.9v",
		}),
		BoolField("eeprom_erase_with_code", 1, 7),

		BoolField("uart2_passthrough", 2, 0),
		BoolField("p3_wakeup_enabled", 2, 1),

		ByteField("wakeup_timer_trim", 3, IntRange{Min: 0, Max: 255}),
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
