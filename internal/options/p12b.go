package options

import "fmt"

// P12B is the option registry shared by the STC12/STC12B dialects:
// two option bytes, committed in a standalone WRITE_OPTIONS exchange.
var P12B = &Registry{
	BufferSize: 2,
	Fields: []Field{
		BoolField("reset_pin_enabled", 0, 7),
		BoolField("watchdog_por_enabled", 0, 6),
		PowerOfTwoField("watchdog_prescale", 0, 3, 3, 1, 128),
		BoolField("ale_enabled", 0, 1),
		BoolField("low_voltage_reset", 0, 0),

		BoolField("eeprom_erase_with_code", 1, 7),
		EnumField("low_voltage_threshold", 1, 1, 2, map[byte]string{
			0: "2.2v",
			1: "3.4v",
			2: "3.8v",
			3: "4.5v",
		}),
		BoolField("oscillator_fast_startup", 1, 0),
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
