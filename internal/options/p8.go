package options

import "fmt"

// P8 is the option registry for the STC8 dialect. Its distinguishing
// option, program_eeprom_split, carves the code/EEPROM split in 512-byte
// units bounded by the model's total flash size (spec §4.6); the field's
// Multiple domain is given the descriptor's total size at registry-build
// time since the bound is model-dependent rather than dialect-constant.
func NewP8(totalSize int) *Registry {
	return &Registry{
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

			Uint16Field("program_eeprom_split", 2, Multiple{Of: 512, Min: 0, Max: totalSize}),
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
}
