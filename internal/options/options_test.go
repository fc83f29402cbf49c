package options

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestP89RoundTrip(t *testing.T) {
	base := []byte{0x00}
	changes := map[string]any{
		"reset_pin_enabled":        true,
		"watchdog_por_enabled":     true,
		"watchdog_prescale":        32,
		"low_voltage_reset":        false,
		"oscillator_startup_delay": "long",
	}
	buf, err := P89.Encode(changes, base)
	require.NoError(t, err)

	decoded := P89.Decode(buf)
	for name, want := range changes {
		assert.Equal(t, want, decoded[name], "field %s", name)
	}
}

func TestP89UnspecifiedFieldsKeepBaseDefaults(t *testing.T) {
	base, err := P89.Encode(map[string]any{
		"reset_pin_enabled": true,
		"low_voltage_reset": true,
	}, []byte{0x00})
	require.NoError(t, err)

	// A second encode that only changes one field must leave the others
	// at base's current values, not reset to zero.
	out, err := P89.Encode(map[string]any{"watchdog_por_enabled": true}, base)
	require.NoError(t, err)

	decoded := P89.Decode(out)
	assert.Equal(t, true, decoded["reset_pin_enabled"])
	assert.Equal(t, true, decoded["low_voltage_reset"])
	assert.Equal(t, true, decoded["watchdog_por_enabled"])
}

func TestP89UnknownOption(t *testing.T) {
	_, err := P89.Encode(map[string]any{"nonexistent": true}, []byte{0x00})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadOption))
}

func TestP89OutOfDomainValue(t *testing.T) {
	_, err := P89.Encode(map[string]any{"watchdog_prescale": 5}, []byte{0x00})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadOption))
}

func TestP89CrossFieldValidation(t *testing.T) {
	_, err := P89.Encode(map[string]any{
		"watchdog_por_enabled": false,
		"watchdog_prescale":    16,
	}, []byte{0x00})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadOption))
}

func TestP12BTwoByteRoundTrip(t *testing.T) {
	base := []byte{0x00, 0x00}
	changes := map[string]any{
		"eeprom_erase_with_code": true,
		"low_voltage_threshold":  "3.8v",
		"ale_enabled":            true,
	}
	buf, err := P12B.Encode(changes, base)
	require.NoError(t, err)
	require.Len(t, buf, 2)

	decoded := P12B.Decode(buf)
	for name, want := range changes {
		assert.Equal(t, want, decoded[name])
	}
}

func TestP8ProgramEepromSplitMultipleOf512(t *testing.T) {
	reg := NewP8(65536)
	_, err := reg.Encode(map[string]any{"program_eeprom_split": 600}, make([]byte, 4))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadOption))

	buf, err := reg.Encode(map[string]any{"program_eeprom_split": 2048}, make([]byte, 4))
	require.NoError(t, err)
	decoded := reg.Decode(buf)
	assert.Equal(t, 2048, decoded["program_eeprom_split"])
}

func TestRegistryRoundTripProperty(t *testing.T) {
	registries := map[string]*Registry{
		"p89":  P89,
		"p12a": P12A,
		"p12b": P12B,
		"p15a": P15A,
		"p15":  P15,
	}
	seed := uint32(42)
	next := func() uint32 {
		seed = seed*1664525 + 1013904223
		return seed
	}

	for name, reg := range registries {
		t.Run(name, func(t *testing.T) {
			base := make([]byte, reg.BufferSize)
			for i := 0; i < 50; i++ {
				changes := map[string]any{}
				for _, f := range reg.Fields {
					switch d := f.Domain.(type) {
					case BoolDomain:
						changes[f.Name] = next()%2 == 0
					case Enum:
						changes[f.Name] = d.Labels[int(next())%len(d.Labels)]
					case PowerOfTwo:
						exp := int(next()) % 8
						changes[f.Name] = 1 << uint(exp)
						if changes[f.Name].(int) > d.Max {
							changes[f.Name] = d.Max
						}
					case IntRange:
						changes[f.Name] = d.Min + int(next())%(d.Max-d.Min+1)
					}
				}
				buf, err := reg.Encode(changes, base)
				if err != nil {
					// Cross-field validation may legitimately reject this
					// random combination (e.g. prescale set while
					// watchdog disabled); that's expected, not a bug.
					continue
				}
				decoded := reg.Decode(buf)
				for fname, want := range changes {
					assert.Equal(t, want, decoded[fname], "field %s in %s", fname, name)
				}
			}
		})
	}
}
