// Package options implements the per-dialect option registry: named,
// typed option values that encode and decode against a shared byte buffer,
// with cross-field validation predicates that run before any bytes are
// written to the device.
package options

import (
	"errors"
	"fmt"
	"sort"
)

// ErrBadOption is wrapped by every rejection this package produces: an
// unknown option name, an out-of-domain value, or a cross-field predicate
// failure. Session code maps it to stcerr.BadOption.
var ErrBadOption = errors.New("options: bad option")

// Domain validates a decoded or proposed value for one field.
type Domain interface {
	Validate(v any) error
}

// Field binds one named option to a slice of the shared byte buffer: how
// to read it back out (Decode) and how to write a new value into a copy of
// the buffer (Encode).
type Field struct {
	Name   string
	Domain Domain
	Decode func(buf []byte) any
	Encode func(v any, buf []byte) error
}

// Registry is the full set of named options for one dialect, plus any
// cross-field constraints (spec §4.5: e.g. watchdog_prescale only matters
// if watchdog_por_enabled is true).
type Registry struct {
	BufferSize int
	Fields     []Field
	// Validate runs against the fully merged value set (current buffer's
	// decoded defaults overridden by the caller's requested changes)
	// before any field is encoded.
	Validate func(values map[string]any) error
}

// Names lists every recognized option name, sorted for stable CLI help
// text and error messages.
func (r *Registry) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	sort.Strings(names)
	return names
}

func (r *Registry) field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Decode reads every known field out of buf into a name→value mapping.
func (r *Registry) Decode(buf []byte) map[string]any {
	out := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		out[f.Name] = f.Decode(buf)
	}
	return out
}

// Encode applies the requested changes on top of base's current values and
// returns the resulting option bytes. Unknown names, out-of-domain values,
// and cross-field constraint failures all return an error wrapping
// ErrBadOption before base is touched.
func (r *Registry) Encode(changes map[string]any, base []byte) ([]byte, error) {
	if len(base) != r.BufferSize {
		return nil, fmt.Errorf("options: base buffer is %d bytes, want %d", len(base), r.BufferSize)
	}

	for name := range changes {
		if _, ok := r.field(name); !ok {
			return nil, fmt.Errorf("%w: unknown option %q", ErrBadOption, name)
		}
	}

	merged := r.Decode(base)
	for name, v := range changes {
		merged[name] = v
	}

	for _, f := range r.Fields {
		if err := f.Domain.Validate(merged[f.Name]); err != nil {
			return nil, fmt.Errorf("%w: option %q: %v", ErrBadOption, f.Name, err)
		}
	}

	if r.Validate != nil {
		if err := r.Validate(merged); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadOption, err)
		}
	}

	out := append([]byte(nil), base...)
	for _, f := range r.Fields {
		if err := f.Encode(merged[f.Name], out); err != nil {
			return nil, fmt.Errorf("%w: option %q: %v", ErrBadOption, f.Name, err)
		}
	}
	return out, nil
}
