// Package session implements the top-level programming choreography (spec
// §2.8, §4.6 common choreography, §7 error/retry policy): power-cycle
// wait, identify, optional trim, baud switch, erase, program, options,
// terminate, driving whichever dialect.Engine the caller selected (fixed
// or autodetected).
package session

import (
	"fmt"
	"time"

	"stcisp/internal/autodetect"
	"stcisp/internal/dialect"
	"stcisp/internal/progress"
	"stcisp/internal/stcerr"
	"stcisp/internal/transport"
)

// powerCyclePollInterval and powerCycleTimeout bound how long Run waits
// for the device's announcement after asserting reset (spec §4.6 step 1:
// "poll up to 30s").
const (
	powerCyclePollInterval = 200 * time.Millisecond
	powerCycleTimeout      = 30 * time.Second
)

// maxConsecutiveTimeouts aborts the session with LinkLost once this many
// frame exchanges in a row time out, rather than hanging indefinitely on a
// device that has gone away mid-session (spec §7).
const maxConsecutiveTimeouts = 3

// EngineFactory builds a dialect.Engine for a resolved dialect name. The
// caller (normally the CLI) owns per-model construction details like P12B
// block size and P8 total size that the factory closure captures.
type EngineFactory func(dialectName string) (dialect.Engine, error)

// Options is everything a Run call needs beyond the transport and engine
// factory: resolved CLI flags (spec §6).
type Options struct {
	// RequestedDialect is the -P value; "auto" triggers autodetection.
	RequestedDialect string
	HandshakeBaud    uint32
	TransferBaud     uint32
	TrimKHz          float64 // 0 disables trim
	OptionChanges    map[string]any
	AssertResetFirst bool
	ResetPulse       time.Duration
	Reporter         progress.Reporter
}

// Result summarizes a completed (or failed) session for the CLI to report.
type Result struct {
	Dialect    string
	Target     dialect.TargetState
	FinalState dialect.State
}

// Run drives one full programming session against t, from power-cycle
// wait through terminate. There is no separate verify step.
func Run(t transport.Transport, factory EngineFactory, codeImage, eepromImage []byte, opts Options) (Result, error) {
	reporter := opts.Reporter
	if reporter == nil {
		reporter = progress.NopReporter{}
	}

	// A fixed -P selection pins the engine (and so its option registry)
	// before any transport byte moves, so option names/values are checked
	// here rather than at write time (spec §3, §8 scenario 4). "auto" can't
	// be validated until autodetection has read the announcement and
	// resolved a dialect, below.
	var engine dialect.Engine
	if opts.RequestedDialect != "auto" && opts.RequestedDialect != "" {
		e, err := factory(opts.RequestedDialect)
		if err != nil {
			return Result{}, stcerr.Wrap(stcerr.Unsupported, "select dialect", err)
		}
		if err := validateOptions(e, opts.OptionChanges); err != nil {
			return Result{}, err
		}
		engine = e
	}

	if opts.AssertResetFirst {
		reporter.OnPhase("reset")
		if err := t.AssertReset(opts.ResetPulse); err != nil {
			return Result{}, stcerr.Wrap(stcerr.LinkLost, "reset", err)
		}
		if err := t.Drain(); err != nil {
			return Result{}, stcerr.Wrap(stcerr.LinkLost, "reset", err)
		}
	}

	reporter.OnPhase("waiting for device")
	dialectName, announceDeadline, err := resolveDialect(t, opts, reporter)
	if err != nil {
		return Result{}, err
	}

	if engine == nil {
		e, err := factory(dialectName)
		if err != nil {
			return Result{}, stcerr.Wrap(stcerr.Unsupported, "select dialect", err)
		}
		if err := validateOptions(e, opts.OptionChanges); err != nil {
			return Result{}, err
		}
		engine = e
	}

	reporter.OnPhase("identify")
	target, err := retryTimeouts(func() (dialect.TargetState, error) {
		if engine.State() != dialect.Idle {
			// Detect only runs from Idle, so a retry starts on a fresh engine.
			e, err := factory(dialectName)
			if err != nil {
				return dialect.TargetState{}, stcerr.Wrap(stcerr.Unsupported, "select dialect", err)
			}
			engine = e
		}
		return engine.Detect(t, announceDeadline)
	})
	if err != nil {
		return Result{}, failWithTerminate(t, engine, &target, err)
	}

	plan := dialect.BaudPlan{
		HandshakeBaud:         opts.HandshakeBaud,
		TransferBaud:          opts.TransferBaud,
		ParityDuringHandshake: transport.ParityEven,
		ParityDuringTransfer:  transport.ParityEven,
	}
	reporter.OnPhase("switch baud")
	if err := engine.SwitchBaud(t, &target, plan); err != nil {
		return Result{}, failWithTerminate(t, engine, &target, err)
	}

	if opts.TrimKHz > 0 {
		reporter.OnPhase("trim")
		if _, err := engine.Trim(t, &target, opts.TrimKHz); err != nil {
			return Result{}, failWithTerminate(t, engine, &target, err)
		}
	}

	reporter.OnPhase("erase")
	if err := engine.Erase(t, &target); err != nil {
		return Result{}, failWithTerminate(t, engine, &target, err)
	}

	if engine.FusedOptions() && len(opts.OptionChanges) > 0 {
		encoded, err := encodeOptions(engine, target, opts.OptionChanges)
		if err != nil {
			return Result{}, failWithTerminate(t, engine, &target, err)
		}
		if err := engine.WriteOptions(t, &target, encoded); err != nil {
			return Result{}, failWithTerminate(t, engine, &target, err)
		}
	}

	// WriteCode and WriteEeprom report their own "write code" and
	// "write eeprom" phases.
	if err := engine.WriteCode(t, &target, codeImage, reporter); err != nil {
		return Result{}, failWithTerminate(t, engine, &target, err)
	}

	if target.Descriptor.EepromSize > 0 {
		if err := engine.WriteEeprom(t, &target, eepromImage, reporter); err != nil {
			return Result{}, failWithTerminate(t, engine, &target, err)
		}
	}

	if !engine.FusedOptions() && len(opts.OptionChanges) > 0 {
		encoded, err := encodeOptions(engine, target, opts.OptionChanges)
		if err != nil {
			return Result{}, failWithTerminate(t, engine, &target, err)
		}
		reporter.OnPhase("write options")
		if err := engine.WriteOptions(t, &target, encoded); err != nil {
			return Result{}, failWithTerminate(t, engine, &target, err)
		}
	}

	reporter.OnPhase("terminate")
	if err := engine.Terminate(t, &target); err != nil {
		return Result{}, err
	}

	return Result{Dialect: engine.Name(), Target: target, FinalState: engine.State()}, nil
}

// resolveDialect waits for the device's power-up announcement, running
// autodetection when the caller asked for "auto" (spec §4.7). It returns
// the resolved dialect name and the deadline by which the caller's own
// identify/handshake exchange should complete, matching the point at
// which autodetection already consumed the announcement frame.
func resolveDialect(t transport.Transport, opts Options, reporter progress.Reporter) (string, time.Time, error) {
	waitDeadline := time.Now().Add(powerCycleTimeout)

	if opts.RequestedDialect != "auto" && opts.RequestedDialect != "" {
		return opts.RequestedDialect, waitDeadline, nil
	}

	reporter.OnPhase("autodetect")
	if err := t.SetParity(transport.ParityEven); err != nil {
		return "", time.Time{}, stcerr.Wrap(stcerr.LinkLost, "autodetect", err)
	}
	for {
		result, err := autodetect.Detect(t, time.Now().Add(powerCyclePollInterval))
		if err == nil {
			return result.Dialect, waitDeadline, nil
		}
		if se, ok := err.(*stcerr.Error); ok && se.Kind != stcerr.LinkLost {
			return "", time.Time{}, err
		}
		if time.Now().After(waitDeadline) {
			return "", time.Time{}, &stcerr.Error{Kind: stcerr.LinkLost, Stage: "autodetect", Msg: "no announcement within power-cycle window"}
		}
	}
}

// retryTimeouts retries fn up to maxConsecutiveTimeouts times as long as it
// keeps failing with LinkLost, per the §7 timeout-retry policy; any other
// error kind aborts immediately.
func retryTimeouts[T any](fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < maxConsecutiveTimeouts; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		se, ok := err.(*stcerr.Error)
		if !ok || se.Kind != stcerr.LinkLost {
			return zero, err
		}
	}
	return zero, lastErr
}

// failWithTerminate attempts a best-effort disconnect before surfacing the
// original error, so a device left mid-protocol doesn't sit wedged at an
// odd baud after a host-side failure.
func failWithTerminate(t transport.Transport, engine dialect.Engine, target *dialect.TargetState, original error) error {
	_ = engine.Terminate(t, target)
	return original
}

// validateOptions checks option names and per-field domains against the
// registry before any device I/O, using a zero buffer as the encode base
// since only the registry (not the device's live option bytes) is needed
// to reject an unknown name or an out-of-domain value.
func validateOptions(engine dialect.Engine, changes map[string]any) error {
	if len(changes) == 0 {
		return nil
	}
	registry := engine.Options()
	if registry == nil {
		return &stcerr.Error{Kind: stcerr.BadOption, Stage: "validate options", Msg: fmt.Sprintf("%s has no option registry", engine.Name())}
	}
	if _, err := registry.Encode(changes, make([]byte, registry.BufferSize)); err != nil {
		return stcerr.Wrap(stcerr.BadOption, "validate options", err)
	}
	return nil
}

func encodeOptions(engine dialect.Engine, target dialect.TargetState, changes map[string]any) ([]byte, error) {
	registry := engine.Options()
	if registry == nil {
		return nil, &stcerr.Error{Kind: stcerr.BadOption, Stage: "write options", Msg: fmt.Sprintf("%s has no option registry", engine.Name())}
	}
	base := target.CurrentOptionBytes
	if len(base) != registry.BufferSize {
		base = make([]byte, registry.BufferSize)
	}
	encoded, err := registry.Encode(changes, base)
	if err != nil {
		return nil, stcerr.Wrap(stcerr.BadOption, "write options", err)
	}
	return encoded, nil
}
