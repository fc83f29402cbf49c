// Package dialect implements the seven packet-dialect state machines
// (spec §4.6) behind one shared Engine interface: detect, switch_baud,
// trim, erase, write_code, write_eeprom, write_options, terminate. Per the
// trait/interface design note, behavior is not duplicated per dialect —
// one generic implementation drives a per-dialect Params table and a
// wireCodec chosen at construction time.
package dialect

import (
	"fmt"
	"time"

	"stcisp/internal/mcudb"
	"stcisp/internal/options"
	"stcisp/internal/progress"
	"stcisp/internal/stcerr"
	"stcisp/internal/transport"
)

// Engine is the capability set every dialect implements (spec §4.6).
type Engine interface {
	Name() string
	State() State
	BlockSize() int
	EepromBlockSize() int
	Options() *options.Registry
	SupportsTrim() bool
	// FusedOptions reports whether this dialect commits option bytes as
	// part of the final write rather than a standalone WriteOptions call
	// (P89, P12A). On such dialects WriteOptions sends nothing: it stages
	// the bytes, and the next WriteCode appends them to its last block.
	FusedOptions() bool

	Detect(t transport.Transport, deadline time.Time) (TargetState, error)
	SwitchBaud(t transport.Transport, target *TargetState, plan BaudPlan) error
	Trim(t transport.Transport, target *TargetState, targetKHz float64) ([]byte, error)
	Erase(t transport.Transport, target *TargetState) error
	WriteCode(t transport.Transport, target *TargetState, image []byte, reporter progress.Reporter) error
	WriteEeprom(t transport.Transport, target *TargetState, image []byte, reporter progress.Reporter) error
	WriteOptions(t transport.Transport, target *TargetState, optionBytes []byte) error
	Terminate(t transport.Transport, target *TargetState) error
}

// DeviceNakByte is the payload byte a device sends in place of the normal
// echo/ack when it rejects a command.
const DeviceNakByte = 0xFF

type engine struct {
	params Params
	wire   wireCodec
	state  State

	// stagedOptions holds option bytes WriteOptions deferred because this
	// dialect fuses them into the final code write instead of a standalone
	// command.
	stagedOptions []byte
}

func newEngine(p Params, w wireCodec) *engine {
	return &engine{params: p, wire: w, state: Idle}
}

func (e *engine) Name() string                   { return e.params.Name }
func (e *engine) State() State                   { return e.state }
func (e *engine) BlockSize() int                 { return e.params.BlockSize }
func (e *engine) EepromBlockSize() int           { return e.params.EepromBlockSize }
func (e *engine) Options() *options.Registry     { return e.params.Options }
func (e *engine) SupportsTrim() bool             { return e.params.SupportsTrim }
func (e *engine) FusedOptions() bool             { return e.params.FusedOptions }

func (e *engine) fail(stage string, kind stcerr.Kind, err error) error {
	e.state = Failed
	return stcerr.Wrap(kind, stage, err)
}

func (e *engine) requireState(stage string, want State) error {
	if e.state != want {
		return e.fail(stage, stcerr.FrameError, fmt.Errorf("%s called from state %s, want %s", stage, e.state, want))
	}
	return nil
}

// announcement is the power-up frame's decoded fields. The exact byte
// layout is an STC-family convention this codebase assumes since no wire
// capture was available to confirm it (see DESIGN.md open questions):
// 2-byte magic, 1-byte BSL major, 1-byte BSL minor, 1-byte BSL suffix
// letter, 2-byte factory frequency counter, and when the dialect reports a
// UID, 7 more bytes.
func parseAnnouncement(p Params, payload []byte) (TargetState, error) {
	const minLen = 7
	if len(payload) < minLen {
		return TargetState{}, fmt.Errorf("announcement too short: %d bytes", len(payload))
	}

	magic, bslVersion, err := DecodeSignature(payload)
	if err != nil {
		return TargetState{}, err
	}
	descriptor, ok := mcudb.Lookup(magic)
	if !ok {
		return TargetState{}, &stcerr.Error{Kind: stcerr.UnknownModel, Stage: "handshake", Msg: fmt.Sprintf("0x%04X", magic)}
	}

	counter := int(payload[5])<<8 | int(payload[6])

	var uid []byte
	if len(payload) >= minLen+7 {
		uid = append([]byte(nil), payload[minLen:minLen+7]...)
	}

	return TargetState{
		Descriptor:         descriptor,
		BSLVersion:         bslVersion,
		FactoryFreqHz:      float64(counter) * p.FreqCounterScale,
		FactoryTrimCounter: counter,
		UID:                uid,
		CurrentOptionBytes: make([]byte, p.Options.BufferSize),
		CurrentBaud:        p.HandshakeBaud,
	}, nil
}

// Detect listens for the power-up announcement and runs the synchronization
// round-trip (spec §4.6 step 2).
func (e *engine) Detect(t transport.Transport, deadline time.Time) (TargetState, error) {
	if e.state != Idle {
		return TargetState{}, e.fail("handshake", stcerr.FrameError, fmt.Errorf("detect called from state %s", e.state))
	}
	e.state = Waiting

	announce, err := e.wire.RecvFrame(t, deadline)
	if err != nil {
		return TargetState{}, e.fail("handshake", stcerr.LinkLost, err)
	}

	target, err := parseAnnouncement(e.params, announce.Payload)
	if err != nil {
		if se, ok := err.(*stcerr.Error); ok {
			e.state = Failed
			return TargetState{}, se
		}
		return TargetState{}, e.fail("handshake", stcerr.FrameError, err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := e.wire.SendFrame(t, e.params.Commands.Sync, nil); err != nil {
			lastErr = err
			continue
		}
		resp, err := e.wire.RecvFrame(t, deadline)
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Payload) >= 2 {
			gotMagic := uint16(resp.Payload[0])<<8 | uint16(resp.Payload[1])
			if gotMagic == target.Descriptor.Magic {
				e.state = Identified
				return target, nil
			}
		}
		lastErr = fmt.Errorf("sync echo did not confirm magic 0x%04X", target.Descriptor.Magic)
	}
	return TargetState{}, e.fail("handshake", stcerr.FrameError, lastErr)
}

// SwitchBaud negotiates the transfer baud (spec §4.6 step 3): propose,
// verify the device's chosen divisor is within tolerance, switch locally,
// then ping at the new rate. On LinkLost it falls back to half the
// proposed transfer baud once. On the USB dialect there's no UART
// generator to negotiate (spec §4.6 U15: "no handshake baud"), so this is
// a state-only no-op.
func (e *engine) SwitchBaud(t transport.Transport, target *TargetState, plan BaudPlan) error {
	if err := e.requireState("baud switch", Identified); err != nil {
		return err
	}

	if e.params.USB {
		target.CurrentBaud = 0
		e.state = BaudSwitched
		return nil
	}

	attemptBaud := plan.TransferBaud
	for attempt := 0; attempt < 2; attempt++ {
		payload := []byte{byte(attemptBaud >> 24), byte(attemptBaud >> 16), byte(attemptBaud >> 8), byte(attemptBaud)}
		if err := e.wire.SendFrame(t, e.params.Commands.SwitchBaud, payload); err != nil {
			return e.fail("baud switch", stcerr.LinkLost, err)
		}
		deadline := time.Now().Add(3 * time.Second)
		resp, err := e.wire.RecvFrame(t, deadline)
		if err != nil {
			if attempt == 0 {
				attemptBaud /= 2
				continue
			}
			return e.fail("baud switch", stcerr.LinkLost, err)
		}
		if len(resp.Payload) < 4 {
			return e.fail("baud switch", stcerr.FrameError, fmt.Errorf("short baud-switch ack"))
		}
		chosen := uint32(resp.Payload[0])<<24 | uint32(resp.Payload[1])<<16 | uint32(resp.Payload[2])<<8 | uint32(resp.Payload[3])
		if !withinTolerance(chosen, attemptBaud, 0.005) {
			if attempt == 0 {
				attemptBaud /= 2
				continue
			}
			return e.fail("baud switch", stcerr.FrameError, fmt.Errorf("device chose %d, out of tolerance of requested %d", chosen, attemptBaud))
		}

		if err := t.SetBaud(chosen); err != nil {
			return e.fail("baud switch", stcerr.LinkLost, err)
		}
		if err := t.SetParity(plan.ParityDuringTransfer); err != nil {
			return e.fail("baud switch", stcerr.LinkLost, err)
		}

		// Ping at the new rate.
		if err := e.wire.SendFrame(t, e.params.Commands.Sync, nil); err != nil {
			return e.fail("baud switch", stcerr.LinkLost, err)
		}
		if _, err := e.wire.RecvFrame(t, time.Now().Add(2*time.Second)); err != nil {
			if attempt == 0 {
				attemptBaud /= 2
				continue
			}
			return e.fail("baud switch", stcerr.LinkLost, err)
		}

		target.CurrentBaud = chosen
		e.state = BaudSwitched
		return nil
	}
	return e.fail("baud switch", stcerr.LinkLost, fmt.Errorf("exhausted baud-switch fallback"))
}

func withinTolerance(got, want uint32, tolerance float64) bool {
	diff := float64(got) - float64(want)
	if diff < 0 {
		diff = -diff
	}
	return diff <= float64(want)*tolerance
}

// wakeupTargetKHz is the fixed target for the P15/P15A wakeup-timer trim:
// the conventional 32.768 kHz watch-crystal-equivalent RC frequency these
// parts' wakeup timers are calibrated against. wakeupSeedCounter is the
// counter value that lands on it exactly at WakeupCounterScale, used as
// the loop's starting guess the way the main trim seeds from the
// factory-measured counter (spec §4.6 P15A/P15: "a wakeup-frequency
// counter is also trimmed").
const (
	wakeupTargetKHz   = 32.768
	wakeupSeedCounter = 256
)

// trimToTarget runs the converge-on-measurement loop shared by the main
// oscillator trim and the P15/P15A wakeup-timer trim: send the trial
// counter, read back the device's measured counter, and walk toward
// targetKHz until the error is within tolerance or iterations run out.
func (e *engine) trimToTarget(t transport.Transport, cmd byte, seed int, targetKHz, scale float64) (int, error) {
	const maxIterations = 16
	bestCounter := seed
	bestErr := 1.0
	counter := seed

	for i := 0; i < maxIterations; i++ {
		payload := []byte{byte(counter >> 8), byte(counter)}
		if err := e.wire.SendFrame(t, cmd, payload); err != nil {
			return 0, e.fail("trim", stcerr.LinkLost, err)
		}
		resp, err := e.wire.RecvFrame(t, time.Now().Add(2*time.Second))
		if err != nil {
			return 0, e.fail("trim", stcerr.LinkLost, err)
		}
		if len(resp.Payload) < 2 {
			return 0, e.fail("trim", stcerr.FrameError, fmt.Errorf("short trim measurement reply"))
		}
		measuredCounter := int(resp.Payload[0])<<8 | int(resp.Payload[1])
		measuredKHz := float64(measuredCounter) * scale / 1000.0
		relErr := (measuredKHz - targetKHz) / targetKHz
		if relErr < 0 {
			relErr = -relErr
		}
		if relErr < bestErr {
			bestErr = relErr
			bestCounter = counter
		}
		if relErr <= 0.005 {
			break
		}
		if measuredKHz < targetKHz {
			counter++
		} else {
			counter--
		}
	}

	if bestErr > 0.005 {
		return 0, e.fail("trim", stcerr.TrimFailed, fmt.Errorf("best trim error %.3f%% exceeds 0.5%% tolerance", bestErr*100))
	}
	return bestCounter, nil
}

// Trim iteratively measures and adjusts the internal RC oscillator
// (spec §4.6 step 4): only available when the dialect/model supports it.
// On P15/P15A it also trims the wakeup-timer oscillator against a fixed
// target, appending its counter bytes after the main trim bytes.
func (e *engine) Trim(t transport.Transport, target *TargetState, targetKHz float64) ([]byte, error) {
	if !e.params.SupportsTrim || !target.Descriptor.RCTrimCapable {
		return nil, e.fail("trim", stcerr.Unsupported, fmt.Errorf("trim not supported on %s", e.params.Name))
	}
	if e.state != BaudSwitched {
		return nil, e.fail("trim", stcerr.FrameError, fmt.Errorf("trim called from state %s", e.state))
	}

	bestCounter, err := e.trimToTarget(t, e.params.Commands.Trim, target.FactoryTrimCounter, targetKHz, e.params.FreqCounterScale)
	if err != nil {
		return nil, err
	}
	trimBytes := []byte{byte(bestCounter >> 8), byte(bestCounter)}
	target.FactoryTrimCounter = bestCounter

	if e.params.Commands.WakeupTrim != 0 {
		wakeupCounter, err := e.trimToTarget(t, e.params.Commands.WakeupTrim, wakeupSeedCounter, wakeupTargetKHz, e.params.WakeupCounterScale)
		if err != nil {
			return nil, err
		}
		wakeupHz := float64(wakeupCounter) * e.params.WakeupCounterScale
		target.WakeupFreqHz = &wakeupHz
		trimBytes = append(trimBytes, byte(wakeupCounter>>8), byte(wakeupCounter))
	}

	e.state = Trimmed
	return trimBytes, nil
}

// Erase issues a whole-chip erase and waits for completion (spec §4.6
// step 5).
func (e *engine) Erase(t transport.Transport, target *TargetState) error {
	if e.state != BaudSwitched && e.state != Trimmed {
		return e.fail("erase", stcerr.FrameError, fmt.Errorf("erase called from state %s", e.state))
	}

	if err := e.wire.SendFrame(t, e.params.Commands.Erase, nil); err != nil {
		return e.fail("erase", stcerr.LinkLost, err)
	}
	deadline := time.Now().Add(time.Duration(eraseTimeoutSeconds(target)) * time.Second)
	resp, err := e.wire.RecvFrame(t, deadline)
	if err != nil {
		return e.fail("erase", stcerr.LinkLost, err)
	}
	if isNak(resp.Payload) {
		return e.fail("erase", stcerr.DeviceNak, fmt.Errorf("device rejected erase"))
	}

	e.state = Erased
	return nil
}

func eraseTimeoutSeconds(target *TargetState) int {
	if target.Descriptor.EraseTimeoutHint > 0 {
		return target.Descriptor.EraseTimeoutHint
	}
	return 30
}

func isNak(payload []byte) bool {
	return len(payload) > 0 && payload[0] == DeviceNakByte
}

// writeBlocks implements the shared block-wise programming loop (spec
// §4.6 step 6) for both code and EEPROM writes.
func (e *engine) writeBlocks(t transport.Transport, image []byte, blockSize int, reporter progress.Reporter, optionBytes []byte) error {
	if blockSize <= 0 {
		return fmt.Errorf("invalid block size %d", blockSize)
	}
	if rem := len(image) % blockSize; rem != 0 {
		padded := make([]byte, len(image)+(blockSize-rem))
		copy(padded, image)
		for i := len(image); i < len(padded); i++ {
			padded[i] = 0xFF
		}
		image = padded
	}
	total := len(image)
	for addr := 0; addr < total; addr += blockSize {
		end := addr + blockSize
		if end > total {
			end = total
		}
		block := image[addr:end]

		payload := make([]byte, 0, 2+len(block)+len(optionBytes))
		payload = append(payload, byte(addr>>8), byte(addr))
		payload = append(payload, block...)
		isLast := end >= total
		if isLast && optionBytes != nil {
			// Fused-options dialects (P89, P12A) append option bytes to
			// the final write's payload instead of a separate command.
			payload = append(payload, optionBytes...)
		}

		if err := e.wire.SendFrame(t, e.params.Commands.WriteBlock, payload); err != nil {
			return stcerr.Wrap(stcerr.LinkLost, "write code", err)
		}
		resp, err := e.wire.RecvFrame(t, time.Now().Add(3*time.Second))
		if err != nil {
			return stcerr.Wrap(stcerr.LinkLost, "write code", err)
		}
		if isNak(resp.Payload) {
			return &stcerr.Error{Kind: stcerr.DeviceNak, Stage: "write code", Msg: fmt.Sprintf("block at 0x%04X rejected", addr)}
		}
		if !verifyRunningChecksum(block, resp.Payload) {
			return &stcerr.Error{Kind: stcerr.FrameError, Stage: "write code", Msg: fmt.Sprintf("checksum mismatch at block 0x%04X", addr)}
		}

		if reporter != nil {
			reporter.OnBytes(end, total)
		}
	}

	if e.params.Commands.WriteFinish != 0 {
		if err := e.wire.SendFrame(t, e.params.Commands.WriteFinish, nil); err != nil {
			return stcerr.Wrap(stcerr.LinkLost, "write code", err)
		}
		if _, err := e.wire.RecvFrame(t, time.Now().Add(2*time.Second)); err != nil {
			return stcerr.Wrap(stcerr.LinkLost, "write code", err)
		}
	}
	return nil
}

func verifyRunningChecksum(block, ackPayload []byte) bool {
	if len(ackPayload) < 1 {
		return false
	}
	var sum byte
	for _, b := range block {
		sum += b
	}
	return ackPayload[0] == sum
}

// WriteCode programs the code-flash region block by block starting at
// address 0 (spec §4.6 step 6). On dialects where options are fused with
// the last write, callers must have already validated and encoded the
// option bytes and pass them through the session orchestrator; this
// generic engine only knows to append them when FusedOptions is set and
// the caller supplied some via WriteOptions staged beforehand (see
// engine.stagedOptions).
func (e *engine) WriteCode(t transport.Transport, target *TargetState, image []byte, reporter progress.Reporter) error {
	if e.state != Erased {
		return e.fail("write code", stcerr.FrameError, fmt.Errorf("write code called from state %s", e.state))
	}
	if reporter != nil {
		reporter.OnPhase("write code")
	}

	var fused []byte
	if e.params.FusedOptions {
		fused = e.stagedOptions
	}
	if err := e.writeBlocks(t, image, e.params.BlockSize, reporter, fused); err != nil {
		e.state = Failed
		return err
	}
	if fused != nil {
		target.CurrentOptionBytes = fused
		e.state = OptionsWritten
	} else {
		e.state = CodeWritten
	}
	return nil
}

// WriteEeprom programs the EEPROM/IAP region (spec §4.6 step 6).
func (e *engine) WriteEeprom(t transport.Transport, target *TargetState, image []byte, reporter progress.Reporter) error {
	if e.state != CodeWritten {
		return e.fail("write eeprom", stcerr.FrameError, fmt.Errorf("write eeprom called from state %s", e.state))
	}
	if len(image) == 0 {
		e.state = EepromWritten
		return nil
	}
	if reporter != nil {
		reporter.OnPhase("write eeprom")
	}
	if err := e.writeBlocks(t, image, e.params.EepromBlockSize, reporter, nil); err != nil {
		e.state = Failed
		return err
	}
	e.state = EepromWritten
	return nil
}

// WriteOptions commits option bytes (spec §4.6 step 7). On fused-option
// dialects it stages the bytes for the next WriteCode call instead of
// sending a standalone command, since the device doesn't accept one.
func (e *engine) WriteOptions(t transport.Transport, target *TargetState, optionBytes []byte) error {
	if e.params.FusedOptions {
		e.stagedOptions = optionBytes
		return nil
	}
	if e.state != CodeWritten && e.state != EepromWritten {
		return e.fail("write options", stcerr.FrameError, fmt.Errorf("write options called from state %s", e.state))
	}

	payload := optionBytes
	if e.params.OptionsCRC {
		sum := options.Checksum(optionBytes)
		payload = append(append([]byte(nil), optionBytes...), byte(sum>>8), byte(sum))
	}

	if err := e.wire.SendFrame(t, e.params.Commands.WriteOptions, payload); err != nil {
		return e.fail("write options", stcerr.LinkLost, err)
	}
	resp, err := e.wire.RecvFrame(t, time.Now().Add(2*time.Second))
	if err != nil {
		return e.fail("write options", stcerr.LinkLost, err)
	}
	if isNak(resp.Payload) {
		return e.fail("write options", stcerr.DeviceNak, fmt.Errorf("device rejected options"))
	}

	target.CurrentOptionBytes = optionBytes
	e.state = OptionsWritten
	return nil
}

// Terminate sends the disconnect command (spec §4.6 step 8). Called from
// Failed, it attempts the disconnect best-effort and ignores the result.
func (e *engine) Terminate(t transport.Transport, target *TargetState) error {
	bestEffort := e.state == Failed
	err := e.wire.SendFrame(t, e.params.Commands.Disconnect, nil)
	if err == nil {
		_, err = e.wire.RecvFrame(t, time.Now().Add(2*time.Second))
	}
	if bestEffort {
		e.state = Terminated
		return nil
	}
	if err != nil {
		return e.fail("terminate", stcerr.LinkLost, err)
	}
	e.state = Terminated
	return nil
}
