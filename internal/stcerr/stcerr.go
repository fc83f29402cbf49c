// Package stcerr defines the error kinds the programming session and its
// dialect engines can raise, per the error handling design: each kind is
// distinct so the retry policy and the CLI's exit-status mapping can switch
// on it instead of matching error strings.
package stcerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories a session can fail with.
type Kind string

const (
	LinkLost            Kind = "LinkLost"
	FrameError          Kind = "FrameError"
	DeviceNak           Kind = "DeviceNak"
	UnknownModel        Kind = "UnknownModel"
	AutodetectAmbiguous Kind = "AutodetectAmbiguous"
	Unsupported         Kind = "Unsupported"
	BadOption           Kind = "BadOption"
	BadImage            Kind = "BadImage"
	TrimFailed          Kind = "TrimFailed"
	UserAbort           Kind = "UserAbort"
)

// Error is a typed session error: a Kind plus the stage it occurred in
// (e.g. "handshake", "erase", "write code") and an optional wrapped cause.
type Error struct {
	Kind  Kind
	Stage string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Msg)
		}
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with the given kind, stage and formatted message.
func New(kind Kind, stage, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that carries an underlying cause.
func Wrap(kind Kind, stage string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Stage: stage, Msg: err.Error(), Err: err}
}

// ExitStatus maps a session-level error to the process exit status defined
// in spec.md §6: 2 for user interrupt, 1 for everything else, 0 is the
// caller's responsibility when err == nil.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	var se *Error
	if errors.As(err, &se) && se.Kind == UserAbort {
		return 2
	}
	return 1
}
