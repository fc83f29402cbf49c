// Package progress abstracts the session's progress callback (spec §9
// Design Notes): the core emits phase and byte-count events, the CLI
// renders them, and rendering must never block a transport read.
package progress

// Reporter receives progress events from a programming session. OnPhase
// fires once per session step (e.g. "erase", "write code");
// OnBytes fires as a write step makes progress through its image.
type Reporter interface {
	OnPhase(name string)
	OnBytes(done, total int)
}

// NopReporter discards every event; it's the session's default so callers
// that don't care about progress don't need a nil check at every call
// site.
type NopReporter struct{}

func (NopReporter) OnPhase(string)  {}
func (NopReporter) OnBytes(int, int) {}

var _ Reporter = NopReporter{}
