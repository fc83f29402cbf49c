package progress

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	phaseStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	byteStyle  = lipgloss.NewStyle().Faint(true)
)

// CLIReporter renders progress as plain lines styled with lipgloss: a
// colored phase name on its own line, a dim byte counter that overwrites
// itself via carriage return while a write step is in flight. It never
// reads from the transport, so it can't stall a frame exchange.
type CLIReporter struct {
	w io.Writer
}

func NewCLIReporter(w io.Writer) *CLIReporter {
	return &CLIReporter{w: w}
}

func (r *CLIReporter) OnPhase(name string) {
	fmt.Fprintf(r.w, "%s\n", phaseStyle.Render(name))
}

func (r *CLIReporter) OnBytes(done, total int) {
	line := fmt.Sprintf("%d / %d bytes", done, total)
	fmt.Fprintf(r.w, "\r%s", byteStyle.Render(line))
	if done >= total {
		fmt.Fprintln(r.w)
	}
}

var _ Reporter = (*CLIReporter)(nil)
