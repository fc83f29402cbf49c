// Command stcisp programs STC/8051 microcontrollers over the vendor BSL
// protocol: identify, optional RC trim, erase, write code/EEPROM/options,
// terminate (spec §6).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/google/gousb"

	"stcisp/internal/dialect"
	"stcisp/internal/imagefile"
	"stcisp/internal/progress"
	"stcisp/internal/session"
	"stcisp/internal/stcerr"
	"stcisp/internal/transport"
	"stcisp/internal/transport/serialtransport"
	"stcisp/internal/transport/usbtransport"
)

// version is stamped by release tooling; a bare default is normal for a
// development checkout.
var version = "dev"

// optionFlags collects repeated -o/--option KEY=VAL arguments.
type optionFlags struct {
	values map[string]any
}

func (o *optionFlags) String() string { return "" }

func (o *optionFlags) Set(s string) error {
	key, val, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("option %q must be KEY=VALUE", s)
	}
	if o.values == nil {
		o.values = map[string]any{}
	}
	o.values[key] = parseOptionValue(val)
	return nil
}

// parseOptionValue guesses the field's Go type the way the options
// registry expects it: an integer for numeric fields, a bool for fuse
// bits, otherwise the raw string for an enum label.
func parseOptionValue(val string) any {
	if n, err := strconv.Atoi(val); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return val
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("stcisp", flag.ContinueOnError)

	var (
		autoReset   bool
		resetLine   string
		resetCmd    string
		dialectName string
		port        string
		baud        int
		handshake   int
		trimKHz     float64
		debug       bool
		showVersion bool
		listPorts   bool
		dryRun      bool
		codePath    string
		eepromPath  string
	)
	var opts optionFlags

	fs.BoolVar(&autoReset, "a", false, "auto-assert reset before programming")
	fs.BoolVar(&autoReset, "autoreset", false, "auto-assert reset before programming")
	fs.StringVar(&resetLine, "A", "dtr", "reset line to use with -a: dtr or rts")
	fs.StringVar(&resetCmd, "r", "", "shell command to run instead of a reset line")
	fs.StringVar(&resetCmd, "resetcmd", "", "shell command to run instead of a reset line")
	fs.StringVar(&dialectName, "P", "auto", "protocol dialect: stc89, stc12a, stc12b, stc12, stc15a, stc15, stc8, usb15, auto")
	fs.StringVar(&port, "p", "", "serial port device path")
	fs.StringVar(&port, "port", "", "serial port device path")
	fs.IntVar(&baud, "b", 19200, "transfer baud rate")
	fs.IntVar(&baud, "baud", 19200, "transfer baud rate")
	fs.IntVar(&handshake, "l", 2400, "handshake baud rate")
	fs.IntVar(&handshake, "handshake", 2400, "handshake baud rate")
	fs.Var(&opts, "o", "option KEY=VALUE, repeatable")
	fs.Var(&opts, "option", "option KEY=VALUE, repeatable")
	fs.Float64Var(&trimKHz, "t", 0, "target oscillator frequency in kHz to trim to")
	fs.Float64Var(&trimKHz, "trim", 0, "target oscillator frequency in kHz to trim to")
	fs.BoolVar(&debug, "D", false, "enable debug logging")
	fs.BoolVar(&debug, "debug", false, "enable debug logging")
	fs.BoolVar(&showVersion, "V", false, "print version and exit")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.BoolVar(&listPorts, "list-ports", false, "list available serial ports and exit")
	fs.BoolVar(&dryRun, "dry-run", false, "resolve flags, load images and print the plan without touching a device")
	fs.StringVar(&codePath, "code", "", "code flash image (HEX or BIN)")
	fs.StringVar(&eepromPath, "eeprom", "", "EEPROM/IAP image (HEX or BIN)")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	if showVersion {
		fmt.Fprintln(os.Stdout, "stcisp", version)
		return 0
	}

	if listPorts {
		ports, err := serialtransport.ListPorts()
		if err != nil {
			fmt.Fprintln(os.Stderr, "stcisp:", err)
			return 1
		}
		for _, p := range ports {
			fmt.Fprintln(os.Stdout, p)
		}
		return 0
	}

	if fs.NArg() > 0 {
		codePath = fs.Arg(0)
	}
	if codePath == "" && !dryRun {
		fmt.Fprintln(os.Stderr, "stcisp: a code image is required (positional argument or -code)")
		return 2
	}

	// Engine construction (and so the real flash region size and block
	// size) happens after identify, so images load here unpadded against a
	// generous upper bound; the session's write_code/write_eeprom steps
	// pad per block themselves as they walk the image.
	var codeImage, eepromImage []byte
	if codePath != "" {
		img, err := loadImage(codePath, 1<<20, 1)
		if err != nil {
			fmt.Fprintln(os.Stderr, "stcisp:", err)
			return stcerr.ExitStatus(err)
		}
		codeImage = img
	}
	if eepromPath != "" {
		img, err := loadImage(eepromPath, 1<<20, 1)
		if err != nil {
			fmt.Fprintln(os.Stderr, "stcisp:", err)
			return stcerr.ExitStatus(err)
		}
		eepromImage = img
	}

	if dryRun {
		fmt.Fprintf(os.Stdout, "dialect=%s port=%s baud=%d handshake=%d trim=%v code_bytes=%d eeprom_bytes=%d options=%v\n",
			dialectName, port, baud, handshake, trimKHz, len(codeImage), len(eepromImage), opts.values)
		return 0
	}

	t, cleanup, err := openTransport(dialectName, port, handshake, resetLine)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stcisp:", err)
		return stcerr.ExitStatus(err)
	}
	defer cleanup()

	if resetCmd != "" {
		if err := exec.Command("sh", "-c", resetCmd).Run(); err != nil {
			fmt.Fprintln(os.Stderr, "stcisp: reset command failed:", err)
			return 1
		}
	}

	reporter := progress.Reporter(progress.NopReporter{})
	if debug {
		reporter = progress.NewCLIReporter(os.Stderr)
	}

	runOpts := session.Options{
		RequestedDialect: dialectName,
		HandshakeBaud:    uint32(handshake),
		TransferBaud:     uint32(baud),
		TrimKHz:          trimKHz,
		OptionChanges:    opts.values,
		AssertResetFirst: autoReset && resetCmd == "",
		ResetPulse:       50 * time.Millisecond,
		Reporter:         reporter,
	}

	factory := func(name string) (dialect.Engine, error) {
		return buildEngine(name)
	}

	result, err := runSessionInterruptible(t, factory, codeImage, eepromImage, runOpts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stcisp:", err)
		return stcerr.ExitStatus(err)
	}

	fmt.Fprintf(os.Stdout, "programmed %s (%s), final state %s\n", result.Target.Descriptor.Name, result.Dialect, result.FinalState)
	return 0
}

func loadImage(path string, maxSize, blockSize int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, stcerr.Wrap(stcerr.BadImage, "load image", err)
	}
	defer f.Close()

	img, err := imagefile.Load(path, f, maxSize, blockSize)
	if err != nil {
		return nil, stcerr.Wrap(stcerr.BadImage, "load image", err)
	}
	return img, nil
}

func openTransport(dialectName, port string, handshakeBaud int, resetLine string) (transport.Transport, func(), error) {
	if dialectName == "usb15" {
		t, err := usbtransport.Open(gousb.ID(0x5851), gousb.ID(0x0003), 2, 1)
		if err != nil {
			return nil, nil, stcerr.Wrap(stcerr.LinkLost, "open transport", err)
		}
		return t, func() { _ = t.Close() }, nil
	}

	if port == "" {
		return nil, nil, &stcerr.Error{Kind: stcerr.LinkLost, Stage: "open transport", Msg: "a serial port is required unless -P usb15"}
	}
	line := serialtransport.ResetDTR
	if resetLine == "rts" {
		line = serialtransport.ResetRTS
	}
	t, err := serialtransport.Open(port, handshakeBaud, line)
	if err != nil {
		return nil, nil, stcerr.Wrap(stcerr.LinkLost, "open transport", err)
	}
	return t, func() { _ = t.Close() }, nil
}

// runSessionInterruptible runs session.Run in the background and races it
// against SIGINT. On interrupt it closes the transport, which unblocks
// whatever read/write session.Run is waiting on so the session's own
// failure path runs its best-effort terminate, then reports UserAbort so
// the exit code comes out 2 rather than whatever I/O error the closed
// transport produced (spec §5 "signal ... transitions directly to
// best-effort terminate and exits with status 2").
func runSessionInterruptible(t transport.Transport, factory session.EngineFactory, codeImage, eepromImage []byte, opts session.Options) (session.Result, error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	type outcome struct {
		result session.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := session.Run(t, factory, codeImage, eepromImage, opts)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-sigCh:
		_ = t.Close()
		<-done
		return session.Result{}, &stcerr.Error{Kind: stcerr.UserAbort, Stage: "signal", Msg: "interrupted"}
	}
}

// buildEngine constructs the Engine for a resolved dialect name. P12/P12B
// and P8 take model-specific geometry the session doesn't otherwise learn
// until after identify, so this CLI uses the documented common block
// sizes (spec §9 open question: "retain the current behavior of picking
// by model rather than by announcement") rather than deferring
// construction until after Detect runs.
func buildEngine(name string) (dialect.Engine, error) {
	switch name {
	case "stc89":
		return dialect.NewP89(), nil
	case "stc12a":
		return dialect.NewP12A(), nil
	case "stc12b":
		return dialect.NewP12B("stc12b", 256), nil
	case "stc12":
		return dialect.NewP12B("stc12", 128), nil
	case "stc15a":
		return dialect.NewP15A(), nil
	case "stc15":
		return dialect.NewP15(), nil
	case "stc8":
		return dialect.NewP8(128, 65536), nil
	case "usb15":
		return dialect.NewU15(), nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}
