package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/chase3718/pico-knob-midi/internal/config"
	"github.com/chase3718/pico-knob-midi/internal/control"
	"github.com/chase3718/pico-knob-midi/internal/link"
	"github.com/chase3718/pico-knob-midi/internal/midiout"
)

// -------------------- Logger --------------------

// logger is the program-wide structured logger. Safe to use before initLogger
// is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// -------------------- Flags --------------------

type options struct {
	configPath string
	debug      bool
	list       bool
	saveConfig bool
	record     string

	// overrides, applied only when the flag was given
	serial  string
	baud    int
	out     string
	virtual string
	set     map[string]bool
}

func parseFlags(args []string) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("pico-knob-midi", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "config file (default <user config dir>/pico-knob-midi/config.json)")
	fs.BoolVar(&o.debug, "debug", false, "enable debug logging (adds source location)")
	fs.BoolVar(&o.list, "list", false, "list MIDI output and serial ports, then exit")
	fs.BoolVar(&o.saveConfig, "save-config", false, "write the effective config back to the config file")
	fs.StringVar(&o.record, "record", "", "record every emitted event to this .mid file")
	fs.StringVar(&o.serial, "serial", "", "serial port device of the board")
	fs.IntVar(&o.baud, "baud", 0, "serial baud rate")
	fs.StringVar(&o.out, "out", "", "comma separated MIDI output name patterns to prefer")
	fs.StringVar(&o.virtual, "virtual", "", "publish a virtual MIDI output with this name")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

func (o *options) apply(cfg *config.Config) {
	if o.set["serial"] {
		cfg.SerialPort = o.serial
	}
	if o.set["baud"] {
		cfg.Baud = o.baud
	}
	if o.set["out"] {
		cfg.MIDIOutPatterns = splitPatterns(o.out)
	}
	if o.set["virtual"] {
		cfg.VirtualPort = o.virtual
	}
}

func splitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// -------------------- Clock --------------------

// hostClock counts milliseconds from process start on the monotonic clock.
type hostClock struct{ start time.Time }

func newHostClock() hostClock { return hostClock{start: time.Now()} }

func (c hostClock) NowMs() control.Millis {
	return control.Millis(time.Since(c.start).Milliseconds())
}

// -------------------- Main --------------------

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	initLogger(opts.debug)

	if err := run(opts); err != nil {
		logger.Error("pico-knob-midi: fatal", "err", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	path := opts.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return fmt.Errorf("config path: %w", err)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if opts.saveConfig {
		if err := cfg.Save(path); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		logger.Info("config: saved", "path", path)
	}

	drv, err := rtmididrv.New()
	if err != nil {
		return fmt.Errorf("rtmididrv: %w", err)
	}
	watcher := midiout.NewWatcher(drv, midiout.Options{
		Preferred: cfg.MIDIOutPatterns,
		Excluded:  cfg.MIDIOutExcluded,
		Virtual:   cfg.VirtualPort,
		Logger:    logger,
	})
	defer watcher.Close()

	if opts.list {
		return listPorts(os.Stdout, watcher)
	}

	logger.Info("pico-knob-midi starting",
		"profile", cfg.ID,
		"config", path,
		"serial", cfg.SerialPort,
		"baud", cfg.Baud,
		"note", cfg.Note,
		"velocity", cfg.Velocity,
		"channel", cfg.Channel,
		"cc", cfg.CCNumber,
		"debounce_ms", cfg.DebounceMs,
		"active_low", cfg.ActiveLow,
		"adc_samples", cfg.ADCSamples,
		"cc_hysteresis", cfg.CCHysteresis,
		"cc_send_min_ms", cfg.CCSendMinMs,
		"edge_deadzone", cfg.EdgeDeadzone,
		"idle_ms", cfg.IdleMs,
		"raw_max", cfg.RawMax,
		"send_error_policy", cfg.SendErrorPolicy,
	)

	board, err := link.Open(cfg.SerialPort, cfg.Baud, cfg.IdleLevel(), logger)
	if err != nil {
		return err
	}
	defer board.Close()

	var out control.Sender = watcher
	var rec *midiout.Recorder
	if opts.record != "" {
		rec = midiout.NewRecorder(watcher, cfg.ID)
		out = rec
	}

	ctl, err := control.NewController(cfg.Settings(), control.Collaborators{
		Clock:     newHostClock(),
		Button:    board,
		Knob:      board,
		Out:       out,
		Indicator: board,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go watchPorts(ctx, watcher)

	logger.Info("running - waiting for MIDI output")
	ctl.Run(ctx)
	logger.Info("pico-knob-midi stopping")

	frames, dropped := board.Stats()
	logger.Info("serial: link stats", "frames", frames, "dropped", dropped)

	if rec != nil {
		if err := rec.WriteFile(opts.record); err != nil {
			return fmt.Errorf("record: %w", err)
		}
		logger.Info("record: written", "path", opts.record, "events", rec.Events())
	}
	return nil
}

// watchPorts rescans MIDI outputs until ctx is done.
func watchPorts(ctx context.Context, w *midiout.Watcher) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	w.Tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick()
		}
	}
}

func listPorts(out io.Writer, w *midiout.Watcher) error {
	outs, err := w.ListOutputs()
	if err != nil {
		return fmt.Errorf("list MIDI outputs: %w", err)
	}
	fmt.Fprintln(out, "=== MIDI Output Ports ===")
	for i, name := range outs {
		fmt.Fprintf(out, "  %d: %s\n", i, name)
	}

	ports, err := link.ListPorts()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	fmt.Fprintln(out, "\n=== Serial Ports ===")
	for i, name := range ports {
		fmt.Fprintf(out, "  %d: %s\n", i, name)
	}
	return nil
}
