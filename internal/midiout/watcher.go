// Package midiout is the host side MIDI transport: an output port that
// follows hot-plug, plus a recorder that keeps a Standard MIDI File of what
// was sent.
package midiout

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/chase3718/pico-knob-midi/internal/control"
)

const rescanInterval = 1000 * time.Millisecond

// Options selects which output port the watcher connects to.
type Options struct {
	// Preferred ports are picked first, matched case-insensitively.
	Preferred []string
	// Excluded ports (virtual/system) are never auto-connected.
	Excluded []string
	// Virtual, when set, opens a virtual output port of that name instead of
	// scanning for hardware.
	Virtual string
	Logger  *slog.Logger
}

// virtualOpener is implemented by drivers that can publish their own port.
type virtualOpener interface {
	OpenVirtualOut(name string) (drivers.Out, error)
}

// Watcher keeps a connection to the preferred MIDI output. It handles a port
// appearing after start and a port disappearing while in use. Send and Tick
// may be called from different goroutines.
type Watcher struct {
	mu           sync.Mutex
	drv          drivers.Driver
	opts         Options
	logger       *slog.Logger
	out          drivers.Out
	send         func(midi.Message) error
	connected    bool
	selectedName string
	lastRescanAt time.Time
	now          func() time.Time
}

// NewWatcher creates a watcher over drv, usually an rtmididrv.Driver. Close
// releases the driver too.
func NewWatcher(drv drivers.Driver, opts Options) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		drv:    drv,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Close shuts down the active connection and the driver.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeConn()
	if err := w.drv.Close(); err != nil {
		w.logger.Warn("midi: driver close failed", "err", err)
	}
}

// Connected reports whether an output port is open, and which.
func (w *Watcher) Connected() (bool, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected, w.selectedName
}

// Send transmits one event. It returns control.ErrNotConnected while no
// port is open. A write error closes the port and forces a rescan.
func (w *Watcher) Send(msg midi.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.connected {
		return control.ErrNotConnected
	}
	if err := w.send(msg); err != nil {
		name := w.selectedName
		w.logger.Warn("midi: write failed, dropping port", "device", name, "err", err)
		w.closeConn()
		w.lastRescanAt = time.Time{}
		return fmt.Errorf("midi: send to %q: %w", name, err)
	}
	return nil
}

// Tick should be called on a regular interval from the main program. It
// scans for ports at most once per second, auto-connects to a preferred one
// and notices when the connected one disappears.
func (w *Watcher) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if !w.lastRescanAt.IsZero() && now.Sub(w.lastRescanAt) < rescanInterval {
		return
	}
	w.lastRescanAt = now

	if w.opts.Virtual != "" {
		if !w.connected {
			if err := w.openVirtual(w.opts.Virtual); err != nil {
				w.logger.Error("midi: virtual port failed", "name", w.opts.Virtual, "err", err)
			}
		}
		return
	}

	outputs := w.listOutputs()

	if w.connected {
		for _, n := range outputs {
			if n == w.selectedName {
				return
			}
		}
		w.logger.Warn("midi: device disappeared", "device", w.selectedName)
		w.closeConn()
		w.lastRescanAt = time.Time{}
		return
	}

	if len(outputs) == 0 {
		return
	}
	cand, ok := w.pickPreferred(outputs)
	if !ok {
		w.logger.Debug("midi: no preferred output", "available", strings.Join(outputs, ", "))
		return
	}
	if err := w.openByName(cand); err != nil {
		w.logger.Error("midi: connect failed", "device", cand, "err", err)
	}
}

// ListOutputs returns every output port name the driver reports.
func (w *Watcher) ListOutputs() ([]string, error) {
	outs, err := w.drv.Outs()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(outs))
	for _, o := range outs {
		names = append(names, o.String())
	}
	return names, nil
}

// -------------------- internal --------------------

func (w *Watcher) listOutputs() []string {
	outs, err := w.drv.Outs()
	if err != nil {
		w.logger.Error("midi: list outputs failed", "err", err)
		return nil
	}
	var names []string
	for _, o := range outs {
		name := o.String()
		if matchesAny(name, w.opts.Excluded) {
			w.logger.Debug("midi: output excluded", "device", name)
			continue
		}
		names = append(names, name)
	}
	w.logger.Debug("midi: outputs found", "count", len(names), "devices", strings.Join(names, ", "))
	return names
}

func (w *Watcher) pickPreferred(outputs []string) (string, bool) {
	for _, pat := range w.opts.Preferred {
		for _, name := range outputs {
			if containsCI(name, pat) {
				return name, true
			}
		}
	}
	if len(outputs) == 1 {
		return outputs[0], true
	}
	return "", false
}

func (w *Watcher) closeConn() {
	if w.out != nil {
		_ = w.out.Close()
		w.out = nil
	}
	w.send = nil
	w.connected = false
	w.selectedName = ""
}

func (w *Watcher) openByName(name string) error {
	outs, err := w.drv.Outs()
	if err != nil {
		return err
	}
	var found drivers.Out
	for _, o := range outs {
		if o.String() == name {
			found = o
			break
		}
	}
	if found == nil {
		return fmt.Errorf("output %q not found", name)
	}
	return w.attach(found, name)
}

func (w *Watcher) openVirtual(name string) error {
	v, ok := w.drv.(virtualOpener)
	if !ok {
		return fmt.Errorf("driver %s cannot open virtual ports", w.drv.String())
	}
	out, err := v.OpenVirtualOut(name)
	if err != nil {
		return fmt.Errorf("open virtual %q: %w", name, err)
	}
	return w.attach(out, name)
}

func (w *Watcher) attach(out drivers.Out, name string) error {
	send, err := midi.SendTo(out)
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("open %q: %w", name, err)
	}
	w.out = out
	w.send = send
	w.connected = true
	w.selectedName = name
	w.logger.Info("midi: connected", "device", name)
	return nil
}

// -------------------- utility --------------------

func matchesAny(name string, patterns []string) bool {
	for _, pat := range patterns {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
