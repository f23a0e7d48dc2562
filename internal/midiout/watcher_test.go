package midiout

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/chase3718/pico-knob-midi/internal/control"
)

// --- fake driver ---

type fakeOut struct {
	name    string
	open    bool
	sent    [][]byte
	sendErr error
}

func (o *fakeOut) Open() error             { o.open = true; return nil }
func (o *fakeOut) Close() error            { o.open = false; return nil }
func (o *fakeOut) IsOpen() bool            { return o.open }
func (o *fakeOut) Number() int             { return 0 }
func (o *fakeOut) String() string          { return o.name }
func (o *fakeOut) Underlying() interface{} { return nil }
func (o *fakeOut) Send(data []byte) error {
	if o.sendErr != nil {
		return o.sendErr
	}
	o.sent = append(o.sent, append([]byte(nil), data...))
	return nil
}

type fakeDriver struct {
	outs    []*fakeOut
	virtual *fakeOut
	closed  bool
}

func (d *fakeDriver) Ins() ([]drivers.In, error) { return nil, nil }
func (d *fakeDriver) Outs() ([]drivers.Out, error) {
	outs := make([]drivers.Out, len(d.outs))
	for i, o := range d.outs {
		outs[i] = o
	}
	return outs, nil
}
func (d *fakeDriver) String() string { return "fake" }
func (d *fakeDriver) Close() error   { d.closed = true; return nil }

type fakeVirtualDriver struct {
	fakeDriver
}

func (d *fakeVirtualDriver) OpenVirtualOut(name string) (drivers.Out, error) {
	d.virtual = &fakeOut{name: name}
	return d.virtual, nil
}

// --- helpers ---

func newTestWatcher(drv drivers.Driver, opts Options) (*Watcher, *time.Time) {
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWatcher(drv, opts)
	clock := time.Unix(1000, 0)
	w.now = func() time.Time { return clock }
	return w, &clock
}

// --- tests ---

func TestWatcherNotConnectedUntilTick(t *testing.T) {
	drv := &fakeDriver{outs: []*fakeOut{{name: "Pico MIDI 1"}}}
	w, _ := newTestWatcher(drv, Options{})

	if err := w.Send(midi.NoteOn(0, 60, 100)); !errors.Is(err, control.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected before the first scan, got %v", err)
	}

	w.Tick()
	if ok, name := w.Connected(); !ok || name != "Pico MIDI 1" {
		t.Fatalf("expected connection to the only output, got %v %q", ok, name)
	}
	if err := w.Send(midi.NoteOn(0, 60, 100)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(drv.outs[0].sent) != 1 {
		t.Errorf("expected one message on the port, got %d", len(drv.outs[0].sent))
	}
}

func TestWatcherPrefersAndExcludes(t *testing.T) {
	drv := &fakeDriver{outs: []*fakeOut{
		{name: "Midi Through Port-0"},
		{name: "USB Synth"},
		{name: "CircuitPython usb_midi.ports[1]"},
	}}
	w, _ := newTestWatcher(drv, Options{
		Preferred: []string{"circuitpython"},
		Excluded:  []string{"Midi Through"},
	})

	w.Tick()
	if _, name := w.Connected(); name != "CircuitPython usb_midi.ports[1]" {
		t.Errorf("connected to %q, want the preferred port", name)
	}
}

func TestWatcherAmbiguousWithoutPreference(t *testing.T) {
	drv := &fakeDriver{outs: []*fakeOut{{name: "A"}, {name: "B"}}}
	w, _ := newTestWatcher(drv, Options{})

	w.Tick()
	if ok, _ := w.Connected(); ok {
		t.Errorf("two candidates and no preference should not auto-connect")
	}
}

func TestWatcherHotUnplugAndReplug(t *testing.T) {
	port := &fakeOut{name: "Pico"}
	drv := &fakeDriver{outs: []*fakeOut{port}}
	w, clock := newTestWatcher(drv, Options{})

	w.Tick()
	drv.outs = nil

	// Within the rescan interval nothing is checked.
	*clock = clock.Add(500 * time.Millisecond)
	w.Tick()
	if ok, _ := w.Connected(); !ok {
		t.Fatalf("rescan should be rate limited")
	}

	*clock = clock.Add(time.Second)
	w.Tick()
	if ok, _ := w.Connected(); ok {
		t.Fatalf("watcher should notice the port disappeared")
	}
	if port.IsOpen() {
		t.Errorf("vanished port should be closed")
	}

	drv.outs = []*fakeOut{port}
	w.Tick() // disappearance resets the rescan timer
	if ok, _ := w.Connected(); !ok {
		t.Errorf("watcher should reconnect immediately after a disappearance")
	}
}

func TestWatcherWriteErrorDropsPort(t *testing.T) {
	port := &fakeOut{name: "Pico"}
	drv := &fakeDriver{outs: []*fakeOut{port}}
	w, _ := newTestWatcher(drv, Options{})
	w.Tick()

	port.sendErr = errors.New("broken pipe")
	err := w.Send(midi.ControlChange(0, 1, 64))
	if err == nil || errors.Is(err, control.ErrNotConnected) {
		t.Fatalf("expected a wrapped write error, got %v", err)
	}
	if ok, _ := w.Connected(); ok {
		t.Errorf("write failure should drop the connection")
	}
	if err := w.Send(midi.ControlChange(0, 1, 64)); !errors.Is(err, control.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after the drop, got %v", err)
	}
}

func TestWatcherVirtualPort(t *testing.T) {
	drv := &fakeVirtualDriver{}
	w, _ := newTestWatcher(drv, Options{Virtual: "pico-knob-midi"})

	w.Tick()
	if ok, name := w.Connected(); !ok || name != "pico-knob-midi" {
		t.Fatalf("expected virtual port, got %v %q", ok, name)
	}
	if err := w.Send(midi.NoteOff(0, 60)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(drv.virtual.sent) != 1 {
		t.Errorf("expected the message on the virtual port")
	}
}

func TestWatcherVirtualUnsupported(t *testing.T) {
	w, _ := newTestWatcher(&fakeDriver{}, Options{Virtual: "x"})
	w.Tick()
	if ok, _ := w.Connected(); ok {
		t.Errorf("driver without virtual ports should stay disconnected")
	}
}

func TestWatcherCloseClosesDriver(t *testing.T) {
	drv := &fakeDriver{outs: []*fakeOut{{name: "Pico"}}}
	w, _ := newTestWatcher(drv, Options{})
	w.Tick()
	w.Close()
	if !drv.closed {
		t.Errorf("Close should close the driver")
	}
	if drv.outs[0].IsOpen() {
		t.Errorf("Close should close the open port")
	}
}
