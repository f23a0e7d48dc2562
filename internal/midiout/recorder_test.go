package midiout

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/chase3718/pico-knob-midi/internal/control"
)

type countingSender struct {
	n   int
	err error
}

func (s *countingSender) Send(midi.Message) error {
	s.n++
	return s.err
}

func newTestRecorder(next control.Sender) (*Recorder, *time.Time) {
	r := NewRecorder(next, "profile")
	clock := time.Unix(2000, 0)
	r.now = func() time.Time { return clock }
	r.last = clock
	return r, &clock
}

func TestRecorderForwardsAndRecords(t *testing.T) {
	next := &countingSender{err: control.ErrNotConnected}
	r, clock := newTestRecorder(next)

	if err := r.Send(midi.NoteOn(0, 60, 100)); err != control.ErrNotConnected {
		t.Fatalf("Recorder should pass the next sender's error through, got %v", err)
	}
	*clock = clock.Add(500 * time.Millisecond)
	r.Send(midi.NoteOff(0, 60))

	if next.n != 2 {
		t.Errorf("next sender saw %d events, want 2", next.n)
	}
	if r.Events() != 2 {
		t.Errorf("recorded %d events, want 2", r.Events())
	}
}

func TestRecorderWritesReadableSMF(t *testing.T) {
	r, clock := newTestRecorder(nil)

	r.Send(midi.NoteOn(0, 60, 100))
	*clock = clock.Add(500 * time.Millisecond) // one quarter note at 120 bpm
	r.Send(midi.ControlChange(0, 1, 64))
	r.Send(midi.NoteOff(0, 60))

	var buf bytes.Buffer
	if _, err := r.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	s, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(s.Tracks) != 1 {
		t.Fatalf("expected one track, got %d", len(s.Tracks))
	}

	var ch, key, vel, cc, val uint8
	var ons, offs, ccs int
	var ccDelta uint32
	for _, ev := range s.Tracks[0] {
		msg := midi.Message(ev.Message)
		switch {
		case msg.GetNoteOn(&ch, &key, &vel):
			ons++
		case msg.GetNoteOff(&ch, &key, &vel):
			offs++
		case msg.GetControlChange(&ch, &cc, &val):
			ccs++
			ccDelta = ev.Delta
		}
	}
	if ons != 1 || offs != 1 || ccs != 1 {
		t.Fatalf("read back %d on / %d off / %d cc, want 1/1/1", ons, offs, ccs)
	}
	if ccDelta < 959 || ccDelta > 961 {
		t.Errorf("500ms at 120bpm should be ~960 ticks, got %d", ccDelta)
	}
}

func TestRecorderWriteFile(t *testing.T) {
	r, _ := newTestRecorder(nil)
	r.Send(midi.NoteOn(0, 60, 100))

	path := filepath.Join(t.TempDir(), "take.mid")
	if err := r.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := smf.ReadFile(path); err != nil {
		t.Errorf("ReadFile: %v", err)
	}
}
