package midiout

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/chase3718/pico-knob-midi/internal/control"
)

const (
	recordTempo      = 120.0
	recordResolution = smf.MetricTicks(960)
)

// Recorder tees every emitted event into a single-track Standard MIDI File
// before passing it on. Events are recorded even when the next sender
// refuses them, so a session without a connected port is still captured.
type Recorder struct {
	mu     sync.Mutex
	next   control.Sender
	name   string
	track  smf.Track
	last   time.Time
	events int
	now    func() time.Time
}

// NewRecorder records into a track called name and forwards to next, which
// may be nil.
func NewRecorder(next control.Sender, name string) *Recorder {
	r := &Recorder{next: next, name: name, now: time.Now}
	r.last = r.now()
	return r
}

func (r *Recorder) Send(msg midi.Message) error {
	r.mu.Lock()
	t := r.now()
	delta := recordResolution.Ticks(recordTempo, t.Sub(r.last))
	r.track.Add(delta, msg)
	r.last = t
	r.events++
	r.mu.Unlock()

	if r.next == nil {
		return nil
	}
	return r.next.Send(msg)
}

// Events returns the number of recorded events.
func (r *Recorder) Events() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events
}

// WriteTo encodes the recording as an SMF.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName(r.name))
	tr.Add(0, smf.MetaTempo(recordTempo))
	tr = append(tr, r.track...)
	r.mu.Unlock()
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = recordResolution
	if err := s.Add(tr); err != nil {
		return 0, fmt.Errorf("smf: add track: %w", err)
	}
	return s.WriteTo(w)
}

// WriteFile writes the recording to path.
func (r *Recorder) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := r.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
