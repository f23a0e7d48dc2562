package control

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// EmitterConfig is the single button-to-note and knob-to-CC mapping.
type EmitterConfig struct {
	Channel  uint8 // 0 = MIDI channel 1
	Note     uint8
	Velocity uint8
	CCNumber uint8
}

// Emitter maps conditioned signals to MIDI events and tracks whether the
// note is currently sounding. A Note Off is produced only for a sounding
// note and a Note On only for a silent one.
type Emitter struct {
	cfg      EmitterConfig
	sounding bool
}

func NewEmitter(cfg EmitterConfig) *Emitter {
	return &Emitter{cfg: cfg}
}

// OnDebounceEvent returns the note event for an accepted button edge.
// Duplicate edges yield nothing.
func (e *Emitter) OnDebounceEvent(ev DebounceEvent) (midi.Message, bool) {
	switch ev {
	case Pressed:
		if e.sounding {
			return nil, false
		}
		e.sounding = true
		return midi.NoteOn(e.cfg.Channel, e.cfg.Note, e.cfg.Velocity), true
	case Released:
		return e.Release()
	}
	panic(fmt.Sprintf("control: unexpected debounce event %d", int(ev)))
}

// OnCCValue wraps a smoothed value in a Control Change event.
func (e *Emitter) OnCCValue(value uint8) midi.Message {
	if value > CCMax {
		panic(fmt.Sprintf("control: controller value %d exceeds 7 bits", value))
	}
	return midi.ControlChange(e.cfg.Channel, e.cfg.CCNumber, value)
}

// Release silences a sounding note.
func (e *Emitter) Release() (midi.Message, bool) {
	if !e.sounding {
		return nil, false
	}
	e.sounding = false
	return midi.NoteOff(e.cfg.Channel, e.cfg.Note), true
}

// Sounding reports whether a Note On is outstanding.
func (e *Emitter) Sounding() bool {
	return e.sounding
}
