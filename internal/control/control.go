// Package control is the signal-conditioning core of the controller: it turns
// one noisy button and one noisy knob into a rate-limited stream of MIDI
// Note On/Off and Control Change events.
//
// Everything here is single-threaded and tick driven. The hardware and the
// MIDI transport are reached through the small collaborator interfaces below,
// so the same core runs on the microcontroller and in the host bridge.
package control

import (
	"errors"

	"gitlab.com/gomidi/midi/v2"
)

// Millis is a monotonic millisecond timestamp since an arbitrary epoch.
// Differences are taken with unsigned subtraction so a wrap never panics.
type Millis uint64

// Since returns the elapsed milliseconds from earlier to t.
func (t Millis) Since(earlier Millis) Millis {
	return t - earlier
}

// ErrNotConnected is returned by a Sender that has no open transport yet.
var ErrNotConnected = errors.New("transport not connected")

// Clock reports monotonic time.
type Clock interface {
	NowMs() Millis
}

// DigitalInput reads the electrical level of the button pin.
type DigitalInput interface {
	ReadDigital() bool
}

// AnalogInput reads one raw ADC conversion of the knob.
type AnalogInput interface {
	ReadAnalog() uint16
}

// Sender transmits one MIDI event.
type Sender interface {
	Send(msg midi.Message) error
}

// Indicator drives the on/off visual indicator.
type Indicator interface {
	SetIndicator(on bool)
}

// SenderFunc adapts a plain function, such as the one returned by
// midi.SendTo, to the Sender interface.
type SenderFunc func(msg midi.Message) error

func (f SenderFunc) Send(msg midi.Message) error { return f(msg) }

// IndicatorFunc adapts a plain function to the Indicator interface.
type IndicatorFunc func(on bool)

func (f IndicatorFunc) SetIndicator(on bool) { f(on) }
