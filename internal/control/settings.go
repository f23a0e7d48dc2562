package control

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSettings is wrapped by every validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

// SendErrorPolicy decides what the loop does when the transport refuses an
// event. Failed events are never retried or buffered.
type SendErrorPolicy string

const (
	SendErrorsIgnore   SendErrorPolicy = "ignore"
	SendErrorsLog      SendErrorPolicy = "log"
	SendErrorsIndicate SendErrorPolicy = "indicate"
)

func (p SendErrorPolicy) Valid() bool {
	switch p {
	case SendErrorsIgnore, SendErrorsLog, SendErrorsIndicate:
		return true
	}
	return false
}

// Settings is everything the Controller needs besides its collaborators.
type Settings struct {
	Debounce DebounceConfig
	Smoother SmootherConfig
	Emitter  EmitterConfig

	// Idle is the sleep at the tail of each tick. It must stay well below
	// the debounce window and the CC send interval.
	Idle time.Duration

	SendErrors SendErrorPolicy
	FaultBlink Millis
}

// DefaultSettings returns the stock mapping: C4 at velocity 100 on channel 1,
// the knob on CC1 (modulation wheel).
func DefaultSettings() Settings {
	return Settings{
		Debounce: DebounceConfig{
			WindowMs:  20,
			ActiveLow: true,
		},
		Smoother: SmootherConfig{
			Samples:       8,
			RawMax:        65535,
			EdgeDeadzone:  3,
			Hysteresis:    2,
			MinIntervalMs: 25,
		},
		Emitter: EmitterConfig{
			Channel:  0,
			Note:     60,
			Velocity: 100,
			CCNumber: 1,
		},
		Idle:       5 * time.Millisecond,
		SendErrors: SendErrorsIgnore,
		FaultBlink: 250,
	}
}

// Validate rejects out-of-range values so nothing has to be checked per tick.
func (s Settings) Validate() error {
	if s.Emitter.Channel > 15 {
		return fmt.Errorf("%w: channel %d out of range 0-15", ErrInvalidSettings, s.Emitter.Channel)
	}
	if s.Emitter.Note > CCMax {
		return fmt.Errorf("%w: note %d out of range 0-127", ErrInvalidSettings, s.Emitter.Note)
	}
	if s.Emitter.Velocity < 1 || s.Emitter.Velocity > CCMax {
		return fmt.Errorf("%w: velocity %d out of range 1-127", ErrInvalidSettings, s.Emitter.Velocity)
	}
	if s.Emitter.CCNumber > CCMax {
		return fmt.Errorf("%w: cc number %d out of range 0-127", ErrInvalidSettings, s.Emitter.CCNumber)
	}
	if s.Smoother.Samples < 1 {
		return fmt.Errorf("%w: adc samples must be at least 1, got %d", ErrInvalidSettings, s.Smoother.Samples)
	}
	if s.Smoother.RawMax < 1 {
		return fmt.Errorf("%w: raw max must be positive", ErrInvalidSettings)
	}
	if s.Smoother.EdgeDeadzone >= 64 {
		return fmt.Errorf("%w: edge deadzone %d must be below 64", ErrInvalidSettings, s.Smoother.EdgeDeadzone)
	}
	if s.Smoother.Hysteresis < 1 {
		return fmt.Errorf("%w: cc hysteresis must be at least 1", ErrInvalidSettings)
	}
	if s.Idle < time.Millisecond {
		return fmt.Errorf("%w: idle %v must be at least 1ms", ErrInvalidSettings, s.Idle)
	}
	tightest := s.Debounce.WindowMs
	if s.Smoother.MinIntervalMs < tightest {
		tightest = s.Smoother.MinIntervalMs
	}
	if s.Idle >= time.Duration(tightest)*time.Millisecond {
		return fmt.Errorf("%w: idle %v must be shorter than the tightest gate window (%dms)",
			ErrInvalidSettings, s.Idle, tightest)
	}
	if !s.SendErrors.Valid() {
		return fmt.Errorf("%w: unknown send error policy %q", ErrInvalidSettings, s.SendErrors)
	}
	return nil
}
