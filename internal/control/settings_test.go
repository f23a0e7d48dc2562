package control

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultSettingsValid(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"channel", func(s *Settings) { s.Emitter.Channel = 16 }},
		{"note", func(s *Settings) { s.Emitter.Note = 128 }},
		{"velocity zero", func(s *Settings) { s.Emitter.Velocity = 0 }},
		{"velocity high", func(s *Settings) { s.Emitter.Velocity = 200 }},
		{"cc number", func(s *Settings) { s.Emitter.CCNumber = 130 }},
		{"samples", func(s *Settings) { s.Smoother.Samples = 0 }},
		{"raw max", func(s *Settings) { s.Smoother.RawMax = 0 }},
		{"deadzone", func(s *Settings) { s.Smoother.EdgeDeadzone = 64 }},
		{"hysteresis", func(s *Settings) { s.Smoother.Hysteresis = 0 }},
		{"idle zero", func(s *Settings) { s.Idle = 0 }},
		{"idle vs debounce", func(s *Settings) { s.Idle = 20 * time.Millisecond }},
		{"idle vs cc interval", func(s *Settings) { s.Smoother.MinIntervalMs = 4 }},
		{"policy", func(s *Settings) { s.SendErrors = "retry" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("expected ErrInvalidSettings, got %v", err)
			}
		})
	}
}
