package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/chase3718/pico-knob-midi/internal/control"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = control.ErrInvalidSettings

// Config holds the controller mapping, the signal conditioning constants and
// the host bridge settings. Values are checked once by Validate at startup.
type Config struct {
	ID string `json:"id"` // profile identifier, also used as the recording track name

	// Mapping
	Note     uint8 `json:"note"`
	Velocity uint8 `json:"velocity"`
	Channel  uint8 `json:"channel"` // 0 = MIDI channel 1
	CCNumber uint8 `json:"cc_number"`

	// Button
	DebounceMs uint32 `json:"debounce_ms"`
	ActiveLow  bool   `json:"active_low"` // pull-up wiring: LOW = pressed

	// Knob
	ADCSamples   int    `json:"adc_samples"`
	RawMax       uint16 `json:"raw_max"`
	EdgeDeadzone uint8  `json:"edge_deadzone"`
	CCHysteresis uint8  `json:"cc_hysteresis"`
	CCSendMinMs  uint32 `json:"cc_send_min_ms"`

	// Loop
	IdleMs          uint32                  `json:"idle_ms"`
	SendErrorPolicy control.SendErrorPolicy `json:"send_error_policy"`
	FaultBlinkMs    uint32                  `json:"fault_blink_ms"`

	// Host bridge
	SerialPort      string   `json:"serial_port"`
	Baud            int      `json:"baud"`
	MIDIOutPatterns []string `json:"midi_out_patterns,omitempty"`
	MIDIOutExcluded []string `json:"midi_out_excluded,omitempty"`
	VirtualPort     string   `json:"virtual_port,omitempty"`
}

// Default returns the stock configuration with a fresh profile ID.
func Default() *Config {
	s := control.DefaultSettings()
	return &Config{
		ID:              uuid.New().String(),
		Note:            s.Emitter.Note,
		Velocity:        s.Emitter.Velocity,
		Channel:         s.Emitter.Channel,
		CCNumber:        s.Emitter.CCNumber,
		DebounceMs:      uint32(s.Debounce.WindowMs),
		ActiveLow:       s.Debounce.ActiveLow,
		ADCSamples:      s.Smoother.Samples,
		RawMax:          s.Smoother.RawMax,
		EdgeDeadzone:    s.Smoother.EdgeDeadzone,
		CCHysteresis:    s.Smoother.Hysteresis,
		CCSendMinMs:     uint32(s.Smoother.MinIntervalMs),
		IdleMs:          uint32(s.Idle / time.Millisecond),
		SendErrorPolicy: s.SendErrors,
		FaultBlinkMs:    uint32(s.FaultBlink),
		SerialPort:      "/dev/ttyACM0",
		Baud:            115200,
		MIDIOutPatterns: []string{"Pico", "CircuitPython"},
		MIDIOutExcluded: []string{"Midi Through", "Through Port", "Dummy"},
	}
}

// DefaultPath returns <user config dir>/pico-knob-midi/config.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pico-knob-midi", "config.json"), nil
}

// Load reads the config at path, returning defaults if the file does not
// exist. Gate and timing fields left at zero in the file take their default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.fillZeros()
	return cfg, nil
}

// Save writes the config to path, creating the directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Settings converts the config into the control loop's settings.
func (c *Config) Settings() control.Settings {
	return control.Settings{
		Debounce: control.DebounceConfig{
			WindowMs:  control.Millis(c.DebounceMs),
			ActiveLow: c.ActiveLow,
		},
		Smoother: control.SmootherConfig{
			Samples:       c.ADCSamples,
			RawMax:        c.RawMax,
			EdgeDeadzone:  c.EdgeDeadzone,
			Hysteresis:    c.CCHysteresis,
			MinIntervalMs: control.Millis(c.CCSendMinMs),
		},
		Emitter: control.EmitterConfig{
			Channel:  c.Channel,
			Note:     c.Note,
			Velocity: c.Velocity,
			CCNumber: c.CCNumber,
		},
		Idle:       time.Duration(c.IdleMs) * time.Millisecond,
		SendErrors: c.SendErrorPolicy,
		FaultBlink: control.Millis(c.FaultBlinkMs),
	}
}

// Validate checks the loop settings and the host bridge settings.
func (c *Config) Validate() error {
	if err := c.Settings().Validate(); err != nil {
		return err
	}
	if c.Baud <= 0 {
		return fmt.Errorf("%w: baud %d must be positive", ErrInvalid, c.Baud)
	}
	return nil
}

// IdleLevel is the electrical level of the released button.
func (c *Config) IdleLevel() bool {
	return c.ActiveLow
}

func (c *Config) fillZeros() {
	d := Default()
	if c.ID == "" {
		c.ID = d.ID
	}
	if c.DebounceMs == 0 {
		c.DebounceMs = d.DebounceMs
	}
	if c.ADCSamples == 0 {
		c.ADCSamples = d.ADCSamples
	}
	if c.RawMax == 0 {
		c.RawMax = d.RawMax
	}
	if c.CCHysteresis == 0 {
		c.CCHysteresis = d.CCHysteresis
	}
	if c.CCSendMinMs == 0 {
		c.CCSendMinMs = d.CCSendMinMs
	}
	if c.IdleMs == 0 {
		c.IdleMs = d.IdleMs
	}
	if c.SendErrorPolicy == "" {
		c.SendErrorPolicy = d.SendErrorPolicy
	}
	if c.FaultBlinkMs == 0 {
		c.FaultBlinkMs = d.FaultBlinkMs
	}
	if c.Baud == 0 {
		c.Baud = d.Baud
	}
}
