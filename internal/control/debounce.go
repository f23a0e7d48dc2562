package control

// DebounceEvent is a logical button transition accepted by the Debouncer.
type DebounceEvent int

const (
	Pressed DebounceEvent = iota + 1
	Released
)

func (e DebounceEvent) String() string {
	switch e {
	case Pressed:
		return "pressed"
	case Released:
		return "released"
	}
	return "unknown"
}

// DebounceConfig configures the button edge detector.
type DebounceConfig struct {
	// WindowMs is the minimum time between two accepted transitions.
	WindowMs Millis
	// ActiveLow is set for pull-up wiring, where a LOW level means pressed.
	ActiveLow bool
}

// Debouncer is a time-gated latch. A raw level that differs from the latched
// one is accepted only when strictly more than WindowMs has passed since the
// previous accepted transition, so any amount of chatter inside the window is
// absorbed.
type Debouncer struct {
	cfg        DebounceConfig
	stable     bool   // latched electrical level
	lastRaw    bool   // most recent electrical sample
	lastChange Millis // time of the last accepted transition
}

// NewDebouncer latches the level seen at boot as the stable state.
func NewDebouncer(cfg DebounceConfig, raw bool, now Millis) *Debouncer {
	return &Debouncer{
		cfg:        cfg,
		stable:     raw,
		lastRaw:    raw,
		lastChange: now,
	}
}

// Update feeds one raw sample and reports an accepted transition, if any.
func (d *Debouncer) Update(raw bool, now Millis) (DebounceEvent, bool) {
	d.lastRaw = raw
	if raw == d.stable {
		return 0, false
	}
	if now.Since(d.lastChange) <= d.cfg.WindowMs {
		return 0, false
	}

	d.lastChange = now
	d.stable = raw
	if d.isPress(raw) {
		return Pressed, true
	}
	return Released, true
}

// Pressed reports the debounced logical state.
func (d *Debouncer) Pressed() bool {
	return d.isPress(d.stable)
}

// LastRaw returns the most recent electrical sample.
func (d *Debouncer) LastRaw() bool {
	return d.lastRaw
}

func (d *Debouncer) isPress(level bool) bool {
	return level != d.cfg.ActiveLow
}
