package control

// CCMax is the largest 7-bit controller value.
const CCMax = 127

// SmootherConfig configures the knob conditioning chain.
type SmootherConfig struct {
	Samples       int    // raw reads averaged per tick
	RawMax        uint16 // full-scale raw reading
	EdgeDeadzone  uint8  // values this close to 0 or 127 snap to the extreme
	Hysteresis    uint8  // minimum change from the last sent value
	MinIntervalMs Millis // minimum time between two sends
}

// Smoother turns raw ADC readings into 7-bit controller values and decides
// when a value is worth sending. Its state changes only when a send is due.
type Smoother struct {
	cfg SmootherConfig

	lastValue  uint8
	lastSentAt Millis
	hasSent    bool
}

func NewSmoother(cfg SmootherConfig) *Smoother {
	return &Smoother{cfg: cfg}
}

// Update oversamples src, conditions the reading and returns the value to
// send. A change that arrives before the rate window opens is not queued; the
// reading current at that later tick is evaluated instead.
func (s *Smoother) Update(src AnalogInput, now Millis) (uint8, bool) {
	value := s.Condition(s.oversample(src))

	if s.hasSent {
		if absDiff(value, s.lastValue) < s.cfg.Hysteresis {
			return 0, false
		}
		if now.Since(s.lastSentAt) < s.cfg.MinIntervalMs {
			return 0, false
		}
	}

	s.lastValue = value
	s.lastSentAt = now
	s.hasSent = true
	return value, true
}

// Condition scales an averaged raw reading to 0..127 and applies the edge
// deadzone.
func (s *Smoother) Condition(raw uint16) uint8 {
	return s.clampEdges(s.scale(raw))
}

// LastSent returns the last value handed out by Update.
func (s *Smoother) LastSent() (uint8, bool) {
	return s.lastValue, s.hasSent
}

func (s *Smoother) oversample(src AnalogInput) uint16 {
	n := s.cfg.Samples
	if n < 1 {
		n = 1
	}
	var total uint64
	for i := 0; i < n; i++ {
		total += uint64(src.ReadAnalog())
	}
	return uint16(total / uint64(n))
}

func (s *Smoother) scale(raw uint16) uint8 {
	if s.cfg.RawMax == 0 || raw >= s.cfg.RawMax {
		return CCMax
	}
	return uint8(uint64(raw) * CCMax / uint64(s.cfg.RawMax))
}

func (s *Smoother) clampEdges(v uint8) uint8 {
	switch {
	case v <= s.cfg.EdgeDeadzone:
		return 0
	case v >= CCMax-s.cfg.EdgeDeadzone:
		return CCMax
	}
	return v
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
