package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// faultBlinkPeriod is the on/off half period of the fault blink pattern.
const faultBlinkPeriod Millis = 50

// Collaborators are the hardware and transport the loop is wired to.
type Collaborators struct {
	Clock     Clock
	Button    DigitalInput
	Knob      AnalogInput
	Out       Sender
	Indicator Indicator
	Logger    *slog.Logger
}

// Controller is the main loop. It owns the Debouncer, Smoother and Emitter
// and is driven from a single goroutine.
type Controller struct {
	settings Settings
	clock    Clock
	button   DigitalInput
	knob     AnalogInput
	out      Sender
	led      Indicator
	logger   *slog.Logger

	debouncer *Debouncer
	smoother  *Smoother
	emitter   *Emitter

	ledOn        bool
	ledWritten   bool
	faultActive  bool
	faultStart   Millis
	disconnected bool
}

// NewController validates the settings, latches the button level seen at
// boot and turns the indicator off.
func NewController(s Settings, c Collaborators) (*Controller, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch {
	case c.Clock == nil:
		return nil, fmt.Errorf("control: missing clock")
	case c.Button == nil:
		return nil, fmt.Errorf("control: missing button input")
	case c.Knob == nil:
		return nil, fmt.Errorf("control: missing knob input")
	case c.Out == nil:
		return nil, fmt.Errorf("control: missing MIDI sender")
	}
	if c.Indicator == nil {
		c.Indicator = IndicatorFunc(func(bool) {})
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	now := c.Clock.NowMs()
	ctl := &Controller{
		settings:  s,
		clock:     c.Clock,
		button:    c.Button,
		knob:      c.Knob,
		out:       c.Out,
		led:       c.Indicator,
		logger:    c.Logger,
		debouncer: NewDebouncer(s.Debounce, c.Button.ReadDigital(), now),
		smoother:  NewSmoother(s.Smoother),
		emitter:   NewEmitter(s.Emitter),
	}
	ctl.writeIndicator(false)
	return ctl, nil
}

// Tick runs one pass: button, then knob, then the indicator.
func (c *Controller) Tick() {
	now := c.clock.NowMs()

	if ev, ok := c.debouncer.Update(c.button.ReadDigital(), now); ok {
		c.logger.Debug("button: edge accepted", "event", ev, "at_ms", uint64(now))
		if msg, ok := c.emitter.OnDebounceEvent(ev); ok {
			c.send(msg, now)
		}
	}

	if value, ok := c.smoother.Update(c.knob, now); ok {
		c.logger.Debug("knob: cc due", "value", value, "at_ms", uint64(now))
		c.send(c.emitter.OnCCValue(value), now)
	}

	c.refreshIndicator(now)
}

// Run ticks until ctx is cancelled, sleeping Idle between ticks. On
// cancellation a sounding note is released and the indicator turned off.
func (c *Controller) Run(ctx context.Context) {
	timer := time.NewTimer(c.settings.Idle)
	defer timer.Stop()

	for {
		c.Tick()

		select {
		case <-ctx.Done():
			c.Release()
			return
		case <-timer.C:
			timer.Reset(c.settings.Idle)
		}
	}
}

// Release sends a Note Off for a sounding note and turns the indicator off.
func (c *Controller) Release() {
	now := c.clock.NowMs()
	if msg, ok := c.emitter.Release(); ok {
		c.logger.Info("button: releasing sounding note")
		c.send(msg, now)
	}
	c.faultActive = false
	c.writeIndicator(false)
}

// Sounding reports whether the note is currently on.
func (c *Controller) Sounding() bool {
	return c.emitter.Sounding()
}

func (c *Controller) send(msg midi.Message, now Millis) {
	err := c.out.Send(msg)
	if err == nil {
		if c.disconnected {
			c.logger.Info("midi: transport accepting events again")
			c.disconnected = false
		}
		return
	}

	if c.settings.SendErrors == SendErrorsIgnore {
		return
	}
	if errors.Is(err, ErrNotConnected) {
		if !c.disconnected {
			c.logger.Debug("midi: dropping events until transport connects", "msg", msg.String())
		}
		c.disconnected = true
	} else {
		c.logger.Warn("midi: send failed", "msg", msg.String(), "err", err)
	}
	if c.settings.SendErrors == SendErrorsIndicate {
		c.faultActive = true
		c.faultStart = now
	}
}

func (c *Controller) refreshIndicator(now Millis) {
	on := c.emitter.Sounding()
	if c.faultActive {
		elapsed := now.Since(c.faultStart)
		if elapsed < c.settings.FaultBlink {
			on = (elapsed/faultBlinkPeriod)%2 == 0
		} else {
			c.faultActive = false
		}
	}
	if on != c.ledOn || !c.ledWritten {
		c.writeIndicator(on)
	}
}

func (c *Controller) writeIndicator(on bool) {
	c.led.SetIndicator(on)
	c.ledOn = on
	c.ledWritten = true
}
