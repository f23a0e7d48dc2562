//go:build tinygo

// Command picofw is the on-device build for a Raspberry Pi Pico: the control
// loop runs on the board and speaks USB-MIDI directly.
//
// Wiring: push button between GP15 and GND (internal pull-up, pressed = LOW),
// knob wiper on GP26/ADC0, onboard LED as the indicator.
//
//	tinygo flash -target=pico ./cmd/picofw
package main

import (
	"context"
	"log/slog"
	"machine"
	"machine/usb/adc/midi"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/chase3718/pico-knob-midi/internal/control"
)

const (
	buttonPin = machine.GP15
	cable     = 0
)

type boardClock struct{ start time.Time }

func (c boardClock) NowMs() control.Millis {
	return control.Millis(time.Since(c.start).Milliseconds())
}

type button struct{ pin machine.Pin }

func (b button) ReadDigital() bool { return b.pin.Get() }

type knob struct{ adc machine.ADC }

func (k knob) ReadAnalog() uint16 { return k.adc.Get() }

var packet [4]byte

// usbSend wraps a channel voice message in a USB-MIDI event packet. The code
// index number of a channel voice message is its status nibble.
func usbSend(msg gomidi.Message) error {
	if len(msg) != 3 {
		return nil
	}
	packet[0] = (cable&0xf)<<4 | msg[0]>>4
	packet[1], packet[2], packet[3] = msg[0], msg[1], msg[2]
	_, err := midi.Port().Write(packet[:])
	return err
}

func main() {
	btn := buttonPin
	btn.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	led.Low()

	machine.InitADC()
	adc := machine.ADC{Pin: machine.ADC0}
	adc.Configure(machine.ADCConfig{})

	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctl, err := control.NewController(control.DefaultSettings(), control.Collaborators{
		Clock:     boardClock{start: time.Now()},
		Button:    button{pin: btn},
		Knob:      knob{adc: adc},
		Out:       control.SenderFunc(usbSend),
		Indicator: control.IndicatorFunc(led.Set),
		Logger:    logger,
	})
	if err != nil {
		// Defaults are fixed at build time; an error here is a build defect.
		panic(err)
	}

	ctl.Run(context.Background())
}
