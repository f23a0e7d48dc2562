//go:build tinygo

// Command picostream is the board side of the host bridge. It streams raw
// button and knob samples over USB serial and drives the LED from indicator
// frames sent back by the host. All debouncing, smoothing and MIDI happen on
// the host.
//
//	tinygo flash -target=pico ./cmd/picostream
package main

import (
	"machine"
	"time"

	"github.com/chase3718/pico-knob-midi/internal/wire"
)

const samplePeriod = 5 * time.Millisecond

func main() {
	btn := machine.GP15
	btn.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	led.Low()

	machine.InitADC()
	adc := machine.ADC{Pin: machine.ADC0}
	adc.Configure(machine.ADCConfig{})

	var dec wire.Decoder
	for {
		sample := wire.Sample{Button: btn.Get(), Knob: adc.Get()}
		machine.Serial.Write(wire.SampleFrame(sample).Encode())

		for machine.Serial.Buffered() > 0 {
			b, err := machine.Serial.ReadByte()
			if err != nil {
				break
			}
			f, ok, err := dec.Feed(b)
			if err != nil || !ok {
				continue
			}
			if f.Cmd == wire.CmdIndicator && len(f.Payload) == 1 {
				led.Set(f.Payload[0] != 0)
			}
		}

		time.Sleep(samplePeriod)
	}
}
