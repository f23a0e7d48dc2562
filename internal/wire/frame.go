// Package wire is the framing used on the serial link between the board and
// the host. It has no dependencies so the firmware can share it.
package wire

import "errors"

const (
	SOF0 = 0xAA
	SOF1 = 0x55

	CmdIndicator = 0x11 // host -> MCU: [on]
	CmdSample    = 0x20 // MCU -> host: [button level][adc hi][adc lo]

	MaxPayload = 32
)

var (
	ErrChecksum    = errors.New("frame checksum mismatch")
	ErrFrameLength = errors.New("frame length out of range")
)

// Frame is one command on the serial link.
type Frame struct {
	Cmd     byte
	Payload []byte
}

// Encode builds the on-wire representation:
//
//	[SOF0][SOF1][LEN][CMD][payload...][CKS]
//
// LEN counts the command byte plus the payload; CKS is the XOR of LEN, CMD
// and every payload byte.
func (f Frame) Encode() []byte {
	length := byte(len(f.Payload) + 1)
	cks := length ^ f.Cmd
	for _, b := range f.Payload {
		cks ^= b
	}

	out := make([]byte, 0, len(f.Payload)+5)
	out = append(out, SOF0, SOF1, length, f.Cmd)
	out = append(out, f.Payload...)
	return append(out, cks)
}

// Sample is one raw reading of both inputs as taken by the microcontroller.
type Sample struct {
	Button bool   // electrical level, true = HIGH
	Knob   uint16 // raw ADC conversion
}

func SampleFrame(s Sample) Frame {
	var level byte
	if s.Button {
		level = 1
	}
	return Frame{Cmd: CmdSample, Payload: []byte{level, byte(s.Knob >> 8), byte(s.Knob)}}
}

func IndicatorFrame(on bool) Frame {
	var v byte
	if on {
		v = 1
	}
	return Frame{Cmd: CmdIndicator, Payload: []byte{v}}
}

// Sample decodes a CmdSample frame.
func (f Frame) Sample() (Sample, bool) {
	if f.Cmd != CmdSample || len(f.Payload) != 3 {
		return Sample{}, false
	}
	return Sample{
		Button: f.Payload[0] != 0,
		Knob:   uint16(f.Payload[1])<<8 | uint16(f.Payload[2]),
	}, true
}

type decodeState int

const (
	stateSOF0 decodeState = iota
	stateSOF1
	stateLen
	stateCmd
	statePayload
	stateChecksum
)

// Decoder reassembles frames from a byte stream. After a bad length or
// checksum it drops the frame and hunts for the next start-of-frame.
type Decoder struct {
	state   decodeState
	length  byte
	cmd     byte
	cks     byte
	payload []byte
}

// Feed consumes one byte. It returns a frame once one is complete, or an
// error when the frame in progress had to be discarded.
func (d *Decoder) Feed(b byte) (Frame, bool, error) {
	switch d.state {
	case stateSOF0:
		if b == SOF0 {
			d.state = stateSOF1
		}
	case stateSOF1:
		switch b {
		case SOF1:
			d.state = stateLen
		case SOF0:
			// stay: a repeated SOF0 may start the real frame
		default:
			d.state = stateSOF0
		}
	case stateLen:
		if b < 1 || int(b)-1 > MaxPayload {
			d.reset(b)
			return Frame{}, false, ErrFrameLength
		}
		d.length = b
		d.cks = b
		d.state = stateCmd
	case stateCmd:
		d.cmd = b
		d.cks ^= b
		d.payload = d.payload[:0]
		if d.length == 1 {
			d.state = stateChecksum
		} else {
			d.state = statePayload
		}
	case statePayload:
		d.payload = append(d.payload, b)
		d.cks ^= b
		if len(d.payload) == int(d.length)-1 {
			d.state = stateChecksum
		}
	case stateChecksum:
		d.state = stateSOF0
		if b != d.cks {
			return Frame{}, false, ErrChecksum
		}
		payload := make([]byte, len(d.payload))
		copy(payload, d.payload)
		return Frame{Cmd: d.cmd, Payload: payload}, true, nil
	}
	return Frame{}, false, nil
}

func (d *Decoder) reset(b byte) {
	d.state = stateSOF0
	if b == SOF0 {
		d.state = stateSOF1
	}
}
