// Package link talks to the microcontroller over its USB serial port. The
// board streams raw button and knob samples; the host answers with
// indicator commands.
package link

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"

	"github.com/chase3718/pico-knob-midi/internal/wire"
)

// queueSize bounds the analog samples buffered between two ticks.
const queueSize = 64

// Link is a bidirectional serial connection to the board. It serves as the
// button, knob and indicator for the control loop. The reader goroutine and
// the loop only share the sample state below, guarded by mu.
type Link struct {
	port   io.ReadWriteCloser
	logger *slog.Logger
	done   chan struct{}

	mu      sync.Mutex
	button  bool
	knob    [queueSize]uint16
	head    int
	queued  int
	last    uint16
	frames  int
	dropped int
}

// Open opens the named serial device at the given baud rate. idleLevel is the
// button level reported until the first sample arrives.
func Open(name string, baud int, idleLevel bool, logger *slog.Logger) (*Link, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", name, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("serial: port opened", "device", name, "baud", baud)
	return New(p, idleLevel, logger), nil
}

// New starts a Link over an already open port.
func New(port io.ReadWriteCloser, idleLevel bool, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Link{
		port:   port,
		logger: logger,
		done:   make(chan struct{}),
		button: idleLevel,
	}
	go l.readLoop()
	return l
}

// ListPorts returns the serial devices present on the system.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

// ReadDigital returns the most recent button level.
func (l *Link) ReadDigital() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.button
}

// ReadAnalog pops the oldest queued knob sample, or repeats the last one
// when the board has not sent anything new.
func (l *Link) ReadAnalog() uint16 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.queued == 0 {
		return l.last
	}
	v := l.knob[l.head]
	l.head = (l.head + 1) % queueSize
	l.queued--
	l.last = v
	return v
}

// SetIndicator asks the board to switch its LED.
func (l *Link) SetIndicator(on bool) {
	data := wire.IndicatorFrame(on).Encode()
	if _, err := l.port.Write(data); err != nil {
		l.logger.Warn("serial: indicator write failed", "err", err)
		return
	}
	l.logger.Debug("serial: indicator sent", "on", on)
}

// Stats returns the number of accepted and dropped frames.
func (l *Link) Stats() (frames, dropped int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames, l.dropped
}

// Close closes the port and waits for the reader to exit.
func (l *Link) Close() error {
	l.logger.Info("serial: closing port")
	err := l.port.Close()
	<-l.done
	return err
}

func (l *Link) readLoop() {
	defer close(l.done)

	var dec wire.Decoder
	buf := make([]byte, 128)
	for {
		n, err := l.port.Read(buf)
		for _, b := range buf[:n] {
			frame, ok, ferr := dec.Feed(b)
			if ferr != nil {
				l.mu.Lock()
				l.dropped++
				l.mu.Unlock()
				l.logger.Debug("serial: frame dropped", "err", ferr)
				continue
			}
			if ok {
				l.apply(frame)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.logger.Debug("serial: reader stopped", "err", err)
			}
			return
		}
	}
}

func (l *Link) apply(f wire.Frame) {
	s, ok := f.Sample()
	if !ok {
		l.logger.Debug("serial: ignoring frame", "cmd", f.Cmd, "len", len(f.Payload))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames++
	l.button = s.Button
	if l.queued == queueSize {
		l.head = (l.head + 1) % queueSize
		l.queued--
	}
	l.knob[(l.head+l.queued)%queueSize] = s.Knob
	l.queued++
}
