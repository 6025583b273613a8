// Package serialenc reads wheel-encoder ticks streamed by a microcontroller
// over a serial line and forwards motor commands back to it.
package serialenc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-logr/logr"
	"go.bug.st/serial"

	"github.com/san-kum/odomctl/internal/logging"
	"github.com/san-kum/odomctl/internal/metrics"
)

// Source keeps the most recent encoder frame read from a stream. It
// implements the odometry sensor model and can be used as a motor sink.
type Source struct {
	rw  io.ReadWriteCloser
	log logr.Logger

	mu     sync.Mutex
	last   []int32
	frames uint64
	bad    uint64

	writeMu sync.Mutex

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	readErr   error
	closeOnce sync.Once
	closeErr  error
}

// Open opens the serial device described by opts and starts reading it.
func Open(opts PortOptions, log logr.Logger) (*Source, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(opts.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("serialenc: opening %s: %w", opts.Device, err)
	}
	log.Info("encoder port opened", "device", opts.Device, "baud", mode.BaudRate)
	return NewSource(port, log), nil
}

// NewSource starts reading frames from rw until it is closed or returns an
// error.
func NewSource(rw io.ReadWriteCloser, log logr.Logger) *Source {
	s := &Source{
		rw:    rw,
		log:   log,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.read()
	return s
}

func (s *Source) read() {
	defer close(s.done)
	scan := bufio.NewScanner(s.rw)
	for scan.Scan() {
		line := scan.Text()
		if line == "" {
			continue
		}
		ticks, err := ParseFrame(line)
		if err != nil {
			s.mu.Lock()
			s.bad++
			s.mu.Unlock()
			metrics.SensorFrameErrors.Inc()
			s.log.V(logging.DEBUG).Info("discarding frame", "error", err.Error())
			continue
		}
		s.mu.Lock()
		s.last = ticks
		s.frames++
		s.mu.Unlock()
		s.readyOnce.Do(func() { close(s.ready) })
	}
	if err := scan.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.readErr = err
		s.log.Error(err, "encoder stream ended")
	}
}

// GetSensorVals returns the last frame received.
func (s *Source) GetSensorVals() ([]int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, ErrNoFrame
	}
	return append([]int32(nil), s.last...), nil
}

// Ready is closed once the first valid frame has arrived.
func (s *Source) Ready() <-chan struct{} { return s.ready }

// Done is closed when the stream has ended.
func (s *Source) Done() <-chan struct{} { return s.done }

// Err returns the error that ended the stream, if any.
func (s *Source) Err() error {
	select {
	case <-s.done:
		return s.readErr
	default:
		return nil
	}
}

// Stats returns the number of accepted and discarded frames.
func (s *Source) Stats() (frames, discarded uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames, s.bad
}

// WriteCommand sends normalised left and right motor commands.
func (s *Source) WriteCommand(left, right float64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := io.WriteString(s.rw, FormatCommand(left, right)); err != nil {
		return fmt.Errorf("serialenc: writing command: %w", err)
	}
	return nil
}

// Close closes the stream and waits for the reader to finish.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.rw.Close()
		<-s.done
	})
	return s.closeErr
}
