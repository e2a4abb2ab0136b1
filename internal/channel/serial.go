package channel

import (
	"bytes"
	"fmt"
	"io"
	"time"

	jacobsa "github.com/jacobsa/go-serial/serial"
	tarm "github.com/tarm/serial"
)

const (
	DriverJacobsa = "jacobsa"
	DriverTarm    = "tarm"
)

// maxPending caps a line that never sees a terminator. NMEA sentences are
// at most 82 characters.
const maxPending = 4096

// maxInstantReads is how many empty reads in a row may return well inside
// the poll slice before the port counts as hung up.
const maxInstantReads = 10

type SerialOptions struct {
	Port   string
	Baud   uint
	Driver string
	// Poll is the slice a single read on the port blocks for. ReadLine
	// timeouts have this granularity.
	Poll time.Duration
}

// Serial is a receiver attached to a serial port.
type Serial struct {
	name    string
	port    io.ReadWriteCloser
	pending []byte
	buf     []byte
	poll    time.Duration
	now     func() time.Time
}

// OpenSerial opens the port 8N1. Failures are returned as *ConnectionError.
func OpenSerial(opts SerialOptions) (*Serial, error) {
	if opts.Baud == 0 {
		opts.Baud = 9600
	}
	if opts.Poll < 100*time.Millisecond {
		opts.Poll = 100 * time.Millisecond
	}

	var (
		port io.ReadWriteCloser
		err  error
	)
	switch opts.Driver {
	case "", DriverJacobsa:
		port, err = jacobsa.Open(jacobsa.OpenOptions{
			PortName:              opts.Port,
			BaudRate:              opts.Baud,
			DataBits:              8,
			StopBits:              1,
			ParityMode:            jacobsa.PARITY_NONE,
			MinimumReadSize:       0,
			InterCharacterTimeout: uint(opts.Poll.Round(100*time.Millisecond) / time.Millisecond),
		})
	case DriverTarm:
		port, err = tarm.OpenPort(&tarm.Config{
			Name:        opts.Port,
			Baud:        int(opts.Baud),
			ReadTimeout: opts.Poll,
		})
	default:
		err = fmt.Errorf("unknown serial driver %q", opts.Driver)
	}
	if err != nil {
		return nil, &ConnectionError{Port: opts.Port, Err: err}
	}
	s := NewSerial(opts.Port, port)
	s.poll = opts.Poll
	return s, nil
}

// NewSerial wraps an already open port. Reads on port must return after a
// bounded time even when no data arrives.
func NewSerial(name string, port io.ReadWriteCloser) *Serial {
	return &Serial{
		name: name,
		port: port,
		buf:  make([]byte, 256),
		poll: 100 * time.Millisecond,
		now:  time.Now,
	}
}

func (s *Serial) Name() string {
	return s.name
}

func (s *Serial) WriteLine(line []byte) error {
	msg := make([]byte, 0, len(line)+len(lineEnding))
	msg = append(msg, line...)
	msg = append(msg, lineEnding...)
	_, err := s.port.Write(msg)
	return err
}

func (s *Serial) ReadLine(timeout time.Duration) ([]byte, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = s.now().Add(timeout)
	}
	instant := 0
	for {
		if line, ok := s.takeLine(); ok {
			return line, nil
		}
		if !deadline.IsZero() && !s.now().Before(deadline) {
			return nil, ErrReadTimeout
		}

		start := s.now()
		n, err := s.port.Read(s.buf)
		if n > 0 {
			s.pending = append(s.pending, s.buf[:n]...)
			instant = 0
			continue
		}
		// A poll slice without data reads as io.EOF on both drivers.
		if err != nil && err != io.EOF {
			return nil, err
		}
		if s.now().Sub(start) >= s.poll/2 {
			instant = 0
			continue
		}
		if instant++; instant >= maxInstantReads {
			return nil, fmt.Errorf("%s: %w", s.name, ErrHangup)
		}
	}
}

func (s *Serial) takeLine() ([]byte, bool) {
	i := bytes.IndexByte(s.pending, '\n')
	if i == -1 {
		if len(s.pending) < maxPending {
			return nil, false
		}
		i = len(s.pending) - 1
	}
	line := make([]byte, i+1)
	copy(line, s.pending[:i+1])
	s.pending = s.pending[i+1:]
	return line, true
}

func (s *Serial) Close() error {
	return s.port.Close()
}
