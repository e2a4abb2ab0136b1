// Package channel provides line oriented access to a receiver, either live
// over a serial port or replayed from a log file.
package channel

import (
	"errors"
	"fmt"
	"time"
)

// LineChannel is a source of text lines that can optionally accept
// commands.
type LineChannel interface {
	// WriteLine writes line followed by CRLF.
	WriteLine(line []byte) error
	// ReadLine returns the next line including its terminator. A timeout of
	// zero or less waits forever. Exhausted channels return io.EOF.
	ReadLine(timeout time.Duration) ([]byte, error)
	Close() error
}

var (
	ErrReadTimeout = errors.New("read timeout")
	ErrReadOnly    = errors.New("channel is read only")
	// ErrHangup means the port keeps returning empty reads without waiting
	// for data, as a disconnected device does.
	ErrHangup = errors.New("port hung up")
)

var lineEnding = []byte("\r\n")

// ConnectionError is returned when a channel can't be opened.
type ConnectionError struct {
	Port string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("could not connect to %s: %v", e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
