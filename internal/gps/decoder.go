package gps

import (
	"errors"
	"fmt"
	"strings"

	"github.com/adrianmo/go-nmea"
)

// maxBuffered is the longest unterminated tail kept between reads.
const maxBuffered = 4096

var errNoSentence = errors.New("no sentence start")

// DecodeError is a line that couldn't be turned into a sentence or a fix.
// Capture logs and skips these.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Proprietary reports whether the failed line was a vendor ($P...) sentence,
// which go-nmea does not know about.
func (e *DecodeError) Proprietary() bool {
	return strings.HasPrefix(e.Line, "$P")
}

// StreamDecoder turns chunks of receiver output into sentences. Chunks may
// split sentences anywhere; the unterminated tail is kept for the next call.
type StreamDecoder struct {
	buf strings.Builder
}

// Next consumes data and returns every sentence completed by it, along with
// one *DecodeError per complete line that didn't parse.
func (d *StreamDecoder) Next(data string) ([]nmea.Sentence, []error) {
	d.buf.WriteString(data)
	pending := d.buf.String()
	d.buf.Reset()

	var (
		sentences []nmea.Sentence
		errs      []error
	)
	for {
		i := strings.IndexByte(pending, '\n')
		if i == -1 {
			break
		}
		s, err := decodeLine(pending[:i])
		pending = pending[i+1:]
		if s != nil {
			sentences = append(sentences, s)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(pending) > maxBuffered {
		errs = append(errs, &DecodeError{Line: pending[:32], Err: fmt.Errorf("dropped %d bytes without line end", len(pending))})
		pending = ""
	}
	d.buf.WriteString(pending)
	return sentences, errs
}

// Flush decodes whatever is left over as a final line.
func (d *StreamDecoder) Flush() ([]nmea.Sentence, []error) {
	pending := d.buf.String()
	d.buf.Reset()
	if strings.TrimSpace(pending) == "" {
		return nil, nil
	}
	s, err := decodeLine(pending)
	if err != nil {
		return nil, []error{err}
	}
	return []nmea.Sentence{s}, nil
}

func decodeLine(line string) (nmea.Sentence, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	// a '$' always starts a new sentence, anything before it is line noise
	start := strings.LastIndexByte(line, '$')
	if start == -1 {
		return nil, &DecodeError{Line: line, Err: errNoSentence}
	}
	line = line[start:]

	s, err := nmea.Parse(line)
	if err != nil {
		return nil, &DecodeError{Line: line, Err: err}
	}
	return s, nil
}
