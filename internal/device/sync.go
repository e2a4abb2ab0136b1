// Package device talks to the receiver: it sends framed PMTK/PQ commands and
// waits for their acknowledgements among the regular NMEA output.
package device

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Fishwaldo/GnssTester/internal/channel"
	"github.com/Fishwaldo/GnssTester/internal/mtk"
	"github.com/go-logr/logr"
)

const (
	DefaultMaxDiscard = 100
	DefaultWaitBudget = 30 * time.Second
)

var (
	// ErrNoResponse means the receiver kept talking but never answered.
	ErrNoResponse = errors.New("no response from receiver")
	// ErrUnsupported is returned for configuration writes.
	ErrUnsupported = errors.New("configuration write not supported")
)

// Synchronizer matches commands to responses on an unreliable stream.
type Synchronizer struct {
	Channel channel.LineChannel
	// Timeout bounds every single read.
	Timeout time.Duration
	// MaxDiscard is how many unrelated lines are skipped before giving up.
	// Zero means unlimited.
	MaxDiscard int
	// WaitBudget bounds the whole wait for one response. Zero means
	// unlimited.
	WaitBudget time.Duration
	Logger     logr.Logger

	now func() time.Time
}

func NewSynchronizer(ch channel.LineChannel, timeout time.Duration, log logr.Logger) *Synchronizer {
	return &Synchronizer{
		Channel:    ch,
		Timeout:    timeout,
		MaxDiscard: DefaultMaxDiscard,
		WaitBudget: DefaultWaitBudget,
		Logger:     log,
	}
}

// SendAndAwait writes the framed payload and returns the first line that
// starts with one of prefixes. Read errors are returned as is, wrapped; there
// are no retries at this level.
func (s *Synchronizer) SendAndAwait(payload string, prefixes ...string) (string, error) {
	now := s.now
	if now == nil {
		now = time.Now
	}
	framed := mtk.Frame(payload)
	s.Logger.V(1).Info("Sending", "command", framed)

	if err := s.Channel.WriteLine(nil); err != nil {
		return "", fmt.Errorf("write %s: %w", payload, err)
	}
	if err := s.Channel.WriteLine([]byte(framed)); err != nil {
		return "", fmt.Errorf("write %s: %w", payload, err)
	}

	var budget time.Time
	if s.WaitBudget > 0 {
		budget = now().Add(s.WaitBudget)
	}
	for discarded := 0; ; discarded++ {
		if s.MaxDiscard > 0 && discarded >= s.MaxDiscard {
			return "", fmt.Errorf("%s: %w after %d lines", payload, ErrNoResponse, discarded)
		}
		if !budget.IsZero() && !now().Before(budget) {
			return "", fmt.Errorf("%s: %w within %s", payload, ErrNoResponse, s.WaitBudget)
		}

		raw, err := s.Channel.ReadLine(s.Timeout)
		if err != nil {
			return "", fmt.Errorf("awaiting response to %s: %w", payload, err)
		}
		line := strings.TrimRight(string(raw), " \t\r\n")
		s.Logger.V(1).Info("Read", "line", line)

		for _, p := range prefixes {
			if strings.HasPrefix(line, p) {
				s.Logger.Info("Got", "response", line, "command", payload)
				return line, nil
			}
		}
	}
}
