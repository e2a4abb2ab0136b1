package internal

import (
	"sort"

	"github.com/Fishwaldo/GnssTester/internal/track"
	"github.com/go-logr/logr"
	"github.com/sasha-s/go-deadlock"
)

// SinkI receives every fix a capture appends to its trajectory.
type SinkI interface {
	// Enabled reports whether the sink is switched on in the configuration.
	Enabled() bool
	Start(logr.Logger) error
	Stop()
	Publish(track.Position)
}

var (
	sinks   = make(map[string]SinkI)
	started []string
	mx      deadlock.RWMutex
	log     = logr.Discard()
)

func RegisterSink(name string, s SinkI) {
	mx.Lock()
	defer mx.Unlock()
	if _, ok := sinks[name]; ok {
		return
	}
	sinks[name] = s
}

// StartSinks starts every enabled sink. A sink that fails to start is logged
// and left out.
func StartSinks(logger logr.Logger) {
	mx.Lock()
	defer mx.Unlock()
	log = logger
	names := make([]string, 0, len(sinks))
	for name := range sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := sinks[name]
		if !s.Enabled() {
			continue
		}
		log.Info("Starting Sink", "sink", name)
		if err := s.Start(log.WithName(name)); err != nil {
			log.Error(err, "Can't Start Sink", "sink", name)
			continue
		}
		started = append(started, name)
	}
}

func StopSinks() {
	mx.Lock()
	defer mx.Unlock()
	for _, name := range started {
		log.Info("Stopping Sink", "sink", name)
		sinks[name].Stop()
	}
	started = nil
}

// Started returns the names of the running sinks.
func Started() []string {
	mx.RLock()
	defer mx.RUnlock()
	return append([]string(nil), started...)
}

// PublishFix hands p to every running sink.
func PublishFix(p track.Position) {
	mx.RLock()
	defer mx.RUnlock()
	for _, name := range started {
		sinks[name].Publish(p)
	}
}
