package taskmanager

import (
	"context"
	"time"

	"github.com/Fishwaldo/GnssTester/internal/gps"
	"github.com/Fishwaldo/go-taskmanager"
	"github.com/go-logr/logr"
	"github.com/spf13/viper"
)

func init() {
	viper.SetDefault("progress.interval", 10*time.Second)
}

const progressJob = "Progress"

var scheduler *taskmanager.Scheduler

func InitScheduler(log logr.Logger) {
	scheduler = taskmanager.NewScheduler(
		taskmanager.WithLogger(log),
	)
}

func StartScheduler() bool {
	scheduler.StartAll()
	return true
}

func GetScheduler() *taskmanager.Scheduler {
	return scheduler
}

func StopScheduler() {
	scheduler.StopAll()
}

// ProgressReporter logs the counters of a running capture.
type ProgressReporter struct {
	Progress *gps.Progress
	Log      logr.Logger
	last     int64
}

// Poll logs one progress line. It only reads the counters.
func (p *ProgressReporter) Poll(ctx context.Context) {
	fixes := p.Progress.Fixes.Load()
	p.Log.Info("Capture Progress",
		"lines", p.Progress.Lines.Load(),
		"fixes", fixes,
		"new_fixes", fixes-p.last,
		"errors", p.Progress.Errors.Load())
	p.last = fixes
}

// ScheduleProgress adds a job that reports progress every interval. An
// interval of zero or less disables it.
func ScheduleProgress(ctx context.Context, progress *gps.Progress, interval time.Duration, log logr.Logger) error {
	if interval <= 0 {
		return nil
	}
	timer, err := taskmanager.NewFixed(interval)
	if err != nil {
		return err
	}
	reporter := &ProgressReporter{Progress: progress, Log: log}
	if err := scheduler.Add(ctx, progressJob, timer, reporter.Poll); err != nil {
		return err
	}
	log.V(1).Info("Added Progress Schedule", "interval", interval)
	return nil
}
