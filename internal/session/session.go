// Package session runs one invocation of the tool: it picks the input,
// drives the receiver, captures the trajectory and hands it to the renderer.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fishwaldo/GnssTester/internal/channel"
	"github.com/Fishwaldo/GnssTester/internal/config"
	"github.com/Fishwaldo/GnssTester/internal/device"
	"github.com/Fishwaldo/GnssTester/internal/gps"
	"github.com/Fishwaldo/GnssTester/internal/render"
	"github.com/Fishwaldo/GnssTester/internal/track"
	"github.com/go-logr/logr"
	"github.com/shirou/gopsutil/v3/host"
)

const (
	ExitOK      = 0
	ExitFailure = 1
)

type Session struct {
	Config *config.Config
	Logger logr.Logger
	// OnFix receives every fix of the capture.
	OnFix    func(track.Position)
	Progress *gps.Progress

	openSerial func(channel.SerialOptions) (channel.LineChannel, error)
	sleep      func(time.Duration)
	now        func() time.Time
}

func New(cfg *config.Config, log logr.Logger) *Session {
	return &Session{
		Config:   cfg,
		Logger:   log,
		Progress: &gps.Progress{},
		openSerial: func(opts channel.SerialOptions) (channel.LineChannel, error) {
			return channel.OpenSerial(opts)
		},
		sleep: time.Sleep,
		now:   time.Now,
	}
}

// Run executes the session and returns the process exit code.
func (s *Session) Run(ctx context.Context) int {
	var (
		traj *track.Trajectory
		err  error
		code int
		done bool
	)
	if s.Config.InputFile != "" {
		traj, err = s.runFile(ctx)
	} else {
		traj, code, done = s.runSerial(ctx)
		if done {
			return code
		}
	}
	if err != nil {
		s.Logger.Error(err, "Capture Failed")
		code = ExitFailure
		if traj == nil || traj.Len() == 0 {
			return code
		}
	}
	if rc := s.render(traj); rc != ExitOK {
		return rc
	}
	return code
}

func (s *Session) runFile(ctx context.Context) (*track.Trajectory, error) {
	for _, opt := range s.Config.Ignored() {
		s.Logger.Info("Option needs a serial port, ignoring", "option", opt)
	}
	s.Logger.Info("Using file as input", "file", s.Config.InputFile)
	f, err := channel.OpenFile(s.Config.InputFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return gps.Capture(ctx, f, s.captureOptions(0))
}

// runSerial drives a live receiver. done is set when the session ends without
// rendering a map.
func (s *Session) runSerial(ctx context.Context) (traj *track.Trajectory, code int, done bool) {
	cfg := s.Config
	if cfg.SetConfig && !cfg.Query {
		s.Logger.Error(device.ErrUnsupported, "Can't Configure Module")
		return nil, ExitFailure, true
	}

	s.Logger.Info("Using serial port as input", "port", cfg.SerialPort, "baud", cfg.Baud, "driver", cfg.Driver)
	ch, err := s.openSerial(channel.SerialOptions{
		Port:   cfg.SerialPort,
		Baud:   cfg.Baud,
		Driver: cfg.Driver,
	})
	if err != nil {
		s.Logger.Error(err, "Serial Connection Failed", "cooldown", cfg.Cooldown)
		var connErr *channel.ConnectionError
		if errors.As(err, &connErr) && cfg.Cooldown > 0 {
			s.sleep(cfg.Cooldown)
		}
		return nil, ExitFailure, true
	}
	defer ch.Close()

	syncer := device.NewSynchronizer(ch, cfg.ReadTimeout, s.Logger.WithName("sync"))
	syncer.MaxDiscard = cfg.MaxDiscard
	syncer.WaitBudget = cfg.WaitBudget
	ctrl := device.NewController(syncer, s.Logger.WithName("device"))

	if cfg.Coldstart {
		if _, err := ctrl.ForceColdstart(); err != nil {
			s.Logger.Error(err, "Coldstart Failed")
			return nil, ExitFailure, true
		}
	}

	if cfg.Query {
		s.Logger.Info("Just dumping module configuration")
		return nil, s.dump(ctx, ctrl), true
	}

	traj, err = gps.Capture(ctx, ch, s.captureOptions(cfg.Duration))
	if err != nil {
		s.Logger.Error(err, "Capture Failed")
		if traj == nil || traj.Len() == 0 {
			return nil, ExitFailure, true
		}
		return traj, ExitFailure, false
	}
	return traj, ExitOK, false
}

func (s *Session) dump(ctx context.Context, ctrl *device.Controller) int {
	report, err := ctrl.DumpConfiguration()
	if report != nil {
		report.Port = s.Config.SerialPort
		report.Host = hostSummary(ctx)
		for _, r := range report.Results {
			s.Logger.Info("Module Configuration", "command", r.Command, "description", r.Description, "response", r.Response)
		}
		if s.Config.Report != "" {
			if werr := report.WriteYAML(s.Config.Report); werr != nil {
				s.Logger.Error(werr, "Can't Write Configuration Report", "file", s.Config.Report)
				return ExitFailure
			}
			s.Logger.Info("Wrote Configuration Report", "file", s.Config.Report, "results", len(report.Results))
		}
	}
	if err != nil {
		s.Logger.Error(err, "Configuration Dump Failed")
		return ExitFailure
	}
	if s.Config.LegacyExitCodes {
		return ExitFailure
	}
	return ExitOK
}

// hostSummary names the machine a report was taken on.
func hostSummary(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	info, err := host.InfoWithContext(ctx)
	if err != nil || info == nil {
		return ""
	}
	return fmt.Sprintf("%s (%s %s)", info.Hostname, info.Platform, info.PlatformVersion)
}

func (s *Session) captureOptions(d time.Duration) gps.CaptureOptions {
	return gps.CaptureOptions{
		Duration:    d,
		ReadTimeout: s.Config.ReadTimeout,
		Now:         s.now,
		OnFix:       s.OnFix,
		Progress:    s.Progress,
		Logger:      s.Logger.WithName("capture"),
	}
}

func (s *Session) render(traj *track.Trajectory) int {
	when := s.now()
	path, err := render.ExpandPath(s.Config.MapFile, when)
	if err != nil {
		s.Logger.Error(err, "Invalid Map File Name", "pattern", s.Config.MapFile)
		return ExitFailure
	}
	s.Logger.Info("Generating Map", "file", path)
	err = render.Render(path, traj, render.Options{
		Title: s.Config.MapTitle,
		Zoom:  s.Config.MapZoom,
		Time:  when,
	})
	if err != nil {
		s.Logger.Error(err, "Can't Generate Map", "file", path)
		return ExitFailure
	}
	if last, ok := traj.Last(); ok {
		s.Logger.Info("Marker at", "lat", last.Latitude, "lon", last.Longitude, "fixes", traj.Len(), "distance_m", traj.Distance())
	}
	return ExitOK
}
