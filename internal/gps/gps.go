// Package gps runs the capture loop that turns receiver output into a
// trajectory of fixes.
package gps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Fishwaldo/GnssTester/internal/channel"
	"github.com/Fishwaldo/GnssTester/internal/coord"
	"github.com/Fishwaldo/GnssTester/internal/track"
	"github.com/adrianmo/go-nmea"
	"github.com/go-logr/logr"
)

type CaptureOptions struct {
	// Duration bounds the capture. Zero means no deadline; the capture then
	// ends only when the channel is exhausted, a read times out or ctx is
	// cancelled.
	Duration    time.Duration
	ReadTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
	// OnFix is called for every fix appended to the trajectory.
	OnFix    func(track.Position)
	Progress *Progress
	Logger   logr.Logger
}

// Progress counts capture activity. It is safe to read from other
// goroutines while a capture runs.
type Progress struct {
	Lines  atomic.Int64
	Fixes  atomic.Int64
	Errors atomic.Int64
}

type capture struct {
	log      logr.Logger
	traj     *track.Trajectory
	onFix    func(track.Position)
	progress *Progress
}

// Capture reads ch until the deadline, exhaustion or cancellation and returns
// every fix decoded so far. Parse failures are logged and skipped. Only read
// failures other than timeout and EOF are returned as errors, together with
// the partial trajectory.
func Capture(ctx context.Context, ch channel.LineChannel, opts CaptureOptions) (*track.Trajectory, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	c := &capture{
		log:      opts.Logger,
		traj:     track.New(),
		onFix:    opts.OnFix,
		progress: opts.Progress,
	}
	if c.progress == nil {
		c.progress = &Progress{}
	}

	var deadline *time.Time
	if opts.Duration > 0 {
		d := now().Add(opts.Duration)
		deadline = &d
	}
	c.log.Info("Capture Started", "duration", opts.Duration)
	defer func() {
		c.log.Info("Capture Finished", "fixes", c.traj.Len(), "lines", c.progress.Lines.Load(), "errors", c.progress.Errors.Load(), "distance_m", c.traj.Distance())
	}()

	var dec StreamDecoder
	for {
		select {
		case <-ctx.Done():
			c.log.Info("Capture Interrupted")
			return c.traj, nil
		default:
		}
		if deadline != nil && !now().Before(*deadline) {
			c.log.Info("Capture Duration Reached")
			return c.traj, nil
		}

		timeout := opts.ReadTimeout
		if deadline != nil {
			if left := deadline.Sub(now()); timeout <= 0 || left < timeout {
				timeout = left
			}
		}
		data, err := ch.ReadLine(timeout)
		if deadline != nil && now().After(*deadline) {
			c.log.V(1).Info("Dropping Line Read After Deadline", "bytes", len(data))
			c.log.Info("Capture Duration Reached")
			return c.traj, nil
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				c.handle(dec.Flush())
				c.log.Info("Input Exhausted")
				return c.traj, nil
			case errors.Is(err, channel.ErrReadTimeout):
				if deadline == nil {
					c.log.Info("Read Timed Out, Stopping Capture", "timeout", timeout)
					return c.traj, nil
				}
				c.log.V(1).Info("Read Timed Out", "timeout", timeout)
				continue
			default:
				return c.traj, fmt.Errorf("capture read: %w", err)
			}
		}
		c.progress.Lines.Add(1)
		c.log.V(2).Info("Read", "data", string(data))
		c.handle(dec.Next(string(data)))
	}
}

func (c *capture) handle(sentences []nmea.Sentence, errs []error) {
	for _, err := range errs {
		var de *DecodeError
		if errors.As(err, &de) && de.Proprietary() {
			c.log.V(1).Info("Skipping Proprietary Sentence", "line", de.Line)
			continue
		}
		c.progress.Errors.Add(1)
		c.log.Error(err, "Parser Error")
	}

	for _, s := range sentences {
		c.log.V(1).Info("Got NMEA Type", "type", s.DataType())
		switch s.DataType() {
		case nmea.TypeGGA:
			gga := s.(nmea.GGA)
			c.log.Info("Fix Data", "time", gga.Time.String(), "satellites", gga.NumSatellites, "quality", gga.FixQuality)
			pos, ok, err := PositionFromGGA(gga)
			if err != nil {
				c.progress.Errors.Add(1)
				c.log.Error(err, "Can't Decode Position", "sentence", gga.String())
				continue
			}
			if !ok {
				continue
			}
			c.traj.Append(pos.Fix)
			c.progress.Fixes.Add(1)
			if c.onFix != nil {
				c.onFix(pos)
			}
		case nmea.TypeRMC:
			rmc := s.(nmea.RMC)
			c.log.V(1).Info("RMC Data", "validity", rmc.Validity, "speed", rmc.Speed, "course", rmc.Course)
		case nmea.TypeVTG:
			vtg := s.(nmea.VTG)
			c.log.V(1).Info("VTG Data", "track", vtg.TrueTrack, "speed", vtg.GroundSpeedKPH)
		case nmea.TypeGSA:
			gsa := s.(nmea.GSA)
			c.log.V(1).Info("GSA Data", "fix", gsa.FixType, "pdop", gsa.PDOP, "hdop", gsa.HDOP)
		}
	}
}

// PositionFromGGA decodes the position of a GGA sentence from its raw
// fields. ok is false when the receiver reports no fix.
func PositionFromGGA(gga nmea.GGA) (pos track.Position, ok bool, err error) {
	if gga.FixQuality == "" {
		return pos, false, nil
	}
	q, err := strconv.Atoi(gga.FixQuality)
	if err != nil {
		return pos, false, &DecodeError{Line: gga.String(), Err: fmt.Errorf("fix quality %q: %w", gga.FixQuality, err)}
	}
	if q <= 0 {
		return pos, false, nil
	}
	// Fields: time, lat, N/S, lon, E/W, quality, ...
	if len(gga.Fields) < 5 {
		return pos, false, &DecodeError{Line: gga.String(), Err: fmt.Errorf("only %d fields", len(gga.Fields))}
	}
	lat, err := coord.DecodeLatitude(gga.Fields[1], gga.Fields[2])
	if err != nil {
		return pos, false, err
	}
	lon, err := coord.DecodeLongitude(gga.Fields[3], gga.Fields[4])
	if err != nil {
		return pos, false, err
	}
	return track.Position{
		Fix:        track.Fix{Latitude: lat, Longitude: lon},
		Time:       gga.Time.String(),
		Satellites: gga.NumSatellites,
		Quality:    gga.FixQuality,
	}, true, nil
}
