// Package render writes a trajectory to a map file.
package render

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Fishwaldo/GnssTester/internal/track"
	"github.com/lestrrat-go/strftime"
)

// ErrEmptyTrajectory is returned instead of writing a map without fixes.
var ErrEmptyTrajectory = errors.New("no fixes decoded")

type Options struct {
	Title string
	// Zoom is the initial map zoom level.
	Zoom int
	Time time.Time
}

func (o *Options) defaults() {
	if o.Title == "" {
		o.Title = "GNSS Track"
	}
	if o.Zoom == 0 {
		o.Zoom = 19
	}
	if o.Time.IsZero() {
		o.Time = time.Now()
	}
}

// ExpandPath expands strftime conversions such as %Y%m%d in pattern.
func ExpandPath(pattern string, t time.Time) (string, error) {
	if !strings.Contains(pattern, "%") {
		return pattern, nil
	}
	return strftime.Format(pattern, t)
}

// Render writes traj to path. A .gpx extension selects GPX, anything else
// an HTML map.
func Render(path string, traj *track.Trajectory, opts Options) error {
	if traj == nil || traj.Len() == 0 {
		return ErrEmptyTrajectory
	}
	opts.defaults()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gpx":
		err = writeGPX(f, traj, opts)
	default:
		err = writeHTML(f, traj, opts)
	}
	if err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("render %s: %w", path, err)
	}
	return f.Close()
}
