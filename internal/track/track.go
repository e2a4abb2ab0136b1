package track

import (
	"github.com/golang/geo/s2"
)

// earthRadius is the mean earth radius in metres.
const earthRadius = 6371008.8

// Fix is a decoded position in decimal degrees. South and West are negative.
type Fix struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Position is a Fix plus the diagnostic fields of the sentence it came from.
// Only the Fix is kept in a Trajectory.
type Position struct {
	Fix
	Time       string `json:"time"`
	Satellites int64  `json:"satellites"`
	Quality    string `json:"quality"`
}

// Trajectory is the ordered list of fixes of one capture session. It only
// grows; fixes are never reordered or changed after Append.
type Trajectory struct {
	fixes []Fix
}

func New() *Trajectory {
	return &Trajectory{}
}

func (t *Trajectory) Append(f Fix) {
	t.fixes = append(t.fixes, f)
}

func (t *Trajectory) Len() int {
	return len(t.fixes)
}

// Fixes returns a copy of the fixes in arrival order.
func (t *Trajectory) Fixes() []Fix {
	out := make([]Fix, len(t.fixes))
	copy(out, t.fixes)
	return out
}

// First returns the first fix. ok is false when the trajectory is empty.
func (t *Trajectory) First() (f Fix, ok bool) {
	if len(t.fixes) == 0 {
		return Fix{}, false
	}
	return t.fixes[0], true
}

// Last returns the most recent fix. ok is false when the trajectory is empty.
func (t *Trajectory) Last() (f Fix, ok bool) {
	if len(t.fixes) == 0 {
		return Fix{}, false
	}
	return t.fixes[len(t.fixes)-1], true
}

// Distance is the great-circle length of the path in metres.
func (t *Trajectory) Distance() float64 {
	var total float64
	for i := 1; i < len(t.fixes); i++ {
		a := s2.LatLngFromDegrees(t.fixes[i-1].Latitude, t.fixes[i-1].Longitude)
		b := s2.LatLngFromDegrees(t.fixes[i].Latitude, t.fixes[i].Longitude)
		total += a.Distance(b).Radians() * earthRadius
	}
	return total
}
