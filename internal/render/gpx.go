package render

import (
	"encoding/xml"
	"io"
	"time"

	"github.com/Fishwaldo/GnssTester/internal/track"
)

type gpxPoint struct {
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Name string  `xml:"name,omitempty"`
}

type gpxDoc struct {
	XMLName xml.Name   `xml:"gpx"`
	Version string     `xml:"version,attr"`
	Creator string     `xml:"creator,attr"`
	Xmlns   string     `xml:"xmlns,attr"`
	Time    string     `xml:"metadata>time"`
	Wpt     gpxPoint   `xml:"wpt"`
	Name    string     `xml:"trk>name"`
	Points  []gpxPoint `xml:"trk>trkseg>trkpt"`
}

// writeGPX writes a GPX 1.1 track and the last fix as a waypoint.
func writeGPX(w io.Writer, traj *track.Trajectory, opts Options) error {
	last, _ := traj.Last()
	doc := gpxDoc{
		Version: "1.1",
		Creator: "GnssTester",
		Xmlns:   "http://www.topografix.com/GPX/1/1",
		Time:    opts.Time.UTC().Format(time.RFC3339),
		Wpt:     gpxPoint{Lat: last.Latitude, Lon: last.Longitude, Name: "last fix"},
		Name:    opts.Title,
	}
	for _, f := range traj.Fixes() {
		doc.Points = append(doc.Points, gpxPoint{Lat: f.Latitude, Lon: f.Longitude})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
