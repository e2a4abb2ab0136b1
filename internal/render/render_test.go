package render

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Fishwaldo/GnssTester/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrack() *track.Trajectory {
	tr := track.New()
	tr.Append(track.Fix{Latitude: 48.1173, Longitude: 11.5167})
	tr.Append(track.Fix{Latitude: 48.1174, Longitude: 11.5168})
	tr.Append(track.Fix{Latitude: -33.8688, Longitude: -151.2093})
	return tr
}

func TestRenderEmptyTrajectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.html")

	assert.ErrorIs(t, Render(path, track.New(), Options{}), ErrEmptyTrajectory)
	assert.ErrorIs(t, Render(path, nil, Options{}), ErrEmptyTrajectory)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "no file is written for an empty trajectory")
}

func TestRenderHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.html")
	require.NoError(t, Render(path, sampleTrack(), Options{Title: "Test <Drive>"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "<title>Test &lt;Drive&gt;</title>")
	assert.Contains(t, out, "L.map('map')")
	assert.Contains(t, out, "48.1173")
	assert.Contains(t, out, "-151.2093")
	assert.Equal(t, 3, strings.Count(out, `"lat":`))
	assert.Regexp(t, `\],\s*19\s*\);`, out, "default zoom")
}

func TestRenderGPX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.GPX")
	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, Render(path, sampleTrack(), Options{Title: "drive", Time: when}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<?xml"))

	var doc gpxDoc
	require.NoError(t, xml.Unmarshal(data, &doc))
	assert.Equal(t, "1.1", doc.Version)
	assert.Equal(t, "drive", doc.Name)
	assert.Equal(t, "2024-05-06T07:08:09Z", doc.Time)
	require.Len(t, doc.Points, 3)
	assert.Equal(t, 48.1173, doc.Points[0].Lat)
	assert.Equal(t, -151.2093, doc.Wpt.Lon, "last fix is the waypoint")
}

func TestExpandPath(t *testing.T) {
	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	got, err := ExpandPath("track-%Y%m%d-%H%M%S.html", when)
	require.NoError(t, err)
	assert.Equal(t, "track-20240506-070809.html", got)

	got, err = ExpandPath("map.html", when)
	require.NoError(t, err)
	assert.Equal(t, "map.html", got)
}
