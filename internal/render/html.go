package render

import (
	"html/template"
	"io"

	"github.com/Fishwaldo/GnssTester/internal/track"
)

var mapTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>html, body, #map { height: 100%; margin: 0; }</style>
</head>
<body>
<div id="map"></div>
<script>
var fixes = {{.Fixes}};
var map = L.map('map').setView([{{.Center.Latitude}}, {{.Center.Longitude}}], {{.Zoom}});
L.tileLayer('https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png', {
	maxZoom: 19,
	attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);
fixes.forEach(function (f) {
	L.circleMarker([f.lat, f.lon], {radius: 2, color: '#FF0000', stroke: false, fillOpacity: 0.8}).addTo(map);
});
L.marker([{{.Last.Latitude}}, {{.Last.Longitude}}], {title: 'last fix'}).addTo(map);
</script>
</body>
</html>
`))

type mapData struct {
	Title  string
	Zoom   int
	Center track.Fix
	Last   track.Fix
	Fixes  []track.Fix
}

func writeHTML(w io.Writer, traj *track.Trajectory, opts Options) error {
	first, _ := traj.First()
	last, _ := traj.Last()
	return mapTemplate.Execute(w, mapData{
		Title:  opts.Title,
		Zoom:   opts.Zoom,
		Center: first,
		Last:   last,
		Fixes:  traj.Fixes(),
	})
}
