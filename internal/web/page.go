package web

const livePage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>GNSS Live Track</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>html, body, #map { height: 100%; margin: 0; }</style>
</head>
<body>
<div id="map"></div>
<script>
var map = L.map('map').setView([0, 0], 2);
L.tileLayer('https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png', {
	maxZoom: 19,
	attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);
var last = null;
function add(f, center) {
	L.circleMarker([f.lat, f.lon], {radius: 2, color: '#FF0000', stroke: false, fillOpacity: 0.8}).addTo(map);
	if (last) { map.removeLayer(last); }
	last = L.marker([f.lat, f.lon]).addTo(map);
	if (center) { map.setView([f.lat, f.lon], 19); }
}
fetch('track').then(function (r) { return r.json(); }).then(function (fixes) {
	fixes.forEach(function (f, i) { add(f, i === 0); });
	var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
	var ws = new WebSocket(proto + location.host + '/ws');
	ws.onmessage = function (ev) {
		var m = JSON.parse(ev.data);
		if (m.type === 'fix' && m.position) { add(m.position, m.fixes === 1); }
	};
});
</script>
</body>
</html>
`
