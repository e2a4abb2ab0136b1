package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Fishwaldo/GnssTester/internal/channel"
	"github.com/Fishwaldo/GnssTester/internal/config"
	"github.com/Fishwaldo/GnssTester/internal/mtk"
	"github.com/Fishwaldo/GnssTester/internal/track"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sentence(body string) string {
	return fmt.Sprintf("$%s*%02X", body, mtk.Checksum(body))
}

var (
	gga1 = sentence("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
	gga2 = sentence("GPGGA,123520,4807.040,N,01131.002,E,1,09,0.9,545.4,M,46.9,M,,")
	rmc  = sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
)

func baseConfig(t *testing.T) *config.Config {
	return &config.Config{
		Name:        "test",
		MapFile:     filepath.Join(t.TempDir(), "map.html"),
		MapTitle:    "GNSS Track",
		MapZoom:     19,
		Baud:        9600,
		ReadTimeout: time.Second,
		Cooldown:    5 * time.Second,
		MaxDiscard:  100,
		WaitBudget:  30 * time.Second,
	}
}

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drive.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\r\n")+"\r\n"), 0o600))
	return path
}

// receiver answers every framed command with an acknowledgement and then
// plays back its queued output. An empty queue times out.
type receiver struct {
	queue   []string
	written []string
	closed  bool
	// silent receivers never acknowledge a command.
	silent  bool
}

func (r *receiver) WriteLine(line []byte) error {
	if len(line) == 0 {
		return nil
	}
	cmd := string(line)
	r.written = append(r.written, cmd)
	if r.silent {
		return nil
	}
	payload := mtk.Payload(cmd)
	var ack string
	if strings.HasPrefix(payload, "PQ") {
		ack = "$" + strings.SplitN(payload, ",", 2)[0] + ",OK"
	} else {
		ack = "$PMTK001," + strings.TrimPrefix(payload, "PMTK") + ",3"
	}
	r.queue = append([]string{ack}, r.queue...)
	return nil
}

func (r *receiver) ReadLine(time.Duration) ([]byte, error) {
	if len(r.queue) == 0 {
		return nil, channel.ErrReadTimeout
	}
	line := r.queue[0]
	r.queue = r.queue[1:]
	return []byte(line + "\r\n"), nil
}

func (r *receiver) Close() error {
	r.closed = true
	return nil
}

func newSession(cfg *config.Config, rx *receiver) (*Session, *[]time.Duration, *int) {
	s := New(cfg, logr.Discard())
	s.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	var slept []time.Duration
	opened := 0
	s.sleep = func(d time.Duration) { slept = append(slept, d) }
	s.openSerial = func(opts channel.SerialOptions) (channel.LineChannel, error) {
		opened++
		if rx == nil {
			return nil, &channel.ConnectionError{Port: opts.Port, Err: os.ErrNotExist}
		}
		return rx, nil
	}
	return s, &slept, &opened
}

func TestFilePlayback(t *testing.T) {
	cfg := baseConfig(t)
	cfg.InputFile = writeLog(t, gga1, "garbage", rmc, gga2)
	s, _, opened := newSession(cfg, nil)
	var fixes []track.Position
	s.OnFix = func(p track.Position) { fixes = append(fixes, p) }

	require.Equal(t, ExitOK, s.Run(context.Background()))
	assert.Zero(t, *opened)
	assert.Len(t, fixes, 2)
	assert.Equal(t, int64(2), s.Progress.Fixes.Load())

	data, err := os.ReadFile(cfg.MapFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "48.1173")
}

func TestFileWithoutFixes(t *testing.T) {
	cfg := baseConfig(t)
	cfg.InputFile = writeLog(t, rmc, "garbage")
	s, _, _ := newSession(cfg, nil)

	assert.Equal(t, ExitFailure, s.Run(context.Background()))
	_, err := os.Stat(cfg.MapFile)
	assert.True(t, os.IsNotExist(err))
}

func TestMissingFile(t *testing.T) {
	cfg := baseConfig(t)
	cfg.InputFile = filepath.Join(t.TempDir(), "missing.log")
	s, _, _ := newSession(cfg, nil)
	assert.Equal(t, ExitFailure, s.Run(context.Background()))
}

func TestExpandedMapFile(t *testing.T) {
	cfg := baseConfig(t)
	dir := t.TempDir()
	cfg.MapFile = filepath.Join(dir, "track-%Y%m%d.gpx")
	cfg.InputFile = writeLog(t, gga1)
	s, _, _ := newSession(cfg, nil)

	require.Equal(t, ExitOK, s.Run(context.Background()))
	_, err := os.Stat(filepath.Join(dir, "track-20240506.gpx"))
	assert.NoError(t, err)
}

func TestSetConfigFailsBeforeOpen(t *testing.T) {
	cfg := baseConfig(t)
	cfg.SerialPort = "/dev/ttyUSB0"
	cfg.SetConfig = true
	rx := &receiver{}
	s, _, opened := newSession(cfg, rx)

	assert.Equal(t, ExitFailure, s.Run(context.Background()))
	assert.Zero(t, *opened)
	assert.Empty(t, rx.written)
}

func TestConnectionFailureCoolsDown(t *testing.T) {
	cfg := baseConfig(t)
	cfg.SerialPort = "/dev/ttyUSB9"
	s, slept, opened := newSession(cfg, nil)

	assert.Equal(t, ExitFailure, s.Run(context.Background()))
	assert.Equal(t, 1, *opened)
	assert.Equal(t, []time.Duration{5 * time.Second}, *slept)
}

func TestDumpConfiguration(t *testing.T) {
	for _, legacy := range []bool{false, true} {
		t.Run(fmt.Sprintf("legacy=%v", legacy), func(t *testing.T) {
			cfg := baseConfig(t)
			cfg.SerialPort = "/dev/ttyUSB0"
			cfg.Query = true
			cfg.SetConfig = true
			cfg.LegacyExitCodes = legacy
			cfg.Report = filepath.Join(t.TempDir(), "dump.yaml")
			rx := &receiver{}
			s, _, _ := newSession(cfg, rx)

			want := ExitOK
			if legacy {
				want = ExitFailure
			}
			assert.Equal(t, want, s.Run(context.Background()))
			assert.True(t, rx.closed)
			assert.Len(t, rx.written, len(mtk.QueryCatalog))

			data, err := os.ReadFile(cfg.Report)
			require.NoError(t, err)
			var report struct {
				Port    string `yaml:"port"`
				Results []struct {
					Command  string `yaml:"command"`
					Response string `yaml:"response"`
				} `yaml:"results"`
			}
			require.NoError(t, yaml.Unmarshal(data, &report))
			assert.Equal(t, "/dev/ttyUSB0", report.Port)
			require.Len(t, report.Results, len(mtk.QueryCatalog))
			assert.Equal(t, "PMTK605", report.Results[0].Command)
			assert.Equal(t, "$PMTK001,605,3", report.Results[0].Response)
			assert.Equal(t, "$PQVERNO,OK", report.Results[4].Response)

			_, err = os.Stat(cfg.MapFile)
			assert.True(t, os.IsNotExist(err), "a dump renders no map")
		})
	}
}

func TestSerialCaptureWithColdstart(t *testing.T) {
	cfg := baseConfig(t)
	cfg.SerialPort = "/dev/ttyUSB0"
	cfg.Coldstart = true
	rx := &receiver{queue: []string{gga1, rmc, gga2}}
	s, _, _ := newSession(cfg, rx)

	require.Equal(t, ExitOK, s.Run(context.Background()))
	assert.Equal(t, []string{"$PMTK103*30"}, rx.written)
	assert.True(t, rx.closed)
	assert.Equal(t, int64(2), s.Progress.Fixes.Load())
	_, err := os.Stat(cfg.MapFile)
	assert.NoError(t, err)
}

func TestColdstartFailureClosesPort(t *testing.T) {
	cfg := baseConfig(t)
	cfg.SerialPort = "/dev/ttyUSB0"
	cfg.Coldstart = true
	rx := &receiver{silent: true, queue: []string{gga1}}
	s, _, _ := newSession(cfg, rx)

	assert.Equal(t, ExitFailure, s.Run(context.Background()))
	assert.True(t, rx.closed)
	assert.Equal(t, []string{"$PMTK103*30"}, rx.written)
	assert.Zero(t, s.Progress.Lines.Load(), "no capture after a failed coldstart")
	_, err := os.Stat(cfg.MapFile)
	assert.True(t, os.IsNotExist(err))
}
