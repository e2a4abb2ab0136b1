package channel

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileReadLine(t *testing.T) {
	f := NewReader("log", strings.NewReader("$GPGGA,1\r\n$GPRMC,2\nlast"))

	line, err := f.ReadLine(0)
	require.NoError(t, err)
	assert.Equal(t, "$GPGGA,1\r\n", string(line))

	line, err = f.ReadLine(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "$GPRMC,2\n", string(line))

	line, err = f.ReadLine(0)
	require.NoError(t, err)
	assert.Equal(t, "last", string(line), "unterminated last line is still returned")

	_, err = f.ReadLine(0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFileIsReadOnly(t *testing.T) {
	f := NewReader("log", strings.NewReader(""))
	assert.ErrorIs(t, f.WriteLine([]byte("$PMTK103*30")), ErrReadOnly)
	assert.NoError(t, f.Close())
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.nmea")
	require.NoError(t, os.WriteFile(path, []byte("$GPGGA,1\n"), 0o644))

	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, path, f.Name())

	line, err := f.ReadLine(0)
	require.NoError(t, err)
	assert.Equal(t, "$GPGGA,1\n", string(line))

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

// fakePort hands out one chunk per Read and advances the clock by tick on
// every empty read, like a port opened with a read timeout.
type fakePort struct {
	chunks  []string
	written bytes.Buffer
	clock   time.Time
	tick    time.Duration
	closed  bool
	readErr error
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.chunks) == 0 {
		p.clock = p.clock.Add(p.tick)
		if p.readErr != nil {
			return 0, p.readErr
		}
		return 0, io.EOF
	}
	n := copy(b, p.chunks[0])
	p.chunks[0] = p.chunks[0][n:]
	if p.chunks[0] == "" {
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func newFakeSerial(p *fakePort) *Serial {
	s := NewSerial("fake", p)
	s.now = func() time.Time { return p.clock }
	return s
}

func TestSerialReassemblesChunks(t *testing.T) {
	p := &fakePort{chunks: []string{"$PMTK0", "01,103,3*3", "2\r\n$GP", "GGA\r\n"}, tick: 100 * time.Millisecond}
	s := newFakeSerial(p)

	line, err := s.ReadLine(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "$PMTK001,103,3*32\r\n", string(line))

	line, err = s.ReadLine(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "$GPGGA\r\n", string(line))
}

func TestSerialReadTimeout(t *testing.T) {
	p := &fakePort{chunks: []string{"$GPGGA,partial"}, tick: 100 * time.Millisecond}
	s := newFakeSerial(p)
	start := p.clock

	_, err := s.ReadLine(5 * time.Second)
	assert.ErrorIs(t, err, ErrReadTimeout)
	assert.Equal(t, 5*time.Second, p.clock.Sub(start))

	// the partial line survives the timeout
	p.chunks = []string{"\n"}
	line, err := s.ReadLine(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "$GPGGA,partial\n", string(line))
}

func TestSerialReadError(t *testing.T) {
	boom := errors.New("device unplugged")
	p := &fakePort{readErr: boom, tick: 100 * time.Millisecond}
	s := newFakeSerial(p)

	_, err := s.ReadLine(time.Second)
	assert.ErrorIs(t, err, boom)
}

func TestSerialHangup(t *testing.T) {
	// a disconnected port returns empty reads without waiting out the poll
	p := &fakePort{}
	s := newFakeSerial(p)

	_, err := s.ReadLine(0)
	assert.ErrorIs(t, err, ErrHangup)
	assert.NotErrorIs(t, err, ErrReadTimeout)
}

func TestSerialQuietPortIsNotHangup(t *testing.T) {
	p := &fakePort{tick: 100 * time.Millisecond}
	s := newFakeSerial(p)

	_, err := s.ReadLine(3 * time.Second)
	assert.ErrorIs(t, err, ErrReadTimeout, "30 empty polls that each waited are only silence")
}

func TestSerialOverlongLine(t *testing.T) {
	p := &fakePort{chunks: []string{strings.Repeat("x", maxPending+10)}, tick: 100 * time.Millisecond}
	s := newFakeSerial(p)

	line, err := s.ReadLine(time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(line), maxPending)
}

func TestSerialWriteLine(t *testing.T) {
	p := &fakePort{}
	s := newFakeSerial(p)

	require.NoError(t, s.WriteLine(nil))
	require.NoError(t, s.WriteLine([]byte("$PMTK103*30")))
	assert.Equal(t, "\r\n$PMTK103*30\r\n", p.written.String())

	require.NoError(t, s.Close())
	assert.True(t, p.closed)
}

func TestOpenSerialConnectionError(t *testing.T) {
	_, err := OpenSerial(SerialOptions{Port: filepath.Join(t.TempDir(), "ttyNONE")})
	require.Error(t, err)

	var ce *ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Error(), "ttyNONE")

	_, err = OpenSerial(SerialOptions{Port: "/dev/null", Driver: "carrier-pigeon"})
	require.True(t, errors.As(err, &ce))
}

func TestSerialOverPty(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("pty backed serial test needs linux")
	}
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	s, err := OpenSerial(SerialOptions{Port: tty.Name(), Baud: 9600})
	require.NoError(t, err)
	defer s.Close()

	_, err = ptmx.Write([]byte("$PMTK001,103,3*32\r\n"))
	require.NoError(t, err)

	line, err := s.ReadLine(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "$PMTK001,103,3*32\r\n", string(line))

	_, err = s.ReadLine(300 * time.Millisecond)
	assert.ErrorIs(t, err, ErrReadTimeout)

	require.NoError(t, s.WriteLine([]byte("$PMTK103*30")))
	buf := make([]byte, 64)
	n, err := ptmx.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "$PMTK103*30")
}
