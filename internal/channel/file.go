package channel

import (
	"bufio"
	"io"
	"os"
	"time"
)

// File replays a stored log. It ignores read timeouts and is exhausted at
// end of file.
type File struct {
	name   string
	closer io.Closer
	reader *bufio.Reader
}

func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &File{name: path, closer: f, reader: bufio.NewReader(f)}, nil
}

// NewReader wraps r as a read only channel.
func NewReader(name string, r io.Reader) *File {
	return &File{name: name, reader: bufio.NewReader(r)}
}

func (f *File) Name() string {
	return f.name
}

func (f *File) ReadLine(time.Duration) ([]byte, error) {
	line, err := f.reader.ReadBytes('\n')
	if len(line) > 0 && err == io.EOF {
		return line, nil
	}
	if err != nil {
		return nil, err
	}
	return line, nil
}

func (f *File) WriteLine([]byte) error {
	return ErrReadOnly
}

func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
