package log

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// DefaultMaxBackups is the number of rotated capture files kept when
// rotation is enabled.
const DefaultMaxBackups = 3

// FileOption configures a FileLogger.
type FileOption func(*FileLogger)

// WithMaxSize rotates the capture once it reaches size bytes. A file may
// exceed size by one event. Zero disables rotation.
func WithMaxSize(size int64) FileOption {
	return func(l *FileLogger) { l.maxSize = size }
}

// WithMaxBackups sets how many rotated files (path.1 ... path.N) are kept.
// Zero discards the capture on rotation.
func WithMaxBackups(n int) FileOption {
	return func(l *FileLogger) { l.maxBackups = n }
}

// FileLogger appends events to a CBOR capture file, optionally rotating it
// by size.
type FileLogger struct {
	path       string
	maxSize    int64
	maxBackups int

	mu      sync.Mutex
	file    *os.File
	out     *countingWriter
	enc     *cbor.Encoder
	closed  bool
	dropped uint64
}

// NewFileLogger opens (or creates, mode 0644) the capture file at path for
// appending.
func NewFileLogger(path string, opts ...FileOption) (*FileLogger, error) {
	l := &FileLogger{path: path, maxBackups: DefaultMaxBackups}
	for _, opt := range opts {
		opt(l)
	}
	if l.maxSize < 0 || l.maxBackups < 0 {
		return nil, fmt.Errorf("capture %s: negative rotation limits", path)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	l.file = f
	l.out = &countingWriter{w: f, n: info.Size()}
	l.enc = NewEncoder(l.out)
	return nil
}

// Log appends event. Write failures are counted, never reported: capture
// must not disturb the gateway.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	// A failed rotation leaves no open file; retry on every event.
	if l.file == nil {
		if err := l.open(); err != nil {
			l.dropped++
			return
		}
	}
	if l.maxSize > 0 && l.out.n >= l.maxSize {
		if err := l.rotate(); err != nil {
			l.dropped++
			return
		}
	}
	if err := l.enc.Encode(event); err != nil {
		l.dropped++
	}
}

// rotate shifts path.N-1 to path.N down to path to path.1 and reopens path.
func (l *FileLogger) rotate() error {
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return err
	}

	if l.maxBackups == 0 {
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	} else {
		for i := l.maxBackups; i > 1; i-- {
			err := os.Rename(l.backup(i-1), l.backup(i))
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
		if err := os.Rename(l.path, l.backup(1)); err != nil {
			return err
		}
	}
	return l.open()
}

func (l *FileLogger) backup(i int) string {
	return fmt.Sprintf("%s.%d", l.path, i)
}

// Dropped returns the number of events lost to write or rotation failures.
func (l *FileLogger) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close closes the capture file. Later events are ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	return f.Close()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
