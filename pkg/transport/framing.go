package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4

	// DefaultMaxMessageSize is the default maximum message size (1 MB).
	// Browse responses of large address spaces need more than 64 KB.
	DefaultMaxMessageSize = 1 << 20

	// MaxLogFrameDataSize is the maximum frame data size copied into log events.
	MaxLogFrameDataSize = 4096
)

// Framing errors.
var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrMessageEmpty    = errors.New("message is empty")
	ErrFrameTruncated  = errors.New("frame truncated")
)

// frameLog is the optional protocol capture shared by reader and writer.
type frameLog struct {
	logger   log.Logger
	connID   string
	endpoint string
}

func (l *frameLog) emit(data []byte, dir log.Direction) {
	if l.logger == nil {
		return
	}
	ev := &log.FrameEvent{Size: LengthPrefixSize + len(data), Data: data}
	if len(data) > MaxLogFrameDataSize {
		ev.Data = data[:MaxLogFrameDataSize]
		ev.Truncated = true
	}
	l.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: l.connID,
		Endpoint:     l.endpoint,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame:        ev,
	})
}

// FrameWriter writes length-prefixed frames to an underlying writer.
// It is safe for concurrent use.
type FrameWriter struct {
	w       io.Writer
	maxSize uint32
	mu      sync.Mutex
	log     frameLog
}

// NewFrameWriter creates a frame writer. A maxSize of 0 selects
// DefaultMaxMessageSize.
func NewFrameWriter(w io.Writer, maxSize uint32) *FrameWriter {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &FrameWriter{w: w, maxSize: maxSize}
}

// WriteFrame writes data as one frame. Prefix and payload go out in a
// single Write so a concurrent writer can never interleave between them.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if uint32(len(data)) > fw.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), fw.maxSize)
	}

	buf := make([]byte, LengthPrefixSize+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[LengthPrefixSize:], data)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	fw.log.emit(data, log.DirectionOut)
	return nil
}

// FrameReader reads length-prefixed frames from an underlying reader.
// It is not safe for concurrent use.
type FrameReader struct {
	r         io.Reader
	maxSize   uint32
	lengthBuf [LengthPrefixSize]byte
	log       frameLog
}

// NewFrameReader creates a frame reader. A maxSize of 0 selects
// DefaultMaxMessageSize.
func NewFrameReader(r io.Reader, maxSize uint32) *FrameReader {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &FrameReader{r: r, maxSize: maxSize}
}

// ReadFrame reads one frame and returns its payload. A clean close between
// frames returns io.EOF.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.lengthBuf[:]); err != nil {
		switch {
		case err == io.EOF:
			return nil, err
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, ErrFrameTruncated
		default:
			return nil, fmt.Errorf("read length prefix: %w", err)
		}
	}

	length := binary.BigEndian.Uint32(fr.lengthBuf[:])
	if length == 0 {
		return nil, ErrMessageEmpty
	}
	if length > fr.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, fr.maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}

	fr.log.emit(payload, log.DirectionIn)
	return payload, nil
}

// Framer combines frame reading and writing on one stream.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a framer for bidirectional communication.
func NewFramer(rw io.ReadWriter, maxSize uint32) *Framer {
	return &Framer{
		FrameReader: NewFrameReader(rw, maxSize),
		FrameWriter: NewFrameWriter(rw, maxSize),
	}
}

// SetLogger configures protocol capture for both directions.
// Pass nil to disable.
func (f *Framer) SetLogger(logger log.Logger, connID, endpoint string) {
	l := frameLog{logger: logger, connID: connID, endpoint: endpoint}
	f.FrameReader.log = l
	f.FrameWriter.mu.Lock()
	f.FrameWriter.log = l
	f.FrameWriter.mu.Unlock()
}
