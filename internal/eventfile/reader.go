package eventfile

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	converrors "github.com/arkilian/fifotable/internal/errors"
	"github.com/arkilian/fifotable/pkg/types"
	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"
)

// Reader yields records from an event file one at a time.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	logger *zap.Logger
	frames int64
	offset int64
}

// Open opens path for reading, decompressing ".sz" files on the fly.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, converrors.NewStreamError("failed to open event file", err)
	}
	var src io.Reader = f
	if strings.HasSuffix(path, SnappySuffix) {
		src = snappy.NewReader(f)
	}
	r, err := NewReader(src)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads the file header from src and returns a reader positioned
// at the first frame.
func NewReader(src io.Reader) (*Reader, error) {
	r := &Reader{r: bufio.NewReaderSize(src, 1<<16), logger: zap.NewNop()}

	var hdr [headerSize]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		return nil, converrors.NewStreamError("failed to read file header", err)
	}
	if string(hdr[:4]) != Magic {
		return nil, converrors.NewStreamError(fmt.Sprintf("bad magic %q", hdr[:4]), nil)
	}
	if v := binary.LittleEndian.Uint16(hdr[4:]); v != Version {
		return nil, converrors.NewStreamError(fmt.Sprintf("unsupported format version %d", v), nil)
	}
	r.offset = headerSize
	return r, nil
}

// WithLogger sets the logger for the reader.
func (r *Reader) WithLogger(log *zap.Logger) {
	r.logger = log.With(zap.String("component", "eventfile"))
}

// Frames returns the number of frames read so far.
func (r *Reader) Frames() int64 {
	return r.frames
}

// Next returns the next record, or io.EOF at end of stream. A truncated
// trailing frame also ends the stream. Any other failure is a
// STREAM_READ_FAILURE.
func (r *Reader) Next(ctx context.Context) (*types.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var fh [frameHeaderSize]byte
	if _, err := io.ReadFull(r.r, fh[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			r.logger.Warn("Truncated frame header at end of stream", zap.Int64("offset", r.offset))
			return nil, io.EOF
		}
		return nil, converrors.NewStreamError("failed to read frame header", err)
	}

	length := binary.LittleEndian.Uint32(fh[0:])
	sum := binary.LittleEndian.Uint32(fh[4:])
	if length > MaxFrameSize {
		return nil, converrors.NewStreamError(
			fmt.Sprintf("frame at offset %d declares %d bytes, max %d", r.offset, length, MaxFrameSize), nil)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			r.logger.Warn("Truncated frame at end of stream", zap.Int64("offset", r.offset), zap.Uint32("length", length))
			return nil, io.EOF
		}
		return nil, converrors.NewStreamError("failed to read frame payload", err)
	}

	if computed := murmur3.Sum32(payload); computed != sum {
		return nil, converrors.NewStreamError(
			fmt.Sprintf("checksum mismatch at offset %d: stored %08x, computed %08x", r.offset, sum, computed), nil)
	}

	rec, err := decodePayload(payload)
	if err != nil {
		return nil, converrors.NewStreamError(fmt.Sprintf("failed to decode frame at offset %d", r.offset), err)
	}

	r.frames++
	r.offset += frameHeaderSize + int64(length)
	return rec, nil
}

// Close closes the underlying file when the reader owns one.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
