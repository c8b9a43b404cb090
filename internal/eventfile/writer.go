package eventfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/arkilian/fifotable/pkg/types"
	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"
)

// Writer appends records to an event file.
type Writer struct {
	w      *bufio.Writer
	snappy *snappy.Writer
	file   *os.File
}

// Create creates path and writes the file header. ".sz" paths are
// snappy-compressed.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("eventfile: failed to create %s: %w", path, err)
	}
	var dst io.Writer = f
	var sw *snappy.Writer
	if strings.HasSuffix(path, SnappySuffix) {
		sw = snappy.NewBufferedWriter(f)
		dst = sw
	}
	w, err := NewWriter(dst)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.snappy, w.file = sw, f
	return w, nil
}

// NewWriter writes the file header to dst.
func NewWriter(dst io.Writer) (*Writer, error) {
	w := &Writer{w: bufio.NewWriter(dst)}
	var hdr [headerSize]byte
	copy(hdr[:], Magic)
	binary.LittleEndian.PutUint16(hdr[4:], Version)
	if _, err := w.w.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("eventfile: failed to write header: %w", err)
	}
	return w, nil
}

// Write appends one record as a frame.
func (w *Writer) Write(rec *types.EventRecord) error {
	payload, err := encodePayload(rec)
	if err != nil {
		return fmt.Errorf("eventfile: %w", err)
	}
	var fh [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(fh[0:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(fh[4:], murmur3.Sum32(payload))
	if _, err := w.w.Write(fh[:]); err != nil {
		return fmt.Errorf("eventfile: failed to write frame header: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("eventfile: failed to write payload: %w", err)
	}
	return nil
}

// Flush writes buffered frames to the underlying writer.
func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("eventfile: failed to flush: %w", err)
	}
	if w.snappy != nil {
		if err := w.snappy.Flush(); err != nil {
			return fmt.Errorf("eventfile: failed to flush snappy stream: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the file when the writer owns one.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if w.snappy != nil {
		if err := w.snappy.Close(); err != nil {
			return fmt.Errorf("eventfile: failed to close snappy stream: %w", err)
		}
	}
	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("eventfile: failed to fsync: %w", err)
		}
		return w.file.Close()
	}
	return nil
}
