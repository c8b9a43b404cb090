// Package eventfile reads and writes framed acquisition event files.
//
// A file starts with the magic "FEVT" and a little-endian uint16 version.
// Each record follows as a frame:
//
//	[length:4][murmur3-32 checksum:4][payload:length]
//
// and each payload is:
//
//	kind:1 eventID:2 serial:4 timestamp:4 run:4 nbanks:4
//	nbanks × (tag:4 type:2 nbytes:4 data:nbytes)
//
// Files whose name ends in ".sz" are wrapped in a snappy framed stream.
package eventfile

import (
	"encoding/binary"
	"fmt"

	"github.com/arkilian/fifotable/pkg/types"
)

const (
	// Magic opens every event file
	Magic = "FEVT"

	// Version is the current format version
	Version uint16 = 1

	// MaxFrameSize bounds a single frame payload
	MaxFrameSize = 64 << 20

	// SnappySuffix marks snappy-compressed files
	SnappySuffix = ".sz"

	headerSize      = 4 + 2
	frameHeaderSize = 8
	recordHeader    = 1 + 2 + 4 + 4 + 4 + 4
	bankHeader      = types.BankTagLen + 2 + 4
)

func encodePayload(rec *types.EventRecord) ([]byte, error) {
	size := recordHeader
	for _, b := range rec.Banks {
		if len(b.Tag) != types.BankTagLen {
			return nil, fmt.Errorf("%w: %q", types.ErrInvalidBankTag, b.Tag)
		}
		size += bankHeader + len(b.Data)
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("record of %d bytes exceeds max frame size %d", size, MaxFrameSize)
	}

	buf := make([]byte, size)
	buf[0] = byte(rec.Kind)
	binary.LittleEndian.PutUint16(buf[1:], rec.EventID)
	binary.LittleEndian.PutUint32(buf[3:], rec.Serial)
	binary.LittleEndian.PutUint32(buf[7:], rec.Timestamp)
	binary.LittleEndian.PutUint32(buf[11:], rec.RunNumber)
	binary.LittleEndian.PutUint32(buf[15:], uint32(len(rec.Banks)))

	off := recordHeader
	for _, b := range rec.Banks {
		copy(buf[off:], b.Tag)
		binary.LittleEndian.PutUint16(buf[off+4:], uint16(b.Type))
		binary.LittleEndian.PutUint32(buf[off+6:], uint32(len(b.Data)))
		off += bankHeader
		off += copy(buf[off:], b.Data)
	}
	return buf, nil
}

func decodePayload(buf []byte) (*types.EventRecord, error) {
	if len(buf) < recordHeader {
		return nil, fmt.Errorf("payload of %d bytes is shorter than record header", len(buf))
	}
	rec := &types.EventRecord{
		Kind:      types.RecordKind(buf[0]),
		EventID:   binary.LittleEndian.Uint16(buf[1:]),
		Serial:    binary.LittleEndian.Uint32(buf[3:]),
		Timestamp: binary.LittleEndian.Uint32(buf[7:]),
		RunNumber: binary.LittleEndian.Uint32(buf[11:]),
	}
	switch rec.Kind {
	case types.KindEvent, types.KindBeginRun, types.KindEndRun:
	default:
		return nil, fmt.Errorf("unknown record kind %d", buf[0])
	}

	nbanks := binary.LittleEndian.Uint32(buf[15:])
	if uint64(nbanks)*bankHeader > uint64(len(buf)-recordHeader) {
		return nil, fmt.Errorf("bank count %d does not fit in %d byte payload", nbanks, len(buf))
	}
	rec.Banks = make([]types.Bank, 0, nbanks)

	off := recordHeader
	for i := uint32(0); i < nbanks; i++ {
		if len(buf)-off < bankHeader {
			return nil, fmt.Errorf("bank %d header truncated", i)
		}
		tag := string(buf[off : off+types.BankTagLen])
		typ := types.BankType(binary.LittleEndian.Uint16(buf[off+4:]))
		n := int(binary.LittleEndian.Uint32(buf[off+6:]))
		off += bankHeader
		if n < 0 || n > len(buf)-off {
			return nil, fmt.Errorf("bank %q declares %d bytes, %d remain", tag, n, len(buf)-off)
		}
		rec.Banks = append(rec.Banks, types.Bank{Tag: tag, Type: typ, Data: buf[off : off+n]})
		off += n
	}
	if off != len(buf) {
		return nil, fmt.Errorf("%d trailing bytes after last bank", len(buf)-off)
	}
	return rec, nil
}
