package table

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang/snappy"
)

// Compression selects how array columns are stored.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionSnappy Compression = "snappy"
)

// ParseCompression validates a compression name. Empty means snappy.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionSnappy:
		return CompressionSnappy, nil
	case CompressionNone:
		return CompressionNone, nil
	default:
		return "", fmt.Errorf("unknown compression %q (must be snappy or none)", s)
	}
}

// EncodeArray packs values as little-endian float64, optionally snappy-compressed.
func EncodeArray(values []float64, c Compression) []byte {
	raw := make([]byte, 8*len(values))
	for j, v := range values {
		binary.LittleEndian.PutUint64(raw[8*j:], math.Float64bits(v))
	}
	if c == CompressionSnappy {
		return snappy.Encode(nil, raw)
	}
	return raw
}

// DecodeArray reverses EncodeArray and checks the result holds exactly n values.
func DecodeArray(blob []byte, c Compression, n int) ([]float64, error) {
	raw := blob
	if c == CompressionSnappy {
		var err error
		raw, err = snappy.Decode(nil, blob)
		if err != nil {
			return nil, fmt.Errorf("table: failed to decompress array: %w", err)
		}
	}
	if len(raw) != 8*n {
		return nil, fmt.Errorf("table: array holds %d bytes, size column says %d values", len(raw), n)
	}
	values := make([]float64, n)
	for j := range values {
		values[j] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*j:]))
	}
	return values, nil
}
