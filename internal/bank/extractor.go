package bank

import (
	"encoding/binary"
	"fmt"
	"math"

	converrors "github.com/arkilian/fifotable/internal/errors"
	"github.com/arkilian/fifotable/pkg/types"
)

// Validate checks the bank's structure: a known sample type that converts
// losslessly to float64 and a payload that holds a whole number of samples.
func Validate(b *types.Bank) error {
	if b == nil {
		return converrors.NewBankError(converrors.CodeMalformedBank, "nil bank")
	}
	width := b.Type.Width()
	if width == 0 {
		return converrors.Wrap(converrors.ErrCategoryBank, converrors.CodeMalformedBank,
			fmt.Sprintf("bank %q: type id %d", b.Tag, uint16(b.Type)), types.ErrUnknownBankType)
	}
	if b.Type == types.BankTypeI64 || b.Type == types.BankTypeU64 {
		return converrors.NewBankError(converrors.CodeMalformedBank,
			fmt.Sprintf("bank %q: %s samples do not convert losslessly to float64", b.Tag, b.Type))
	}
	if len(b.Data)%width != 0 {
		return converrors.NewBankError(converrors.CodeMalformedBank,
			fmt.Sprintf("bank %q: %d bytes is not a multiple of %s width %d", b.Tag, len(b.Data), b.Type, width)).
			WithDetails(map[string]interface{}{"tag": b.Tag, "bytes": len(b.Data), "width": width})
	}
	return nil
}

// Extract converts the bank's samples to float64 in index order.
// It fails with CAPACITY_EXCEEDED, before allocating, when the sample count
// is above maxCapacity.
func Extract(b *types.Bank, maxCapacity int) ([]float64, error) {
	if err := Validate(b); err != nil {
		return nil, err
	}

	n := b.Len()
	if n > maxCapacity {
		return nil, converrors.NewBankError(converrors.CodeCapacityExceeded,
			fmt.Sprintf("bank %q: %d samples exceeds capacity %d", b.Tag, n, maxCapacity)).
			WithDetails(map[string]interface{}{"tag": b.Tag, "samples": n, "capacity": maxCapacity})
	}

	out := make([]float64, n)
	data := b.Data
	switch b.Type {
	case types.BankTypeU8:
		for j := range out {
			out[j] = float64(data[j])
		}
	case types.BankTypeI8:
		for j := range out {
			out[j] = float64(int8(data[j]))
		}
	case types.BankTypeU16:
		for j := range out {
			out[j] = float64(binary.LittleEndian.Uint16(data[2*j:]))
		}
	case types.BankTypeI16:
		for j := range out {
			out[j] = float64(int16(binary.LittleEndian.Uint16(data[2*j:])))
		}
	case types.BankTypeU32:
		for j := range out {
			out[j] = float64(binary.LittleEndian.Uint32(data[4*j:]))
		}
	case types.BankTypeI32:
		for j := range out {
			out[j] = float64(int32(binary.LittleEndian.Uint32(data[4*j:])))
		}
	case types.BankTypeF32:
		for j := range out {
			out[j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*j:])))
		}
	case types.BankTypeF64:
		for j := range out {
			out[j] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*j:]))
		}
	}
	return out, nil
}

// EncodeU32 packs samples as a little-endian uint32 bank payload.
func EncodeU32(samples []uint32) []byte {
	buf := make([]byte, 4*len(samples))
	for j, s := range samples {
		binary.LittleEndian.PutUint32(buf[4*j:], s)
	}
	return buf
}

// NewU32Bank builds a uint32 bank from samples.
func NewU32Bank(tag string, samples []uint32) types.Bank {
	return types.Bank{Tag: tag, Type: types.BankTypeU32, Data: EncodeU32(samples)}
}
