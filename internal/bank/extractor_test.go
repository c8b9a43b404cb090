package bank

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	converrors "github.com/arkilian/fifotable/internal/errors"
	"github.com/arkilian/fifotable/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_U32(t *testing.T) {
	b := NewU32Bank("1ALG", []uint32{0, 1, 4095, math.MaxUint32})
	values, err := Extract(&b, types.DefaultMaxCapacity)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 4095, 4294967295}, values)
}

func TestExtract_Empty(t *testing.T) {
	b := NewU32Bank("1ALG", nil)
	values, err := Extract(&b, types.DefaultMaxCapacity)
	require.NoError(t, err)
	assert.NotNil(t, values)
	assert.Len(t, values, 0)
}

func TestExtract_SignedAndNarrowTypes(t *testing.T) {
	i16 := make([]byte, 4)
	binary.LittleEndian.PutUint16(i16[0:], uint16(0xFFFF))
	binary.LittleEndian.PutUint16(i16[2:], 300)

	f32 := make([]byte, 4)
	binary.LittleEndian.PutUint32(f32, math.Float32bits(1.5))

	tests := []struct {
		name string
		bank types.Bank
		want []float64
	}{
		{"u8", types.Bank{Tag: "BU08", Type: types.BankTypeU8, Data: []byte{0, 255}}, []float64{0, 255}},
		{"i8", types.Bank{Tag: "BI08", Type: types.BankTypeI8, Data: []byte{0x80, 0x7F}}, []float64{-128, 127}},
		{"i16", types.Bank{Tag: "BI16", Type: types.BankTypeI16, Data: i16}, []float64{-1, 300}},
		{"u16", types.Bank{Tag: "BU16", Type: types.BankTypeU16, Data: i16}, []float64{65535, 300}},
		{"f32", types.Bank{Tag: "BF32", Type: types.BankTypeF32, Data: f32}, []float64{1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := Extract(&tt.bank, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, values)
		})
	}
}

func TestExtract_CapacityExceeded(t *testing.T) {
	b := NewU32Bank("1AHG", make([]uint32, 6))
	values, err := Extract(&b, 5)
	require.Error(t, err)
	assert.Nil(t, values)
	assert.True(t, errors.Is(err, converrors.ErrCapacityExceeded))
	assert.False(t, errors.Is(err, converrors.ErrMissingBank))
}

func TestExtract_AtCapacity(t *testing.T) {
	b := NewU32Bank("1AHG", make([]uint32, types.DefaultMaxCapacity))
	values, err := Extract(&b, types.DefaultMaxCapacity)
	require.NoError(t, err)
	assert.Len(t, values, types.DefaultMaxCapacity)
}

func TestExtract_Malformed(t *testing.T) {
	tests := []struct {
		name string
		bank *types.Bank
	}{
		{"nil", nil},
		{"ragged", &types.Bank{Tag: "1ALG", Type: types.BankTypeU32, Data: []byte{1, 2, 3, 4, 5}}},
		{"unknown type", &types.Bank{Tag: "1ALG", Type: types.BankType(99), Data: []byte{1, 2, 3, 4}}},
		{"lossy int64", &types.Bank{Tag: "1ALG", Type: types.BankTypeI64, Data: make([]byte, 8)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.bank, types.DefaultMaxCapacity)
			require.Error(t, err)
			assert.True(t, errors.Is(err, converrors.ErrMalformedBank), "got %v", err)
			assert.True(t, converrors.IsSkip(err))
		})
	}
}

func TestExtract_UnknownTypeWrapsSentinel(t *testing.T) {
	_, err := Extract(&types.Bank{Tag: "1AHG", Type: types.BankType(42)}, types.DefaultMaxCapacity)
	assert.ErrorIs(t, err, types.ErrUnknownBankType)
	assert.ErrorIs(t, err, converrors.ErrMalformedBank)
}

// TestProperty_ExtractIsLosslessAndOrdered checks that every committed value
// equals the j-th raw sample and that lengths never exceed capacity.
func TestProperty_ExtractIsLosslessAndOrdered(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("values equal raw samples in order", prop.ForAll(
		func(samples []uint32) bool {
			b := NewU32Bank("1ALG", samples)
			values, err := Extract(&b, types.DefaultMaxCapacity)
			if err != nil || len(values) != len(samples) {
				return false
			}
			for j, s := range samples {
				if values[j] != float64(s) || uint32(values[j]) != s {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt32()),
	))

	properties.Property("counts above capacity are rejected", prop.ForAll(
		func(capacity, extra int) bool {
			b := NewU32Bank("1AHG", make([]uint32, capacity+extra))
			values, err := Extract(&b, capacity)
			return values == nil && errors.Is(err, converrors.ErrCapacityExceeded)
		},
		gen.IntRange(0, 64),
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}
