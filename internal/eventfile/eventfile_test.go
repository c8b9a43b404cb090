package eventfile

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/arkilian/fifotable/internal/bank"
	converrors "github.com/arkilian/fifotable/internal/errors"
	"github.com/arkilian/fifotable/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func sampleRecords() []*types.EventRecord {
	return []*types.EventRecord{
		{Kind: types.KindBeginRun, RunNumber: 12},
		{
			Kind: types.KindEvent, RunNumber: 12, EventID: 1, Serial: 0, Timestamp: 1700000000,
			Banks: []types.Bank{
				bank.NewU32Bank("1ALG", []uint32{1, 2, 3, 4, 5}),
				bank.NewU32Bank("1AHG", []uint32{6, 7, 8, 9, 10}),
			},
		},
		{
			Kind: types.KindEvent, RunNumber: 12, EventID: 1, Serial: 1, Timestamp: 1700000001,
			Banks: []types.Bank{{Tag: "TRIG", Type: types.BankTypeU16, Data: []byte{1, 0}}},
		},
		{Kind: types.KindEndRun, RunNumber: 12},
	}
}

func readAll(t *testing.T, r *Reader) []*types.EventRecord {
	t.Helper()
	var out []*types.EventRecord
	for {
		rec, err := r.Next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func normalize(recs []*types.EventRecord) []*types.EventRecord {
	for _, r := range recs {
		if r.Banks == nil {
			r.Banks = []types.Bank{}
		}
	}
	return recs
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"run.evt", "run.evt.sz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			w, err := Create(path)
			require.NoError(t, err)
			for _, rec := range sampleRecords() {
				require.NoError(t, w.Write(rec))
			}
			require.NoError(t, w.Close())

			r, err := Open(path)
			require.NoError(t, err)
			defer r.Close()
			r.WithLogger(zaptest.NewLogger(t))

			got := readAll(t, r)
			assert.Equal(t, normalize(sampleRecords()), got)
			assert.Equal(t, int64(4), r.Frames())
		})
	}
}

func encode(t *testing.T, recs []*types.EventRecord) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, w.Write(rec))
	}
	require.NoError(t, w.Flush())
	return buf.Bytes()
}

func TestReader_TruncatedTailEndsStream(t *testing.T) {
	data := encode(t, sampleRecords()[:2])
	for _, cut := range []int{3, 12} {
		r, err := NewReader(bytes.NewReader(data[:len(data)-cut]))
		require.NoError(t, err)
		got := readAll(t, r)
		assert.Len(t, got, 1, "cut %d", cut)
	}
}

func TestReader_ChecksumMismatch(t *testing.T) {
	data := encode(t, sampleRecords()[1:2])
	data[len(data)-1] ^= 0xFF

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	_, err = r.Next(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, converrors.ErrStreamReadFailure))
}

func TestReader_BadHeader(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("MIDAS\x00\x01")))
	assert.True(t, errors.Is(err, converrors.ErrStreamReadFailure))

	_, err = NewReader(bytes.NewReader([]byte("FEVT\x09\x00")))
	assert.True(t, errors.Is(err, converrors.ErrStreamReadFailure))

	_, err = NewReader(bytes.NewReader(nil))
	assert.True(t, errors.Is(err, converrors.ErrStreamReadFailure))

	_, err = Open(filepath.Join(t.TempDir(), "missing.evt"))
	assert.True(t, errors.Is(err, converrors.ErrStreamReadFailure))
}

func TestReader_Cancelled(t *testing.T) {
	r, err := NewReader(bytes.NewReader(encode(t, sampleRecords())))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriter_RejectsBadTag(t *testing.T) {
	w, err := NewWriter(io.Discard)
	require.NoError(t, err)
	err = w.Write(&types.EventRecord{Kind: types.KindEvent, Banks: []types.Bank{bank.NewU32Bank("LG", nil)}})
	assert.ErrorIs(t, err, types.ErrInvalidBankTag)
}

func TestDecodePayload_Inconsistent(t *testing.T) {
	payload, err := encodePayload(sampleRecords()[1])
	require.NoError(t, err)

	_, err = decodePayload(payload[:len(payload)-1])
	assert.Error(t, err, "bank data overrunning the payload must fail")

	_, err = decodePayload(append(payload, 0))
	assert.Error(t, err, "trailing bytes must fail")

	bad := append([]byte(nil), payload...)
	bad[0] = 9
	_, err = decodePayload(bad)
	assert.Error(t, err, "unknown kind must fail")
}

func TestOpen_PlainFileIsNotSnappy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.evt")
	require.NoError(t, os.WriteFile(path, encode(t, sampleRecords()), 0644))
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Len(t, readAll(t, r), 4)
}
