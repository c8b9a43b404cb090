package table

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	converrors "github.com/arkilian/fifotable/internal/errors"
	"github.com/arkilian/fifotable/pkg/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testRows() []types.Row {
	return []types.Row{
		{TimeStamp: 1700000000, Channels: []types.ChannelData{
			{Size: 3, Values: []float64{10, 11, 4294967295}},
			{Size: 2, Values: []float64{20, 21}},
		}},
		{TimeStamp: 1700000001, Channels: []types.ChannelData{
			{Size: 0, Values: []float64{}},
			{Size: 0, Values: []float64{}},
		}},
		{TimeStamp: 1700000002, Channels: []types.ChannelData{
			{Size: 1, Values: []float64{5}},
			{Size: 4, Values: []float64{1, 2, 3, 4}},
		}},
	}
}

func TestSQLiteSink_RoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionSnappy, CompressionNone} {
		t.Run(string(c), func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			sink := NewSQLiteSink(SQLiteOptions{Dir: dir, BaseName: "run", Compression: c, FlushRows: 2})
			sink.WithLogger(zaptest.NewLogger(t))

			schema, err := NewSchema("", types.DefaultChannels())
			require.NoError(t, err)

			tbl, err := sink.Open(ctx, RunInfo{RunNumber: 42, TableID: "tid-42"}, schema)
			require.NoError(t, err)

			rows := testRows()
			for _, row := range rows {
				require.NoError(t, tbl.Append(ctx, row))
			}

			info, err := tbl.Finalize(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(3), info.Rows)
			assert.Equal(t, filepath.Join(dir, "run_run00042.sqlite"), info.Path)
			assert.Greater(t, info.SizeBytes, int64(0))

			_, err = os.Stat(info.Path + "-wal")
			assert.True(t, os.IsNotExist(err), "WAL must be checkpointed away")

			contents, err := ReadTable(ctx, info.Path)
			require.NoError(t, err)
			assert.Equal(t, uint32(42), contents.RunNumber)
			assert.Equal(t, "tid-42", contents.TableID)
			if diff := cmp.Diff(schema, contents.Schema); diff != "" {
				t.Errorf("schema mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(rows, contents.Rows); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSQLiteTable_RejectsInvalidRow(t *testing.T) {
	ctx := context.Background()
	sink := NewSQLiteSink(SQLiteOptions{Dir: t.TempDir()})
	schema, err := NewSchema("", types.DefaultChannels())
	require.NoError(t, err)

	tbl, err := sink.Open(ctx, RunInfo{RunNumber: 1}, schema)
	require.NoError(t, err)

	err = tbl.Append(ctx, types.Row{Channels: []types.ChannelData{{Size: 5, Values: []float64{1}}, {}}})
	assert.True(t, errors.Is(err, converrors.ErrSchemaViolation))

	info, err := tbl.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Rows)
}

func TestSQLiteTable_FinalizeOnce(t *testing.T) {
	ctx := context.Background()
	sink := NewSQLiteSink(SQLiteOptions{Dir: t.TempDir()})
	schema, err := NewSchema("", types.DefaultChannels())
	require.NoError(t, err)

	tbl, err := sink.Open(ctx, RunInfo{RunNumber: 2}, schema)
	require.NoError(t, err)
	require.NoError(t, tbl.Append(ctx, testRows()[0]))

	_, err = tbl.Finalize(ctx)
	require.NoError(t, err)

	_, err = tbl.Finalize(ctx)
	assert.True(t, errors.Is(err, converrors.ErrTableFinalized))
	assert.True(t, errors.Is(tbl.Append(ctx, testRows()[1]), converrors.ErrTableFinalized))
}

func TestSQLiteTable_FinalizeAfterCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	sink := NewSQLiteSink(SQLiteOptions{Dir: t.TempDir()})
	schema, err := NewSchema("", types.DefaultChannels())
	require.NoError(t, err)

	tbl, err := sink.Open(ctx, RunInfo{RunNumber: 3}, schema)
	require.NoError(t, err)
	require.NoError(t, tbl.Append(ctx, testRows()[0]))
	cancel()

	info, err := tbl.Finalize(ctx)
	require.NoError(t, err)

	contents, err := ReadTable(context.Background(), info.Path)
	require.NoError(t, err)
	assert.Len(t, contents.Rows, 1)
}

func TestSQLiteSink_ReplacesExistingRunFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	schema, err := NewSchema("", types.DefaultChannels())
	require.NoError(t, err)

	// Each conversion gets its own sink; the second one replaces the file.
	var sink *SQLiteSink
	for i := 0; i < 2; i++ {
		sink = NewSQLiteSink(SQLiteOptions{Dir: dir})
		tbl, err := sink.Open(ctx, RunInfo{RunNumber: 7}, schema)
		require.NoError(t, err)
		require.NoError(t, tbl.Append(ctx, testRows()[i]))
		info, err := tbl.Finalize(ctx)
		require.NoError(t, err)
		assert.Equal(t, sink.RunPath(7), info.Path)
	}

	contents, err := ReadTable(ctx, sink.RunPath(7))
	require.NoError(t, err)
	require.Len(t, contents.Rows, 1)
	assert.Equal(t, uint32(1700000001), contents.Rows[0].TimeStamp)
}

func TestSQLiteSink_ReopenedRunKeepsEarlierTable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sink := NewSQLiteSink(SQLiteOptions{Dir: dir, BaseName: "run"})
	schema, err := NewSchema("", types.DefaultChannels())
	require.NoError(t, err)

	var paths []string
	for i := 0; i < 3; i++ {
		tbl, err := sink.Open(ctx, RunInfo{RunNumber: 5}, schema)
		require.NoError(t, err)
		for _, row := range testRows()[:i+1] {
			require.NoError(t, tbl.Append(ctx, row))
		}
		info, err := tbl.Finalize(ctx)
		require.NoError(t, err)
		paths = append(paths, info.Path)
	}

	assert.Equal(t, []string{
		filepath.Join(dir, "run_run00005.sqlite"),
		filepath.Join(dir, "run_run00005_2.sqlite"),
		filepath.Join(dir, "run_run00005_3.sqlite"),
	}, paths)
	for i, p := range paths {
		contents, err := ReadTable(ctx, p)
		require.NoError(t, err)
		assert.Len(t, contents.Rows, i+1, p)
	}
}

func TestMemorySink(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()
	schema, err := NewSchema("", types.DefaultChannels())
	require.NoError(t, err)

	tbl, err := sink.Open(ctx, RunInfo{RunNumber: 1}, schema)
	require.NoError(t, err)
	require.NoError(t, tbl.Append(ctx, testRows()[0]))
	assert.Error(t, tbl.Append(ctx, types.Row{}))

	info, err := tbl.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Rows)

	tables := sink.Tables()
	require.Len(t, tables, 1)
	assert.True(t, tables[0].Finalized)
}

func TestCountingSink_DropsRows(t *testing.T) {
	ctx := context.Background()
	sink := NewCountingSink()
	schema, err := NewSchema("", types.DefaultChannels())
	require.NoError(t, err)

	tbl, err := sink.Open(ctx, RunInfo{RunNumber: 1}, schema)
	require.NoError(t, err)
	for _, row := range testRows() {
		require.NoError(t, tbl.Append(ctx, row))
	}
	assert.Error(t, tbl.Append(ctx, types.Row{}), "rows are still validated")

	info, err := tbl.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Rows)
	assert.Empty(t, info.Path)

	tables := sink.Tables()
	require.Len(t, tables, 1)
	assert.Empty(t, tables[0].Rows)
	assert.Equal(t, int64(3), tables[0].Count)
}

func TestSummarySidecar(t *testing.T) {
	dir := t.TempDir()
	path := SummaryPath(filepath.Join(dir, "run_run00001.sqlite"))
	assert.Equal(t, filepath.Join(dir, "run_run00001.summary.json"), path)

	s := &types.RunSummary{
		TableID:     "abc",
		RunNumber:   1,
		Good:        2,
		Bad:         1,
		BadByReason: map[string]int64{converrors.CodeMissingBank: 1},
		Rows:        2,
		StartedAt:   time.Unix(1700000000, 0).UTC(),
		FinishedAt:  time.Unix(1700000100, 0).UTC(),
	}
	require.NoError(t, WriteSummary(path, s))

	got, err := ReadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestSQLiteSink_PathWithURICharacters(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "beam #2 100%")
	sink := NewSQLiteSink(SQLiteOptions{Dir: dir, BaseName: "odd?name"})
	schema, err := NewSchema("", types.DefaultChannels())
	require.NoError(t, err)

	tbl, err := sink.Open(ctx, RunInfo{RunNumber: 8}, schema)
	require.NoError(t, err)
	require.NoError(t, tbl.Append(ctx, testRows()[2]))
	info, err := tbl.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "odd?name_run00008.sqlite"), info.Path)

	contents, err := ReadTable(ctx, info.Path)
	require.NoError(t, err)
	require.Len(t, contents.Rows, 1)
	assert.Equal(t, uint32(1700000002), contents.Rows[0].TimeStamp)
}

func TestReadTable_MalformedMetadata(t *testing.T) {
	ctx := context.Background()
	sink := NewSQLiteSink(SQLiteOptions{Dir: t.TempDir()})
	schema, err := NewSchema("", types.DefaultChannels())
	require.NoError(t, err)

	tbl, err := sink.Open(ctx, RunInfo{RunNumber: 9}, schema)
	require.NoError(t, err)
	info, err := tbl.Finalize(ctx)
	require.NoError(t, err)

	dsn, err := fileDSN(info.Path, "rw")
	require.NoError(t, err)
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `UPDATE _table_meta SET value = 'nine' WHERE key = 'run_number'`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = ReadTable(ctx, info.Path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed run_number")
}
