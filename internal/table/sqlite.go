package table

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	converrors "github.com/arkilian/fifotable/internal/errors"
	"github.com/arkilian/fifotable/pkg/types"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DefaultFlushRows is the number of rows committed per transaction.
const DefaultFlushRows = 1000

// SQLiteOptions configures the SQLite sink.
type SQLiteOptions struct {
	// Dir is the directory run files are written to
	Dir string

	// BaseName prefixes every run file, usually the input file name
	BaseName string

	// Compression selects array column encoding
	Compression Compression

	// FlushRows is the number of rows per transaction
	FlushRows int
}

// SQLiteSink writes one SQLite file per run.
type SQLiteSink struct {
	opts   SQLiteOptions
	logger *zap.Logger

	mu     sync.Mutex
	opened map[uint32]int // opens per run number in this session
}

// NewSQLiteSink creates a sink writing into opts.Dir.
func NewSQLiteSink(opts SQLiteOptions) *SQLiteSink {
	if opts.BaseName == "" {
		opts.BaseName = "fifo"
	}
	if opts.Compression == "" {
		opts.Compression = CompressionSnappy
	}
	if opts.FlushRows <= 0 {
		opts.FlushRows = DefaultFlushRows
	}
	return &SQLiteSink{opts: opts, logger: zap.NewNop(), opened: make(map[uint32]int)}
}

// WithLogger sets the logger for the sink.
func (s *SQLiteSink) WithLogger(log *zap.Logger) {
	s.logger = log.With(zap.String("component", "sqlite-sink"))
}

// RunPath returns the file the first table of a run is written to.
func (s *SQLiteSink) RunPath(run uint32) string {
	return s.runPath(run, 1)
}

// runPath names the seq-th table opened for run. A run number seen again
// in the same session gets "_<seq>" appended instead of replacing the
// table already written for it.
func (s *SQLiteSink) runPath(run uint32, seq int) string {
	name := fmt.Sprintf("%s_run%05d", s.opts.BaseName, run)
	if seq > 1 {
		name += fmt.Sprintf("_%d", seq)
	}
	return filepath.Clean(filepath.Join(s.opts.Dir, name+".sqlite"))
}

func (s *SQLiteSink) nextPath(run uint32) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened[run]++
	return s.runPath(run, s.opened[run])
}

// SQLiteTable is an open run table.
type SQLiteTable struct {
	schema      types.Schema
	run         RunInfo
	path        string
	compression Compression
	flushRows   int
	logger      *zap.Logger

	db        *sql.DB
	tx        *sql.Tx
	stmt      *sql.Stmt
	insertSQL string
	rows      int64
	pending   int
	finalized bool
}

// Open creates the run file, declares the schema and starts the first batch.
func (s *SQLiteSink) Open(ctx context.Context, run RunInfo, schema types.Schema) (Table, error) {
	if err := Validate(schema); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.opts.Dir, 0755); err != nil {
		return nil, sinkError("failed to create output directory", err)
	}

	// Files left by an earlier conversion are replaced; tables opened by
	// this sink never are.
	path := s.nextPath(run.RunNumber)
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return nil, sinkError("failed to replace existing run file", err)
		}
	}

	dsn, err := fileDSN(path, "rwc")
	if err != nil {
		return nil, sinkError("failed to resolve run file path", err)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, sinkError("failed to create SQLite database", err)
	}
	// One connection keeps pragmas and the open transaction on the same handle.
	db.SetMaxOpenConns(1)

	t := &SQLiteTable{
		schema:      schema,
		run:         run,
		path:        path,
		compression: s.opts.Compression,
		flushRows:   s.opts.FlushRows,
		logger:      s.logger.With(zap.Uint32("run", run.RunNumber), zap.String("path", path)),
		db:          db,
	}
	if err := t.declare(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := t.begin(ctx); err != nil {
		db.Close()
		return nil, err
	}

	t.logger.Info("Opened run table", zap.String("table", schema.TableName), zap.Int("columns", len(schema.Columns)))
	return t, nil
}

func (t *SQLiteTable) declare(ctx context.Context) error {
	// WAL while filling, switched back to DELETE on finalize
	if _, err := t.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return sinkError("failed to set journal mode", err)
	}

	var cols, names, marks []string
	for _, c := range t.schema.Columns {
		names = append(names, quoteIdent(c.Name))
		marks = append(marks, "?")
		switch c.Type {
		case types.ColumnInt32:
			def := fmt.Sprintf("%s INTEGER NOT NULL", quoteIdent(c.Name))
			if c.MaxLen > 0 {
				def += fmt.Sprintf(" CHECK (%s BETWEEN 0 AND %d)", quoteIdent(c.Name), c.MaxLen)
			}
			cols = append(cols, def)
		case types.ColumnFloat64Array:
			cols = append(cols, fmt.Sprintf("%s BLOB NOT NULL", quoteIdent(c.Name)))
		}
	}

	stmts := []string{
		fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(t.schema.TableName), strings.Join(cols, ", ")),
		`CREATE TABLE _table_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL) WITHOUT ROWID`,
		`CREATE TABLE _columns (
			position INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			size_column TEXT NOT NULL,
			max_len INTEGER NOT NULL
		)`,
		`CREATE TABLE _channels (
			position INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			tag TEXT NOT NULL,
			size_column TEXT NOT NULL,
			value_column TEXT NOT NULL,
			max_capacity INTEGER NOT NULL
		)`,
	}
	for _, q := range stmts {
		if _, err := t.db.ExecContext(ctx, q); err != nil {
			return sinkError("failed to declare schema", err)
		}
	}

	meta := [][2]string{
		{"table_name", t.schema.TableName},
		{"schema_version", fmt.Sprint(t.schema.Version)},
		{"compression", string(t.compression)},
		{"run_number", fmt.Sprint(t.run.RunNumber)},
		{"table_id", t.run.TableID},
	}
	for _, kv := range meta {
		if _, err := t.db.ExecContext(ctx, `INSERT INTO _table_meta (key, value) VALUES (?, ?)`, kv[0], kv[1]); err != nil {
			return sinkError("failed to write table metadata", err)
		}
	}
	for i, c := range t.schema.Columns {
		if _, err := t.db.ExecContext(ctx, `INSERT INTO _columns (position, name, type, size_column, max_len) VALUES (?, ?, ?, ?, ?)`,
			i, c.Name, string(c.Type), c.SizeColumn, c.MaxLen); err != nil {
			return sinkError("failed to write column metadata", err)
		}
	}
	for i, ch := range t.schema.Channels {
		if _, err := t.db.ExecContext(ctx, `INSERT INTO _channels (position, name, tag, size_column, value_column, max_capacity) VALUES (?, ?, ?, ?, ?, ?)`,
			i, ch.Name, ch.Tag, ch.SizeColumn, ch.ValueColumn, ch.MaxCapacity); err != nil {
			return sinkError("failed to write channel metadata", err)
		}
	}

	t.insertSQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(t.schema.TableName), strings.Join(names, ", "), strings.Join(marks, ", "))
	return nil
}

func (t *SQLiteTable) begin(ctx context.Context) error {
	// database/sql rolls a transaction back when its context is cancelled;
	// pending rows belong to Finalize, not to the caller's context.
	tx, err := t.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return sinkError("failed to begin transaction", err)
	}
	stmt, err := tx.PrepareContext(ctx, t.insertSQL)
	if err != nil {
		tx.Rollback()
		return sinkError("failed to prepare insert statement", err)
	}
	t.tx, t.stmt, t.pending = tx, stmt, 0
	return nil
}

func (t *SQLiteTable) commit() error {
	if t.tx == nil {
		return nil
	}
	t.stmt.Close()
	err := t.tx.Commit()
	t.tx, t.stmt = nil, nil
	if err != nil {
		return sinkError("failed to commit rows", err)
	}
	return nil
}

// Append validates the row against the schema and inserts it.
func (t *SQLiteTable) Append(ctx context.Context, row types.Row) error {
	if t.finalized {
		return converrors.ErrTableFinalized
	}
	if err := ValidateRow(t.schema, row); err != nil {
		return err
	}

	// Columns are timeStamp, sizes, then arrays in channel order.
	args := make([]interface{}, 0, 1+2*len(row.Channels))
	args = append(args, int64(row.TimeStamp))
	for _, cd := range row.Channels {
		args = append(args, int64(cd.Size))
	}
	for _, cd := range row.Channels {
		args = append(args, EncodeArray(cd.Values, t.compression))
	}

	if _, err := t.stmt.ExecContext(ctx, args...); err != nil {
		return sinkError("failed to insert row", err)
	}
	t.rows++
	t.pending++

	if t.pending >= t.flushRows {
		if err := t.commit(); err != nil {
			return err
		}
		t.logger.Debug("Flushed rows", zap.Int64("rows", t.rows))
		return t.begin(ctx)
	}
	return nil
}

// Finalize commits outstanding rows, checkpoints the WAL and closes the file.
func (t *SQLiteTable) Finalize(ctx context.Context) (*TableInfo, error) {
	if t.finalized {
		return nil, converrors.ErrTableFinalized
	}
	t.finalized = true

	// A cancelled run context must not prevent the final flush.
	ctx = context.WithoutCancel(ctx)

	if err := t.commit(); err != nil {
		t.db.Close()
		return nil, err
	}
	if _, err := t.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		t.db.Close()
		return nil, sinkError("failed to checkpoint WAL", err)
	}
	if _, err := t.db.ExecContext(ctx, "PRAGMA journal_mode=DELETE"); err != nil {
		t.db.Close()
		return nil, sinkError("failed to set journal mode to DELETE", err)
	}
	if err := t.db.Close(); err != nil {
		return nil, sinkError("failed to close database", err)
	}

	fileInfo, err := os.Stat(t.path)
	if err != nil {
		return nil, sinkError("failed to stat run file", err)
	}

	t.logger.Info("Finalized run table", zap.Int64("rows", t.rows), zap.Int64("bytes", fileInfo.Size()))
	return &TableInfo{
		TableID:   t.run.TableID,
		RunNumber: t.run.RunNumber,
		Path:      t.path,
		Rows:      t.rows,
		SizeBytes: fileInfo.Size(),
	}, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sinkError(message string, cause error) error {
	return converrors.NewTableError(converrors.CodeSinkFailure, "table: "+message, cause)
}
