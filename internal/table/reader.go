package table

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/arkilian/fifotable/pkg/types"
)

// Contents is a run table read back from disk.
type Contents struct {
	Schema    types.Schema
	RunNumber uint32
	TableID   string
	Rows      []types.Row
}

// ReadTable loads a finalized SQLite run file, rows in insertion order.
func ReadTable(ctx context.Context, path string) (*Contents, error) {
	dsn, err := fileDSN(path, "ro")
	if err != nil {
		return nil, fmt.Errorf("table: failed to resolve %s: %w", path, err)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("table: failed to open %s: %w", path, err)
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, err
	}
	version, err := strconv.Atoi(meta["schema_version"])
	if err != nil {
		return nil, fmt.Errorf("table: malformed schema_version %q in %s", meta["schema_version"], path)
	}
	run, err := strconv.ParseUint(meta["run_number"], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("table: malformed run_number %q in %s", meta["run_number"], path)
	}
	compression, err := ParseCompression(meta["compression"])
	if err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}

	c := &Contents{
		Schema:    types.Schema{Version: version, TableName: meta["table_name"]},
		RunNumber: uint32(run),
		TableID:   meta["table_id"],
	}

	colRows, err := db.QueryContext(ctx, `SELECT name, type, size_column, max_len FROM _columns ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("table: failed to read columns: %w", err)
	}
	for colRows.Next() {
		var col types.ColumnDef
		var typ string
		if err := colRows.Scan(&col.Name, &typ, &col.SizeColumn, &col.MaxLen); err != nil {
			colRows.Close()
			return nil, fmt.Errorf("table: failed to scan column: %w", err)
		}
		col.Type = types.ColumnType(typ)
		c.Schema.Columns = append(c.Schema.Columns, col)
	}
	colRows.Close()

	chRows, err := db.QueryContext(ctx, `SELECT name, tag, size_column, value_column, max_capacity FROM _channels ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("table: failed to read channels: %w", err)
	}
	for chRows.Next() {
		var ch types.Channel
		if err := chRows.Scan(&ch.Name, &ch.Tag, &ch.SizeColumn, &ch.ValueColumn, &ch.MaxCapacity); err != nil {
			chRows.Close()
			return nil, fmt.Errorf("table: failed to scan channel: %w", err)
		}
		c.Schema.Channels = append(c.Schema.Channels, ch)
	}
	chRows.Close()

	if err := Validate(c.Schema); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(c.Schema.Columns))
	for _, col := range c.Schema.Columns {
		names = append(names, quoteIdent(col.Name))
	}
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(names, ", "), quoteIdent(c.Schema.TableName))
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("table: failed to query rows: %w", err)
	}
	defer rows.Close()

	nch := len(c.Schema.Channels)
	for rows.Next() {
		var ts int64
		sizes := make([]int64, nch)
		blobs := make([][]byte, nch)
		dest := []interface{}{&ts}
		for i := range sizes {
			dest = append(dest, &sizes[i])
		}
		for i := range blobs {
			dest = append(dest, &blobs[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("table: failed to scan row: %w", err)
		}

		row := types.Row{TimeStamp: uint32(ts), Channels: make([]types.ChannelData, nch)}
		for i := range row.Channels {
			values, err := DecodeArray(blobs[i], compression, int(sizes[i]))
			if err != nil {
				return nil, err
			}
			row.Channels[i] = types.ChannelData{Size: int32(sizes[i]), Values: values}
		}
		c.Rows = append(c.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table: failed to iterate rows: %w", err)
	}
	return c, nil
}

// fileDSN builds a SQLite URI opening path in mode (ro, rw, rwc). The path
// is made absolute and percent-encoded so '?', '#' and '%' in file names
// survive.
func fileDSN(path, mode string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=" + mode}
	return u.String(), nil
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM _table_meta`)
	if err != nil {
		return nil, fmt.Errorf("table: failed to read metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("table: failed to scan metadata: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}
