package table

import (
	"context"

	"github.com/arkilian/fifotable/pkg/types"
)

// RunInfo identifies the run a table is opened for.
type RunInfo struct {
	RunNumber uint32
	TableID   string
}

// TableInfo describes a finalized table.
type TableInfo struct {
	TableID   string
	RunNumber uint32
	Path      string
	Rows      int64
	SizeBytes int64
}

// Sink creates one table per run.
type Sink interface {
	// Open declares schema for the run and returns a table ready for rows
	Open(ctx context.Context, run RunInfo, schema types.Schema) (Table, error)
}

// Table receives committed rows in arrival order until it is finalized.
type Table interface {
	// Append persists one row; rows are never mutated after this call
	Append(ctx context.Context, row types.Row) error

	// Finalize flushes and closes the table; later calls fail with TABLE_FINALIZED
	Finalize(ctx context.Context) (*TableInfo, error)
}
