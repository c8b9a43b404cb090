package table

import (
	"context"
	"sync"

	converrors "github.com/arkilian/fifotable/internal/errors"
	"github.com/arkilian/fifotable/pkg/types"
)

// MemorySink keeps run tables in memory.
type MemorySink struct {
	mu       sync.Mutex
	tables   []*MemoryTable
	keepRows bool
}

// NewMemorySink creates a sink whose tables keep every appended row.
func NewMemorySink() *MemorySink {
	return &MemorySink{keepRows: true}
}

// NewCountingSink creates a sink whose tables validate and count rows but
// drop them. Dry runs use it so memory stays flat however long the input.
func NewCountingSink() *MemorySink {
	return &MemorySink{}
}

// MemoryTable is a run table held in memory. Rows stays empty for tables
// from a counting sink.
type MemoryTable struct {
	Schema    types.Schema
	Run       RunInfo
	Rows      []types.Row
	Count     int64
	Finalized bool

	keepRows bool
}

// Open validates schema and starts a new in-memory table.
func (s *MemorySink) Open(_ context.Context, run RunInfo, schema types.Schema) (Table, error) {
	if err := Validate(schema); err != nil {
		return nil, err
	}
	t := &MemoryTable{Schema: schema, Run: run, keepRows: s.keepRows}
	s.mu.Lock()
	s.tables = append(s.tables, t)
	s.mu.Unlock()
	return t, nil
}

// Tables returns every table opened so far, in open order.
func (s *MemorySink) Tables() []*MemoryTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*MemoryTable(nil), s.tables...)
}

// Append validates and stores the row.
func (t *MemoryTable) Append(_ context.Context, row types.Row) error {
	if t.Finalized {
		return converrors.ErrTableFinalized
	}
	if err := ValidateRow(t.Schema, row); err != nil {
		return err
	}
	t.Count++
	if t.keepRows {
		t.Rows = append(t.Rows, row)
	}
	return nil
}

// Finalize marks the table closed.
func (t *MemoryTable) Finalize(_ context.Context) (*TableInfo, error) {
	if t.Finalized {
		return nil, converrors.ErrTableFinalized
	}
	t.Finalized = true
	return &TableInfo{
		TableID:   t.Run.TableID,
		RunNumber: t.Run.RunNumber,
		Rows:      t.Count,
	}, nil
}
