package assembler

import (
	"context"
	"fmt"
	"time"

	converrors "github.com/arkilian/fifotable/internal/errors"
	"github.com/arkilian/fifotable/internal/table"
	"github.com/arkilian/fifotable/pkg/types"
	"github.com/google/uuid"
)

// Counters are the per-run good/bad tallies.
type Counters struct {
	// Good counts committed rows
	Good int64

	// Bad counts skipped events
	Bad int64

	// BadByReason splits Bad by error code
	BadByReason map[string]int64
}

func (c *Counters) good() {
	c.Good++
}

func (c *Counters) bad(reason string) {
	c.Bad++
	if c.BadByReason == nil {
		c.BadByReason = make(map[string]int64)
	}
	c.BadByReason[reason]++
}

// snapshot returns a copy that shares nothing with c.
func (c *Counters) snapshot() Counters {
	cp := Counters{Good: c.Good, Bad: c.Bad}
	if len(c.BadByReason) > 0 {
		cp.BadByReason = make(map[string]int64, len(c.BadByReason))
		for k, v := range c.BadByReason {
			cp.BadByReason[k] = v
		}
	}
	return cp
}

// RunContext brackets one run: it owns the run's table and counters and
// guarantees the table is finalized exactly once.
type RunContext struct {
	RunNumber uint32
	TableID   string
	Schema    types.Schema
	StartedAt time.Time

	table    table.Table
	counters Counters

	finalized   bool
	info        *table.TableInfo
	finalizeErr error
}

// BeginRun declares schema on a fresh table from sink and returns a
// context with zeroed counters.
func BeginRun(ctx context.Context, sink table.Sink, runNumber uint32, schema types.Schema) (*RunContext, error) {
	tableID := uuid.New().String()
	tbl, err := sink.Open(ctx, table.RunInfo{RunNumber: runNumber, TableID: tableID}, schema)
	if err != nil {
		return nil, fmt.Errorf("begin run %d: %w", runNumber, err)
	}
	return &RunContext{
		RunNumber: runNumber,
		TableID:   tableID,
		Schema:    schema,
		StartedAt: time.Now().UTC(),
		table:     tbl,
	}, nil
}

// Counters returns a read-only snapshot of the run's counters.
func (rc *RunContext) Counters() Counters {
	return rc.counters.snapshot()
}

func (rc *RunContext) commit(ctx context.Context, row types.Row) error {
	if rc.finalized {
		return converrors.ErrTableFinalized
	}
	return rc.table.Append(ctx, row)
}

// Finalize closes the run's table. Only the first call reaches the table;
// later calls return the first call's result.
func (rc *RunContext) Finalize(ctx context.Context) (*table.TableInfo, error) {
	if rc.finalized {
		return rc.info, rc.finalizeErr
	}
	rc.finalized = true
	rc.info, rc.finalizeErr = rc.table.Finalize(ctx)
	return rc.info, rc.finalizeErr
}
