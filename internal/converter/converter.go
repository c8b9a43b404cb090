package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/arkilian/fifotable/internal/assembler"
	"github.com/arkilian/fifotable/internal/storage"
	"github.com/arkilian/fifotable/internal/table"
	"github.com/arkilian/fifotable/pkg/types"
	"go.uber.org/zap"
)

// Options configures a Converter.
type Options struct {
	// Sink creates the per-run tables
	Sink table.Sink

	// Schema is declared on every run table
	Schema types.Schema

	// Archiver uploads finalized runs; nil disables archiving
	Archiver *storage.Archiver

	// Summary writes the JSON sidecar next to file-backed tables
	Summary bool

	// Stdout receives the end-of-run report
	Stdout io.Writer

	// Input is the stream path recorded in summaries
	Input string

	// NChan is the requested channel count, recorded in summaries
	NChan int
}

// Converter implements Handler on top of the row assembler.
type Converter struct {
	opts      Options
	assembler *assembler.RowAssembler
	logger    *zap.Logger

	run *assembler.RunContext
}

// New creates a converter.
func New(opts Options) *Converter {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	return &Converter{
		opts:      opts,
		assembler: assembler.New(),
		logger:    zap.NewNop(),
	}
}

// WithLogger sets the logger for the converter and its assembler.
func (c *Converter) WithLogger(log *zap.Logger) {
	c.logger = log.With(zap.String("component", "converter"))
	c.assembler.WithLogger(log)
}

// OnRunBegin opens a fresh table and zeroed counters for run.
func (c *Converter) OnRunBegin(ctx context.Context, run uint32) error {
	if c.run != nil {
		return fmt.Errorf("begin run %d: run %d still open", run, c.run.RunNumber)
	}
	rc, err := assembler.BeginRun(ctx, c.opts.Sink, run, c.opts.Schema)
	if err != nil {
		return err
	}
	c.run = rc
	c.logger.Info("Begin run", zap.Uint32("run", run), zap.String("table_id", rc.TableID))
	return nil
}

// OnEvent converts one event into a row of the open run.
func (c *Converter) OnEvent(ctx context.Context, ev *types.EventRecord) error {
	if c.run == nil {
		return fmt.Errorf("event %d outside of a run", ev.Serial)
	}
	_, err := c.assembler.Process(ctx, c.run, ev)
	return err
}

// OnRunEnd finalizes the open run, reports its counters and writes and
// archives the summary.
func (c *Converter) OnRunEnd(ctx context.Context, cause error) (*types.RunSummary, error) {
	rc := c.run
	if rc == nil {
		return nil, errors.New("end run: no run open")
	}
	c.run = nil

	// The run's resources are released even when the stream was cancelled.
	ctx = context.WithoutCancel(ctx)

	info, finalizeErr := rc.Finalize(ctx)
	counters := rc.Counters()

	summary := &types.RunSummary{
		TableID:     rc.TableID,
		RunNumber:   rc.RunNumber,
		Input:       c.opts.Input,
		Good:        counters.Good,
		Bad:         counters.Bad,
		BadByReason: counters.BadByReason,
		NChan:       c.opts.NChan,
		StartedAt:   rc.StartedAt,
		FinishedAt:  time.Now().UTC(),
	}
	if cause != nil {
		summary.StreamError = cause.Error()
	}
	if info != nil {
		summary.TablePath = info.Path
		summary.Rows = info.Rows
		summary.SizeBytes = info.SizeBytes
	}

	fmt.Fprintf(c.opts.Stdout, "End of conversion. %d\n", rc.RunNumber)
	fmt.Fprintf(c.opts.Stdout, "Good TDC banks : %d\n", counters.Good)
	fmt.Fprintf(c.opts.Stdout, "Bad TDC banks  : %d\n", counters.Bad)

	c.logger.Info("End run",
		zap.Uint32("run", rc.RunNumber),
		zap.Int64("good", counters.Good),
		zap.Int64("bad", counters.Bad),
		zap.Any("bad_by_reason", counters.BadByReason),
		zap.Int64("rows", summary.Rows))

	if finalizeErr != nil {
		return summary, fmt.Errorf("end run %d: %w", rc.RunNumber, finalizeErr)
	}
	if info == nil || info.Path == "" {
		return summary, nil
	}

	files := []string{info.Path}
	if c.opts.Summary {
		path := table.SummaryPath(info.Path)
		if err := table.WriteSummary(path, summary); err != nil {
			return summary, err
		}
		files = append(files, path)
	}

	if c.opts.Archiver != nil {
		keys, err := c.opts.Archiver.Archive(ctx, files...)
		if err != nil {
			c.logger.Error("Failed to archive run", zap.Uint32("run", rc.RunNumber), zap.Error(err))
			return summary, err
		}
		c.logger.Info("Archived run", zap.Uint32("run", rc.RunNumber), zap.Strings("objects", keys))
	}
	return summary, nil
}
