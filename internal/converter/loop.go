// Package converter drives an event stream through the row assembler, one
// run table per run.
package converter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/arkilian/fifotable/pkg/types"
)

// Source yields event records until io.EOF.
type Source interface {
	Next(ctx context.Context) (*types.EventRecord, error)
}

// Handler receives the run lifecycle from Loop.
type Handler interface {
	// OnRunBegin opens a run
	OnRunBegin(ctx context.Context, run uint32) error

	// OnEvent processes one event of the open run
	OnEvent(ctx context.Context, ev *types.EventRecord) error

	// OnRunEnd closes the open run; cause is the error that ended the
	// stream early, if any
	OnRunEnd(ctx context.Context, cause error) (*types.RunSummary, error)
}

// Loop reads src to the end and drives h. Events seen before any begin-run
// record open an implicit run using the event's run number. A run left
// open when the stream ends or fails is always closed, so every run begun
// is ended exactly once.
func Loop(ctx context.Context, src Source, h Handler) (summaries []*types.RunSummary, err error) {
	open := false

	endRun := func(cause error) error {
		open = false
		s, err := h.OnRunEnd(ctx, cause)
		if s != nil {
			summaries = append(summaries, s)
		}
		return err
	}

	defer func() {
		if open {
			if endErr := endRun(err); endErr != nil {
				err = errors.Join(err, endErr)
			}
		}
	}()

	for {
		rec, err := src.Next(ctx)
		if err == io.EOF {
			return summaries, nil
		}
		if err != nil {
			return summaries, err
		}

		switch rec.Kind {
		case types.KindBeginRun:
			if open {
				if err := endRun(nil); err != nil {
					return summaries, err
				}
			}
			if err := h.OnRunBegin(ctx, rec.RunNumber); err != nil {
				return summaries, err
			}
			open = true

		case types.KindEndRun:
			if open {
				if err := endRun(nil); err != nil {
					return summaries, err
				}
			}

		case types.KindEvent:
			if !open {
				if err := h.OnRunBegin(ctx, rec.RunNumber); err != nil {
					return summaries, err
				}
				open = true
			}
			if err := h.OnEvent(ctx, rec); err != nil {
				return summaries, err
			}

		default:
			return summaries, fmt.Errorf("unknown record kind %d", rec.Kind)
		}
	}
}
