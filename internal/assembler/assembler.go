// Package assembler turns event records into table rows: it resolves every
// channel's bank, extracts the samples and commits a complete row or skips
// the event, counting both outcomes on the run.
package assembler

import (
	"context"
	"fmt"

	"github.com/arkilian/fifotable/internal/bank"
	converrors "github.com/arkilian/fifotable/internal/errors"
	"github.com/arkilian/fifotable/internal/table"
	"github.com/arkilian/fifotable/pkg/types"
	"go.uber.org/zap"
)

// State is a step of the per-event state machine.
type State int

const (
	StateStart State = iota
	StateBanksResolved
	StateExtracted
	StateCommitted
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateBanksResolved:
		return "banks-resolved"
	case StateExtracted:
		return "extracted"
	case StateCommitted:
		return "committed"
	case StateSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome reports what happened to one event.
type Outcome struct {
	// State is StateCommitted or StateSkipped
	State State

	// Reason is the error code that caused a skip
	Reason string

	// Err is the per-event error behind a skip
	Err error

	// Row is the committed row
	Row *types.Row
}

// RowAssembler builds rows from events for the channels in a run's schema.
type RowAssembler struct {
	logger *zap.Logger
}

// New creates a row assembler.
func New() *RowAssembler {
	return &RowAssembler{logger: zap.NewNop()}
}

// WithLogger sets the logger for the assembler.
func (a *RowAssembler) WithLogger(log *zap.Logger) {
	a.logger = log.With(zap.String("component", "assembler"))
}

// Process converts one event. Missing banks and bank extraction failures
// skip the event and count it as bad; the returned error is non-nil only
// when the row cannot be committed.
func (a *RowAssembler) Process(ctx context.Context, rc *RunContext, ev *types.EventRecord) (Outcome, error) {
	channels := rc.Schema.Channels

	if ce := a.logger.Check(zap.DebugLevel, "Event"); ce != nil {
		ce.Write(
			zap.Uint32("serial", ev.Serial),
			zap.Uint32("timestamp", ev.Timestamp),
			zap.Strings("banks", bank.List(ev)))
	}

	banks := make([]*types.Bank, len(channels))
	for i, ch := range channels {
		b, ok := bank.Locate(ev, ch.Tag)
		if !ok {
			return a.skip(rc, ev, converrors.NewBankError(converrors.CodeMissingBank,
				fmt.Sprintf("bank %q for channel %s not found", ch.Tag, ch.Name))), nil
		}
		banks[i] = b
	}

	row := types.Row{TimeStamp: ev.Timestamp, Channels: make([]types.ChannelData, len(channels))}
	for i, ch := range channels {
		values, err := bank.Extract(banks[i], ch.MaxCapacity)
		if err != nil {
			return a.reject(rc, ev, err)
		}
		row.Channels[i] = types.ChannelData{Size: int32(len(values)), Values: values}
	}

	if err := table.ValidateRow(rc.Schema, row); err != nil {
		return a.reject(rc, ev, err)
	}
	if err := rc.commit(ctx, row); err != nil {
		return Outcome{State: StateExtracted, Err: err}, fmt.Errorf("commit event %d: %w", ev.Serial, err)
	}
	rc.counters.good()

	return Outcome{State: StateCommitted, Row: &row}, nil
}

// reject skips the event when err is a per-event bank condition. Anything
// else means the row the assembler built is wrong and ends the run.
func (a *RowAssembler) reject(rc *RunContext, ev *types.EventRecord, err error) (Outcome, error) {
	if !converrors.IsSkip(err) {
		return Outcome{State: StateExtracted, Err: err}, fmt.Errorf("event %d: %w", ev.Serial, err)
	}
	return a.skip(rc, ev, err), nil
}

func (a *RowAssembler) skip(rc *RunContext, ev *types.EventRecord, err error) Outcome {
	reason := converrors.GetCode(err)
	rc.counters.bad(reason)

	level := zap.DebugLevel
	if reason == converrors.CodeCapacityExceeded {
		level = zap.WarnLevel
	}
	if ce := a.logger.Check(level, "Skipped event"); ce != nil {
		ce.Write(
			zap.Uint32("serial", ev.Serial),
			zap.Uint32("timestamp", ev.Timestamp),
			zap.String("reason", reason),
			zap.Error(err))
	}
	return Outcome{State: StateSkipped, Reason: reason, Err: err}
}
