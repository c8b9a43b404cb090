package types

import "time"

// RunSummary is the end-of-run report for one converted run.
type RunSummary struct {
	TableID     string           `json:"table_id"`
	RunNumber   uint32           `json:"run_number"`
	Input       string           `json:"input,omitempty"`
	TablePath   string           `json:"table_path,omitempty"`
	Good        int64            `json:"good"`
	Bad         int64            `json:"bad"`
	BadByReason map[string]int64 `json:"bad_by_reason,omitempty"`
	Rows        int64            `json:"rows"`
	SizeBytes   int64            `json:"size_bytes"`
	NChan       int              `json:"nchan"`
	StreamError string           `json:"stream_error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}
