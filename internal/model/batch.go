package model

import "time"

// BatchSnapshot is a point-in-time view of a precheck job
type BatchSnapshot struct {
	JobID       string                    `json:"job_id"`
	Total       int                       `json:"total"`
	Checked     int                       `json:"checked"`
	Running     bool                      `json:"running"`
	Cancelled   bool                      `json:"cancelled"`
	StartedAt   time.Time                 `json:"started_at"`
	CompletedAt *time.Time                `json:"completed_at,omitempty"`
	Results     map[string]ReceiverStatus `json:"results,omitempty"`
}

// RefreshSnapshot is a point-in-time view of the auto-refresh scheduler
type RefreshSnapshot struct {
	Active         bool       `json:"active"`
	ReceiverCount  int        `json:"receiver_count"`
	CycleCount     int        `json:"cycle_count"`
	CurrentJobID   string     `json:"current_job_id,omitempty"`
	LastCycleAt    *time.Time `json:"last_cycle_at,omitempty"`
	LastCompleteAt *time.Time `json:"last_complete_at,omitempty"`
	NextRefreshAt  *time.Time `json:"next_refresh_at,omitempty"`
	IntervalMs     int64      `json:"interval_ms"`
}

// ScanMeta carries the aggregate numbers of one completed scan cycle
type ScanMeta struct {
	CycleID     string
	Total       int
	OnlineCount int
	StartedAt   time.Time
	CompletedAt time.Time
}

// CycleSummary is the external notification payload for a settled
// refresh cycle
type CycleSummary struct {
	CycleID     string
	Total       int
	OnlineCount int
	StartedAt   time.Time
	CompletedAt time.Time
}
