package model

import "time"

// ScanCycle records one full-fleet auto-refresh pass.
type ScanCycle struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CycleID      string     `gorm:"column:cycle_id;size:36;not null;uniqueIndex" json:"cycle_id"`
	Total        int        `gorm:"column:total;not null;default:0" json:"total"`
	OnlineCount  int        `gorm:"column:online_count;not null;default:0" json:"online_count"`
	OfflineCount int        `gorm:"column:offline_count;not null;default:0" json:"offline_count"`
	StartedAt    time.Time  `gorm:"column:started_at;not null;index" json:"started_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at"`
	DurationMs   int64      `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
}

// TableName returns the table name for ScanCycle
func (ScanCycle) TableName() string {
	return "scan_cycles"
}
