package model

import "time"

// StatusHistory is one time-series observation of one receiver.
// Rows accumulate per scan cycle (and per forced refresh) and are the
// source of truth for the rolling uptime windows.
type StatusHistory struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ReceiverID int64  `gorm:"column:receiver_id;not null;index:idx_receiver_checked,priority:1" json:"receiver_id"`
	CycleID    string `gorm:"column:cycle_id;size:36;index" json:"cycle_id"`

	Online   bool `gorm:"column:online;not null" json:"online"`
	ViaProxy bool `gorm:"column:via_proxy;not null;default:0" json:"via_proxy"`

	Users         *int     `gorm:"column:users" json:"users"`
	SNR           *float64 `gorm:"column:snr;type:decimal(6,2)" json:"snr"`
	UptimeSeconds *int64   `gorm:"column:uptime_seconds" json:"uptime_seconds"`
	Error         *string  `gorm:"column:error;size:512" json:"error"`

	CheckedAt time.Time `gorm:"column:checked_at;not null;index:idx_receiver_checked,priority:2;index" json:"checked_at"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
}

// TableName returns the table name for StatusHistory
func (StatusHistory) TableName() string {
	return "receiver_status_history"
}
