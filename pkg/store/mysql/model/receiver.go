package model

import "time"

// Receiver is the fleet registry row: one entry per normalized
// receiver URL with the latest observed state and rolling uptime
// aggregates denormalized onto it.
type Receiver struct {
	ID    int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	URL   string `gorm:"column:url;size:512;not null;uniqueIndex" json:"url"`
	Type  string `gorm:"column:type;size:16;not null" json:"type"`
	Label string `gorm:"column:label;size:255" json:"label"`

	// Latest observed state
	Online        bool       `gorm:"column:online;not null;default:0" json:"online"`
	LastCheckedAt *time.Time `gorm:"column:last_checked_at;index" json:"last_checked_at"`
	LastOnlineAt  *time.Time `gorm:"column:last_online_at" json:"last_online_at"`
	LastError     *string    `gorm:"column:last_error;size:512" json:"last_error"`

	// Lifetime counters, incremented on every persisted observation
	TotalChecks  int64 `gorm:"column:total_checks;not null;default:0" json:"total_checks"`
	OnlineChecks int64 `gorm:"column:online_checks;not null;default:0" json:"online_checks"`

	// Rolling window aggregates, recomputed after each scan cycle.
	// Null until at least one history row falls inside the window.
	Uptime24h *float64 `gorm:"column:uptime_24h;type:decimal(5,2)" json:"uptime_24h"`
	Uptime7d  *float64 `gorm:"column:uptime_7d;type:decimal(5,2)" json:"uptime_7d"`

	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Receiver
func (Receiver) TableName() string {
	return "receivers"
}
