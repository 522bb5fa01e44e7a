package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sdrwatch/pkg/store/mysql/model"

	"gorm.io/gorm"
)

// ReceiverRepository handles fleet registry persistence in MySQL
type ReceiverRepository struct {
	ds *Datastore
}

// NewReceiverRepository creates a new receiver repository
func NewReceiverRepository(ds *Datastore) *ReceiverRepository {
	return &ReceiverRepository{ds: ds}
}

// Observation is one probe outcome to fold into the registry row.
type Observation struct {
	URL       string
	Type      string
	Label     string
	Online    bool
	Error     *string
	CheckedAt time.Time
}

// Upsert folds an observation into the registry: the row is created on
// first sight of the URL, and the latest state plus lifetime counters
// move on every call. Returns the persisted row with its ID.
func (r *ReceiverRepository) Upsert(ctx context.Context, obs Observation) (*model.Receiver, error) {
	var rec model.Receiver
	err := r.ds.DB(ctx).Where("url = ?", obs.URL).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rec = model.Receiver{
			URL:   obs.URL,
			Type:  obs.Type,
			Label: obs.Label,
		}
		if err := r.ds.DB(ctx).Create(&rec).Error; err != nil {
			return nil, fmt.Errorf("failed to create receiver %s: %w", obs.URL, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load receiver %s: %w", obs.URL, err)
	}

	updates := map[string]interface{}{
		"online":          obs.Online,
		"last_checked_at": obs.CheckedAt,
		"last_error":      obs.Error,
		"total_checks":    gorm.Expr("total_checks + 1"),
	}
	if obs.Label != "" {
		updates["label"] = obs.Label
	}
	if obs.Online {
		updates["last_online_at"] = obs.CheckedAt
		updates["online_checks"] = gorm.Expr("online_checks + 1")
	}

	if err := r.ds.DB(ctx).Model(&model.Receiver{}).
		Where("id = ?", rec.ID).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update receiver %s: %w", obs.URL, err)
	}
	return &rec, nil
}

// GetByURL retrieves a receiver by its normalized URL
func (r *ReceiverRepository) GetByURL(ctx context.Context, url string) (*model.Receiver, error) {
	var rec model.Receiver
	if err := r.ds.DB(ctx).Where("url = ?", url).First(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to get receiver %s: %w", url, err)
	}
	return &rec, nil
}

// List retrieves all registered receivers ordered by URL
func (r *ReceiverRepository) List(ctx context.Context) ([]*model.Receiver, error) {
	var recs []*model.Receiver
	if err := r.ds.DB(ctx).Order("url ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list receivers: %w", err)
	}
	return recs, nil
}

// RecomputeUptimeWindows recalculates the 24h and 7d uptime
// percentages for every receiver from the history table. A receiver
// with no observations inside a window gets NULL for that window
// rather than 0, so "never scanned recently" stays distinguishable
// from "scanned and down".
func (r *ReceiverRepository) RecomputeUptimeWindows(ctx context.Context, now time.Time) error {
	since24h := now.Add(-24 * time.Hour)
	since7d := now.Add(-7 * 24 * time.Hour)

	err := r.ds.DB(ctx).Exec(`
		UPDATE receivers r
		LEFT JOIN (
		    SELECT receiver_id, AVG(online) * 100 AS pct
		    FROM receiver_status_history
		    WHERE checked_at >= ?
		    GROUP BY receiver_id
		) w24 ON w24.receiver_id = r.id
		LEFT JOIN (
		    SELECT receiver_id, AVG(online) * 100 AS pct
		    FROM receiver_status_history
		    WHERE checked_at >= ?
		    GROUP BY receiver_id
		) w7 ON w7.receiver_id = r.id
		SET r.uptime_24h = w24.pct,
		    r.uptime_7d = w7.pct
	`, since24h, since7d).Error

	if err != nil {
		return fmt.Errorf("failed to recompute uptime windows: %w", err)
	}
	return nil
}
