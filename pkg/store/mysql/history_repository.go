package mysql

import (
	"context"
	"fmt"
	"time"

	"sdrwatch/pkg/store/mysql/model"
)

// HistoryRepository handles status time-series persistence in MySQL
type HistoryRepository struct {
	ds *Datastore
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(ds *Datastore) *HistoryRepository {
	return &HistoryRepository{ds: ds}
}

// BulkInsert writes one scan cycle's observations in batches
func (r *HistoryRepository) BulkInsert(ctx context.Context, rows []*model.StatusHistory) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.ds.DB(ctx).CreateInBatches(rows, 200).Error; err != nil {
		return fmt.Errorf("failed to insert status history: %w", err)
	}
	return nil
}

// ListByReceiver retrieves a receiver's observations since the given
// time, oldest first
func (r *HistoryRepository) ListByReceiver(ctx context.Context, receiverID int64, since time.Time, limit int) ([]*model.StatusHistory, error) {
	var rows []*model.StatusHistory
	err := r.ds.DB(ctx).
		Where("receiver_id = ? AND checked_at >= ?", receiverID, since).
		Order("checked_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}
	return rows, nil
}

// WindowUptime computes one receiver's online percentage over a window.
// The bool is false when the window holds no observations.
func (r *HistoryRepository) WindowUptime(ctx context.Context, receiverID int64, since time.Time) (float64, bool, error) {
	var result struct {
		Pct   *float64
		Count int64
	}
	err := r.ds.DB(ctx).Raw(`
		SELECT AVG(online) * 100 AS pct, COUNT(*) AS count
		FROM receiver_status_history
		WHERE receiver_id = ? AND checked_at >= ?
	`, receiverID, since).Scan(&result).Error
	if err != nil {
		return 0, false, fmt.Errorf("failed to compute window uptime: %w", err)
	}
	if result.Count == 0 || result.Pct == nil {
		return 0, false, nil
	}
	return *result.Pct, true, nil
}

// DeleteOlderThan purges observations checked before the given time
func (r *HistoryRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.ds.DB(ctx).
		Where("checked_at < ?", before).
		Delete(&model.StatusHistory{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old status history: %w", result.Error)
	}
	return result.RowsAffected, nil
}
