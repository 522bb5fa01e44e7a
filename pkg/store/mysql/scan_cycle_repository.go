package mysql

import (
	"context"
	"fmt"
	"time"

	"sdrwatch/pkg/store/mysql/model"
)

// ScanCycleRepository handles scan cycle persistence in MySQL
type ScanCycleRepository struct {
	ds *Datastore
}

// NewScanCycleRepository creates a new scan cycle repository
func NewScanCycleRepository(ds *Datastore) *ScanCycleRepository {
	return &ScanCycleRepository{ds: ds}
}

// Create records the start of a scan cycle
func (r *ScanCycleRepository) Create(ctx context.Context, cycle *model.ScanCycle) error {
	if err := r.ds.DB(ctx).Create(cycle).Error; err != nil {
		return fmt.Errorf("failed to create scan cycle %s: %w", cycle.CycleID, err)
	}
	return nil
}

// Complete marks a cycle finished and stores its tallies and duration
func (r *ScanCycleRepository) Complete(ctx context.Context, cycleID string, onlineCount, offlineCount int, completedAt time.Time, durationMs int64) error {
	err := r.ds.DB(ctx).Model(&model.ScanCycle{}).
		Where("cycle_id = ?", cycleID).
		Updates(map[string]interface{}{
			"online_count":  onlineCount,
			"offline_count": offlineCount,
			"completed_at":  completedAt,
			"duration_ms":   durationMs,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to complete scan cycle %s: %w", cycleID, err)
	}
	return nil
}

// ListRecent retrieves the most recent cycles, newest first
func (r *ScanCycleRepository) ListRecent(ctx context.Context, limit int) ([]*model.ScanCycle, error) {
	var cycles []*model.ScanCycle
	if err := r.ds.DB(ctx).Order("started_at DESC").Limit(limit).Find(&cycles).Error; err != nil {
		return nil, fmt.Errorf("failed to list scan cycles: %w", err)
	}
	return cycles, nil
}

// DeleteOlderThan purges cycles started before the given time
func (r *ScanCycleRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.ds.DB(ctx).
		Where("started_at < ?", before).
		Delete(&model.ScanCycle{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old scan cycles: %w", result.Error)
	}
	return result.RowsAffected, nil
}
