package service

import (
	"context"
	"time"

	"sdrwatch/pkg/store/mysql"
	storemodel "sdrwatch/pkg/store/mysql/model"
)

type receiverRepository interface {
	Upsert(ctx context.Context, obs mysql.Observation) (*storemodel.Receiver, error)
	GetByURL(ctx context.Context, url string) (*storemodel.Receiver, error)
	List(ctx context.Context) ([]*storemodel.Receiver, error)
	RecomputeUptimeWindows(ctx context.Context, now time.Time) error
}

type scanCycleRepository interface {
	Create(ctx context.Context, cycle *storemodel.ScanCycle) error
	Complete(ctx context.Context, cycleID string, onlineCount, offlineCount int, completedAt time.Time, durationMs int64) error
	ListRecent(ctx context.Context, limit int) ([]*storemodel.ScanCycle, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type historyRepository interface {
	BulkInsert(ctx context.Context, rows []*storemodel.StatusHistory) error
	ListByReceiver(ctx context.Context, receiverID int64, since time.Time, limit int) ([]*storemodel.StatusHistory, error)
	WindowUptime(ctx context.Context, receiverID int64, since time.Time) (float64, bool, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// txRunner groups the writes of one scan cycle into a transaction.
type txRunner interface {
	ExecTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// compile-time assertions

var (
	_ receiverRepository  = (*mysql.ReceiverRepository)(nil)
	_ scanCycleRepository = (*mysql.ScanCycleRepository)(nil)
	_ historyRepository   = (*mysql.HistoryRepository)(nil)
	_ txRunner            = (*mysql.Datastore)(nil)
)
