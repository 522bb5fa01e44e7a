package mysql

import (
	"sdrwatch/pkg/store/mysql/model"
)

// Repository aggregates all MySQL repositories
type Repository struct {
	ds *Datastore

	Receiver  *ReceiverRepository
	ScanCycle *ScanCycleRepository
	History   *HistoryRepository
}

// NewRepository creates a new MySQL repository with all sub-repositories
func NewRepository(dsn string) (*Repository, error) {
	ds, err := NewDatastore(dsn)
	if err != nil {
		return nil, err
	}

	return &Repository{
		ds:        ds,
		Receiver:  NewReceiverRepository(ds),
		ScanCycle: NewScanCycleRepository(ds),
		History:   NewHistoryRepository(ds),
	}, nil
}

// Migrate creates or updates the schema
func (r *Repository) Migrate() error {
	return r.ds.GetDB().AutoMigrate(
		&model.Receiver{},
		&model.ScanCycle{},
		&model.StatusHistory{},
	)
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
