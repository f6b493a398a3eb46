package ledger

import (
	"context"
	"time"
)

// Reader is the read side of the persistence collaborator
type Reader interface {
	// FindMeter returns ErrNotFound when no meter has the id
	FindMeter(ctx context.Context, meterID string) (*Meter, error)
	ListMeters(ctx context.Context) ([]Meter, error)
	// QueryHistory returns records sorted by date ascending
	QueryHistory(ctx context.Context, meterID string) ([]BillingRecord, error)
	// RecentRecords returns up to limit records, newest first
	RecentRecords(ctx context.Context, meterID string, limit int) ([]BillingRecord, error)
}

// Tx is the write side of the persistence collaborator, scoped to one
// atomic unit of work
type Tx interface {
	// FindMeter reads the meter inside the unit, locking it where the backend supports that
	FindMeter(ctx context.Context, meterID string) (*Meter, error)
	// InsertMeter returns ErrAlreadyExists on a duplicate id
	InsertMeter(ctx context.Context, meter *Meter) error
	// UpdateMeterReadings returns ErrNotFound when no meter has the id
	UpdateMeterReadings(ctx context.Context, meterID string, dayReading, nightReading float64, at time.Time) error
	InsertBillingRecord(ctx context.Context, record *BillingRecord) error
}

// Store persists meters and their billing history
type Store interface {
	Reader
	// RunInTx runs fn in one atomic unit. Writes made through tx are
	// discarded when fn returns an error.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}
