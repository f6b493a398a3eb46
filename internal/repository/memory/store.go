// Package memory is an in-process ledger.Store used for tests and the
// memory driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/septivank/electricity-billing/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

// Store keeps meters and history in maps guarded by one mutex
type Store struct {
	mu      sync.RWMutex
	meters  map[string]ledger.Meter
	history map[string][]ledger.BillingRecord

	// failNextCommit makes the next RunInTx fail after fn succeeded
	failNextCommit error
}

// New creates an empty store
func New() *Store {
	return &Store{
		meters:  make(map[string]ledger.Meter),
		history: make(map[string][]ledger.BillingRecord),
	}
}

// FailNextCommit makes the next transaction fail with err at commit time
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextCommit = err
}

func (s *Store) FindMeter(_ context.Context, meterID string) (*ledger.Meter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.meters[meterID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, meterID)
	}
	return &m, nil
}

func (s *Store) ListMeters(_ context.Context) ([]ledger.Meter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ledger.Meter, 0, len(s.meters))
	for _, m := range s.meters {
		result = append(result, m)
	}
	return result, nil
}

func (s *Store) QueryHistory(_ context.Context, meterID string) ([]ledger.BillingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.history[meterID]
	result := make([]ledger.BillingRecord, len(records))
	for i := range records {
		result[i] = copyRecord(records[i])
	}
	return result, nil
}

func (s *Store) RecentRecords(_ context.Context, meterID string, limit int) ([]ledger.BillingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.history[meterID]
	result := make([]ledger.BillingRecord, 0, limit)
	for i := len(records) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, copyRecord(records[i]))
	}
	return result, nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

// RunInTx stages writes and applies them only when fn succeeds
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, meters: make(map[string]ledger.Meter)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := s.failNextCommit; err != nil {
		s.failNextCommit = nil
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for id, m := range tx.meters {
		s.meters[id] = m
	}
	for _, r := range tx.records {
		s.history[r.MeterID] = insertSorted(s.history[r.MeterID], r)
	}
	return nil
}

// memTx runs with the store mutex already held
type memTx struct {
	store   *Store
	meters  map[string]ledger.Meter
	records []ledger.BillingRecord
}

func (tx *memTx) lookup(meterID string) (ledger.Meter, bool) {
	if m, ok := tx.meters[meterID]; ok {
		return m, true
	}
	m, ok := tx.store.meters[meterID]
	return m, ok
}

func (tx *memTx) FindMeter(_ context.Context, meterID string) (*ledger.Meter, error) {
	m, ok := tx.lookup(meterID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, meterID)
	}
	return &m, nil
}

func (tx *memTx) InsertMeter(_ context.Context, meter *ledger.Meter) error {
	if _, exists := tx.lookup(meter.MeterID); exists {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyExists, meter.MeterID)
	}
	tx.meters[meter.MeterID] = *meter
	return nil
}

func (tx *memTx) UpdateMeterReadings(_ context.Context, meterID string, dayReading, nightReading float64, at time.Time) error {
	m, ok := tx.lookup(meterID)
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, meterID)
	}
	m.DayReading = dayReading
	m.NightReading = nightReading
	m.Date = at
	tx.meters[meterID] = m
	return nil
}

func (tx *memTx) InsertBillingRecord(_ context.Context, record *ledger.BillingRecord) error {
	tx.records = append(tx.records, copyRecord(*record))
	return nil
}

func insertSorted(records []ledger.BillingRecord, r ledger.BillingRecord) []ledger.BillingRecord {
	i := sort.Search(len(records), func(i int) bool {
		return r.Before(&records[i])
	})
	records = append(records, ledger.BillingRecord{})
	copy(records[i+1:], records[i:])
	records[i] = r
	return records
}

func copyRecord(r ledger.BillingRecord) ledger.BillingRecord {
	if r.PreviousDayReading != nil {
		v := *r.PreviousDayReading
		r.PreviousDayReading = &v
	}
	if r.PreviousNightReading != nil {
		v := *r.PreviousNightReading
		r.PreviousNightReading = &v
	}
	return r
}
