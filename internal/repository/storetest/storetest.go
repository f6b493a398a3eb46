// Package storetest holds behaviour checks shared by every ledger.Store backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/electricity-billing/internal/ledger"
)

// Run exercises store against the ledger.Store contract. Meter ids are
// prefixed with prefix so that runs against shared databases do not collide.
func Run(t *testing.T, store ledger.Store, prefix string) {
	t.Helper()

	t.Run("InsertAndFind", func(t *testing.T) { testInsertAndFind(t, store, prefix) })
	t.Run("DuplicateMeter", func(t *testing.T) { testDuplicateMeter(t, store, prefix) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollbackOnError(t, store, prefix) })
	t.Run("RegistrationUndoneOnError", func(t *testing.T) { testRegistrationUndoneOnError(t, store, prefix) })
	t.Run("UpdateUnknownMeter", func(t *testing.T) { testUpdateUnknownMeter(t, store, prefix) })
	t.Run("HistoryOrdering", func(t *testing.T) { testHistoryOrdering(t, store, prefix) })
	t.Run("UnknownMeterHistory", func(t *testing.T) { testUnknownMeterHistory(t, store, prefix) })
	t.Run("ListMeters", func(t *testing.T) { testListMeters(t, store, prefix) })
}

// RunNonTransactional is Run without the meter update rollback check, for
// backends configured to apply writes one by one. Inserts must still be
// undone when the unit fails.
func RunNonTransactional(t *testing.T, store ledger.Store, prefix string) {
	t.Helper()

	t.Run("InsertAndFind", func(t *testing.T) { testInsertAndFind(t, store, prefix) })
	t.Run("DuplicateMeter", func(t *testing.T) { testDuplicateMeter(t, store, prefix) })
	t.Run("RegistrationUndoneOnError", func(t *testing.T) { testRegistrationUndoneOnError(t, store, prefix) })
	t.Run("UpdateUnknownMeter", func(t *testing.T) { testUpdateUnknownMeter(t, store, prefix) })
	t.Run("HistoryOrdering", func(t *testing.T) { testHistoryOrdering(t, store, prefix) })
	t.Run("UnknownMeterHistory", func(t *testing.T) { testUnknownMeterHistory(t, store, prefix) })
	t.Run("ListMeters", func(t *testing.T) { testListMeters(t, store, prefix) })
}

func meterID(prefix, name string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, name, uuid.NewString()[:8])
}

func ts(seconds int) time.Time {
	return time.Date(2025, 12, 29, 10, 0, seconds, 0, time.UTC)
}

func registration(id string, day, night float64, at time.Time) (*ledger.Meter, *ledger.BillingRecord) {
	meter := &ledger.Meter{
		MeterID:      id,
		DayReading:   day,
		NightReading: night,
		Date:         at,
		CreatedAt:    at,
	}
	record := &ledger.BillingRecord{
		ID:                  uuid.Must(uuid.NewV7()),
		MeterID:             id,
		Date:                at,
		CurrentDayReading:   day,
		CurrentNightReading: night,
		DayTariff:           2,
		NightTariff:         1,
		Notes:               ledger.RegistrationNote,
	}
	return meter, record
}

func register(t *testing.T, store ledger.Store, id string, at time.Time) {
	t.Helper()
	meter, record := registration(id, 100, 50, at)
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.InsertMeter(ctx, meter); err != nil {
			return err
		}
		return tx.InsertBillingRecord(ctx, record)
	})
	if err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
}

func testInsertAndFind(t *testing.T, store ledger.Store, prefix string) {
	ctx := context.Background()
	id := meterID(prefix, "find")
	register(t, store, id, ts(0))

	meter, err := store.FindMeter(ctx, id)
	if err != nil {
		t.Fatalf("FindMeter failed: %v", err)
	}
	if meter.DayReading != 100 || meter.NightReading != 50 {
		t.Errorf("Unexpected readings: %+v", meter)
	}
	if !meter.Date.Equal(ts(0)) {
		t.Errorf("Expected date %v, got %v", ts(0), meter.Date)
	}

	if _, err := store.FindMeter(ctx, id+"-missing"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func testDuplicateMeter(t *testing.T, store ledger.Store, prefix string) {
	ctx := context.Background()
	id := meterID(prefix, "dup")
	register(t, store, id, ts(0))

	meter, record := registration(id, 1, 1, ts(5))
	err := store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.InsertMeter(ctx, meter); err != nil {
			return err
		}
		return tx.InsertBillingRecord(ctx, record)
	})
	if !errors.Is(err, ledger.ErrAlreadyExists) {
		t.Fatalf("Expected ErrAlreadyExists, got %v", err)
	}

	found, err := store.FindMeter(ctx, id)
	if err != nil {
		t.Fatalf("FindMeter failed: %v", err)
	}
	if found.DayReading != 100 {
		t.Errorf("Expected original meter to be untouched, got %+v", found)
	}

	history, err := store.QueryHistory(ctx, id)
	if err != nil {
		t.Fatalf("QueryHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("Expected 1 history record, got %d", len(history))
	}
}

func testRollbackOnError(t *testing.T, store ledger.Store, prefix string) {
	ctx := context.Background()
	id := meterID(prefix, "rollback")
	register(t, store, id, ts(0))

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		prev := 100.0
		record := &ledger.BillingRecord{
			ID:                 uuid.Must(uuid.NewV7()),
			MeterID:            id,
			Date:               ts(10),
			PreviousDayReading: &prev,
			CurrentDayReading:  150,
		}
		if err := tx.InsertBillingRecord(ctx, record); err != nil {
			return err
		}
		if err := tx.UpdateMeterReadings(ctx, id, 150, 75, ts(10)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	meter, err := store.FindMeter(ctx, id)
	if err != nil {
		t.Fatalf("FindMeter failed: %v", err)
	}
	if meter.DayReading != 100 {
		t.Errorf("Expected rolled back readings, got %+v", meter)
	}

	history, err := store.QueryHistory(ctx, id)
	if err != nil {
		t.Fatalf("QueryHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("Expected only the registration record, got %d", len(history))
	}
}

func testRegistrationUndoneOnError(t *testing.T, store ledger.Store, prefix string) {
	ctx := context.Background()
	id := meterID(prefix, "undo")
	meter, record := registration(id, 100, 50, ts(0))

	boom := errors.New("history write failed")
	err := store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.InsertMeter(ctx, meter); err != nil {
			return err
		}
		if err := tx.InsertBillingRecord(ctx, record); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected %v, got %v", boom, err)
	}

	if _, err := store.FindMeter(ctx, id); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Expected the meter to be gone, got %v", err)
	}
	history, err := store.QueryHistory(ctx, id)
	if err != nil {
		t.Fatalf("QueryHistory failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Expected no history, got %d records", len(history))
	}

	// the id is free again
	register(t, store, id, ts(1))
}

func testUpdateUnknownMeter(t *testing.T, store ledger.Store, prefix string) {
	id := meterID(prefix, "unknown")
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.UpdateMeterReadings(ctx, id, 1, 1, ts(0))
	})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func testHistoryOrdering(t *testing.T, store ledger.Store, prefix string) {
	ctx := context.Background()
	id := meterID(prefix, "order")
	register(t, store, id, ts(0))

	// written out of order on purpose
	for _, sec := range []int{30, 10, 20} {
		prevDay, prevNight := float64(sec), float64(sec)
		record := &ledger.BillingRecord{
			ID:                   uuid.Must(uuid.NewV7()),
			MeterID:              id,
			Date:                 ts(sec),
			PreviousDayReading:   &prevDay,
			PreviousNightReading: &prevNight,
			CurrentDayReading:    float64(sec),
			CurrentNightReading:  float64(sec),
			DayResetDetected:     sec == 20,
		}
		err := store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			return tx.InsertBillingRecord(ctx, record)
		})
		if err != nil {
			t.Fatalf("InsertBillingRecord failed: %v", err)
		}
	}

	history, err := store.QueryHistory(ctx, id)
	if err != nil {
		t.Fatalf("QueryHistory failed: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("Expected 4 records, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Date.Before(history[i-1].Date) {
			t.Errorf("History out of order at %d: %v before %v", i, history[i].Date, history[i-1].Date)
		}
	}
	if !history[0].IsRegistration() {
		t.Error("Expected registration record first")
	}
	if history[0].Notes != ledger.RegistrationNote {
		t.Errorf("Expected registration note, got %q", history[0].Notes)
	}
	if !history[2].DayResetDetected {
		t.Error("Expected reset flag to round-trip")
	}

	recent, err := store.RecentRecords(ctx, id, 2)
	if err != nil {
		t.Fatalf("RecentRecords failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 recent records, got %d", len(recent))
	}
	if !recent[0].Date.Equal(ts(30)) || !recent[1].Date.Equal(ts(20)) {
		t.Errorf("Expected newest first, got %v, %v", recent[0].Date, recent[1].Date)
	}
}

func testUnknownMeterHistory(t *testing.T, store ledger.Store, prefix string) {
	history, err := store.QueryHistory(context.Background(), meterID(prefix, "nohistory"))
	if err != nil {
		t.Fatalf("QueryHistory failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Expected empty history, got %d", len(history))
	}
}

func testListMeters(t *testing.T, store ledger.Store, prefix string) {
	a, b := meterID(prefix, "list-a"), meterID(prefix, "list-b")
	register(t, store, a, ts(0))
	register(t, store, b, ts(1))

	meters, err := store.ListMeters(context.Background())
	if err != nil {
		t.Fatalf("ListMeters failed: %v", err)
	}

	seen := map[string]bool{}
	for _, m := range meters {
		seen[m.MeterID] = true
	}
	if !seen[a] || !seen[b] {
		t.Errorf("Expected %s and %s in %d meters", a, b, len(meters))
	}
}
