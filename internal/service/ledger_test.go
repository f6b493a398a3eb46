package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/septivank/electricity-billing/internal/anomaly"
	"github.com/septivank/electricity-billing/internal/billing"
	"github.com/septivank/electricity-billing/internal/config"
	"github.com/septivank/electricity-billing/internal/ledger"
	"github.com/septivank/electricity-billing/internal/lock"
	"github.com/septivank/electricity-billing/internal/repository/memory"
	"go.uber.org/zap"
)

// stepClock advances one second per call
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordingPublisher struct {
	mu         sync.Mutex
	registered []string
	recorded   []string
	err        error
}

func (p *recordingPublisher) PublishMeterRegistered(_ context.Context, meter *ledger.Meter) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, meter.MeterID)
	return p.err
}

func (p *recordingPublisher) PublishBillingRecorded(_ context.Context, record *ledger.BillingRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorded = append(p.recorded, record.ID.String())
	return p.err
}

func newTestService(t *testing.T, policy string) (*LedgerService, *memory.Store, *recordingPublisher) {
	t.Helper()

	store := memory.New()
	engine := billing.NewEngine(billing.Rates{Day: 2, Night: 1}, billing.Rates{Day: 999, Night: 999})
	publisher := &recordingPublisher{}
	svc := NewLedgerService(store, engine, lock.NewLocal(), nil, publisher, policy, zap.NewNop())

	clock := &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc.now = clock.Now

	return svc, store, publisher
}

func TestRegisterAndRecord_M1Scenario(t *testing.T) {
	svc, _, publisher := newTestService(t, config.PolicyRollover)
	ctx := context.Background()

	meter, err := svc.RegisterMeter(ctx, "M1", 100, 50)
	if err != nil {
		t.Fatalf("RegisterMeter failed: %v", err)
	}
	if meter.DayReading != 100 || meter.NightReading != 50 {
		t.Errorf("Unexpected meter readings: %+v", meter)
	}

	history, err := svc.GetHistory(ctx, "M1")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 registration record, got %d", len(history))
	}
	reg := history[0]
	if !reg.IsRegistration() || reg.TotalAmount != 0 || reg.Notes != ledger.RegistrationNote {
		t.Errorf("Unexpected registration record: %+v", reg)
	}
	if reg.DayTariff != 2 || reg.NightTariff != 1 {
		t.Errorf("Expected registration to snapshot tariffs 2/1, got %v/%v", reg.DayTariff, reg.NightTariff)
	}

	rec, err := svc.RecordReading(ctx, "M1", 150, 75)
	if err != nil {
		t.Fatalf("RecordReading failed: %v", err)
	}
	if rec.DayConsumption != 50 || rec.NightConsumption != 25 {
		t.Errorf("Expected consumption 50/25, got %v/%v", rec.DayConsumption, rec.NightConsumption)
	}
	if rec.TotalAmount != 125 {
		t.Errorf("Expected total 125, got %v", rec.TotalAmount)
	}
	if rec.DayResetDetected || rec.NightResetDetected {
		t.Errorf("Expected no resets, got %+v", rec)
	}
	if *rec.PreviousDayReading != 100 || *rec.PreviousNightReading != 50 {
		t.Errorf("Expected previous readings 100/50, got %v/%v", *rec.PreviousDayReading, *rec.PreviousNightReading)
	}

	rec, err = svc.RecordReading(ctx, "M1", 30, 75)
	if err != nil {
		t.Fatalf("RecordReading failed: %v", err)
	}
	if !rec.DayResetDetected {
		t.Error("Expected day reset")
	}
	if rec.DayConsumption != 879 {
		t.Errorf("Expected day consumption 879, got %v", rec.DayConsumption)
	}

	meters, err := svc.ListMeters(ctx)
	if err != nil {
		t.Fatalf("ListMeters failed: %v", err)
	}
	if len(meters) != 1 || meters[0].DayReading != 30 || meters[0].NightReading != 75 {
		t.Errorf("Expected meter to move to 30/75, got %+v", meters)
	}
	if !meters[0].Date.Equal(rec.Date) {
		t.Errorf("Expected meter date %v to match last record %v", meters[0].Date, rec.Date)
	}

	if len(publisher.registered) != 1 || len(publisher.recorded) != 2 {
		t.Errorf("Expected 1 registered and 2 recorded events, got %d and %d",
			len(publisher.registered), len(publisher.recorded))
	}
}

func TestRegisterMeter_Duplicate(t *testing.T) {
	svc, _, publisher := newTestService(t, config.PolicyRollover)
	ctx := context.Background()

	if _, err := svc.RegisterMeter(ctx, "M1", 100, 50); err != nil {
		t.Fatalf("RegisterMeter failed: %v", err)
	}

	_, err := svc.RegisterMeter(ctx, "M1", 1, 1)
	if !errors.Is(err, ledger.ErrAlreadyExists) {
		t.Fatalf("Expected ErrAlreadyExists, got %v", err)
	}

	meters, _ := svc.ListMeters(ctx)
	if len(meters) != 1 || meters[0].DayReading != 100 || meters[0].NightReading != 50 {
		t.Errorf("Expected original meter untouched, got %+v", meters)
	}
	history, _ := svc.GetHistory(ctx, "M1")
	if len(history) != 1 {
		t.Errorf("Expected history to keep 1 record, got %d", len(history))
	}
	if len(publisher.registered) != 1 {
		t.Errorf("Expected no event for the failed registration, got %d", len(publisher.registered))
	}
}

func TestRecordReading_UnknownMeter(t *testing.T) {
	svc, _, publisher := newTestService(t, config.PolicyRollover)
	ctx := context.Background()

	_, err := svc.RecordReading(ctx, "ghost", 10, 10)
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	history, err := svc.GetHistory(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Expected no records, got %d", len(history))
	}
	if len(publisher.recorded) != 0 {
		t.Errorf("Expected no events, got %d", len(publisher.recorded))
	}
}

func TestRecordReading_InvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t, config.PolicyRollover)
	ctx := context.Background()

	if _, err := svc.RegisterMeter(ctx, "", 1, 1); !errors.Is(err, ledger.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty id, got %v", err)
	}
	if _, err := svc.RegisterMeter(ctx, "M1", -1, 1); !errors.Is(err, ledger.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for negative reading, got %v", err)
	}
	if _, err := svc.RecordReading(ctx, "M1", 1, -5); !errors.Is(err, ledger.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for negative reading, got %v", err)
	}
}

func TestHistoryOrdering(t *testing.T) {
	svc, _, _ := newTestService(t, config.PolicyRollover)
	ctx := context.Background()

	if _, err := svc.RegisterMeter(ctx, "M1", 0, 0); err != nil {
		t.Fatalf("RegisterMeter failed: %v", err)
	}

	const n = 7
	for i := 1; i <= n; i++ {
		if _, err := svc.RecordReading(ctx, "M1", float64(i*10), float64(i*5)); err != nil {
			t.Fatalf("RecordReading %d failed: %v", i, err)
		}
	}

	history, err := svc.GetHistory(ctx, "M1")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != n+1 {
		t.Fatalf("Expected %d records, got %d", n+1, len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Date.Before(history[i-1].Date) {
			t.Errorf("Record %d dated %v before record %d at %v", i, history[i].Date, i-1, history[i-1].Date)
		}
		if history[i].CurrentDayReading != float64(i*10) {
			t.Errorf("Record %d has day reading %v, want %v", i, history[i].CurrentDayReading, i*10)
		}
	}
}

func TestRecordReading_ClockSkewKeepsOrder(t *testing.T) {
	svc, _, _ := newTestService(t, config.PolicyRollover)
	ctx := context.Background()

	if _, err := svc.RegisterMeter(ctx, "M1", 0, 0); err != nil {
		t.Fatalf("RegisterMeter failed: %v", err)
	}
	registeredAt := time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC)

	svc.now = func() time.Time { return registeredAt.Add(-time.Hour) }
	rec, err := svc.RecordReading(ctx, "M1", 5, 5)
	if err != nil {
		t.Fatalf("RecordReading failed: %v", err)
	}
	if !rec.Date.Equal(registeredAt) {
		t.Errorf("Expected record date clamped to %v, got %v", registeredAt, rec.Date)
	}
}

func TestRecordReading_RejectPolicy(t *testing.T) {
	svc, _, _ := newTestService(t, config.PolicyReject)
	ctx := context.Background()

	if _, err := svc.RegisterMeter(ctx, "M1", 100, 50); err != nil {
		t.Fatalf("RegisterMeter failed: %v", err)
	}

	_, err := svc.RecordReading(ctx, "M1", 30, 75)
	if !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput for decreasing reading, got %v", err)
	}

	history, _ := svc.GetHistory(ctx, "M1")
	if len(history) != 1 {
		t.Errorf("Expected rejected reading to write nothing, got %d records", len(history))
	}

	if _, err := svc.RecordReading(ctx, "M1", 100, 50); err != nil {
		t.Errorf("Expected unchanged readings to be accepted, got %v", err)
	}
}

func TestRecordReading_CommitFailureLeavesNoTornState(t *testing.T) {
	svc, store, publisher := newTestService(t, config.PolicyRollover)
	ctx := context.Background()

	if _, err := svc.RegisterMeter(ctx, "M1", 100, 50); err != nil {
		t.Fatalf("RegisterMeter failed: %v", err)
	}

	commitErr := errors.New("disk full")
	store.FailNextCommit(commitErr)

	if _, err := svc.RecordReading(ctx, "M1", 150, 75); !errors.Is(err, commitErr) {
		t.Fatalf("Expected commit error to propagate, got %v", err)
	}

	meter, err := store.FindMeter(ctx, "M1")
	if err != nil {
		t.Fatalf("FindMeter failed: %v", err)
	}
	if meter.DayReading != 100 || meter.NightReading != 50 {
		t.Errorf("Expected meter unchanged after failed commit, got %+v", meter)
	}
	history, _ := svc.GetHistory(ctx, "M1")
	if len(history) != 1 {
		t.Errorf("Expected no new record after failed commit, got %d records", len(history))
	}
	if len(publisher.recorded) != 0 {
		t.Errorf("Expected no event after failed commit, got %d", len(publisher.recorded))
	}
}

func TestRecordReading_PublishFailureDoesNotFail(t *testing.T) {
	svc, _, publisher := newTestService(t, config.PolicyRollover)
	publisher.err = errors.New("broker down")
	ctx := context.Background()

	if _, err := svc.RegisterMeter(ctx, "M1", 0, 0); err != nil {
		t.Fatalf("Expected registration to succeed despite publish failure, got %v", err)
	}
	if _, err := svc.RecordReading(ctx, "M1", 1, 1); err != nil {
		t.Fatalf("Expected reading to succeed despite publish failure, got %v", err)
	}
}

func TestRecordReading_ConcurrentCallsSerialise(t *testing.T) {
	svc, _, _ := newTestService(t, config.PolicyRollover)
	ctx := context.Background()

	if _, err := svc.RegisterMeter(ctx, "M1", 0, 0); err != nil {
		t.Fatalf("RegisterMeter failed: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 1; i <= workers; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			if _, err := svc.RecordReading(ctx, "M1", v, v); err != nil {
				errs <- fmt.Errorf("reading %v: %w", v, err)
			}
		}(float64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	history, err := svc.GetHistory(ctx, "M1")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != workers+1 {
		t.Fatalf("Expected %d records, got %d", workers+1, len(history))
	}

	// every record must be billed against the one committed before it
	for i := 1; i < len(history); i++ {
		prev, cur := history[i-1], history[i]
		if *cur.PreviousDayReading != prev.CurrentDayReading {
			t.Errorf("Record %d billed from %v, previous record ended at %v",
				i, *cur.PreviousDayReading, prev.CurrentDayReading)
		}
	}
}

func TestRecordReading_AnomalyNotes(t *testing.T) {
	store := memory.New()
	engine := billing.NewEngine(billing.Rates{Day: 1, Night: 1}, billing.Rates{Day: 100000, Night: 100000})
	detector := anomaly.NewDetector(3.0, 3)
	svc := NewLedgerService(store, engine, lock.NewLocal(), detector, nil, config.PolicyRollover, zap.NewNop())
	clock := &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc.now = clock.Now
	ctx := context.Background()

	if _, err := svc.RegisterMeter(ctx, "M1", 0, 0); err != nil {
		t.Fatalf("RegisterMeter failed: %v", err)
	}
	for _, v := range []float64{10, 20, 30} {
		rec, err := svc.RecordReading(ctx, "M1", v, v)
		if err != nil {
			t.Fatalf("RecordReading failed: %v", err)
		}
		if rec.Notes != "" {
			t.Errorf("Expected no notes for steady usage, got %q", rec.Notes)
		}
	}

	rec, err := svc.RecordReading(ctx, "M1", 130, 40)
	if err != nil {
		t.Fatalf("Expected spike to be recorded, got %v", err)
	}
	if rec.Notes == "" {
		t.Error("Expected a day spike note")
	}
	if rec.DayConsumption != 100 {
		t.Errorf("Expected the spike to be billed in full, got %v", rec.DayConsumption)
	}
}
