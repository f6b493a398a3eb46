package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/electricity-billing/internal/anomaly"
	"github.com/septivank/electricity-billing/internal/billing"
	"github.com/septivank/electricity-billing/internal/config"
	"github.com/septivank/electricity-billing/internal/ledger"
	"github.com/septivank/electricity-billing/internal/lock"
	"github.com/septivank/electricity-billing/internal/logging"
	"github.com/septivank/electricity-billing/internal/metrics"
	"github.com/septivank/electricity-billing/internal/validator"
	"go.uber.org/zap"
)

// anomalyWindow is how many recent records feed the spike check
const anomalyWindow = 10

// EventPublisher announces committed ledger changes
type EventPublisher interface {
	PublishMeterRegistered(ctx context.Context, meter *ledger.Meter) error
	PublishBillingRecorded(ctx context.Context, record *ledger.BillingRecord) error
}

// NopPublisher discards events
type NopPublisher struct{}

func (NopPublisher) PublishMeterRegistered(context.Context, *ledger.Meter) error { return nil }

func (NopPublisher) PublishBillingRecorded(context.Context, *ledger.BillingRecord) error {
	return nil
}

// LedgerService registers meters, bills readings and serves history
type LedgerService struct {
	store     ledger.Store
	engine    *billing.Engine
	locker    lock.Locker
	detector  *anomaly.Detector
	publisher EventPublisher
	policy    string
	logger    *zap.Logger
	now       func() time.Time
}

// NewLedgerService creates a new ledger service. A nil detector disables
// anomaly notes; a nil publisher disables events.
func NewLedgerService(
	store ledger.Store,
	engine *billing.Engine,
	locker lock.Locker,
	detector *anomaly.Detector,
	publisher EventPublisher,
	policy string,
	logger *zap.Logger,
) *LedgerService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if policy == "" {
		policy = config.PolicyRollover
	}
	return &LedgerService{
		store:     store,
		engine:    engine,
		locker:    locker,
		detector:  detector,
		publisher: publisher,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// timestamp is the store's resolution: UTC, millisecond precision
func (s *LedgerService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// RegisterMeter creates a meter and its registration record in one unit
func (s *LedgerService) RegisterMeter(ctx context.Context, meterID string, dayReading, nightReading float64) (meter *ledger.Meter, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("register_meter", err, time.Since(start)) }()

	meterID, err = validator.ValidateMeterID(meterID)
	if err != nil {
		return nil, err
	}
	if err := validateReadings(dayReading, nightReading); err != nil {
		return nil, err
	}

	log := logging.WithMeterID(s.logger, meterID)

	release, err := s.locker.Lock(ctx, meterID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock meter: %w", err)
	}
	defer release()

	now := s.timestamp()
	tariffs := s.engine.Tariffs()

	meter = &ledger.Meter{
		MeterID:      meterID,
		DayReading:   dayReading,
		NightReading: nightReading,
		Date:         now,
		CreatedAt:    now,
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate record id: %w", err)
	}
	record := &ledger.BillingRecord{
		ID:                  id,
		MeterID:             meterID,
		Date:                now,
		CurrentDayReading:   dayReading,
		CurrentNightReading: nightReading,
		DayTariff:           tariffs.Day,
		NightTariff:         tariffs.Night,
		Notes:               ledger.RegistrationNote,
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.InsertMeter(ctx, meter); err != nil {
			return err
		}
		return tx.InsertBillingRecord(ctx, record)
	})
	if err != nil {
		log.Warn("meter registration failed", zap.Error(err))
		return nil, err
	}

	log.Info("meter registered",
		zap.Float64("day_reading", dayReading),
		zap.Float64("night_reading", nightReading),
	)

	if err := s.publisher.PublishMeterRegistered(ctx, meter); err != nil {
		log.Error("failed to publish meter registered event", zap.Error(err))
	}

	return meter, nil
}

// RecordReading bills new cumulative readings against the meter's current
// state, appends the record and moves the meter forward
func (s *LedgerService) RecordReading(ctx context.Context, meterID string, dayReading, nightReading float64) (record *ledger.BillingRecord, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("record_reading", err, time.Since(start)) }()

	meterID, err = validator.ValidateMeterID(meterID)
	if err != nil {
		return nil, err
	}
	if err := validateReadings(dayReading, nightReading); err != nil {
		return nil, err
	}

	log := logging.WithMeterID(s.logger, meterID)

	release, err := s.locker.Lock(ctx, meterID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock meter: %w", err)
	}
	defer release()

	// read before the unit: the history is stable while the meter lock is held
	recent := s.recentRecords(ctx, meterID, log)

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		meter, err := tx.FindMeter(ctx, meterID)
		if err != nil {
			return err
		}

		if s.policy == config.PolicyReject {
			if err := rejectDecrease(meter, dayReading, nightReading); err != nil {
				return err
			}
		}

		record, err = s.buildRecord(meter, dayReading, nightReading)
		if err != nil {
			return err
		}
		record.Notes = s.anomalyNotes(record, recent, log)

		if err := tx.InsertBillingRecord(ctx, record); err != nil {
			return err
		}
		return tx.UpdateMeterReadings(ctx, meterID, dayReading, nightReading, record.Date)
	})
	if err != nil {
		log.Warn("reading not recorded", zap.Error(err))
		return nil, err
	}

	metrics.ObserveRecord(record)
	log.Info("reading recorded",
		zap.String("record_id", record.ID.String()),
		zap.Float64("day_consumption", record.DayConsumption),
		zap.Float64("night_consumption", record.NightConsumption),
		zap.Float64("total_amount", record.TotalAmount),
		zap.Bool("day_reset", record.DayResetDetected),
		zap.Bool("night_reset", record.NightResetDetected),
	)

	if err := s.publisher.PublishBillingRecorded(ctx, record); err != nil {
		log.Error("failed to publish billing recorded event", zap.Error(err))
	}

	return record, nil
}

func (s *LedgerService) buildRecord(meter *ledger.Meter, dayReading, nightReading float64) (*ledger.BillingRecord, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate record id: %w", err)
	}

	// never let a skewed clock put a record before the meter's last update
	date := s.timestamp()
	if date.Before(meter.Date) {
		date = meter.Date
	}

	prevDay, prevNight := meter.DayReading, meter.NightReading
	calc := s.engine.Calculate(prevDay, prevNight, dayReading, nightReading)

	return &ledger.BillingRecord{
		ID:                   id,
		MeterID:              meter.MeterID,
		Date:                 date,
		PreviousDayReading:   &prevDay,
		PreviousNightReading: &prevNight,
		CurrentDayReading:    dayReading,
		CurrentNightReading:  nightReading,
		DayConsumption:       calc.DayConsumption,
		NightConsumption:     calc.NightConsumption,
		DayTariff:            calc.DayTariff,
		NightTariff:          calc.NightTariff,
		TotalAmount:          calc.TotalAmount,
		DayResetDetected:     calc.DayResetDetected,
		NightResetDetected:   calc.NightResetDetected,
	}, nil
}

func (s *LedgerService) recentRecords(ctx context.Context, meterID string, log *zap.Logger) []ledger.BillingRecord {
	if s.detector == nil {
		return nil
	}
	recent, err := s.store.RecentRecords(ctx, meterID, anomalyWindow)
	if err != nil {
		log.Warn("failed to get recent records for anomaly detection", zap.Error(err))
		return nil
	}
	return recent
}

// anomalyNotes never fails the reading; it only annotates the record
func (s *LedgerService) anomalyNotes(record *ledger.BillingRecord, recent []ledger.BillingRecord, log *zap.Logger) string {
	if s.detector == nil {
		return ""
	}

	var notes []string
	channels := []struct {
		channel     anomaly.Channel
		consumption float64
	}{
		{anomaly.Day, record.DayConsumption},
		{anomaly.Night, record.NightConsumption},
	}
	for _, c := range channels {
		isAnomaly, reason := s.detector.DetectAnomaly(c.consumption, anomaly.ConsumptionHistory(recent, c.channel))
		if !isAnomaly {
			continue
		}
		metrics.ObserveAnomaly(string(c.channel))
		log.Debug("anomaly detected",
			zap.String("channel", string(c.channel)),
			zap.Float64("consumption", c.consumption),
			zap.String("reason", reason),
		)
		notes = append(notes, fmt.Sprintf("%s: %s", c.channel, reason))
	}
	return strings.Join(notes, "; ")
}

// GetHistory returns the meter's records oldest first; unknown meters have none
func (s *LedgerService) GetHistory(ctx context.Context, meterID string) (records []ledger.BillingRecord, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("get_history", err, time.Since(start)) }()

	records, err = s.store.QueryHistory(ctx, strings.TrimSpace(meterID))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return records, nil
}

// ListMeters returns every meter in no particular order
func (s *LedgerService) ListMeters(ctx context.Context) (meters []ledger.Meter, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("list_meters", err, time.Since(start)) }()

	meters, err = s.store.ListMeters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list meters: %w", err)
	}
	return meters, nil
}

// Tariffs returns the tariffs new records are billed at
func (s *LedgerService) Tariffs() billing.Rates {
	return s.engine.Tariffs()
}

// Ping checks the store is reachable
func (s *LedgerService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func validateReadings(dayReading, nightReading float64) error {
	if err := validator.ValidateValue("day", dayReading); err != nil {
		return err
	}
	return validator.ValidateValue("night", nightReading)
}

func rejectDecrease(meter *ledger.Meter, dayReading, nightReading float64) error {
	if dayReading < meter.DayReading {
		return fmt.Errorf("%w: day reading %v is below current %v", ledger.ErrInvalidInput, dayReading, meter.DayReading)
	}
	if nightReading < meter.NightReading {
		return fmt.Errorf("%w: night reading %v is below current %v", ledger.ErrInvalidInput, nightReading, meter.NightReading)
	}
	return nil
}
