package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/electricity-billing/internal/ledger"
)

const uniqueViolation = "23505"

const (
	selectMeter = `
		SELECT meter_id, day_reading, night_reading, updated_at, created_at
		FROM meters
	`
	selectRecord = `
		SELECT id, meter_id, recorded_at,
			previous_day_reading, previous_night_reading,
			current_day_reading, current_night_reading,
			day_consumption, night_consumption,
			day_tariff, night_tariff, total_amount,
			day_reset_detected, night_reset_detected, notes
		FROM billing_history
	`
)

var _ ledger.Store = (*Repository)(nil)

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the PostgreSQL ledger store
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// FindMeter retrieves the current state of a meter
func (r *Repository) FindMeter(ctx context.Context, meterID string) (*ledger.Meter, error) {
	return findMeter(ctx, r.pool, meterID, false)
}

// ListMeters returns every meter
func (r *Repository) ListMeters(ctx context.Context) ([]ledger.Meter, error) {
	rows, err := r.pool.Query(ctx, selectMeter)
	if err != nil {
		return nil, fmt.Errorf("failed to query meters: %w", err)
	}
	defer rows.Close()

	meters := make([]ledger.Meter, 0)
	for rows.Next() {
		meter, err := scanMeter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meter: %w", err)
		}
		meters = append(meters, *meter)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return meters, nil
}

// QueryHistory returns the billing history of a meter, oldest first
func (r *Repository) QueryHistory(ctx context.Context, meterID string) ([]ledger.BillingRecord, error) {
	query := selectRecord + `
		WHERE meter_id = $1
		ORDER BY recorded_at ASC, id ASC
	`
	return r.queryRecords(ctx, query, meterID)
}

// RecentRecords gets the latest records for anomaly detection, newest first
func (r *Repository) RecentRecords(ctx context.Context, meterID string, limit int) ([]ledger.BillingRecord, error) {
	query := selectRecord + `
		WHERE meter_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2
	`
	return r.queryRecords(ctx, query, meterID, limit)
}

func (r *Repository) queryRecords(ctx context.Context, query string, args ...any) ([]ledger.BillingRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query billing history: %w", err)
	}
	defer rows.Close()

	records := make([]ledger.BillingRecord, 0)
	for rows.Next() {
		var rec ledger.BillingRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.MeterID,
			&rec.Date,
			&rec.PreviousDayReading,
			&rec.PreviousNightReading,
			&rec.CurrentDayReading,
			&rec.CurrentNightReading,
			&rec.DayConsumption,
			&rec.NightConsumption,
			&rec.DayTariff,
			&rec.NightTariff,
			&rec.TotalAmount,
			&rec.DayResetDetected,
			&rec.NightResetDetected,
			&rec.Notes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan billing record: %w", err)
		}
		rec.Date = rec.Date.UTC()
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

// RunInTx runs fn inside a database transaction
func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// pgTx implements ledger.Tx on a pgx transaction
type pgTx struct {
	tx pgx.Tx
}

// FindMeter locks the meter row until the transaction ends
func (t *pgTx) FindMeter(ctx context.Context, meterID string) (*ledger.Meter, error) {
	return findMeter(ctx, t.tx, meterID, true)
}

// InsertMeter inserts a new meter
func (t *pgTx) InsertMeter(ctx context.Context, meter *ledger.Meter) error {
	query := `
		INSERT INTO meters (meter_id, day_reading, night_reading, updated_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := t.tx.Exec(ctx, query,
		meter.MeterID,
		meter.DayReading,
		meter.NightReading,
		meter.Date,
		meter.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ledger.ErrAlreadyExists, meter.MeterID)
		}
		return fmt.Errorf("failed to insert meter: %w", err)
	}

	return nil
}

// UpdateMeterReadings sets the current readings and timestamp of a meter
func (t *pgTx) UpdateMeterReadings(ctx context.Context, meterID string, dayReading, nightReading float64, at time.Time) error {
	query := `
		UPDATE meters
		SET day_reading = $1, night_reading = $2, updated_at = $3
		WHERE meter_id = $4
	`

	tag, err := t.tx.Exec(ctx, query, dayReading, nightReading, at, meterID)
	if err != nil {
		return fmt.Errorf("failed to update meter readings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, meterID)
	}

	return nil
}

// InsertBillingRecord appends a record to the billing history
func (t *pgTx) InsertBillingRecord(ctx context.Context, rec *ledger.BillingRecord) error {
	query := `
		INSERT INTO billing_history (
			id, meter_id, recorded_at,
			previous_day_reading, previous_night_reading,
			current_day_reading, current_night_reading,
			day_consumption, night_consumption,
			day_tariff, night_tariff, total_amount,
			day_reset_detected, night_reset_detected, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := t.tx.Exec(ctx, query,
		rec.ID,
		rec.MeterID,
		rec.Date,
		rec.PreviousDayReading,
		rec.PreviousNightReading,
		rec.CurrentDayReading,
		rec.CurrentNightReading,
		rec.DayConsumption,
		rec.NightConsumption,
		rec.DayTariff,
		rec.NightTariff,
		rec.TotalAmount,
		rec.DayResetDetected,
		rec.NightResetDetected,
		rec.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert billing record: %w", err)
	}

	return nil
}

func findMeter(ctx context.Context, q querier, meterID string, forUpdate bool) (*ledger.Meter, error) {
	query := selectMeter + ` WHERE meter_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	meter, err := scanMeter(q.QueryRow(ctx, query, meterID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, meterID)
		}
		return nil, fmt.Errorf("failed to query meter: %w", err)
	}
	return meter, nil
}

func scanMeter(row pgx.Row) (*ledger.Meter, error) {
	var meter ledger.Meter
	if err := row.Scan(
		&meter.MeterID,
		&meter.DayReading,
		&meter.NightReading,
		&meter.Date,
		&meter.CreatedAt,
	); err != nil {
		return nil, err
	}
	meter.Date = meter.Date.UTC()
	meter.CreatedAt = meter.CreatedAt.UTC()
	return &meter, nil
}
