package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS meters (
    meter_id      TEXT PRIMARY KEY,
    day_reading   DOUBLE PRECISION NOT NULL,
    night_reading DOUBLE PRECISION NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS billing_history (
    id                     UUID PRIMARY KEY,
    meter_id               TEXT NOT NULL REFERENCES meters (meter_id),
    recorded_at            TIMESTAMPTZ NOT NULL,
    previous_day_reading   DOUBLE PRECISION,
    previous_night_reading DOUBLE PRECISION,
    current_day_reading    DOUBLE PRECISION NOT NULL,
    current_night_reading  DOUBLE PRECISION NOT NULL,
    day_consumption        DOUBLE PRECISION NOT NULL DEFAULT 0,
    night_consumption      DOUBLE PRECISION NOT NULL DEFAULT 0,
    day_tariff             DOUBLE PRECISION NOT NULL,
    night_tariff           DOUBLE PRECISION NOT NULL,
    total_amount           NUMERIC(14, 2) NOT NULL DEFAULT 0,
    day_reset_detected     BOOLEAN NOT NULL DEFAULT FALSE,
    night_reset_detected   BOOLEAN NOT NULL DEFAULT FALSE,
    notes                  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_billing_history_meter_date ON billing_history (meter_id, recorded_at, id);
`

// Migrate creates the billing tables and indexes if they do not exist
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("[DATABASE] failed to apply schema: %w", err)
	}
	return nil
}
