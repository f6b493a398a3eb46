package mongo

import (
	"time"

	"github.com/google/uuid"
	"github.com/septivank/electricity-billing/internal/ledger"
)

type meterDoc struct {
	MeterID      string    `bson:"meter_id"`
	DayReading   float64   `bson:"day_reading"`
	NightReading float64   `bson:"night_reading"`
	Date         time.Time `bson:"date"`
	CreatedAt    time.Time `bson:"created_at"`
}

type recordDoc struct {
	ID                   string    `bson:"_id"`
	MeterID              string    `bson:"meter_id"`
	Date                 time.Time `bson:"date"`
	PreviousDayReading   *float64  `bson:"previous_day_reading,omitempty"`
	PreviousNightReading *float64  `bson:"previous_night_reading,omitempty"`
	CurrentDayReading    float64   `bson:"current_day_reading"`
	CurrentNightReading  float64   `bson:"current_night_reading"`
	DayConsumption       float64   `bson:"day_consumption"`
	NightConsumption     float64   `bson:"night_consumption"`
	DayTariff            float64   `bson:"day_tariff"`
	NightTariff          float64   `bson:"night_tariff"`
	TotalAmount          float64   `bson:"total_amount"`
	DayResetDetected     bool      `bson:"day_reset_detected"`
	NightResetDetected   bool      `bson:"night_reset_detected"`
	Notes                string    `bson:"notes,omitempty"`
}

func toMeterDoc(m *ledger.Meter) *meterDoc {
	return &meterDoc{
		MeterID:      m.MeterID,
		DayReading:   m.DayReading,
		NightReading: m.NightReading,
		Date:         m.Date,
		CreatedAt:    m.CreatedAt,
	}
}

func fromMeterDoc(d *meterDoc) ledger.Meter {
	return ledger.Meter{
		MeterID:      d.MeterID,
		DayReading:   d.DayReading,
		NightReading: d.NightReading,
		Date:         d.Date.UTC(),
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

func toRecordDoc(r *ledger.BillingRecord) *recordDoc {
	return &recordDoc{
		ID:                   r.ID.String(),
		MeterID:              r.MeterID,
		Date:                 r.Date,
		PreviousDayReading:   r.PreviousDayReading,
		PreviousNightReading: r.PreviousNightReading,
		CurrentDayReading:    r.CurrentDayReading,
		CurrentNightReading:  r.CurrentNightReading,
		DayConsumption:       r.DayConsumption,
		NightConsumption:     r.NightConsumption,
		DayTariff:            r.DayTariff,
		NightTariff:          r.NightTariff,
		TotalAmount:          r.TotalAmount,
		DayResetDetected:     r.DayResetDetected,
		NightResetDetected:   r.NightResetDetected,
		Notes:                r.Notes,
	}
}

func fromRecordDoc(d *recordDoc) (ledger.BillingRecord, error) {
	recordID, err := uuid.Parse(d.ID)
	if err != nil {
		return ledger.BillingRecord{}, err
	}

	return ledger.BillingRecord{
		ID:                   recordID,
		MeterID:              d.MeterID,
		Date:                 d.Date.UTC(),
		PreviousDayReading:   d.PreviousDayReading,
		PreviousNightReading: d.PreviousNightReading,
		CurrentDayReading:    d.CurrentDayReading,
		CurrentNightReading:  d.CurrentNightReading,
		DayConsumption:       d.DayConsumption,
		NightConsumption:     d.NightConsumption,
		DayTariff:            d.DayTariff,
		NightTariff:          d.NightTariff,
		TotalAmount:          d.TotalAmount,
		DayResetDetected:     d.DayResetDetected,
		NightResetDetected:   d.NightResetDetected,
		Notes:                d.Notes,
	}, nil
}
