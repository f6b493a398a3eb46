package ledger

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// RegistrationNote marks the zero-consumption record written when a meter is added
const RegistrationNote = "initial registration record"

// Meter is the current state of one physical meter
type Meter struct {
	MeterID      string
	DayReading   float64
	NightReading float64
	Date         time.Time
	CreatedAt    time.Time
}

// BillingRecord is one immutable entry in a meter's billing history
type BillingRecord struct {
	ID                   uuid.UUID
	MeterID              string
	Date                 time.Time
	PreviousDayReading   *float64
	PreviousNightReading *float64
	CurrentDayReading    float64
	CurrentNightReading  float64
	DayConsumption       float64
	NightConsumption     float64
	DayTariff            float64
	NightTariff          float64
	TotalAmount          float64
	DayResetDetected     bool
	NightResetDetected   bool
	Notes                string
}

// IsRegistration reports whether the record was written when the meter was added
func (r *BillingRecord) IsRegistration() bool {
	return r.PreviousDayReading == nil && r.PreviousNightReading == nil
}

// Before orders records by date, breaking ties on the time-ordered ID
func (r *BillingRecord) Before(other *BillingRecord) bool {
	if r.Date.Equal(other.Date) {
		return bytes.Compare(r.ID[:], other.ID[:]) < 0
	}
	return r.Date.Before(other.Date)
}
