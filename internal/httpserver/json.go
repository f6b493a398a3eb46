package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/septivank/electricity-billing/internal/ledger"
)

type registerMeterRequestJSON struct {
	MeterID      string   `json:"meter_id"`
	DayReading   *float64 `json:"day_reading"`
	NightReading *float64 `json:"night_reading"`
}

type recordReadingRequestJSON struct {
	DayReading   *float64 `json:"day_reading"`
	NightReading *float64 `json:"night_reading"`
}

type meterJSON struct {
	MeterID      string  `json:"meter_id"`
	DayReading   float64 `json:"day_reading"`
	NightReading float64 `json:"night_reading"`
	Date         string  `json:"date"`
	CreatedAt    string  `json:"created_at"`
}

type billingRecordJSON struct {
	ID                   string   `json:"id"`
	MeterID              string   `json:"meter_id"`
	Date                 string   `json:"date"`
	PreviousDayReading   *float64 `json:"previous_day_reading"`
	PreviousNightReading *float64 `json:"previous_night_reading"`
	CurrentDayReading    float64  `json:"current_day_reading"`
	CurrentNightReading  float64  `json:"current_night_reading"`
	DayConsumption       float64  `json:"day_consumption"`
	NightConsumption     float64  `json:"night_consumption"`
	DayTariff            float64  `json:"day_tariff"`
	NightTariff          float64  `json:"night_tariff"`
	TotalAmount          float64  `json:"total_amount"`
	DayResetDetected     bool     `json:"day_reset_detected"`
	NightResetDetected   bool     `json:"night_reset_detected"`
	Notes                string   `json:"notes,omitempty"`
}

type listMetersResponseJSON struct {
	Meters []meterJSON `json:"meters"`
}

type historyResponseJSON struct {
	MeterID string              `json:"meter_id"`
	Records []billingRecordJSON `json:"records"`
}

type apiErrorJSON struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func toMeterJSON(m *ledger.Meter) meterJSON {
	return meterJSON{
		MeterID:      m.MeterID,
		DayReading:   m.DayReading,
		NightReading: m.NightReading,
		Date:         formatTime(m.Date),
		CreatedAt:    formatTime(m.CreatedAt),
	}
}

func toRecordJSON(r *ledger.BillingRecord) billingRecordJSON {
	return billingRecordJSON{
		ID:                   r.ID.String(),
		MeterID:              r.MeterID,
		Date:                 formatTime(r.Date),
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

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
