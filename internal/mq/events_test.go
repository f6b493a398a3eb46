package mq

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/electricity-billing/internal/ledger"
)

func TestNewBillingRecordedEvent(t *testing.T) {
	prev := 100.0
	record := &ledger.BillingRecord{
		ID:                 uuid.MustParse("01934a2b-7c00-7000-8000-000000000001"),
		MeterID:            "M1",
		Date:               time.Date(2025, 12, 29, 10, 30, 45, 0, time.UTC),
		PreviousDayReading: &prev,
		DayConsumption:     879,
		DayTariff:          2,
		NightTariff:        1,
		TotalAmount:        1758,
		DayResetDetected:   true,
	}

	body, err := json.Marshal(NewBillingRecordedEvent(record))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded["record_id"] != "01934a2b-7c00-7000-8000-000000000001" {
		t.Errorf("Unexpected record_id %v", decoded["record_id"])
	}
	if decoded["date"] != "2025-12-29T10:30:45Z" {
		t.Errorf("Unexpected date %v", decoded["date"])
	}
	if decoded["day_reset_detected"] != true {
		t.Errorf("Expected day_reset_detected true, got %v", decoded["day_reset_detected"])
	}
	if _, ok := decoded["notes"]; ok {
		t.Error("Expected empty notes to be omitted")
	}
}

func TestNewMeterRegisteredEvent(t *testing.T) {
	meter := &ledger.Meter{
		MeterID:      "M1",
		DayReading:   100,
		NightReading: 50,
		CreatedAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	event := NewMeterRegisteredEvent(meter)
	if event.MeterID != "M1" || event.DayReading != 100 || event.NightReading != 50 {
		t.Errorf("Unexpected event %+v", event)
	}
	if event.RegisteredAt != "2025-01-01T00:00:00Z" {
		t.Errorf("Unexpected registered_at %s", event.RegisteredAt)
	}
}
