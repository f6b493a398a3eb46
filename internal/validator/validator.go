// Package validator turns caller-supplied meter ids and readings into values
// the billing service can trust. Every failure wraps ledger.ErrInvalidInput.
package validator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/septivank/electricity-billing/internal/ledger"
	"github.com/septivank/electricity-billing/tools/timeparser"
)

// MaxMeterIDLength bounds meter identifiers
const MaxMeterIDLength = 64

// ReadingInput is a reading as submitted, before parsing
type ReadingInput struct {
	MeterID    string
	Day        string
	Night      string
	ReportedAt string
}

// Reading is a parsed and validated reading
type Reading struct {
	MeterID    string
	Day        float64
	Night      float64
	ReportedAt time.Time
}

// Validator handles reading validation with configurable parameters
type Validator struct {
	timestampToleranceMinutes int
}

// NewValidator creates a new validator with the specified tolerance
func NewValidator(timestampToleranceMinutes int) *Validator {
	return &Validator{
		timestampToleranceMinutes: timestampToleranceMinutes,
	}
}

// ValidateReading parses and validates a submitted reading. An empty
// ReportedAt is replaced by receivedAt.
func (v *Validator) ValidateReading(in ReadingInput, receivedAt time.Time) (Reading, error) {
	meterID, err := ValidateMeterID(in.MeterID)
	if err != nil {
		return Reading{}, err
	}

	day, err := ParseReading("day", in.Day)
	if err != nil {
		return Reading{}, err
	}
	night, err := ParseReading("night", in.Night)
	if err != nil {
		return Reading{}, err
	}

	reading := Reading{
		MeterID:    meterID,
		Day:        day,
		Night:      night,
		ReportedAt: receivedAt,
	}

	if strings.TrimSpace(in.ReportedAt) == "" {
		return reading, nil
	}

	reportedAt, err := timeparser.ParseMeterTimestamp(strings.TrimSpace(in.ReportedAt))
	if err != nil {
		return Reading{}, fmt.Errorf("%w: invalid timestamp format: %v", ledger.ErrInvalidInput, err)
	}

	if !timeparser.IsWithinTolerance(reportedAt, receivedAt, v.timestampToleranceMinutes) {
		return Reading{}, fmt.Errorf("%w: timestamp outside tolerance window (±%d minutes)",
			ledger.ErrInvalidInput, v.timestampToleranceMinutes)
	}

	reading.ReportedAt = reportedAt
	return reading, nil
}

// ValidateMeterID trims id and checks it is usable as a key
func ValidateMeterID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty meter id", ledger.ErrInvalidInput)
	}
	if len(id) > MaxMeterIDLength {
		return "", fmt.Errorf("%w: meter id longer than %d characters", ledger.ErrInvalidInput, MaxMeterIDLength)
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return "", fmt.Errorf("%w: meter id contains whitespace or control characters", ledger.ErrInvalidInput)
		}
	}
	return id, nil
}

// ParseReading parses one channel's cumulative reading
func ParseReading(channel, raw string) (float64, error) {
	// Strip square brackets if present
	value, err := strconv.ParseFloat(strings.TrimSpace(strings.Trim(raw, "[]")), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s reading %q", ledger.ErrInvalidInput, channel, raw)
	}
	if err := ValidateValue(channel, value); err != nil {
		return 0, err
	}
	return value, nil
}

// ValidateValue checks a numeric reading is finite and non-negative
func ValidateValue(channel string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s reading is not a finite number", ledger.ErrInvalidInput, channel)
	}
	if value < 0 {
		return fmt.Errorf("%w: negative %s reading %v", ledger.ErrInvalidInput, channel, value)
	}
	return nil
}
