// Package billing computes consumption and cost from cumulative meter readings.
// Nothing here performs I/O.
package billing

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Rates holds one value per tariff channel
type Rates struct {
	Day   float64
	Night float64
}

// Calculation is the result of billing one reading against the previous one
type Calculation struct {
	DayConsumption     float64
	NightConsumption   float64
	DayResetDetected   bool
	NightResetDetected bool
	DayTariff          float64
	NightTariff        float64
	TotalAmount        float64
}

// Engine applies static tariffs and rollover ceilings
type Engine struct {
	tariffs     Rates
	resetValues Rates
}

// NewEngine creates an engine with the given tariffs and per-channel reset values
func NewEngine(tariffs, resetValues Rates) *Engine {
	return &Engine{
		tariffs:     tariffs,
		resetValues: resetValues,
	}
}

// Tariffs returns the configured tariffs
func (e *Engine) Tariffs() Rates {
	return e.tariffs
}

// ResetValues returns the configured rollover ceilings
func (e *Engine) ResetValues() Rates {
	return e.resetValues
}

// Calculate bills new day/night readings against the previous ones
func (e *Engine) Calculate(prevDay, prevNight, day, night float64) Calculation {
	dayConsumption, dayReset := ComputeConsumption(prevDay, day, e.resetValues.Day)
	nightConsumption, nightReset := ComputeConsumption(prevNight, night, e.resetValues.Night)

	return Calculation{
		DayConsumption:     dayConsumption,
		NightConsumption:   nightConsumption,
		DayResetDetected:   dayReset,
		NightResetDetected: nightReset,
		DayTariff:          e.tariffs.Day,
		NightTariff:        e.tariffs.Night,
		TotalAmount:        ComputeCost(dayConsumption, nightConsumption, e.tariffs.Day, e.tariffs.Night),
	}
}

// ComputeConsumption returns the delta between two cumulative readings.
// A current reading below the previous one means the counter wrapped past
// resetValue, so the consumption is resetValue + current - previous.
// The result is not clamped.
func ComputeConsumption(previous, current, resetValue float64) (float64, bool) {
	if current < previous {
		return resetValue + current - previous, true
	}
	return current - previous, false
}

// ComputeCost prices both channels and rounds the sum once to 2 decimal
// places, half to even on the exact binary value of the float sum. A sum
// that is not finite is returned unrounded.
func ComputeCost(dayConsumption, nightConsumption, dayTariff, nightTariff float64) float64 {
	// explicit conversions keep the products from being fused into FMA
	total := float64(dayConsumption*dayTariff) + float64(nightConsumption*nightTariff)
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return total
	}
	return exactDecimal(total).RoundBank(2).InexactFloat64()
}

// exactDecimal expands f to every digit of its binary value; a float64 has
// at most 1074 fractional decimal digits
func exactDecimal(f float64) decimal.Decimal {
	d, err := decimal.NewFromString(new(big.Float).SetFloat64(f).Text('f', 1074))
	if err != nil {
		return decimal.NewFromFloat(f)
	}
	return d
}
