// Package anomaly flags billed consumption that looks implausible next to a
// meter's recent periods. It is advisory: nothing here rejects a reading.
package anomaly

import (
	"fmt"

	"github.com/septivank/electricity-billing/internal/ledger"
)

// Channel names a tariff channel
type Channel string

const (
	Day   Channel = "day"
	Night Channel = "night"
)

// Detector handles anomaly detection with configurable thresholds
type Detector struct {
	spikeThreshold            float64
	minDataPointsForDetection int
}

// NewDetector creates a new anomaly detector with the specified thresholds
func NewDetector(spikeThreshold float64, minDataPointsForDetection int) *Detector {
	return &Detector{
		spikeThreshold:            spikeThreshold,
		minDataPointsForDetection: minDataPointsForDetection,
	}
}

// DetectAnomaly checks if the consumption is anomalous based on historical consumption
func (d *Detector) DetectAnomaly(consumption float64, historicalValues []float64) (bool, string) {
	// possible after a rollover with a misconfigured reset value
	if consumption < 0 {
		return true, fmt.Sprintf("negative consumption %.2f", consumption)
	}

	if len(historicalValues) < d.minDataPointsForDetection {
		return false, ""
	}

	sum := 0.0
	for _, v := range historicalValues {
		sum += v
	}
	average := sum / float64(len(historicalValues))

	if average > 0 && consumption > d.spikeThreshold*average {
		return true, fmt.Sprintf("consumption spike: %.2f exceeds %.1fx rolling average %.2f",
			consumption, d.spikeThreshold, average)
	}

	return false, ""
}

// ConsumptionHistory extracts one channel's consumption from billed records,
// skipping registration records
func ConsumptionHistory(records []ledger.BillingRecord, channel Channel) []float64 {
	values := make([]float64, 0, len(records))
	for i := range records {
		if records[i].IsRegistration() {
			continue
		}
		switch channel {
		case Day:
			values = append(values, records[i].DayConsumption)
		case Night:
			values = append(values, records[i].NightConsumption)
		}
	}
	return values
}
