package timeparser

import (
	"fmt"
	"time"
)

// DisplayLayout is how billing dates are shown to people
const DisplayLayout = "2006-01-02 15:04:05"

// ParseMeterTimestamp attempts to parse meter timestamp with multiple formats
func ParseMeterTimestamp(dateStr string) (time.Time, error) {
	formats := []string{
		"02/01/2006 15:04:05", // DD/MM/YYYY HH:mm:ss
		"02 15:04:05/01/2006", // DD HH:mm:ss/MM/YYYY
		DisplayLayout,         // YYYY-MM-DD HH:mm:ss
		time.RFC3339Nano,      // RFC3339 with optional fractional seconds
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, dateStr)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", dateStr, lastErr)
}

// IsWithinTolerance checks if the reading timestamp is within tolerance of received time
func IsWithinTolerance(readingTime, receivedTime time.Time, toleranceMinutes int) bool {
	diff := readingTime.Sub(receivedTime)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(toleranceMinutes)*time.Minute
}

// FormatDisplay renders t in UTC using DisplayLayout
func FormatDisplay(t time.Time) string {
	return t.UTC().Format(DisplayLayout)
}
