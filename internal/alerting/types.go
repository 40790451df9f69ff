// Package alerting compares bundle snapshots against size thresholds and
// produces regression alerts. It has no side effects; persisting alerts is
// the history manager's job.
package alerting

import "time"

// Type identifies what kind of regression an alert reports.
type Type string

const (
	TypeTotalSizeIncrease    Type = "total-size-increase"
	TypeChunkSizeIncrease    Type = "chunk-size-increase"
	TypeMaxSizeExceeded      Type = "max-size-exceeded"
	TypeMaxChunkSizeExceeded Type = "max-chunk-size-exceeded"
)

// Severity is "warning" for percentage breaches and "error" for absolute ones.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ParseSeverity converts a string to Severity. Unknown values map to warning.
func ParseSeverity(s string) Severity {
	switch s {
	case "error", "ERROR":
		return SeverityError
	default:
		return SeverityWarning
	}
}

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	if min == SeverityError {
		return s == SeverityError
	}
	return s == SeverityWarning || s == SeverityError
}

// Details carries the numbers behind an alert. PreviousValue and
// PercentageChange are only set for percentage alerts, ChunkName only for
// chunk alerts.
type Details struct {
	Timestamp        time.Time `json:"timestamp"`
	PreviousValue    *int64    `json:"previousValue,omitempty"`
	CurrentValue     int64     `json:"currentValue"`
	Threshold        float64   `json:"threshold"`
	PercentageChange *float64  `json:"percentageChange,omitempty"`
	ChunkName        string    `json:"chunkName,omitempty"`
}

// Alert is one regression finding.
type Alert struct {
	Type     Type     `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Details  Details  `json:"details"`
}

// Count returns how many alerts have at least the given severity.
func Count(alerts []Alert, min Severity) int {
	n := 0
	for _, a := range alerts {
		if a.Severity.AtLeast(min) {
			n++
		}
	}
	return n
}
