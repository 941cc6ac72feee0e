package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rshade/costlens/internal/ingest"
)

const (
	// minSampleDays is the number of distinct day aggregates a service must
	// exceed before its standard deviation is trusted. Services at or below
	// this many observed days produce no anomalies.
	minSampleDays = 3

	// anomalyFloor is the absolute daily-cost floor. It keeps low-spend
	// services from being flagged on statistically large but monetarily
	// trivial swings.
	anomalyFloor = 50.0

	// maxAnomalies caps the anomaly list per detection run. Truncation is
	// by generation order, not severity.
	maxAnomalies = 10
)

// DetectAnomalies aggregates events by (date, service) and flags days whose
// total exceeds mean + 2 stddev of that service's daily totals, subject to
// the absolute floor. Severity is high past mean + 3 stddev, medium
// otherwise.
//
// Iteration is deterministic: services in first-seen order of the event
// sequence, days in chronological order within a service. The returned list
// is capped at maxAnomalies entries in that order. Zero-variance services
// yield nothing. The now argument stamps the Identified field.
func DetectAnomalies(events []ingest.CostEvent, now time.Time) []Anomaly {
	totals := make(map[string]map[string]float64)
	var serviceOrder []string
	for _, e := range events {
		days, ok := totals[e.Service]
		if !ok {
			days = make(map[string]float64)
			totals[e.Service] = days
			serviceOrder = append(serviceOrder, e.Service)
		}
		days[e.Date] += e.Cost
	}

	identified := now.Format("2006-01-02")
	var anomalies []Anomaly
	for _, service := range serviceOrder {
		days := totals[service]
		if len(days) <= minSampleDays {
			continue
		}

		dates := make([]string, 0, len(days))
		for date := range days {
			dates = append(dates, date)
		}
		sort.Strings(dates)

		mean, stddev := meanStddev(days, dates)
		if stddev == 0 {
			continue
		}

		for _, date := range dates {
			total := days[date]
			if total <= mean+2*stddev || total <= anomalyFloor {
				continue
			}
			severity := SeverityMedium
			if total > mean+3*stddev {
				severity = SeverityHigh
			}
			anomalies = append(anomalies, Anomaly{
				ID:       uuid.New().String(),
				Date:     date,
				Service:  service,
				Severity: severity,
				Description: fmt.Sprintf("Unusual spike in %s costs: $%.2f (average: $%.2f)",
					service, total, mean),
				Impact:     round2(total - mean),
				Identified: identified,
			})
			if len(anomalies) == maxAnomalies {
				return anomalies
			}
		}
	}
	return anomalies
}

// meanStddev computes the sample mean and sample (n-1) standard deviation
// of the daily totals. Callers guarantee at least two dates.
func meanStddev(days map[string]float64, dates []string) (mean, stddev float64) {
	for _, date := range dates {
		mean += days[date]
	}
	mean /= float64(len(dates))

	var sumSq float64
	for _, date := range dates {
		d := days[date] - mean
		sumSq += d * d
	}
	stddev = math.Sqrt(sumSq / float64(len(dates)-1))
	return mean, stddev
}

// round2 applies the fixed 2-decimal rounding policy for money amounts.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
