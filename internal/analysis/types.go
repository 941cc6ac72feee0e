// Package analysis derives analytical products from canonical cost events:
// statistical per-service daily anomalies and heuristic savings
// recommendations. Both run over the same event sequence and neither
// depends on the other's output.
package analysis

import "github.com/rshade/costlens/internal/ingest"

// Severity levels for detected anomalies.
const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Effort and risk levels for recommendations.
const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"
)

// Anomaly is a service-day aggregate whose cost statistically exceeds that
// service's typical daily spend. Anomalies are generated fresh per
// detection run and never stored by this package.
type Anomaly struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Service     string  `json:"service"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
	Impact      float64 `json:"impact"`
	Identified  string  `json:"identified"`
}

// Recommendation is a rule-triggered savings suggestion. IDs are small
// integers assigned in rule-evaluation order and are unique only within a
// single run.
type Recommendation struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	EstimatedSavings float64 `json:"estimatedSavings"`
	EffortLevel      string  `json:"effortLevel"`
	Risk             string  `json:"risk"`
	Category         string  `json:"category"`
	Status           string  `json:"status"`
	CreatedAt        string  `json:"createdAt"`
}

// DateRange bounds the dates observed in a batch.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Summary describes one processed batch.
type Summary struct {
	TotalCost float64   `json:"total_cost"`
	DateRange DateRange `json:"date_range"`
	Services  int       `json:"services"`
	Regions   int       `json:"regions"`
}

// Result bundles everything a batch produces.
type Result struct {
	Events          []ingest.CostEvent `json:"events"`
	Anomalies       []Anomaly          `json:"anomalies"`
	Recommendations []Recommendation   `json:"recommendations"`
	Summary         Summary            `json:"summary"`
}
