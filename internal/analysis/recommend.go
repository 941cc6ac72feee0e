package analysis

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rshade/costlens/internal/ingest"
)

// Rule thresholds and savings rates. Thresholds are hard cutoffs: a total
// exactly at the threshold emits nothing.
const (
	ec2Threshold = 1000.0
	ec2Rate      = 0.40

	s3Threshold = 500.0
	s3Rate      = 0.25

	rdsThreshold = 800.0
	rdsRate      = 0.30

	genericThreshold = 200.0
	genericRate      = 0.15

	// topServices bounds how many of the highest-spend services the
	// generic rule considers.
	topServices = 3

	// maxRecommendations caps the list per run, in rule-evaluation order.
	maxRecommendations = 8
)

// BuildRecommendations aggregates total cost per service and evaluates the
// fixed rule set in order: EC2 reserved capacity, S3 tiering, RDS
// right-sizing, then a generic rule over the top three spenders among the
// remaining services. Rule order decides ID assignment and truncation
// precedence; the list is never sorted by savings. The now argument stamps
// CreatedAt.
func BuildRecommendations(events []ingest.CostEvent, now time.Time) []Recommendation {
	totals := make(map[string]float64)
	for _, e := range events {
		totals[e.Service] += e.Cost
	}

	created := now.Format("2006-01-02")
	var recs []Recommendation
	add := func(title, description string, savings float64, effort, risk, category string) {
		recs = append(recs, Recommendation{
			ID:               strconv.Itoa(len(recs) + 1),
			Title:            title,
			Description:      description,
			EstimatedSavings: round2(savings),
			EffortLevel:      effort,
			Risk:             risk,
			Category:         category,
			Status:           "pending",
			CreatedAt:        created,
		})
	}

	if t := totals["EC2"]; t > ec2Threshold {
		add("Purchase EC2 Reserved Instances",
			fmt.Sprintf("Your EC2 costs ($%.2f) could benefit from Reserved Instance pricing. "+
				"Save up to 60%% on predictable workloads.", t),
			t*ec2Rate, LevelLow, LevelLow, "Computing")
	}
	if t := totals["S3"]; t > s3Threshold {
		add("Enable S3 Intelligent Tiering",
			fmt.Sprintf("S3 costs ($%.2f) can be optimized with Intelligent Tiering to "+
				"automatically move data to cost-effective storage classes.", t),
			t*s3Rate, LevelLow, LevelLow, "Storage")
	}
	if t := totals["RDS"]; t > rdsThreshold {
		add("Right-size RDS Instances",
			fmt.Sprintf("RDS costs ($%.2f) suggest potential over-provisioning. "+
				"Review instance sizes and utilization metrics.", t),
			t*rdsRate, LevelMedium, LevelMedium, "Database")
	}

	// The generic rule ranks only services the special rules do not own, so
	// a service outranked by EC2, S3, and RDS can still make the cut.
	generic := make(map[string]float64, len(totals))
	for service, total := range totals {
		switch service {
		case "EC2", "S3", "RDS":
			continue
		}
		generic[service] = total
	}
	for _, st := range topServiceTotals(generic, topServices) {
		if st.total > genericThreshold {
			add(fmt.Sprintf("Optimize %s Usage", st.service),
				fmt.Sprintf("%s is one of your top cost drivers ($%.2f). "+
					"Review usage patterns and consider optimization strategies.", st.service, st.total),
				st.total*genericRate, LevelMedium, LevelLow, "General")
		}
	}

	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}

type serviceTotal struct {
	service string
	total   float64
}

// topServiceTotals returns the n highest-spend services in descending cost
// order. Ties break on service name so runs over identical input are
// reproducible.
func topServiceTotals(totals map[string]float64, n int) []serviceTotal {
	ranked := make([]serviceTotal, 0, len(totals))
	for service, total := range totals {
		ranked = append(ranked, serviceTotal{service: service, total: total})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].total != ranked[j].total {
			return ranked[i].total > ranked[j].total
		}
		return ranked[i].service < ranked[j].service
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
