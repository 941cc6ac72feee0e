package analysis

import (
	"sync"
	"time"

	"github.com/rshade/costlens/internal/ingest"
)

// Summarize computes the batch summary: total cost, observed date range,
// and distinct service and region counts. An empty batch yields the zero
// Summary.
func Summarize(events []ingest.CostEvent) Summary {
	if len(events) == 0 {
		return Summary{}
	}

	services := make(map[string]struct{})
	regions := make(map[string]struct{})
	var total float64
	dr := DateRange{Start: events[0].Date, End: events[0].Date}
	for _, e := range events {
		total += e.Cost
		services[e.Service] = struct{}{}
		regions[e.Region] = struct{}{}
		if e.Date < dr.Start {
			dr.Start = e.Date
		}
		if e.Date > dr.End {
			dr.End = e.Date
		}
	}

	return Summary{
		TotalCost: round2(total),
		DateRange: dr,
		Services:  len(services),
		Regions:   len(regions),
	}
}

// Analyze runs anomaly detection and recommendation generation over a
// fully-built event sequence. The two derivations are independent, so they
// run concurrently; the events slice is never mutated, making Analyze safe
// to call from multiple goroutines.
func Analyze(events []ingest.CostEvent, now time.Time) Result {
	var (
		wg        sync.WaitGroup
		anomalies []Anomaly
		recs      []Recommendation
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		anomalies = DetectAnomalies(events, now)
	}()
	go func() {
		defer wg.Done()
		recs = BuildRecommendations(events, now)
	}()
	summary := Summarize(events)
	wg.Wait()

	return Result{
		Events:          events,
		Anomalies:       anomalies,
		Recommendations: recs,
		Summary:         summary,
	}
}
