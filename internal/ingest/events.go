package ingest

import (
	"errors"
	"fmt"
)

// ErrMalformedBatch marks a batch that cannot be processed at all, as
// opposed to individual rows that merely fail normalization and are
// dropped. Callers should check with errors.Is.
var ErrMalformedBatch = errors.New("malformed batch")

// CostEvent is the canonical form of one billing row. Events are immutable
// once built and live only for the batch being processed; persistence is
// the caller's concern.
//
// Date is either a YYYY-MM-DD string or, when the source value matched no
// known layout, the original unparsed string. Cost is always strictly
// positive and rounded to 2 decimals.
type CostEvent struct {
	Date       string            `json:"date"`
	Service    string            `json:"service"`
	Region     string            `json:"region"`
	Cost       float64           `json:"cost"`
	ResourceID string            `json:"resourceId,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// BuildCostEvents normalizes a batch of raw records into cost events.
//
// A record survives only if its resolved date is non-empty and its parsed
// cost is strictly positive; everything else is dropped silently. Output
// order matches input order for surviving rows, which downstream
// aggregation depends on. The only error condition is a structurally
// unprocessable record (no columns at all), reported as ErrMalformedBatch
// with no partial results.
func BuildCostEvents(records []RawRecord) ([]CostEvent, error) {
	events := make([]CostEvent, 0, len(records))
	for i, r := range records {
		if r.Values == nil {
			return nil, fmt.Errorf("%w: record %d has no columns", ErrMalformedBatch, i)
		}

		date := r.lookup(dateAliases)
		cost := ParseCostOrZero(r.lookup(costAliases))
		if date == "" || cost <= 0 {
			continue
		}

		service := r.lookup(serviceAliases)
		if service == "" {
			service = defaultService
		}
		region := r.lookup(regionAliases)
		if region == "" {
			region = defaultRegion
		}

		events = append(events, CostEvent{
			Date:       NormalizeDate(date),
			Service:    NormalizeService(service),
			Region:     region,
			Cost:       round2(cost),
			ResourceID: r.lookup(resourceAliases),
			Tags:       ExtractTags(r),
		})
	}
	return events, nil
}
