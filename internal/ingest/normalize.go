// Package ingest normalizes raw billing-export rows into canonical cost events.
//
// Billing exports are not uniform: the full Cost & Usage Report uses
// slash-qualified headers (lineItem/UnblendedCost), console exports use
// short names (Cost), and hand-edited files use lowercase. The normalizer
// resolves each canonical field through an ordered alias chain so all three
// shapes produce the same events.
package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// RawRecord is one billing-export row. Values maps column name to cell
// content, with "" standing in for a null cell. Columns preserves the
// export's header order so the raw table can be persisted with its exact
// shape. Records are read-only to this package.
type RawRecord struct {
	Columns []string
	Values  map[string]string
}

// Alias chains per canonical field. Order matters: the first present,
// non-empty column wins.
var (
	dateAliases     = []string{"lineItem/UsageStartDate", "UsageStartDate", "Date", "date"}
	serviceAliases  = []string{"lineItem/ProductCode", "ProductCode", "Service", "service"}
	regionAliases   = []string{"product/region", "Region", "region"}
	costAliases     = []string{"lineItem/UnblendedCost", "UnblendedCost", "Cost", "cost"}
	resourceAliases = []string{"lineItem/ResourceId", "ResourceId"}
)

// Defaults returned when no alias matches.
const (
	defaultService = "Unknown"
	defaultRegion  = "global"
)

// serviceNames maps provider service codes to the short labels used
// throughout the dashboard. Codes not in the table pass through unchanged.
var serviceNames = map[string]string{
	"AmazonEC2":         "EC2",
	"AmazonS3":          "S3",
	"AmazonRDS":         "RDS",
	"AWSLambda":         "Lambda",
	"AmazonCloudFront":  "CloudFront",
	"AmazonDynamoDB":    "DynamoDB",
	"AmazonECS":         "ECS",
	"AmazonEKS":         "EKS",
	"AmazonElastiCache": "ElastiCache",
	"AmazonVPC":         "VPC",
	"AmazonRoute53":     "Route53",
}

// tagPrefixes mark tag columns. Both forms appear in the wild: the CUR
// style (resourceTags/user:Team) and the console style (tag:Team).
var tagPrefixes = []string{"resourceTags/", "tag:"}

// dateLayouts are tried in order by NormalizeDate. Covers CUR timestamps,
// plain dates, and the US and slash forms seen in spreadsheet exports.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// lookup returns the first present, non-empty value among aliases.
func (r RawRecord) lookup(aliases []string) string {
	for _, name := range aliases {
		if v, ok := r.Values[name]; ok && v != "" {
			return v
		}
	}
	return ""
}

// NormalizeDate reformats a date value to YYYY-MM-DD. Values that match no
// known layout pass through unchanged; callers never see an error here.
func NormalizeDate(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return value
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return value
}

// NormalizeService maps a provider service code to its short label.
// Unknown codes map to themselves, so the function is total.
func NormalizeService(code string) string {
	if name, ok := serviceNames[code]; ok {
		return name
	}
	return code
}

// ParseCostOrZero parses a decimal cost value, coercing anything
// unparseable to zero. The builder relies on this never returning an error:
// bad cost cells become zero and the row is filtered out downstream.
func ParseCostOrZero(value string) float64 {
	cost, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(cost) || math.IsInf(cost, 0) {
		return 0
	}
	return cost
}

// ExtractTags collects tag columns from a record, stripping the recognized
// prefixes. Returns nil when the record carries no tags; callers must treat
// nil as "no tags" rather than checking for an empty map.
func ExtractTags(r RawRecord) map[string]string {
	var tags map[string]string
	for _, col := range r.Columns {
		for _, prefix := range tagPrefixes {
			if strings.HasPrefix(col, prefix) {
				if v := r.Values[col]; v != "" {
					if tags == nil {
						tags = make(map[string]string)
					}
					tags[strings.TrimPrefix(col, prefix)] = v
				}
				break
			}
		}
	}
	return tags
}

// round2 applies the fixed 2-decimal rounding policy for money amounts.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
