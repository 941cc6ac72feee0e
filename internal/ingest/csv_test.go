package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRecords(t *testing.T) {
	csv := strings.Join([]string{
		"lineItem/UsageStartDate,lineItem/ProductCode,lineItem/UnblendedCost",
		"2024-03-01T00:00:00Z,AmazonEC2,12.50",
		"2024-03-02T00:00:00Z,AmazonS3,3.25",
	}, "\n")

	header, records, err := ReadRecords(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, []string{"lineItem/UsageStartDate", "lineItem/ProductCode", "lineItem/UnblendedCost"}, header)
	require.Len(t, records, 2)
	assert.Equal(t, "AmazonEC2", records[0].Values["lineItem/ProductCode"])
	assert.Equal(t, "3.25", records[1].Values["lineItem/UnblendedCost"])
	assert.Equal(t, header, records[0].Columns)
}

func TestReadRecords_RaggedRows(t *testing.T) {
	csv := "Date,Service,Cost\n2024-03-01,AmazonEC2\n2024-03-02,AmazonS3,1.00,extra"

	_, records, err := ReadRecords(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Short row: missing trailing cell is null.
	assert.Equal(t, "", records[0].Values["Cost"])
	// Long row: excess cells beyond the header drop.
	assert.Equal(t, "1.00", records[1].Values["Cost"])
}

func TestReadRecords_BOMStripped(t *testing.T) {
	csv := "\ufeffDate,Cost\n2024-03-01,1.00"

	header, records, err := ReadRecords(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, "Date", header[0])
	assert.Equal(t, "2024-03-01", records[0].Values["Date"])
}

func TestReadRecords_MalformedBatches(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty file", input: ""},
		{name: "duplicate column", input: "Date,Cost,Date\n2024-03-01,1.00,2024-03-02"},
		{name: "bare quote", input: "Date,Cost\n\"2024-03-01,1.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadRecords(strings.NewReader(tt.input))
			require.ErrorIs(t, err, ErrMalformedBatch)
		})
	}
}

func TestReadRecords_HeaderOnly(t *testing.T) {
	header, records, err := ReadRecords(strings.NewReader("Date,Cost"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "Cost"}, header)
	assert.Empty(t, records)
}
