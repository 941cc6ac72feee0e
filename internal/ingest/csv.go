package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ReadRecords decodes a CSV billing export into raw records. The first row
// is the header; every later row becomes one RawRecord keyed by header
// name. Rows shorter than the header leave the trailing cells null, rows
// longer than the header drop the excess.
//
// An empty file, a missing header, a duplicate header name, or a CSV
// syntax error is a malformed batch: the whole upload is rejected with
// ErrMalformedBatch and no records are returned.
func ReadRecords(r io.Reader) ([]string, []RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // exports pad ragged rows

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%w: empty file", ErrMalformedBatch)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}

	// Excel prepends a BOM to UTF-8 CSVs.
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	seen := make(map[string]struct{}, len(header))
	for _, name := range header {
		if _, dup := seen[name]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate column %q", ErrMalformedBatch, name)
		}
		seen[name] = struct{}{}
	}

	var records []RawRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
		}

		values := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				values[name] = row[i]
			} else {
				values[name] = ""
			}
		}
		records = append(records, RawRecord{Columns: header, Values: values})
	}
	return header, records, nil
}
