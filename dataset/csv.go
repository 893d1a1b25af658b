// Package dataset turns city datasets into the records the hierarchy is
// built from.
package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/royalcat/hgeoroute/geomodel"
)

var ErrMissingColumn = errors.New("missing required column")

// RequiredColumns must be present in a CSV header. An absent id column falls
// back to the row index.
var RequiredColumns = []string{"city", "lat", "lng", "country"}

const idColumn = "id"

// ReadCSV reads a worldcities-style CSV. The whole read fails on the first
// malformed row.
func ReadCSV(r io.Reader) ([]geomodel.Record, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty csv: %w", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := map[string]int{}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range RequiredColumns {
		if _, ok := col[k]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, k)
		}
	}
	idCol, hasID := col[idColumn]

	var records []geomodel.Record
	for row := 0; ; row++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}

		get := func(name string) string {
			i := col[name]
			if i >= len(fields) {
				return ""
			}
			return strings.TrimSpace(fields[i])
		}

		rec := geomodel.Record{
			ID:      strconv.Itoa(row),
			Name:    get("city"),
			Country: get("country"),
		}
		if hasID && idCol < len(fields) && strings.TrimSpace(fields[idCol]) != "" {
			rec.ID = strings.TrimSpace(fields[idCol])
		}
		if rec.Name == "" || rec.Country == "" {
			return nil, fmt.Errorf("row %d (%s): empty city or country", row, rec.ID)
		}
		if rec.Lat, err = strconv.ParseFloat(get("lat"), 64); err != nil {
			return nil, fmt.Errorf("row %d (%s): lat: %w", row, rec.ID, err)
		}
		if rec.Lng, err = strconv.ParseFloat(get("lng"), 64); err != nil {
			return nil, fmt.Errorf("row %d (%s): lng: %w", row, rec.ID, err)
		}
		records = append(records, rec)
	}

	return records, nil
}
