// Package coordinates normalizes heterogeneous coordinate input (raw text,
// tabular files) into a validated, de-duplicated sequence of WGS84
// longitude/latitude pairs. Parsing collects per-row errors instead of
// aborting on the first; valid rows always proceed.
package coordinates

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/greenview-analytics/greenview/pkg/types"
)

// InvalidCoordinateError describes one rejected input row.
type InvalidCoordinateError struct {
	Line   int    // 1-based position in the input
	Input  string // the offending raw text
	Reason string
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinate at line %d (%q): %s", e.Line, e.Input, e.Reason)
}

// Set is an ordered collection of validated coordinates plus the errors
// collected while building it.
type Set struct {
	Coordinates []types.Coordinate
	Errors      []*InvalidCoordinateError
}

// Len returns the number of accepted coordinates.
func (s *Set) Len() int {
	return len(s.Coordinates)
}

// ParseText parses raw coordinate text. Each non-empty line holds one
// longitude/latitude pair separated by a comma or whitespace; a single pair
// on one line is the degenerate case. Duplicate pairs (exact value match)
// keep their first occurrence.
func ParseText(text string) *Set {
	set := &Set{}
	seen := map[types.Coordinate]struct{}{}

	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		coord, err := parseLine(line)
		if err != nil {
			set.Errors = append(set.Errors, &InvalidCoordinateError{
				Line:   i + 1,
				Input:  line,
				Reason: err.Error(),
			})
			continue
		}

		if _, dup := seen[coord]; dup {
			continue
		}
		seen[coord] = struct{}{}
		set.Coordinates = append(set.Coordinates, coord)
	}

	return set
}

// parseLine parses one "lng,lat" or "lng lat" pair and range-checks it.
func parseLine(line string) (types.Coordinate, error) {
	var parts []string
	if strings.Contains(line, ",") {
		parts = strings.Split(line, ",")
	} else {
		parts = strings.Fields(line)
	}
	if len(parts) < 2 {
		return types.Coordinate{}, fmt.Errorf("expected longitude and latitude")
	}

	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return types.Coordinate{}, fmt.Errorf("longitude is not a number")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return types.Coordinate{}, fmt.Errorf("latitude is not a number")
	}

	coord := types.Coordinate{Longitude: lng, Latitude: lat}
	if !coord.Valid() {
		return types.Coordinate{}, fmt.Errorf("out of WGS84 range: lng=%g lat=%g", lng, lat)
	}
	return coord, nil
}

// ParseCSV reads coordinates from CSV data. The first row is treated as a
// header; lngCol and latCol name the longitude and latitude columns.
func ParseCSV(r io.Reader, lngCol, latCol string) (*Set, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return fromRows(records, lngCol, latCol)
}

// ParseXLSX reads coordinates from the first sheet of an xlsx workbook. The
// first row is treated as a header; lngCol and latCol name the longitude and
// latitude columns.
func ParseXLSX(path, lngCol, latCol string) (*Set, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return fromRows(rows, lngCol, latCol)
}

// fromRows normalizes header-addressed tabular rows into a Set.
func fromRows(rows [][]string, lngCol, latCol string) (*Set, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("table is empty")
	}

	lngIdx, latIdx := -1, -1
	for i, name := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case strings.ToLower(lngCol):
			lngIdx = i
		case strings.ToLower(latCol):
			latIdx = i
		}
	}
	if lngIdx < 0 || latIdx < 0 {
		return nil, fmt.Errorf("columns %q and %q not found in header", lngCol, latCol)
	}

	set := &Set{}
	seen := map[types.Coordinate]struct{}{}

	for i, row := range rows[1:] {
		if len(row) <= lngIdx || len(row) <= latIdx {
			set.Errors = append(set.Errors, &InvalidCoordinateError{
				Line:   i + 2,
				Input:  strings.Join(row, ","),
				Reason: "row is missing coordinate columns",
			})
			continue
		}

		coord, err := parseLine(row[lngIdx] + "," + row[latIdx])
		if err != nil {
			set.Errors = append(set.Errors, &InvalidCoordinateError{
				Line:   i + 2,
				Input:  row[lngIdx] + "," + row[latIdx],
				Reason: err.Error(),
			})
			continue
		}

		if _, dup := seen[coord]; dup {
			continue
		}
		seen[coord] = struct{}{}
		set.Coordinates = append(set.Coordinates, coord)
	}

	return set, nil
}
