// Package report accumulates committed analysis results and serializes them
// into a tabular report. Rows keep the session's input coordinate order
// regardless of completion order, and re-export of the same state is
// idempotent.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/greenview-analytics/greenview/internal/utils"
	"github.com/greenview-analytics/greenview/pkg/types"
)

const timeLayout = "2006-01-02 15:04:05"

// header is the fixed column order of the report.
var header = []string{
	"seq", "longitude", "latitude",
	"original_image_path", "analysis_image_path",
	"green_view_index", "download_time", "analysis_time",
	"status", "cause",
}

// Store collects committed per-coordinate results. Only terminal results may
// be committed; a result is never committed twice for the same index (the
// latest commit wins, which keeps re-export idempotent).
type Store struct {
	mu   sync.Mutex
	rows map[int]types.AnalysisResult
}

// NewStore creates an empty report store.
func NewStore() *Store {
	return &Store{
		rows: make(map[int]types.AnalysisResult),
	}
}

// Commit records a terminal result. Non-terminal results are rejected so a
// partially processed item can never leak into the report.
func (s *Store) Commit(result types.AnalysisResult) error {
	if !result.Status.Terminal() {
		return fmt.Errorf("cannot commit non-terminal result (index %d, status %s)",
			result.Index, result.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[result.Index] = result
	return nil
}

// Len returns the number of committed rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Results returns committed results ordered by sequence index.
func (s *Store) Results() []types.AnalysisResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.AnalysisResult, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// row renders one result into the fixed column order.
func row(r types.AnalysisResult) []string {
	downloadTime := ""
	if !r.AcquiredAt.IsZero() {
		downloadTime = r.AcquiredAt.Format(timeLayout)
	}
	analysisTime := ""
	if !r.AnalyzedAt.IsZero() {
		analysisTime = r.AnalyzedAt.Format(timeLayout)
	}

	return []string{
		strconv.Itoa(r.Index + 1),
		utils.FormatCoord(r.Coordinate.Longitude),
		utils.FormatCoord(r.Coordinate.Latitude),
		r.OriginalImagePath,
		r.AnalysisImagePath,
		strconv.FormatFloat(r.GreenViewIndex, 'f', 2, 64),
		downloadTime,
		analysisTime,
		string(r.Status),
		r.Cause,
	}
}

// ExportXLSX writes the report workbook: a "results" sheet with the fixed
// column order and a "class_distribution" sheet with per-class pixel shares.
// Re-running export with the same committed state produces the same table.
func (s *Store) ExportXLSX(path string) error {
	results := s.Results()

	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "results"
	f.SetSheetName(f.GetSheetName(0), sheet)

	for col, name := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, r := range results {
		for col, value := range row(r) {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to write row %d: %w", i+1, err)
			}
		}
	}

	if err := writeDistributionSheet(f, results); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// writeDistributionSheet adds per-class pixel shares, one row per
// (coordinate, class).
func writeDistributionSheet(f *excelize.File, results []types.AnalysisResult) error {
	const sheet = "class_distribution"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create distribution sheet: %w", err)
	}

	distHeader := []string{"seq", "class", "pixels", "percentage"}
	for col, name := range distHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("failed to write distribution header: %w", err)
		}
	}

	rowNum := 2
	for _, r := range results {
		// Deterministic class ordering within each coordinate.
		names := make([]string, 0, len(r.ClassDistribution))
		for name := range r.ClassDistribution {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			share := r.ClassDistribution[name]
			values := []interface{}{
				r.Index + 1, name, share.Pixels,
				strconv.FormatFloat(share.Percentage, 'f', 2, 64),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, rowNum)
				if err := f.SetCellValue(sheet, cell, v); err != nil {
					return fmt.Errorf("failed to write distribution row: %w", err)
				}
			}
			rowNum++
		}
	}

	return nil
}

// ExportCSV writes the results table as CSV with the same fixed column
// order as the xlsx results sheet.
func (s *Store) ExportCSV(path string) error {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range s.Results() {
		if err := w.Write(row(r)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// Summary aggregates committed results.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	MeanGVI   float64
}

// Summarize computes counts and the mean green view index over succeeded
// rows.
func (s *Store) Summarize() Summary {
	results := s.Results()

	sum := Summary{Total: len(results)}
	var gviTotal float64
	for _, r := range results {
		if r.Status == types.StatusExported {
			sum.Succeeded++
			gviTotal += r.GreenViewIndex
		} else {
			sum.Failed++
		}
	}
	if sum.Succeeded > 0 {
		sum.MeanGVI = gviTotal / float64(sum.Succeeded)
	}
	return sum
}
