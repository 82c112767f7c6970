package coordinates

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/greenview-analytics/greenview/pkg/types"
)

func TestParseTextAcceptsValidPairs(t *testing.T) {
	set := ParseText("116.404,39.915\n121.473 31.230\n")

	if len(set.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", set.Errors)
	}
	if set.Len() != 2 {
		t.Fatalf("expected 2 coordinates, got %d", set.Len())
	}

	want := types.Coordinate{Longitude: 116.404, Latitude: 39.915}
	if set.Coordinates[0] != want {
		t.Errorf("first coordinate = %v, want %v", set.Coordinates[0], want)
	}
}

func TestParseTextRejectsOutOfRange(t *testing.T) {
	set := ParseText("200,39.915")

	if set.Len() != 0 {
		t.Errorf("expected 0 accepted coordinates, got %d", set.Len())
	}
	if len(set.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(set.Errors))
	}
	if set.Errors[0].Line != 1 {
		t.Errorf("expected error at line 1, got %d", set.Errors[0].Line)
	}
	if !strings.Contains(set.Errors[0].Reason, "range") {
		t.Errorf("expected range reason, got %q", set.Errors[0].Reason)
	}
}

func TestParseTextCollectsErrorsWithoutAborting(t *testing.T) {
	lines := []string{
		"116.401,39.911",
		"116.402,39.912",
		"200,39.913", // longitude out of range
		"116.404,39.914",
		"116.405,39.915",
		"abc,39.916", // not a number
		"116.407,39.917",
		"116.408,39.918",
		"116.409,39.919",
		"116.410,39.920",
	}
	set := ParseText(strings.Join(lines, "\n"))

	if set.Len() != 8 {
		t.Errorf("expected 8 accepted coordinates, got %d", set.Len())
	}
	if len(set.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(set.Errors))
	}
	if set.Errors[0].Line != 3 || set.Errors[1].Line != 6 {
		t.Errorf("expected errors at lines 3 and 6, got %d and %d",
			set.Errors[0].Line, set.Errors[1].Line)
	}
}

func TestParseTextDeduplicates(t *testing.T) {
	set := ParseText("116.404,39.915\n116.404,39.915\n116.405,39.915")

	if set.Len() != 2 {
		t.Errorf("expected 2 coordinates after dedupe, got %d", set.Len())
	}
	if set.Coordinates[0].Longitude != 116.404 {
		t.Errorf("dedupe should keep the first occurrence, got %v", set.Coordinates[0])
	}
}

func TestParseTextSkipsBlankLines(t *testing.T) {
	set := ParseText("\n116.404,39.915\n\n   \n116.405,39.916\n")

	if set.Len() != 2 {
		t.Errorf("expected 2 coordinates, got %d", set.Len())
	}
	if len(set.Errors) != 0 {
		t.Errorf("blank lines should not produce errors, got %v", set.Errors)
	}
}

func TestParseTextBoundaryValues(t *testing.T) {
	set := ParseText("-180,-90\n180,90\n-180.0001,0\n0,90.0001")

	if set.Len() != 2 {
		t.Errorf("expected boundary values accepted, got %d coordinates", set.Len())
	}
	if len(set.Errors) != 2 {
		t.Errorf("expected values just past the boundary rejected, got %d errors", len(set.Errors))
	}
}

func TestParseCSV(t *testing.T) {
	data := "id,lon,lat\n1,116.404,39.915\n2,200,39.916\n3,116.406,39.917\n"

	set, err := ParseCSV(strings.NewReader(data), "lon", "lat")
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}

	if set.Len() != 2 {
		t.Errorf("expected 2 coordinates, got %d", set.Len())
	}
	if len(set.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(set.Errors))
	}
	if set.Errors[0].Line != 3 {
		t.Errorf("expected error at line 3, got %d", set.Errors[0].Line)
	}
}

func TestParseCSVHeaderIsCaseInsensitive(t *testing.T) {
	data := "LON,Lat\n116.404,39.915\n"

	set, err := ParseCSV(strings.NewReader(data), "lon", "lat")
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if set.Len() != 1 {
		t.Errorf("expected 1 coordinate, got %d", set.Len())
	}
}

func TestParseCSVMissingColumns(t *testing.T) {
	data := "x,y\n116.404,39.915\n"

	if _, err := ParseCSV(strings.NewReader(data), "lon", "lat"); err == nil {
		t.Error("expected error for missing header columns")
	}
}

func TestParseXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coords.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"lon", "lat"},
		{116.404, 39.915},
		{116.405, 39.916},
		{"bad", 39.917},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("failed to build cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("failed to write row: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("failed to save workbook: %v", err)
	}

	set, err := ParseXLSX(path, "lon", "lat")
	if err != nil {
		t.Fatalf("ParseXLSX failed: %v", err)
	}
	if set.Len() != 2 {
		t.Errorf("expected 2 coordinates, got %d", set.Len())
	}
	if len(set.Errors) != 1 {
		t.Errorf("expected 1 error, got %d", len(set.Errors))
	}
}

func TestParseXLSXMissingFile(t *testing.T) {
	if _, err := ParseXLSX(filepath.Join(t.TempDir(), "missing.xlsx"), "lon", "lat"); err == nil {
		t.Error("expected error for missing workbook")
	}
}
