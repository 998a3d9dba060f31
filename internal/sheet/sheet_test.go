package sheet

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
)

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "students.xlsx")
	header := []string{"FirstName", "LastName", "Age"}
	rows := [][]any{
		{"Ada", "Lovelace", 36},
		{"Alan", "Turing", 41},
	}
	if err := WriteFile(path, "Students", header, rows); err != nil {
		t.Fatal(err)
	}

	tbl, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Header) != 3 || tbl.Header[0] != "FirstName" {
		t.Fatalf("header = %v", tbl.Header)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("rows = %v", tbl.Rows)
	}
	cols := tbl.Columns()
	if got := Cell(tbl.Rows[1], cols["lastname"]); got != "Turing" {
		t.Errorf("lastname = %q", got)
	}
	if got := Cell(tbl.Rows[0], cols["age"]); got != "36" {
		t.Errorf("age = %q", got)
	}
	if got := Cell(tbl.Rows[0], 10); got != "" {
		t.Errorf("out of range cell = %q", got)
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "gone.xlsx"))
	if !errors.Is(err, apperrors.ErrFileNotFound) {
		t.Fatalf("err = %v", err)
	}
	_, err = ReadFile(t.TempDir())
	if !errors.Is(err, apperrors.ErrFileNotFound) {
		t.Fatalf("directory err = %v", err)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2000, 6, 15, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2000-06-15", "06/15/2000", "6/15/2000", "6/15/00", "06-15-00", "2000-06-15T00:00:00Z", "36692"} {
		got, err := ParseDate(in)
		if err != nil {
			t.Errorf("ParseDate(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %s", in, got)
		}
	}
	for _, in := range []string{"", "yesterday", "2000-13-01"} {
		if _, err := ParseDate(in); err == nil {
			t.Errorf("ParseDate(%q) succeeded", in)
		}
	}
}

func TestReadDateFormattedCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dates.xlsx")
	f := excelize.NewFile()
	if err := f.SetSheetRow("Sheet1", "A1", &[]any{"Name", "DateOfBirth"}); err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		numFmt int
		born   time.Time
	}{
		{14, time.Date(1960, 3, 4, 0, 0, 0, 0, time.UTC)},
		{22, time.Date(1960, 3, 4, 0, 0, 0, 0, time.UTC)},
		{14, time.Date(1995, 3, 4, 0, 0, 0, 0, time.UTC)},
	}
	for i, tc := range cases {
		style, err := f.NewStyle(&excelize.Style{NumFmt: tc.numFmt})
		if err != nil {
			t.Fatal(err)
		}
		name, _ := excelize.CoordinatesToCellName(1, i+2)
		cell, _ := excelize.CoordinatesToCellName(2, i+2)
		if err := f.SetCellValue("Sheet1", name, "student"); err != nil {
			t.Fatal(err)
		}
		if err := f.SetCellValue("Sheet1", cell, tc.born); err != nil {
			t.Fatal(err)
		}
		if err := f.SetCellStyle("Sheet1", cell, cell, style); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	tbl, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Rows) != len(cases) {
		t.Fatalf("rows = %v", tbl.Rows)
	}
	col := tbl.Columns()["dateofbirth"]
	for i, tc := range cases {
		raw := Cell(tbl.Rows[i], col)
		got, err := ParseDate(raw)
		if err != nil {
			t.Fatalf("numFmt %d: ParseDate(%q): %v", tc.numFmt, raw, err)
		}
		if got.Format("2006-01-02") != tc.born.Format("2006-01-02") {
			t.Errorf("numFmt %d: %q parsed as %s, want %s", tc.numFmt, raw, got.Format("2006-01-02"), tc.born.Format("2006-01-02"))
		}
	}
}

func TestParseDateTwoDigitYear(t *testing.T) {
	now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	cases := map[string]time.Time{
		"3/4/60":       time.Date(1960, 3, 4, 0, 0, 0, 0, time.UTC),
		"03-04-60":     time.Date(1960, 3, 4, 0, 0, 0, 0, time.UTC),
		"3/4/60 00:00": time.Date(1960, 3, 4, 0, 0, 0, 0, time.UTC),
		"3/4/25":       time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := parseDate(in, now)
		if err != nil {
			t.Errorf("parseDate(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("parseDate(%q) = %s, want %s", in, got, want)
		}
	}
}
