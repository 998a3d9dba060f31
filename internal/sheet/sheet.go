// Package sheet reads and writes the .xlsx files exchanged with clients.
package sheet

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
)

// Table is the first sheet of a workbook: a header row and the data rows
// below it, every cell as text.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadFile loads the first sheet of the workbook at path. A missing or
// unreadable path is reported as apperrors.ErrFileNotFound.
func ReadFile(path string) (Table, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if err == nil || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return Table{}, apperrors.New(apperrors.ErrFileNotFound, "file not found: "+path)
		}
		return Table{}, fmt.Errorf("stat %s: %w", path, err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, nil
	}
	// Raw values keep date cells as serial day numbers instead of the
	// display text, which may drop the century.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return Table{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	var t Table
	for _, row := range rows {
		if blank(row) {
			continue
		}
		if t.Header == nil {
			t.Header = row
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Columns maps each lower-cased, trimmed header name to its column index.
func (t Table) Columns() map[string]int {
	out := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := out[key]; key != "" && !dup {
			out[key] = i
		}
	}
	return out
}

// Cell returns the trimmed value at column col of row, or "" when the row is
// shorter than that.
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// WriteFile writes a single-sheet workbook. Existing files are replaced.
func WriteFile(path, sheet string, header []string, rows [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"1/2/2006 15:04",
	time.RFC3339,
}

// shortYearLayouts carry a two-digit year.
var shortYearLayouts = []string{
	"1/2/06",
	"01-02-06",
	"1/2/06 15:04",
}

// ParseDate accepts the date spellings spreadsheet tools commonly produce,
// including raw serial day numbers. A two-digit year that would land after
// now is read as the previous century.
func ParseDate(s string) (time.Time, error) {
	return parseDate(s, time.Now())
}

func parseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range shortYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.After(now) {
				t = t.AddDate(-100, 0, 0)
			}
			return t, nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		return excelize.ExcelDateToTime(serial, false)
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
