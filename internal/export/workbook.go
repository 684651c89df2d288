package export

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/xuri/excelize/v2"

	"polarlab/api/internal/store"
)

const headerCell = "Measure"

// Workbook builds one sheet per table that has at least one resolvable
// member, in table order. Each sheet has a header row of "Measure" and the
// member names, then one row per column name of the table. Cells hold the
// numeric value and stay blank when the result is missing or errored.
func Workbook(st store.State) (*excelize.File, error) {
	f := excelize.NewFile()
	used := map[string]bool{}
	sheets := 0

	for _, table := range st.Tables {
		dists := st.TableDistributions(table.ID)
		if len(dists) == 0 {
			continue
		}

		name := uniqueSheetName(table.Name, used)
		if sheets == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("export: rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("export: add sheet %q: %w", name, err)
		}
		sheets++

		if err := writeTable(f, name, table, dists); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	if sheets == 0 {
		_ = f.Close()
		return nil, ErrNothingToExport
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeTable(f *excelize.File, sheet string, table store.Table, dists []store.Distribution) error {
	header := make([]any, 0, len(dists)+1)
	header = append(header, headerCell)
	for _, d := range dists {
		header = append(header, d.Name)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("export: header of %q: %w", sheet, err)
	}

	for i, measureName := range table.MeasureOrder {
		row := make([]any, 0, len(dists)+1)
		row = append(row, measureName)
		for _, d := range dists {
			row = append(row, cellValue(d, measureName))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("export: row %d of %q: %w", i, sheet, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("export: row %d of %q: %w", i, sheet, err)
		}
	}
	return nil
}

// cellValue is the value to write, or nil for a blank cell.
func cellValue(d store.Distribution, name string) any {
	r, ok := d.Result(name)
	if !ok || r.Error != "" || r.Value == nil {
		return nil
	}
	return *r.Value
}

// Write encodes the workbook for st to w.
func Write(w io.Writer, st store.State) error {
	f, err := Workbook(st)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

var sheetNameReplacer = strings.NewReplacer(
	":", "_", `\`, "_", "/", "_", "?", "_", "*", "_", "[", "(", "]", ")",
)

// uniqueSheetName makes name acceptable to Excel: forbidden characters are
// replaced, the result is cut to 31 UTF-16 units and suffixed " (n)" when an
// earlier sheet already took it (compared case-insensitively).
func uniqueSheetName(name string, used map[string]bool) string {
	base := strings.Trim(sheetNameReplacer.Replace(strings.TrimSpace(name)), "'")
	if base == "" {
		base = "Sheet"
	}
	base = truncateUTF16(base, maxSheetName)

	candidate := base
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		candidate = truncateUTF16(base, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

// truncateUTF16 cuts s to at most n UTF-16 code units, the unit Excel
// measures sheet names in, without splitting a character. A trailing
// apostrophe left by the cut is dropped.
func truncateUTF16(s string, n int) string {
	units := 0
	for i, r := range s {
		w := utf16.RuneLen(r)
		if w < 0 {
			w = 1
		}
		if units+w > n {
			return strings.TrimRight(s[:i], "'")
		}
		units += w
	}
	return s
}
