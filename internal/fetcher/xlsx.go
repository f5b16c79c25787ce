package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects a sheet and how its rows come back.
type XLSXOptions struct {
	SheetIndex int
	// SheetName wins over SheetIndex when set.
	SheetName string
	// SkipRows drops that many leading rows, usually headers.
	SkipRows int
	// TrimSpace trims every cell. Hand-edited sheets carry stray spaces.
	TrimSpace bool
}

// ReadXLSX returns the rows of one sheet as strings. Row i of the result is
// sheet row SkipRows+i, so callers can report sheet positions; missing rows
// come back empty.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if opts.SkipRows >= len(sheet.Rows) {
		return nil, nil
	}

	rows := make([][]string, 0, len(sheet.Rows)-opts.SkipRows)
	for _, row := range sheet.Rows[opts.SkipRows:] {
		rows = append(rows, rowToStrings(row, opts.TrimSpace))
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row, trim bool) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		v := cell.String()
		if trim {
			v = strings.TrimSpace(v)
		}
		cells[j] = v
	}
	return cells
}
