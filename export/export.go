package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/storage"
)

// ErrUnknownFormat is returned for an unsupported export format.
var ErrUnknownFormat = errors.New("unknown export format")

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat converts a flag value into a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// FormatForPath picks the format from a file extension, defaulting to CSV.
func FormatForPath(path string) Format {
	if f, err := ParseFormat(filepath.Ext(path)); err == nil {
		return f
	}
	return FormatCSV
}

// Write renders header and rows to w in the given format. sheet names the
// worksheet for XLSX and is ignored for CSV.
func Write(w io.Writer, format Format, sheet string, header []string, rows [][]string) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, header, rows)
	case FormatXLSX:
		return WriteXLSX(w, sheet, header, rows)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteFile writes header and rows to path in the format its extension names.
func WriteFile(path, sheet string, header []string, rows [][]string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, FormatForPath(path), sheet, header, rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// WriteCSV writes a header line followed by rows.
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// maxColumnWidth caps the width of wide text columns.
const maxColumnWidth = 60

// WriteXLSX writes a single-sheet workbook with a bold, frozen header row.
// Cells that hold plain numbers are stored as numbers.
func WriteXLSX(w io.Writer, sheet string, header []string, rows [][]string) error {
	if sheet == "" {
		sheet = "Sheet1"
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	for i, width := range columnWidths(header, rows) {
		if err := sw.SetColWidth(i+1, i+1, width); err != nil {
			return err
		}
	}
	if err := sw.SetPanes(&excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	headerCells := make([]any, len(header))
	for i, h := range header {
		headerCells[i] = excelize.Cell{StyleID: bold, Value: h}
	}
	if err := sw.SetRow("A1", headerCells); err != nil {
		return err
	}

	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = cellValue(v)
		}
		if err := sw.SetRow(cell, values); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.Write(w)
}

func columnWidths(header []string, rows [][]string) []float64 {
	widths := make([]float64, len(header))
	measure := func(i int, s string) {
		if i < len(widths) {
			widths[i] = min(max(widths[i], float64(len([]rune(s)))+2), maxColumnWidth)
		}
	}
	for i, h := range header {
		measure(i, h)
	}
	for _, row := range rows {
		for i, v := range row {
			measure(i, v)
		}
	}
	return widths
}

// cellValue stores plain decimal numbers as float64 so spreadsheets can sum
// them. Anything else, including values with leading zeros, stays text.
func cellValue(s string) any {
	if s == "" {
		return s
	}
	for _, c := range s {
		if (c < '0' || c > '9') && c != '.' && c != '-' {
			return s
		}
	}
	trimmed := strings.TrimPrefix(s, "-")
	if len(trimmed) > 1 && trimmed[0] == '0' && trimmed[1] != '.' {
		return s
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return v
}

// Table writes every record of an output table in column order.
func Table(ctx context.Context, w io.Writer, format Format, table storage.OutputTable) (int, error) {
	header, err := core.Columns(table.DocType())
	if err != nil {
		return 0, err
	}
	records, err := table.Records(ctx)
	if err != nil {
		return 0, err
	}
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.Values()
	}
	return len(rows), Write(w, format, table.DocType().Plural(), header, rows)
}

// TableFile writes an output table to path in the format its extension names.
func TableFile(ctx context.Context, path string, table storage.OutputTable) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := Table(ctx, f, FormatForPath(path), table)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("export %s: %w", path, err)
	}
	return n, f.Close()
}
