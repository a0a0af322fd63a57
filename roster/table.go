package roster

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// table is a header row plus data rows, every row padded to the header width.
type table struct {
	header []string
	rows   [][]string
}

// readTable loads a CSV or XLSX file depending on its extension.
func readTable(path string) (*table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readWorkbook(path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		t, err := readCSV(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return t, nil
	}
}

// readWorkbook reads the first worksheet of an XLSX file.
func readWorkbook(path string) (*table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("read %s: %w", path, ErrNoSheets)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read %s sheet %q: %w", path, sheets[0], err)
	}
	t, err := newTable(rows)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readCSV parses delimited text, sniffing the delimiter from the header line.
func readCSV(r io.Reader) (*table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	return newTable(rows)
}

// sniffDelimiter picks the most frequent of , ; and tab outside quotes on
// the first line. Ties and lines with none of them fall back to a comma.
func sniffDelimiter(data []byte) rune {
	line, _ := bufio.NewReader(bytes.NewReader(data)).ReadString('\n')
	counts := map[rune]int{}
	quoted := false
	for _, r := range line {
		switch r {
		case '"':
			quoted = !quoted
		case ',', ';', '\t':
			if !quoted {
				counts[r]++
			}
		}
	}
	best := ','
	for _, r := range []rune{';', '\t'} {
		if counts[r] > counts[best] {
			best = r
		}
	}
	return best
}

func newTable(rows [][]string) (*table, error) {
	// Drop leading blank rows; spreadsheets often have a title gap.
	for len(rows) > 0 && blank(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, ErrEmptyTable
	}

	t := &table{header: make([]string, len(rows[0]))}
	for i, h := range rows[0] {
		t.header[i] = strings.TrimSpace(h)
	}
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		padded := make([]string, len(t.header))
		for i := 0; i < len(padded) && i < len(row); i++ {
			padded[i] = strings.TrimSpace(row[i])
		}
		t.rows = append(t.rows, padded)
	}
	if len(t.rows) == 0 {
		return nil, ErrEmptyTable
	}
	return t, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// columnMatcher maps a lower-cased header to a canonical column name, or "".
type columnMatcher func(lower string) string

// mapColumns returns canonical name -> column position. The first header
// matching a canonical name wins.
func (t *table) mapColumns(match columnMatcher) map[string]int {
	cols := make(map[string]int)
	for i, h := range t.header {
		lower := strings.ToLower(strings.ReplaceAll(h, "#", "num"))
		name := match(strings.TrimSpace(lower))
		if name == "" {
			continue
		}
		if _, taken := cols[name]; !taken {
			cols[name] = i
		}
	}
	return cols
}

// value returns the cell of row for a canonical column, or "".
func value(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
