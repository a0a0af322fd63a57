package roster

import "errors"

var (
	// ErrNoSymbolColumn is returned when a table has no symbol or ticker column.
	ErrNoSymbolColumn = errors.New("no symbol column")

	// ErrEmptyTable is returned when a table has a header but no rows, or nothing at all.
	ErrEmptyTable = errors.New("table is empty")

	// ErrNoSheets is returned for a workbook without worksheets.
	ErrNoSheets = errors.New("workbook has no sheets")
)
