package roster

import (
	"fmt"
	"math"
	"strconv"

	"github.com/poiesic/finextract/export"
)

// MasterColumns is the column order of a saved roster.
var MasterColumns = []string{
	"rank", "symbol", "company", "sector", "weight", "price",
	"market_cap", "revenue", "op_income", "net_income", "eps", "fcf",
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Rows renders the roster in MasterColumns order. Missing numbers are empty.
func (r *Roster) Rows() [][]string {
	rows := make([][]string, 0, len(r.entries))
	for _, e := range r.entries {
		rank := ""
		if e.Rank > 0 {
			rank = strconv.Itoa(e.Rank)
		}
		rows = append(rows, []string{
			rank, e.Symbol, e.Company, e.Sector,
			formatFloat(e.Weight), formatFloat(e.Price),
			formatFloat(e.MarketCap), formatFloat(e.Revenue), formatFloat(e.OpIncome),
			formatFloat(e.NetIncome), formatFloat(e.EPS), formatFloat(e.FCF),
		})
	}
	return rows
}

// Save writes the roster to path as CSV, or XLSX when path ends in .xlsx.
func (r *Roster) Save(path string) error {
	return export.WriteFile(path, "roster", MasterColumns, r.Rows())
}

// Load reads a roster written by Save.
func Load(path string) (*Roster, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	cols := t.mapColumns(func(lc string) string {
		for _, c := range MasterColumns {
			if lc == c {
				return c
			}
		}
		return ""
	})
	if _, ok := cols["symbol"]; !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSymbolColumn)
	}

	entries := make([]Entry, 0, len(t.rows))
	for _, row := range t.rows {
		symbol := normalizeSymbol(value(row, cols, "symbol"))
		if symbol == "" {
			continue
		}
		entries = append(entries, Entry{
			Member: Member{
				Rank:    parseRank(value(row, cols, "rank")),
				Symbol:  symbol,
				Company: value(row, cols, "company"),
				Sector:  value(row, cols, "sector"),
				Weight:  parseNumber(value(row, cols, "weight")),
				Price:   parseNumber(value(row, cols, "price")),
			},
			MarketCap: parseNumber(value(row, cols, "market_cap")),
			Revenue:   parseNumber(value(row, cols, "revenue")),
			OpIncome:  parseNumber(value(row, cols, "op_income")),
			NetIncome: parseNumber(value(row, cols, "net_income")),
			EPS:       parseNumber(value(row, cols, "eps")),
			FCF:       parseNumber(value(row, cols, "fcf")),
		})
	}
	return newRoster(entries), nil
}
