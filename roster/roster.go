package roster

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/finextract/extract"
)

// Member is one row of the index composition table.
type Member struct {
	Rank    int // 0 when absent
	Symbol  string
	Company string
	Sector  string
	Weight  float64 // NaN when absent
	Price   float64 // NaN when absent
}

// Performance is one row of the stock performance table. Missing or
// unparseable numbers are NaN.
type Performance struct {
	Symbol    string
	Company   string
	Sector    string
	MarketCap float64
	Revenue   float64
	OpIncome  float64
	NetIncome float64
	EPS       float64
	FCF       float64
}

// Entry is a member joined with its performance.
type Entry struct {
	Member
	MarketCap float64
	Revenue   float64
	OpIncome  float64
	NetIncome float64
	EPS       float64
	FCF       float64
}

func matchComposition(lc string) string {
	switch {
	case strings.Contains(lc, "symbol"), strings.Contains(lc, "ticker"):
		return "symbol"
	case strings.Contains(lc, "company"):
		return "company"
	case strings.Contains(lc, "weight"):
		return "weight"
	case strings.Contains(lc, "price"):
		return "price"
	case strings.Contains(lc, "sector"), strings.Contains(lc, "industry"):
		return "sector"
	case lc == "num", lc == "no", lc == "number", lc == "rank":
		return "rank"
	}
	return ""
}

func matchPerformance(lc string) string {
	switch {
	case lc == "symbol", lc == "ticker":
		return "symbol"
	case strings.Contains(lc, "company"):
		return "company"
	case strings.Contains(lc, "sector"), strings.Contains(lc, "industry"):
		return "sector"
	case strings.Contains(lc, "market cap"), strings.Contains(lc, "market_cap"):
		return "market_cap"
	case strings.Contains(lc, "revenue"):
		return "revenue"
	case strings.Contains(lc, "net income"), strings.Contains(lc, "net_income"):
		return "net_income"
	case strings.Contains(lc, "eps"):
		return "eps"
	case strings.Contains(lc, "fcf"), strings.Contains(lc, "free"):
		return "fcf"
	case strings.Contains(lc, "op") && strings.Contains(lc, "income"):
		return "op_income"
	}
	return ""
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// parseDecimalComma parses composition numbers such as "7,12" or "1 234,5".
func parseDecimalComma(s string) float64 {
	s = strings.NewReplacer(" ", "", "\u00a0", "", `"`, "", "'", "", "%", "", "$", "").Replace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// parseNumber parses performance numbers in US format such as "1,234.5".
func parseNumber(s string) float64 {
	s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseRank(s string) int {
	v := parseNumber(s)
	if math.IsNaN(v) {
		return 0
	}
	return int(v)
}

// LoadComposition reads an index composition table.
func LoadComposition(path string) ([]Member, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	cols := t.mapColumns(matchComposition)
	if _, ok := cols["symbol"]; !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSymbolColumn)
	}

	members := make([]Member, 0, len(t.rows))
	for _, row := range t.rows {
		symbol := normalizeSymbol(value(row, cols, "symbol"))
		if symbol == "" {
			continue
		}
		members = append(members, Member{
			Rank:    parseRank(value(row, cols, "rank")),
			Symbol:  symbol,
			Company: value(row, cols, "company"),
			Sector:  value(row, cols, "sector"),
			Weight:  parseDecimalComma(value(row, cols, "weight")),
			Price:   parseDecimalComma(value(row, cols, "price")),
		})
	}
	return members, nil
}

// LoadPerformance reads a stock performance table.
func LoadPerformance(path string) ([]Performance, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	cols := t.mapColumns(matchPerformance)
	if _, ok := cols["symbol"]; !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSymbolColumn)
	}

	perf := make([]Performance, 0, len(t.rows))
	for _, row := range t.rows {
		symbol := normalizeSymbol(value(row, cols, "symbol"))
		if symbol == "" {
			continue
		}
		perf = append(perf, Performance{
			Symbol:    symbol,
			Company:   value(row, cols, "company"),
			Sector:    value(row, cols, "sector"),
			MarketCap: parseNumber(value(row, cols, "market_cap")),
			Revenue:   parseNumber(value(row, cols, "revenue")),
			OpIncome:  parseNumber(value(row, cols, "op_income")),
			NetIncome: parseNumber(value(row, cols, "net_income")),
			EPS:       parseNumber(value(row, cols, "eps")),
			FCF:       parseNumber(value(row, cols, "fcf")),
		})
	}
	return perf, nil
}

// Roster is a joined, symbol-indexed company table.
type Roster struct {
	entries  []Entry
	bySymbol map[string]int
}

// Join inner-joins members with performance on symbol. Members keep their
// order; a symbol repeated in either table keeps its first occurrence.
func Join(members []Member, perf []Performance) *Roster {
	perfBySymbol := make(map[string]Performance, len(perf))
	for _, p := range perf {
		if _, dup := perfBySymbol[p.Symbol]; !dup {
			perfBySymbol[p.Symbol] = p
		}
	}

	var entries []Entry
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		p, ok := perfBySymbol[m.Symbol]
		if !ok || seen[m.Symbol] {
			continue
		}
		seen[m.Symbol] = true
		if m.Company == "" {
			m.Company = p.Company
		}
		if m.Sector == "" {
			m.Sector = p.Sector
		}
		entries = append(entries, Entry{
			Member:    m,
			MarketCap: p.MarketCap,
			Revenue:   p.Revenue,
			OpIncome:  p.OpIncome,
			NetIncome: p.NetIncome,
			EPS:       p.EPS,
			FCF:       p.FCF,
		})
	}
	return newRoster(entries)
}

func newRoster(entries []Entry) *Roster {
	r := &Roster{entries: entries, bySymbol: make(map[string]int, len(entries))}
	for i, e := range entries {
		if _, dup := r.bySymbol[e.Symbol]; !dup {
			r.bySymbol[e.Symbol] = i
		}
	}
	return r
}

// Build loads both tables concurrently and joins them.
func Build(ctx context.Context, compositionPath, performancePath string) (*Roster, error) {
	var (
		members []Member
		perf    []Performance
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		members, err = LoadComposition(compositionPath)
		return err
	})
	g.Go(func() error {
		var err error
		perf, err = LoadPerformance(performancePath)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := Join(members, perf)
	slog.Default().With("component", "roster").Info("roster built",
		"composition", len(members), "performance", len(perf), "joined", r.Len())
	return r, nil
}

// Len returns the number of entries.
func (r *Roster) Len() int { return len(r.entries) }

// Entries returns a copy of the entries in roster order.
func (r *Roster) Entries() []Entry {
	return slices.Clone(r.entries)
}

// Lookup returns the entry for symbol, case-insensitively.
func (r *Roster) Lookup(symbol string) (Entry, bool) {
	i, ok := r.bySymbol[normalizeSymbol(symbol)]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Match finds the entry whose symbol appears as a token of fileName's base
// name, such as "AAPL" in "aapl_10k_2024.html". Tokens split on anything that
// is not a letter, digit or dot. The longest matching symbol wins.
func (r *Roster) Match(fileName string) (Entry, bool) {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	tokens := strings.FieldsFunc(base, func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '.'
	})

	best := -1
	for _, tok := range tokens {
		candidates := []string{tok}
		if strings.Contains(tok, ".") {
			// "BRK.B" is a symbol but also "BRK" followed by an extension-like part.
			candidates = append(candidates, strings.Split(tok, ".")...)
		}
		for _, c := range candidates {
			i, ok := r.bySymbol[normalizeSymbol(c)]
			if ok && (best < 0 || len(r.entries[i].Symbol) > len(r.entries[best].Symbol)) {
				best = i
			}
		}
	}
	if best < 0 {
		return Entry{}, false
	}
	return r.entries[best], true
}

// Hint returns the extraction hint for fileName, or nil when no symbol
// matches. It has the signature of orchestrator.HintFunc.
func (r *Roster) Hint(fileName string) *extract.Hint {
	e, ok := r.Match(fileName)
	if !ok {
		return nil
	}
	return &extract.Hint{Symbol: e.Symbol, Company: e.Company, Sector: e.Sector}
}
