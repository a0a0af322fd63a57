package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/finextract/core"
)

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

// decodeObject extracts a JSON object from a model response. Code fences,
// surrounding prose and common syntax slips are tolerated.
func decodeObject(raw string) (map[string]any, error) {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, ErrNotJSONObject
	}
	text = text[start : end+1]

	obj, err := unmarshalObject(text)
	if err == nil {
		return obj, nil
	}
	obj, repairErr := unmarshalObject(repairJSON(text))
	if repairErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotJSONObject, err)
	}
	return obj, nil
}

func unmarshalObject(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, ErrNotJSONObject
	}
	return obj, nil
}

// normalizeKeys lowercases keys and folds spaces and hyphens to underscores.
// Nested objects under keys that are not fields are flattened one level, so
// {"financials": {"revenue": 1}} still yields revenue.
func normalizeKeys(obj map[string]any, fields []field) map[string]any {
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.name] = true
	}
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if nested, ok := v.(map[string]any); ok && !known[normalizeKey(k)] {
			for nk, nv := range nested {
				key := normalizeKey(nk)
				if _, exists := out[key]; !exists {
					out[key] = nv
				}
			}
			continue
		}
		out[normalizeKey(k)] = v
	}
	return out
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(k)
}

// buildRecord parses every schema field of docType from obj.
func buildRecord(docType core.DocType, fileName string, obj map[string]any) (core.Record, []core.SchemaParseWarning) {
	fields := fieldsFor(docType)
	values := normalizeKeys(obj, fields)
	parsed := make(map[string]any)
	var warnings []core.SchemaParseWarning
	warn := func(name, reason string) {
		warnings = append(warnings, core.SchemaParseWarning{Field: name, Reason: reason})
	}

	for _, f := range fields {
		raw, present := values[f.name]
		if !present {
			warn(f.name, "missing from response")
			continue
		}
		switch f.kind {
		case kindText:
			if s, ok := parseText(raw); ok {
				parsed[f.name] = s
			} else if !isAbsent(raw) {
				warn(f.name, fmt.Sprintf("not a string: %v", raw))
			}
		case kindNumber, kindOptionalNumber:
			if raw == nil && f.kind == kindOptionalNumber {
				continue
			}
			if v, ok := parseNumber(raw); ok {
				parsed[f.name] = v
			} else {
				warn(f.name, fmt.Sprintf("not a number: %v", raw))
			}
		case kindList:
			if items, ok := parseList(raw); ok {
				parsed[f.name] = items
			} else {
				warn(f.name, fmt.Sprintf("not a list: %v", raw))
			}
		case kindLevel:
			if level, ok := parseLevel(raw); ok {
				parsed[f.name] = level
			} else {
				warn(f.name, fmt.Sprintf("not Low, Medium or High: %v", raw))
			}
		case kindConfidence:
			if v, ok := parseConfidence(raw); ok {
				parsed[f.name] = v
			} else {
				warn(f.name, fmt.Sprintf("not a confidence score: %v", raw))
			}
		}
	}

	if docType == core.DocTypeRegulation {
		return regulationRecord(fileName, parsed), warnings
	}
	return filingRecord(fileName, parsed), warnings
}

// sentinelRecord is the all-sentinel record used when no response parsed.
func sentinelRecord(docType core.DocType, fileName string, reason string) (core.Record, []core.SchemaParseWarning) {
	record, _ := core.NewRecord(docType, fileName)
	fields := fieldsFor(docType)
	warnings := make([]core.SchemaParseWarning, len(fields))
	for i, f := range fields {
		warnings[i] = core.SchemaParseWarning{Field: f.name, Reason: reason}
	}
	return record, warnings
}

func filingRecord(fileName string, p map[string]any) *core.FilingRecord {
	r := core.NewFilingRecord(fileName)
	setText(&r.CompanyName, p["company_name"])
	setText(&r.TradingSymbol, p["trading_symbol"])
	setText(&r.FiscalYearEnd, p["fiscal_year_end"])
	setText(&r.StateOfIncorporation, p["state_of_incorporation"])
	setText(&r.EmployerIDNo, p["employer_id_no"])
	setText(&r.Address, p["address"])
	setText(&r.PhoneNumber, p["phone_number"])
	setText(&r.Exchange, p["exchange"])
	setText(&r.PrimarySector, p["primary_sector"])
	setNumber(&r.Revenue, p["revenue"])
	setNumber(&r.NetIncome, p["net_income"])
	setNumber(&r.OperatingCashFlow, p["operating_cash_flow"])
	setNumber(&r.CapitalExpenditure, p["capital_expenditure"])
	setNumber(&r.EPS, p["eps"])
	setNumber(&r.PERatio, p["pe_ratio"])
	setText(&r.RiskLevel, p["risk_level"])
	setList(&r.Top3RiskFactors, p["top_3_risk_factors"])
	setList(&r.MitigationSuggestions, p["mitigation_suggestions"])
	setNumber(&r.ConfidenceScore, p["confidence_score"])
	setList(&r.KeyRivals, p["key_rivals"])
	setText(&r.CompetitiveAdvantage, p["competitive_advantage"])
	setList(&r.KeyPartners, p["key_partners"])
	setList(&r.MajorInvestmentsAcquisitions, p["major_investments_acquisitions"])
	return r
}

func regulationRecord(fileName string, p map[string]any) *core.RegulationRecord {
	r := core.NewRegulationRecord(fileName)
	setText(&r.CountryRegion, p["country_region"])
	setText(&r.LawName, p["law_name"])
	setText(&r.PrimarySubject, p["primary_subject"])
	setText(&r.KeyRequirementsSummary, p["key_requirements_summary"])
	setList(&r.AffectedSectors, p["affected_sectors"])
	setText(&r.PotentialImpactSeverity, p["potential_impact_severity"])
	setList(&r.SpecificCompaniesMentioned, p["specific_companies_mentioned"])
	setList(&r.CompaniesThatCouldBeImpacted, p["companies_that_could_be_impacted"])
	setText(&r.ComplianceDeadline, p["compliance_deadline"])
	setText(&r.EstimatedComplianceCost, p["estimated_compliance_cost"])
	return r
}

func setText(dst *string, v any) {
	if s, ok := v.(string); ok {
		*dst = s
	}
}

func setNumber(dst *float64, v any) {
	if f, ok := v.(float64); ok {
		*dst = f
	}
}

func setList(dst *[]string, v any) {
	if items, ok := v.([]string); ok {
		*dst = items
	}
}

var placeholders = map[string]bool{
	"":               true,
	"null":           true,
	"none":           true,
	"n/a":            true,
	"na":             true,
	"unknown":        true,
	"not available":  true,
	"not stated":     true,
	"not applicable": true,
	"-":              true,
}

func isPlaceholder(s string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(s))]
}

// isAbsent reports an explicit null or placeholder, which maps to the
// sentinel without a warning.
func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && isPlaceholder(s)
}

// parseText accepts strings and scalars. Placeholders such as "N/A" count as
// absent and report false.
func parseText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		if isPlaceholder(t) {
			return "", false
		}
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case []any:
		items, ok := parseList(t)
		if !ok || len(items) == 0 {
			return "", false
		}
		return strings.Join(items, "; "), true
	}
	return "", false
}

var (
	numberPattern = regexp.MustCompile(`(?i)(\()?\s*([-−])?\s*(us\$|usd|\$|€|£|¥)?\s*([-−])?\s*(\d[\d,]*(?:\.\d+)?|\.\d+)(?:e([+-]?\d+))?\s*(\))?\s*(trillion|billion|million|thousand|tn|bn|mn|mm|t|b|m|k)?\b`)
	multipliers   = map[string]float64{
		"trillion": 1e12, "tn": 1e12, "t": 1e12,
		"billion": 1e9, "bn": 1e9, "b": 1e9,
		"million": 1e6, "mn": 1e6, "mm": 1e6, "m": 1e6,
		"thousand": 1e3, "k": 1e3,
	}
)

// parseNumber accepts JSON numbers and strings such as "4490000000",
// "4.49e9", "$4.49B", "4.49 billion", "(1,234)" and "1,234.5".
func parseNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil && !math.IsInf(f, 0)
	case float64:
		return t, true
	case string:
		return parseNumberString(t)
	}
	return 0, false
}

// parseNumberString reads the amount in s. When s holds several numbers, an
// amount with a currency sign, magnitude word or exponent wins over bare
// numbers such as years; digits glued to letters ("FY2024", "Q3") are never
// amounts. Several bare numbers and nothing marked is ambiguous.
func parseNumberString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if isPlaceholder(s) {
		return 0, false
	}

	var bare []numberMatch
	for _, m := range numberPattern.FindAllStringSubmatchIndex(s, -1) {
		nm := numberMatch{s: s, m: m}
		if nm.glued() {
			continue
		}
		if nm.marked() {
			return nm.value()
		}
		bare = append(bare, nm)
	}
	if len(bare) != 1 {
		return 0, false
	}
	return bare[0].value()
}

// numberMatch is one numberPattern match in s. Groups: 1 open paren,
// 2 and 4 sign, 3 currency, 5 digits, 6 exponent, 7 close paren, 8 magnitude.
type numberMatch struct {
	s string
	m []int
}

func (nm numberMatch) group(i int) string {
	if nm.m[2*i] < 0 {
		return ""
	}
	return nm.s[nm.m[2*i]:nm.m[2*i+1]]
}

func (nm numberMatch) marked() bool {
	return nm.group(3) != "" || nm.group(6) != "" || nm.group(8) != ""
}

func (nm numberMatch) glued() bool {
	start := nm.m[10]
	if nm.group(3) != "" || start == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(nm.s[:start])
	return unicode.IsLetter(r)
}

func (nm numberMatch) value() (float64, bool) {
	digits := strings.ReplaceAll(nm.group(5), ",", "")
	if exp := nm.group(6); exp != "" {
		digits += "e" + exp
	}
	f, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	if mult, ok := multipliers[strings.ToLower(nm.group(8))]; ok {
		f *= mult
	}

	negative := nm.group(2) != "" || nm.group(4) != ""
	if nm.group(1) != "" && (nm.group(7) != "" || strings.Contains(nm.s[nm.m[1]:], ")")) {
		negative = true
	}
	if negative {
		f = -f
	}
	return f, true
}

// parseList accepts arrays of scalars, JSON-encoded arrays and delimited
// strings. Empty entries are dropped.
func parseList(v any) ([]string, bool) {
	switch t := v.(type) {
	case nil:
		return []string{}, true
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := parseText(item); ok && s != "" {
				items = append(items, s)
			}
		}
		return items, true
	case string:
		s := strings.TrimSpace(t)
		if isPlaceholder(s) {
			return []string{}, true
		}
		if strings.HasPrefix(s, "[") {
			var raw []any
			dec := json.NewDecoder(bytes.NewReader([]byte(s)))
			dec.UseNumber()
			if err := dec.Decode(&raw); err == nil {
				return parseList(raw)
			}
			return nil, false
		}
		sep := ";"
		if strings.Contains(s, "\n") {
			sep = "\n"
		}
		var items []string
		for _, part := range strings.Split(s, sep) {
			part = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(part), "-*•"))
			if part != "" {
				items = append(items, part)
			}
		}
		if items == nil {
			items = []string{}
		}
		return items, true
	}
	return nil, false
}

// parseLevel normalizes a severity to Low, Medium or High.
func parseLevel(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(s, "high"), strings.Contains(s, "severe"), strings.Contains(s, "critical"):
		return "High", true
	case strings.Contains(s, "medium"), strings.Contains(s, "moderate"), s == "med":
		return "Medium", true
	case strings.Contains(s, "low"), strings.Contains(s, "minor"):
		return "Low", true
	}
	return "", false
}

// parseConfidence reads a score and clamps it to [0, 1]. Percent strings
// such as "85%" are scaled.
func parseConfidence(v any) (float64, bool) {
	var (
		f  float64
		ok bool
	)
	if s, isString := v.(string); isString && strings.HasSuffix(strings.TrimSpace(s), "%") {
		f, ok = parseNumberString(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		f /= 100
	} else {
		f, ok = parseNumber(v)
	}
	if !ok || math.IsNaN(f) {
		return 0, false
	}
	return min(max(f, 0), 1), true
}
