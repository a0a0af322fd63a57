package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NotStated fills text fields the model could not determine.
const NotStated = "Not explicitly stated in the document"

// DefaultConfidence is used when the model omits a confidence score.
const DefaultConfidence = 0.5

// FilingColumns is the fixed column order of the filing output table.
var FilingColumns = []string{
	"file_name",
	"company_name",
	"trading_symbol",
	"fiscal_year_end",
	"state_of_incorporation",
	"employer_id_no",
	"address",
	"phone_number",
	"exchange",
	"primary_sector",
	"revenue",
	"net_income",
	"operating_cash_flow",
	"capital_expenditure",
	"eps",
	"pe_ratio",
	"risk_level",
	"top_3_risk_factors",
	"mitigation_suggestions",
	"confidence_score",
	"key_rivals",
	"competitive_advantage",
	"key_partners",
	"major_investments_acquisitions",
}

// RegulationColumns is the fixed column order of the regulation output table.
var RegulationColumns = []string{
	"file_name",
	"country_region",
	"law_name",
	"primary_subject",
	"key_requirements_summary",
	"affected_sectors",
	"potential_impact_severity",
	"specific_companies_mentioned",
	"companies_that_could_be_impacted",
	"compliance_deadline",
	"estimated_compliance_cost",
}

// Columns returns the output columns for a document type.
func Columns(docType DocType) ([]string, error) {
	switch docType {
	case DocTypeFiling:
		return FilingColumns, nil
	case DocTypeRegulation:
		return RegulationColumns, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDocType, docType)
	}
}

// Record is one structured output row. The set of implementations is closed:
// *FilingRecord and *RegulationRecord.
type Record interface {
	// SourceFile is the staged file name this record was extracted from.
	SourceFile() string
	DocType() DocType
	// Values renders the record in column order; every value is non-empty.
	Values() []string
}

// SchemaParseWarning describes a field that did not match its expected shape
// and was replaced by its sentinel value.
type SchemaParseWarning struct {
	Field  string
	Reason string
}

func (w SchemaParseWarning) String() string {
	return w.Field + ": " + w.Reason
}

// FilingRecord is the structured form of an annual filing.
type FilingRecord struct {
	FileName             string
	CompanyName          string
	TradingSymbol        string
	FiscalYearEnd        string
	StateOfIncorporation string
	EmployerIDNo         string
	Address              string
	PhoneNumber          string
	Exchange             string
	PrimarySector        string

	Revenue            float64
	NetIncome          float64
	OperatingCashFlow  float64
	CapitalExpenditure float64
	EPS                float64
	PERatio            float64 // NaN when not stated

	RiskLevel             string
	Top3RiskFactors       []string
	MitigationSuggestions []string
	ConfidenceScore       float64

	KeyRivals                    []string
	CompetitiveAdvantage         string
	KeyPartners                  []string
	MajorInvestmentsAcquisitions []string
}

var _ Record = (*FilingRecord)(nil)

// NewFilingRecord returns a filing record with every field set to its sentinel.
func NewFilingRecord(fileName string) *FilingRecord {
	return &FilingRecord{
		FileName:                     fileName,
		CompanyName:                  NotStated,
		TradingSymbol:                NotStated,
		FiscalYearEnd:                NotStated,
		StateOfIncorporation:         NotStated,
		EmployerIDNo:                 NotStated,
		Address:                      NotStated,
		PhoneNumber:                  NotStated,
		Exchange:                     NotStated,
		PrimarySector:                NotStated,
		PERatio:                      math.NaN(),
		RiskLevel:                    NotStated,
		Top3RiskFactors:              []string{},
		MitigationSuggestions:        []string{},
		ConfidenceScore:              DefaultConfidence,
		KeyRivals:                    []string{},
		CompetitiveAdvantage:         NotStated,
		KeyPartners:                  []string{},
		MajorInvestmentsAcquisitions: []string{},
	}
}

func (r *FilingRecord) SourceFile() string { return r.FileName }

func (r *FilingRecord) DocType() DocType { return DocTypeFiling }

func (r *FilingRecord) Values() []string {
	return []string{
		r.FileName,
		text(r.CompanyName),
		text(r.TradingSymbol),
		text(r.FiscalYearEnd),
		text(r.StateOfIncorporation),
		text(r.EmployerIDNo),
		text(r.Address),
		text(r.PhoneNumber),
		text(r.Exchange),
		text(r.PrimarySector),
		FormatNumber(r.Revenue),
		FormatNumber(r.NetIncome),
		FormatNumber(r.OperatingCashFlow),
		FormatNumber(r.CapitalExpenditure),
		FormatNumber(r.EPS),
		FormatNumber(r.PERatio),
		text(r.RiskLevel),
		FormatList(r.Top3RiskFactors),
		FormatList(r.MitigationSuggestions),
		FormatNumber(r.ConfidenceScore),
		FormatList(r.KeyRivals),
		text(r.CompetitiveAdvantage),
		FormatList(r.KeyPartners),
		FormatList(r.MajorInvestmentsAcquisitions),
	}
}

// RegulationRecord is the structured form of a regulatory document.
type RegulationRecord struct {
	FileName                     string
	CountryRegion                string
	LawName                      string
	PrimarySubject               string
	KeyRequirementsSummary       string
	AffectedSectors              []string
	PotentialImpactSeverity      string
	SpecificCompaniesMentioned   []string
	CompaniesThatCouldBeImpacted []string
	ComplianceDeadline           string
	EstimatedComplianceCost      string
}

var _ Record = (*RegulationRecord)(nil)

// NewRegulationRecord returns a regulation record with every field set to its sentinel.
func NewRegulationRecord(fileName string) *RegulationRecord {
	return &RegulationRecord{
		FileName:                     fileName,
		CountryRegion:                NotStated,
		LawName:                      NotStated,
		PrimarySubject:               NotStated,
		KeyRequirementsSummary:       NotStated,
		AffectedSectors:              []string{},
		PotentialImpactSeverity:      NotStated,
		SpecificCompaniesMentioned:   []string{},
		CompaniesThatCouldBeImpacted: []string{},
		ComplianceDeadline:           NotStated,
		EstimatedComplianceCost:      NotStated,
	}
}

func (r *RegulationRecord) SourceFile() string { return r.FileName }

func (r *RegulationRecord) DocType() DocType { return DocTypeRegulation }

func (r *RegulationRecord) Values() []string {
	return []string{
		r.FileName,
		text(r.CountryRegion),
		text(r.LawName),
		text(r.PrimarySubject),
		text(r.KeyRequirementsSummary),
		FormatList(r.AffectedSectors),
		text(r.PotentialImpactSeverity),
		FormatList(r.SpecificCompaniesMentioned),
		FormatList(r.CompaniesThatCouldBeImpacted),
		text(r.ComplianceDeadline),
		text(r.EstimatedComplianceCost),
	}
}

// NewRecord returns an all-sentinel record of the given type.
func NewRecord(docType DocType, fileName string) (Record, error) {
	switch docType {
	case DocTypeFiling:
		return NewFilingRecord(fileName), nil
	case DocTypeRegulation:
		return NewRegulationRecord(fileName), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDocType, docType)
	}
}

// RecordFromValues rebuilds a record from a stored row in column order.
func RecordFromValues(docType DocType, values []string) (Record, error) {
	columns, err := Columns(docType)
	if err != nil {
		return nil, err
	}
	if len(values) != len(columns) {
		return nil, fmt.Errorf("%w: %w: expected %d values, got %d",
			ErrInvalidRecord, ErrColumnMismatch, len(columns), len(values))
	}

	var (
		parseErr error
		num      = func(s string) float64 {
			v, err := ParseStoredNumber(s)
			if err != nil && parseErr == nil {
				parseErr = err
			}
			return v
		}
		list = func(s string) []string {
			v, err := ParseStoredList(s)
			if err != nil && parseErr == nil {
				parseErr = err
			}
			return v
		}
	)

	var record Record
	switch docType {
	case DocTypeFiling:
		record = &FilingRecord{
			FileName:                     values[0],
			CompanyName:                  values[1],
			TradingSymbol:                values[2],
			FiscalYearEnd:                values[3],
			StateOfIncorporation:         values[4],
			EmployerIDNo:                 values[5],
			Address:                      values[6],
			PhoneNumber:                  values[7],
			Exchange:                     values[8],
			PrimarySector:                values[9],
			Revenue:                      num(values[10]),
			NetIncome:                    num(values[11]),
			OperatingCashFlow:            num(values[12]),
			CapitalExpenditure:           num(values[13]),
			EPS:                          num(values[14]),
			PERatio:                      num(values[15]),
			RiskLevel:                    values[16],
			Top3RiskFactors:              list(values[17]),
			MitigationSuggestions:        list(values[18]),
			ConfidenceScore:              num(values[19]),
			KeyRivals:                    list(values[20]),
			CompetitiveAdvantage:         values[21],
			KeyPartners:                  list(values[22]),
			MajorInvestmentsAcquisitions: list(values[23]),
		}
	case DocTypeRegulation:
		record = &RegulationRecord{
			FileName:                     values[0],
			CountryRegion:                values[1],
			LawName:                      values[2],
			PrimarySubject:               values[3],
			KeyRequirementsSummary:       values[4],
			AffectedSectors:              list(values[5]),
			PotentialImpactSeverity:      values[6],
			SpecificCompaniesMentioned:   list(values[7]),
			CompaniesThatCouldBeImpacted: list(values[8]),
			ComplianceDeadline:           values[9],
			EstimatedComplianceCost:      values[10],
		}
	}
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, parseErr)
	}
	return record, nil
}

// FormatNumber renders a numeric field. NaN renders as "NaN".
func FormatNumber(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseStoredNumber is the inverse of FormatNumber.
func ParseStoredNumber(s string) (float64, error) {
	if strings.EqualFold(s, "NaN") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// FormatList renders a list field as a JSON array.
func FormatList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// ParseStoredList is the inverse of FormatList.
func ParseStoredList(s string) ([]string, error) {
	items := []string{}
	if strings.TrimSpace(s) == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func text(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotStated
	}
	return s
}
