package extract

import (
	"encoding/json"

	"github.com/poiesic/finextract/core"
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindNumber
	kindOptionalNumber
	kindList
	kindLevel
	kindConfidence
)

// field describes one output column as the model sees it.
type field struct {
	name        string
	kind        fieldKind
	description string
}

var filingFields = []field{
	{"company_name", kindText, "Full legal name of the company"},
	{"trading_symbol", kindText, "Stock ticker symbol"},
	{"fiscal_year_end", kindText, "Fiscal year end date, e.g. 'September 28, 2024'"},
	{"state_of_incorporation", kindText, "State or jurisdiction of incorporation"},
	{"employer_id_no", kindText, "Employer Identification Number (EIN)"},
	{"address", kindText, "Headquarters address"},
	{"phone_number", kindText, "Headquarters phone number"},
	{"exchange", kindText, "Stock exchange listing"},
	{"primary_sector", kindText, "GICS sector, e.g. Technology, Healthcare, Industrials"},
	{"revenue", kindNumber, "Total annual revenue in USD as a full number, e.g. 4490000000"},
	{"net_income", kindNumber, "Annual net income in USD as a full number"},
	{"operating_cash_flow", kindNumber, "Operating cash flow in USD as a full number"},
	{"capital_expenditure", kindNumber, "Capital expenditures (CAPEX) in USD as a full number"},
	{"eps", kindNumber, "Diluted earnings per share in USD"},
	{"pe_ratio", kindOptionalNumber, "Price to earnings ratio, or null if it cannot be determined"},
	{"risk_level", kindLevel, "Overall risk: Low, Medium or High"},
	{"top_3_risk_factors", kindList, "The three most critical risk factors"},
	{"mitigation_suggestions", kindList, "Risk mitigation strategies"},
	{"confidence_score", kindConfidence, "Confidence in this analysis from 0 to 1"},
	{"key_rivals", kindList, "Primary competitors by name, 3 to 5 entries"},
	{"competitive_advantage", kindText, "Concise statement of the company's competitive advantage"},
	{"key_partners", kindList, "Named key suppliers, distributors or strategic partners"},
	{"major_investments_acquisitions", kindList, "Major acquisitions or investments made during the year"},
}

var regulationFields = []field{
	{"country_region", kindText, "Country or region issuing the law"},
	{"law_name", kindText, "Official name of the regulation, act or directive"},
	{"primary_subject", kindText, "Main topic of the law"},
	{"key_requirements_summary", kindText, "Concise summary of the 3 to 5 main obligations"},
	{"affected_sectors", kindList, "Industries most directly impacted"},
	{"potential_impact_severity", kindLevel, "Low, Medium or High"},
	{"specific_companies_mentioned", kindList, "Companies explicitly named in the text"},
	{"companies_that_could_be_impacted", kindList, "Listed companies likely to be affected"},
	{"compliance_deadline", kindText, "Key implementation dates or deadlines, or null"},
	{"estimated_compliance_cost", kindText, "Stated compliance costs or budget figures, or null"},
}

func fieldsFor(docType core.DocType) []field {
	if docType == core.DocTypeRegulation {
		return regulationFields
	}
	return filingFields
}

// responseSchema renders the JSON schema the model must follow.
func responseSchema(docType core.DocType) string {
	fields := fieldsFor(docType)
	properties := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		prop := map[string]any{"description": f.description}
		switch f.kind {
		case kindText:
			prop["type"] = []string{"string", "null"}
		case kindNumber:
			prop["type"] = "number"
		case kindOptionalNumber:
			prop["type"] = []string{"number", "null"}
		case kindList:
			prop["type"] = "array"
			prop["items"] = map[string]string{"type": "string"}
		case kindLevel:
			prop["type"] = "string"
			prop["enum"] = []string{"Low", "Medium", "High"}
		case kindConfidence:
			prop["type"] = "number"
			prop["minimum"] = 0
			prop["maximum"] = 1
		}
		properties[f.name] = prop
		required = append(required, f.name)
	}
	schema := map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		panic(err)
	}
	return string(b)
}
