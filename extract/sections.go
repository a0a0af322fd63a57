package extract

import (
	"regexp"
	"strings"
)

// Section names of an annual filing, in document order.
const (
	SectionCover     = "cover"
	SectionBusiness  = "business"
	SectionRisk      = "risk_factors"
	SectionFinancial = "mda_financials"
)

// SectionOrder lists the sections returned by Sections.
var SectionOrder = []string{SectionCover, SectionBusiness, SectionRisk, SectionFinancial}

var itemHeader = regexp.MustCompile(`(?i)^\s*item\s+(1a|1|7|8)\s*[.:]`)

// headerMaxLen bounds the length of a line treated as an Item header.
const headerMaxLen = 100

// Sections splits annual filing text into the cover page (everything before
// the first Item), Item 1 (business), Item 1A (risk factors) and Item 7
// (MD&A). Collection stops at Item 8 until another tracked Item header
// appears. Whitespace is collapsed and each section is cut to limit runes;
// limit <= 0 means unbounded.
func Sections(text string, limit int) map[string]string {
	builders := map[string]*strings.Builder{
		SectionCover:     {},
		SectionBusiness:  {},
		SectionRisk:      {},
		SectionFinancial: {},
	}

	current := SectionCover
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if len(trimmed) < headerMaxLen {
			if m := itemHeader.FindStringSubmatch(trimmed); m != nil {
				switch strings.ToLower(m[1]) {
				case "1":
					// A second Item 1 after the body started is a cross reference.
					if current == SectionCover || current == "" {
						current = SectionBusiness
					}
				case "1a":
					current = SectionRisk
				case "7":
					current = SectionFinancial
				case "8":
					current = ""
				}
			}
		}
		if current == "" {
			continue
		}
		b := builders[current]
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(trimmed)
	}

	out := make(map[string]string, len(builders))
	for name, b := range builders {
		s := strings.Join(strings.Fields(b.String()), " ")
		if limit > 0 {
			if runes := []rune(s); len(runes) > limit {
				s = string(runes[:limit])
			}
		}
		out[name] = s
	}
	return out
}
