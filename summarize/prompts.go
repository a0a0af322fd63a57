package summarize

import (
	"fmt"
	"strings"

	"github.com/poiesic/finextract/core"
)

const filingFocus = `Focus on what an analyst needs to fill a company profile:
- legal company name, ticker symbol, exchange, state of incorporation, EIN, address, phone
- fiscal year end date and primary sector
- total revenue, net income, operating cash flow, capital expenditure, diluted EPS, P/E ratio
- the most critical risk factors and any stated mitigations
- named competitors, competitive advantages, key partners and suppliers
- major acquisitions and investments made during the year`

const regulationFocus = `Focus on what a compliance analyst needs:
- issuing country or region and the official name of the law
- the main subject and the 3 to 5 core obligations it introduces
- industries and named companies that are affected
- implementation dates, deadlines and transition periods
- any stated compliance costs or budget figures`

const summaryTemplate = `You summarize %s for structured data extraction.

%s

Rules:
- Copy names, dates and figures exactly as written, including units and currency (for example "$4.49 billion").
- Do not invent facts that are not in the text. Omit a topic rather than guess.
- Write plain prose or short bullet points. No preamble.
- Keep the summary under %d characters.`

const reduceTemplate = `You merge partial summaries of consecutive sections of one %s into a single summary.

%s

Rules:
- Keep every distinct name, date and figure; drop repetition.
- When sections disagree on a figure, prefer the one stated as the annual or total amount.
- Write plain prose or short bullet points. No preamble.
- Keep the summary under %d characters.`

func describe(docType core.DocType) (string, string) {
	if docType == core.DocTypeRegulation {
		return "regulatory documents", regulationFocus
	}
	return "annual company filings", filingFocus
}

func singular(docType core.DocType) string {
	if docType == core.DocTypeRegulation {
		return "regulatory document"
	}
	return "annual filing"
}

func summarySystemPrompt(docType core.DocType, limit int) string {
	kind, focus := describe(docType)
	return fmt.Sprintf(summaryTemplate, kind, focus, limit)
}

func reduceSystemPrompt(docType core.DocType, limit int) string {
	_, focus := describe(docType)
	return fmt.Sprintf(reduceTemplate, singular(docType), focus, limit)
}

func windowUserPrompt(fileName string, window, windows int, text string) string {
	if windows <= 1 {
		return fmt.Sprintf("Document: %s\n\n%s", fileName, text)
	}
	return fmt.Sprintf("Document: %s | Section %d of %d\n\n%s", fileName, window+1, windows, text)
}

func reduceUserPrompt(fileName string, partials []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Document: %s\n", fileName)
	for i, p := range partials {
		fmt.Fprintf(&sb, "\n--- Part %d ---\n%s\n", i+1, p)
	}
	return sb.String()
}
