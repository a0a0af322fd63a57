package extract

import (
	"fmt"
	"strings"

	"github.com/poiesic/finextract/core"
)

const systemPromptTemplate = `Extract structured data about one %s and return it as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- Use only facts stated in the provided summary and excerpts, plus general market knowledge where a field asks for it.
- Monetary values are full numbers in USD: "$4.49 billion" becomes 4490000000. Losses are negative.
- Use null for a text or optional number field the document does not state. Use [] for an empty list.
- Level fields take exactly one of Low, Medium or High.
- The JSON must parse without errors; no trailing commas, no comments, and no text outside the object.`

const retryNotice = "\n\nYour previous response was not a valid JSON object. Respond with the JSON object only."

func kindOf(docType core.DocType) string {
	if docType == core.DocTypeRegulation {
		return "regulatory document (law, regulation or directive)"
	}
	return "company annual filing (10-K)"
}

func buildSystemPrompt(docType core.DocType) string {
	return fmt.Sprintf(systemPromptTemplate, kindOf(docType), responseSchema(docType))
}

// excerpt is one labelled block of document context.
type excerpt struct {
	label string
	text  string
}

func buildUserPrompt(req *Request, excerpts []excerpt) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Document: %s\n\n", req.FileName)

	sb.WriteString("Summary:\n")
	sb.WriteString(req.Summary.Text)
	if req.Summary.Degraded {
		sb.WriteString("\n(Parts of the document could not be summarized.)")
	}
	sb.WriteString("\n")

	if len(excerpts) > 0 {
		sb.WriteString("\nDocument excerpts:\n")
		for _, e := range excerpts {
			fmt.Fprintf(&sb, "\n[%s]\n%s\n", e.label, e.text)
		}
	}

	if h := req.Hint; h != nil {
		sb.WriteString("\nReference data from the index roster; use it only where the document agrees:\n")
		if h.Company != "" {
			fmt.Fprintf(&sb, "- company: %s\n", h.Company)
		}
		if h.Symbol != "" {
			fmt.Fprintf(&sb, "- symbol: %s\n", h.Symbol)
		}
		if h.Sector != "" {
			fmt.Fprintf(&sb, "- sector: %s\n", h.Sector)
		}
	}
	return sb.String()
}
