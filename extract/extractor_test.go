package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/finextract/ai"
	"github.com/poiesic/finextract/ai/mock"
	"github.com/poiesic/finextract/assemble"
	"github.com/poiesic/finextract/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRetriever struct {
	hits  []core.IndexedText
	err   error
	query string
}

func (r *stubRetriever) Retrieve(ctx context.Context, docType core.DocType, fileName, query string, k int) ([]core.IndexedText, error) {
	r.query = query
	if r.err != nil {
		return nil, r.err
	}
	return r.hits[:min(k, len(r.hits))], nil
}

func filingRequest(doc *core.AssembledDocument) *Request {
	return &Request{
		FileName: "aapl.htm",
		DocType:  core.DocTypeFiling,
		Summary:  &core.DocumentSummary{DocType: core.DocTypeFiling, FileName: "aapl.htm", Text: "Apple had revenue of $4.49B.", Windows: 1},
		Document: doc,
	}
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrGeneratorRequired)

	_, err = New(mock.NewMockGenerator(), WithContextMode("everything"))
	assert.ErrorIs(t, err, ErrInvalidContextMode)

	_, err = New(mock.NewMockGenerator(), WithContextMode(ContextRetrieval))
	assert.ErrorIs(t, err, ErrRetrieverRequired)

	_, err = New(mock.NewMockGenerator(), WithContextMode("Summary+Retrieval"))
	assert.ErrorIs(t, err, ErrRetrieverRequired)

	e, err := New(mock.NewMockGenerator())
	require.NoError(t, err)
	assert.Equal(t, ContextSummary, e.Mode())

	e, err = New(mock.NewMockGenerator(), WithContextMode(" Summary+Chunks "))
	require.NoError(t, err)
	assert.Equal(t, ContextChunks, e.Mode())
}

func TestParseContextMode(t *testing.T) {
	mode, err := ParseContextMode(" Summary+Sections ")
	require.NoError(t, err)
	assert.Equal(t, ContextSections, mode)

	_, err = ParseContextMode("full")
	assert.ErrorIs(t, err, ErrInvalidContextMode)
}

func TestExtract_RevenueScenario(t *testing.T) {
	chunks := []*core.Chunk{
		{FileName: "aapl.htm", ChunkIndex: 0, ChunkText: "Revenue was "},
		{FileName: "aapl.htm", ChunkIndex: 1, ChunkText: "$4.49B in "},
		{FileName: "aapl.htm", ChunkIndex: 2, ChunkText: "fiscal 2024."},
	}
	doc := assemble.Assemble(chunks).Document("aapl.htm")
	require.NotNil(t, doc)
	require.Equal(t, "Revenue was $4.49B in fiscal 2024.", doc.FullText)

	gen := mock.NewMockGenerator().WithResponses(`{"company_name": "Apple Inc.", "revenue": 4490000000}`)
	e, err := New(gen, WithContextMode(ContextChunks))
	require.NoError(t, err)

	result, err := e.Extract(context.Background(), filingRequest(doc))
	require.NoError(t, err)

	r := result.Record.(*core.FilingRecord)
	assert.Equal(t, 4490000000.0, r.Revenue)
	assert.Equal(t, "Apple Inc.", r.CompanyName)
	assert.Equal(t, 1, result.Attempts)
	assert.False(t, result.Degraded)
	assert.Len(t, result.Warnings, len(filingFields)-2)

	prompt := gen.Prompts()[0]
	assert.True(t, prompt.JSONMode)
	assert.Contains(t, prompt.User, "Apple had revenue of $4.49B.")
	assert.Contains(t, prompt.User, "[chunk 1]\n$4.49B in ")
	assert.Contains(t, prompt.System, `"revenue"`)
}

func TestExtract_SchemaCompleteness(t *testing.T) {
	for _, docType := range core.DocTypes {
		t.Run(string(docType), func(t *testing.T) {
			e, err := New(mock.NewMockGenerator())
			require.NoError(t, err)

			result, err := e.Extract(context.Background(), &Request{
				FileName: "doc.htm",
				DocType:  docType,
				Summary:  &core.DocumentSummary{Text: "nothing useful"},
			})
			require.NoError(t, err)
			require.NoError(t, core.ValidateRecord(result.Record))

			columns, _ := core.Columns(docType)
			values := result.Record.Values()
			require.Len(t, values, len(columns))
			for i, v := range values {
				assert.NotEmpty(t, v, columns[i])
			}
			assert.Len(t, result.Warnings, len(columns)-1)
		})
	}
}

func TestExtract_ReRequestsUnparseableResponse(t *testing.T) {
	gen := mock.NewMockGenerator().WithResponses("I cannot help with that.", `{"risk_level": "high"}`)
	e, err := New(gen)
	require.NoError(t, err)

	result, err := e.Extract(context.Background(), filingRequest(nil))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Attempts)
	assert.False(t, result.Degraded)
	assert.Equal(t, "High", result.Record.(*core.FilingRecord).RiskLevel)
	assert.True(t, strings.HasSuffix(gen.Prompts()[1].User, retryNotice))
}

func TestExtract_DegradesAfterParseAttempts(t *testing.T) {
	gen := mock.NewMockGenerator().WithResponses("no json here")
	e, err := New(gen, WithParseAttempts(3))
	require.NoError(t, err)

	result, err := e.Extract(context.Background(), filingRequest(nil))
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, gen.CallCount())
	assert.Len(t, result.Warnings, len(filingFields))

	r := result.Record.(*core.FilingRecord)
	assert.Equal(t, core.NotStated, r.CompanyName)
	assert.Equal(t, core.DefaultConfidence, r.ConfidenceScore)
	assert.NoError(t, core.ValidateRecord(r))
}

func TestExtract_GeneratorError(t *testing.T) {
	gen := mock.NewMockGenerator().WithGenerateFunc(func(context.Context, ai.Prompt) (string, error) {
		return "", errors.New("503 service unavailable")
	})
	e, err := New(gen)
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), filingRequest(nil))
	assert.ErrorIs(t, err, core.ErrExtractionService)
	assert.Equal(t, 1, gen.CallCount())
}

func TestExtract_InvalidRequest(t *testing.T) {
	e, err := New(mock.NewMockGenerator())
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), &Request{DocType: core.DocTypeFiling})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.Extract(context.Background(), &Request{FileName: "a.htm", DocType: core.DocTypeFiling})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.Extract(context.Background(), &Request{FileName: "a.htm", DocType: "memo", Summary: &core.DocumentSummary{}})
	assert.ErrorIs(t, err, core.ErrInvalidDocType)
}

func TestExtract_ContextModes(t *testing.T) {
	doc := &core.AssembledDocument{
		FileName: "aapl.htm",
		Chunks: []core.IndexedText{
			{Index: 0, Text: "Apple Inc. cover page."},
			{Index: 1, Text: strings.Repeat("filler ", 50)},
		},
		FullText: tenK,
	}

	t.Run("summary", func(t *testing.T) {
		gen := mock.NewMockGenerator()
		e, err := New(gen)
		require.NoError(t, err)
		_, err = e.Extract(context.Background(), filingRequest(doc))
		require.NoError(t, err)
		assert.NotContains(t, gen.Prompts()[0].User, "Document excerpts")
	})

	t.Run("chunks within budget", func(t *testing.T) {
		gen := mock.NewMockGenerator()
		e, err := New(gen, WithContextMode(ContextChunks), WithContextBudget(100))
		require.NoError(t, err)
		_, err = e.Extract(context.Background(), filingRequest(doc))
		require.NoError(t, err)
		user := gen.Prompts()[0].User
		assert.Contains(t, user, "[chunk 0]\nApple Inc. cover page.")
		assert.NotContains(t, user, "[chunk 1]")
	})

	t.Run("sections", func(t *testing.T) {
		gen := mock.NewMockGenerator()
		e, err := New(gen, WithContextMode(ContextSections))
		require.NoError(t, err)
		_, err = e.Extract(context.Background(), filingRequest(doc))
		require.NoError(t, err)
		user := gen.Prompts()[0].User
		assert.Contains(t, user, "[risk_factors]")
		assert.Contains(t, user, "[mda_financials]\nItem 7.")
	})

	t.Run("sections fall back to chunks for regulations", func(t *testing.T) {
		gen := mock.NewMockGenerator()
		e, err := New(gen, WithContextMode(ContextSections))
		require.NoError(t, err)
		req := filingRequest(doc)
		req.DocType = core.DocTypeRegulation
		_, err = e.Extract(context.Background(), req)
		require.NoError(t, err)
		assert.Contains(t, gen.Prompts()[0].User, "[chunk 0]")
		assert.Contains(t, gen.Prompts()[0].System, "regulatory document")
	})

	t.Run("retrieval", func(t *testing.T) {
		gen := mock.NewMockGenerator()
		retriever := &stubRetriever{hits: []core.IndexedText{{Index: 7, Text: "Net sales were $391 billion."}, {Index: 2, Text: "Competitors include Samsung."}}}
		e, err := New(gen, WithContextMode(ContextRetrieval), WithRetriever(retriever), WithTopK(1))
		require.NoError(t, err)
		_, err = e.Extract(context.Background(), filingRequest(nil))
		require.NoError(t, err)
		user := gen.Prompts()[0].User
		assert.Contains(t, user, "[chunk 7]\nNet sales were $391 billion.")
		assert.NotContains(t, user, "Samsung")
		assert.Contains(t, retriever.query, "revenue")
	})

	t.Run("retrieval failure falls back to summary", func(t *testing.T) {
		gen := mock.NewMockGenerator()
		retriever := &stubRetriever{err: errors.New("index unavailable")}
		e, err := New(gen, WithContextMode(ContextRetrieval), WithRetriever(retriever))
		require.NoError(t, err)
		_, err = e.Extract(context.Background(), filingRequest(nil))
		require.NoError(t, err)
		assert.NotContains(t, gen.Prompts()[0].User, "Document excerpts")
	})
}

func TestExtract_HintAndDegradedSummary(t *testing.T) {
	gen := mock.NewMockGenerator()
	e, err := New(gen)
	require.NoError(t, err)

	req := filingRequest(nil)
	req.Hint = &Hint{Symbol: "AAPL", Company: "Apple Inc.", Sector: "Information Technology"}
	req.Summary.Degraded = true

	_, err = e.Extract(context.Background(), req)
	require.NoError(t, err)

	user := gen.Prompts()[0].User
	assert.Contains(t, user, "- symbol: AAPL")
	assert.Contains(t, user, "- sector: Information Technology")
	assert.Contains(t, user, "could not be summarized")
}
