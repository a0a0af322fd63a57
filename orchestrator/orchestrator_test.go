package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/finextract/ai"
	"github.com/poiesic/finextract/ai/mock"
	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/extract"
	"github.com/poiesic/finextract/retry"
	"github.com/poiesic/finextract/storage"
	"github.com/poiesic/finextract/storage/badger"
	"github.com/poiesic/finextract/summarize"
)

var fastPolicy = retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

var documentLine = regexp.MustCompile(`Document: (\S+)`)

// companyGenerator answers extraction prompts with a company name derived
// from the file name and fails for any file listed in failing.
func companyGenerator(failing ...string) *mock.MockGenerator {
	return mock.NewMockGenerator().WithGenerateFunc(func(ctx context.Context, p ai.Prompt) (string, error) {
		if !p.JSONMode {
			return "Summary of the filing.", nil
		}
		m := documentLine.FindStringSubmatch(p.User)
		if m == nil {
			return "", errors.New("no document in prompt")
		}
		for _, f := range failing {
			if m[1] == f {
				return "", errors.New("model unavailable")
			}
		}
		company := strings.ToUpper(strings.TrimSuffix(m[1], ".html"))
		return fmt.Sprintf(`{"company_name": %q, "revenue": 1000}`, company), nil
	})
}

func newStore(t *testing.T) *badger.Store {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// stage writes docs directly into the staged table with their manifests.
func stage(t *testing.T, store storage.Store, docType core.DocType, docs map[string][]string) {
	t.Helper()
	table, err := store.StagedTable(docType)
	require.NoError(t, err)
	ctx := context.Background()
	for name, chunks := range docs {
		require.NoError(t, table.RecordManifest(ctx, &core.StagedManifest{
			DocType:    docType,
			FileName:   name,
			ChunkCount: len(chunks),
			ContentID:  core.IDFromContent(strings.Join(chunks, "")),
		}))
		for i, text := range chunks {
			require.NoError(t, table.AppendChunk(ctx, &core.Chunk{
				FileName:   name,
				ChunkIndex: i,
				ChunkText:  text,
				Embedding:  mock.DeterministicVector(text, mock.Dimension),
			}))
		}
	}
}

func corpus(n int) map[string][]string {
	docs := make(map[string][]string, n)
	for i := range n {
		docs[fmt.Sprintf("doc_%02d.html", i)] = []string{
			fmt.Sprintf("Annual report of company %d. ", i),
			"Revenue grew this year.",
		}
	}
	return docs
}

func newOrchestrator(t *testing.T, store storage.Store, gen ai.Generator, opts ...Option) *Orchestrator {
	t.Helper()
	s, err := summarize.New(core.DocTypeFiling, gen, summarize.WithRetryPolicy(fastPolicy))
	require.NoError(t, err)
	e, err := extract.New(gen)
	require.NoError(t, err)
	opts = append([]Option{WithRetryPolicy(fastPolicy)}, opts...)
	o, err := New(store, s, e, opts...)
	require.NoError(t, err)
	t.Cleanup(o.Release)
	return o
}

func outputNames(t *testing.T, store storage.Store) []string {
	t.Helper()
	out, err := store.OutputTable(core.DocTypeFiling)
	require.NoError(t, err)
	names, err := out.FileNames(context.Background())
	require.NoError(t, err)
	sort.Strings(names)
	return names
}

func TestNew(t *testing.T) {
	store := newStore(t)
	gen := mock.NewMockGenerator()
	s, err := summarize.New(core.DocTypeFiling, gen)
	require.NoError(t, err)
	e, err := extract.New(gen)
	require.NoError(t, err)

	t.Run("nil store", func(t *testing.T) {
		_, err := New(nil, s, e)
		assert.Equal(t, ErrStoreRequired, err)
	})

	t.Run("nil summarizer", func(t *testing.T) {
		_, err := New(store, nil, e)
		assert.Equal(t, ErrSummarizerRequired, err)
	})

	t.Run("nil extractor", func(t *testing.T) {
		_, err := New(store, s, nil)
		assert.Equal(t, ErrExtractorRequired, err)
	})

	t.Run("invalid pool size", func(t *testing.T) {
		_, err := New(store, s, e, WithPoolSize(0))
		assert.Error(t, err)
	})

	t.Run("invalid retry policy", func(t *testing.T) {
		_, err := New(store, s, e, WithRetryPolicy(retry.Policy{}))
		assert.Error(t, err)
	})
}

func TestRun_EmptyStagedTable(t *testing.T) {
	store := newStore(t)
	o := newOrchestrator(t, store, companyGenerator())

	summary, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrStagedTableEmpty)
	assert.Nil(t, summary)
}

func TestRun_WritesEveryDocument(t *testing.T) {
	store := newStore(t)
	stage(t, store, core.DocTypeFiling, corpus(6))
	o := newOrchestrator(t, store, companyGenerator(), WithPoolSize(3))

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Documents)
	assert.Len(t, summary.Written, 6)
	assert.Empty(t, summary.Failed)
	assert.NotEqual(t, summary.RunID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Len(t, outputNames(t, store), 6)

	state, ok := o.State("doc_00.html")
	require.True(t, ok)
	assert.Equal(t, StateWritten, state)

	out, err := store.OutputTable(core.DocTypeFiling)
	require.NoError(t, err)
	records, err := out.Records(context.Background())
	require.NoError(t, err)
	columns := len(core.FilingColumns)
	for _, r := range records {
		values := r.Values()
		require.Len(t, values, columns)
		for i, v := range values {
			assert.NotEmpty(t, v, "column %s of %s", core.FilingColumns[i], r.SourceFile())
		}
	}
}

func TestRun_FaultIsolation(t *testing.T) {
	store := newStore(t)
	stage(t, store, core.DocTypeFiling, corpus(5))
	gen := companyGenerator("doc_03.html")
	o := newOrchestrator(t, store, gen, WithPoolSize(2))

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, summary.Written, 4)
	require.Len(t, summary.Failed, 1)

	failure := summary.Failed[0]
	assert.Equal(t, "doc_03.html", failure.FileName)
	assert.Equal(t, StateExtracting, failure.State)
	assert.ErrorIs(t, failure, core.ErrExtractionService)
	assert.ErrorIs(t, summary.Err(), core.ErrExtractionService)

	state, _ := o.State("doc_03.html")
	assert.Equal(t, StateFailed, state)
	assert.NotContains(t, outputNames(t, store), "doc_03.html")
}

// extractorFunc adapts a function to the Extractor interface.
type extractorFunc func(ctx context.Context, req *extract.Request) (*extract.Result, error)

func (f extractorFunc) Extract(ctx context.Context, req *extract.Request) (*extract.Result, error) {
	return f(ctx, req)
}

// newOrchestratorWith wires a fixed extractor behind the usual summarizer.
func newOrchestratorWith(t *testing.T, store storage.Store, e Extractor, opts ...Option) *Orchestrator {
	t.Helper()
	s, err := summarize.New(core.DocTypeFiling, companyGenerator(), summarize.WithRetryPolicy(fastPolicy))
	require.NoError(t, err)
	opts = append([]Option{WithRetryPolicy(fastPolicy)}, opts...)
	o, err := New(store, s, e, opts...)
	require.NoError(t, err)
	t.Cleanup(o.Release)
	return o
}

func TestRun_RetriesServiceErrors(t *testing.T) {
	store := newStore(t)
	stage(t, store, core.DocTypeFiling, corpus(1))

	var calls atomic.Int32
	e := extractorFunc(func(ctx context.Context, req *extract.Request) (*extract.Result, error) {
		if calls.Add(1) == 1 {
			return nil, fmt.Errorf("%w: rate limited", core.ErrExtractionService)
		}
		return &extract.Result{Record: core.NewFilingRecord(req.FileName), Attempts: 1}, nil
	})
	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	o := newOrchestratorWith(t, store, e, WithRetryPolicy(policy))

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"doc_00.html"}, summary.Written)
	assert.Empty(t, summary.Failed)
	assert.Equal(t, int32(2), calls.Load())

	state, _ := o.State("doc_00.html")
	assert.Equal(t, StateWritten, state)
	assert.Equal(t, []string{"doc_00.html"}, outputNames(t, store))
}

func TestRun_OtherErrorsAreNotRetried(t *testing.T) {
	store := newStore(t)
	stage(t, store, core.DocTypeFiling, corpus(1))

	var calls atomic.Int32
	e := extractorFunc(func(ctx context.Context, req *extract.Request) (*extract.Result, error) {
		calls.Add(1)
		return nil, fmt.Errorf("%w: %s has no summary", extract.ErrInvalidRequest, req.FileName)
	})
	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	o := newOrchestratorWith(t, store, e, WithRetryPolicy(policy))

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Written)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, int32(1), calls.Load())

	failure := summary.Failed[0]
	assert.Equal(t, StateExtracting, failure.State)
	assert.ErrorIs(t, failure, extract.ErrInvalidRequest)
	assert.NotErrorIs(t, failure, core.ErrExtractionService)
	assert.Empty(t, outputNames(t, store))
}

func TestRun_SlowCallTimesOutAndRetries(t *testing.T) {
	store := newStore(t)
	stage(t, store, core.DocTypeFiling, corpus(1))

	var calls atomic.Int32
	slow := mock.NewMockGenerator().WithGenerateFunc(func(ctx context.Context, p ai.Prompt) (string, error) {
		if !p.JSONMode {
			return "Summary of the filing.", nil
		}
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return `{"company_name": "DOC_00", "revenue": 1000}`, nil
	})
	policy := retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, CallTimeout: 50 * time.Millisecond}
	o := newOrchestrator(t, store, slow, WithRetryPolicy(policy))

	start := time.Now()
	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"doc_00.html"}, summary.Written)
	assert.Empty(t, summary.Failed)
	assert.Equal(t, int32(2), calls.Load())
	assert.Less(t, time.Since(start), 5*time.Second)

	out, err := store.OutputTable(core.DocTypeFiling)
	require.NoError(t, err)
	records, err := out.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "DOC_00", records[0].(*core.FilingRecord).CompanyName)
}

func TestRun_Resume(t *testing.T) {
	store := newStore(t)
	stage(t, store, core.DocTypeFiling, corpus(4))

	first := newOrchestrator(t, store, companyGenerator("doc_01.html"))
	summary, err := first.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, summary.Written, 3)
	assert.Len(t, summary.Failed, 1)

	gen := companyGenerator()
	second := newOrchestrator(t, store, gen)
	summary, err = second.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"doc_01.html"}, summary.Written)
	assert.Equal(t, []string{"doc_00.html", "doc_02.html", "doc_03.html"}, summary.Skipped)
	assert.Empty(t, summary.Failed)
	assert.Len(t, outputNames(t, store), 4)

	for _, p := range gen.Prompts() {
		assert.NotContains(t, p.User, "doc_00.html", "completed documents are not re-prompted")
	}
}

func TestRun_PoolSizeDoesNotChangeOutput(t *testing.T) {
	docs := corpus(10)
	run := func(size int) []string {
		store := newStore(t)
		stage(t, store, core.DocTypeFiling, docs)
		o := newOrchestrator(t, store, companyGenerator(), WithPoolSize(size))
		_, err := o.Run(context.Background())
		require.NoError(t, err)

		out, err := store.OutputTable(core.DocTypeFiling)
		require.NoError(t, err)
		records, err := out.Records(context.Background())
		require.NoError(t, err)
		rows := make([]string, len(records))
		for i, r := range records {
			rows[i] = strings.Join(r.Values(), "|")
		}
		return rows
	}

	serial := run(1)
	parallel := run(8)
	assert.Len(t, serial, 10)
	assert.ElementsMatch(t, serial, parallel)
}

func TestRun_RevenueScenario(t *testing.T) {
	store := newStore(t)
	stage(t, store, core.DocTypeFiling, map[string][]string{
		"acme_10k.html": {"Revenue was ", "$4.49B in ", "fiscal 2024."},
	})
	gen := mock.NewMockGenerator().WithGenerateFunc(func(ctx context.Context, p ai.Prompt) (string, error) {
		if !p.JSONMode {
			return "Acme reported revenue of $4.49B in fiscal 2024.", nil
		}
		return `{"company_name": "Acme Corp", "revenue": 4490000000}`, nil
	})
	o := newOrchestrator(t, store, gen)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"acme_10k.html"}, summary.Written)

	prompts := gen.Prompts()
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0].User, "Revenue was $4.49B in fiscal 2024.")

	out, err := store.OutputTable(core.DocTypeFiling)
	require.NoError(t, err)
	records, err := out.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	filing, ok := records[0].(*core.FilingRecord)
	require.True(t, ok)
	assert.Equal(t, 4490000000.0, filing.Revenue)
	assert.Equal(t, "Acme Corp", filing.CompanyName)
}

func TestRun_DegradedSummaryStillWritten(t *testing.T) {
	store := newStore(t)
	stage(t, store, core.DocTypeFiling, corpus(2))
	gen := mock.NewMockGenerator().WithGenerateFunc(func(ctx context.Context, p ai.Prompt) (string, error) {
		if !p.JSONMode {
			if strings.Contains(p.User, "doc_01.html") {
				return "", errors.New("timeout")
			}
			return "Summary.", nil
		}
		return `{"company_name": "Co"}`, nil
	})
	o := newOrchestrator(t, store, gen)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, summary.Written, 2)
	assert.Equal(t, []string{"doc_01.html"}, summary.Degraded)
	assert.Positive(t, summary.Warnings)
}

func TestRun_Hints(t *testing.T) {
	store := newStore(t)
	stage(t, store, core.DocTypeFiling, corpus(1))
	gen := companyGenerator()
	o := newOrchestrator(t, store, gen, WithHints(func(name string) *extract.Hint {
		return &extract.Hint{Symbol: "ACME", Company: "Acme Corp"}
	}))

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	var found bool
	for _, p := range gen.Prompts() {
		if p.JSONMode && strings.Contains(p.User, "- symbol: ACME") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRun_IncompleteDocuments(t *testing.T) {
	store := newStore(t)
	stage(t, store, core.DocTypeFiling, corpus(2))
	table, err := store.StagedTable(core.DocTypeFiling)
	require.NoError(t, err)
	require.NoError(t, table.RecordManifest(context.Background(), &core.StagedManifest{
		DocType:    core.DocTypeFiling,
		FileName:   "partial.html",
		ChunkCount: 3,
		ContentID:  core.IDFromContent("partial"),
	}))
	require.NoError(t, table.AppendChunk(context.Background(), &core.Chunk{
		FileName: "partial.html", ChunkIndex: 0, ChunkText: "first", Embedding: []float32{1},
	}))

	t.Run("skipped by default", func(t *testing.T) {
		o := newOrchestrator(t, store, companyGenerator())
		summary, err := o.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, summary.Incomplete, 1)
		assert.Equal(t, "partial.html", summary.Incomplete[0].FileName)
		assert.ErrorIs(t, summary.Incomplete[0], core.ErrIncompleteDocument)
		assert.NotContains(t, summary.Written, "partial.html")
	})

	t.Run("processed when enabled", func(t *testing.T) {
		o := newOrchestrator(t, store, companyGenerator(), WithIncomplete(true))
		summary, err := o.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"partial.html"}, summary.Written)
		assert.Len(t, summary.Incomplete, 1)
	})
}

func TestRun_CancelledContext(t *testing.T) {
	store := newStore(t)
	stage(t, store, core.DocTypeFiling, corpus(3))
	o := newOrchestrator(t, store, companyGenerator())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Empty(t, summary.Written)
}

func TestRunSummary_Print(t *testing.T) {
	summary := newRunSummary(core.DocTypeRegulation)
	summary.Documents = 3
	summary.Written = []string{"a.txt"}
	summary.Degraded = []string{"a.txt"}
	summary.Failed = []Failure{{FileName: "b.txt", State: StateExtracting, Err: core.ErrExtractionService}}

	var buf bytes.Buffer
	summary.Print(&buf)
	out := buf.String()
	assert.Contains(t, out, summary.RunID.String())
	assert.Contains(t, out, "regulations")
	assert.Contains(t, out, "failed: b.txt (while extracting)")
	assert.Contains(t, out, "degraded: a.txt")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "summarizing", StateSummarizing.String())
	assert.Equal(t, "written", StateWritten.String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateExtracting.Terminal())
}
