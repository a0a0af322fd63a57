package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/finextract/ai"
	"github.com/poiesic/finextract/core"
)

const (
	// DefaultContextBudget bounds, in runes, the document text added to the summary.
	DefaultContextBudget = 8000

	// DefaultParseAttempts is how many responses are requested before the
	// record degrades to sentinels.
	DefaultParseAttempts = 2

	// DefaultTopK is the number of chunks retrieved in ContextRetrieval mode.
	DefaultTopK = 4

	// DefaultMaxTokens bounds each extraction response.
	DefaultMaxTokens = 2048
)

// Hint is reference data about the company a filing likely belongs to.
type Hint struct {
	Symbol  string
	Company string
	Sector  string
}

// Request is one extraction.
type Request struct {
	FileName string
	DocType  core.DocType
	Summary  *core.DocumentSummary
	Document *core.AssembledDocument // needed by every mode except ContextSummary
	Hint     *Hint
}

// Result is an extracted record and the fields that fell back to sentinels.
type Result struct {
	Record   core.Record
	Warnings []core.SchemaParseWarning
	Attempts int  // generator calls made
	Degraded bool // no response could be parsed; every field is a sentinel
}

// Extractor turns summaries into structured records.
type Extractor struct {
	generator     ai.Generator
	retriever     Retriever
	mode          ContextMode
	contextBudget int
	parseAttempts int
	topK          int
	maxTokens     int
	logger        *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithContextMode selects the document context sent with the summary.
// Default is ContextSummary.
func WithContextMode(mode ContextMode) Option {
	return func(e *Extractor) error {
		parsed, err := ParseContextMode(string(mode))
		if err != nil {
			return err
		}
		e.mode = parsed
		return nil
	}
}

// WithRetriever sets the similarity search used by ContextRetrieval.
func WithRetriever(r Retriever) Option {
	return func(e *Extractor) error {
		e.retriever = r
		return nil
	}
}

// WithContextBudget bounds, in runes, the document text added to the summary.
func WithContextBudget(runes int) Option {
	return func(e *Extractor) error {
		if runes > 0 {
			e.contextBudget = runes
		}
		return nil
	}
}

// WithParseAttempts sets how many responses are requested before the record
// degrades to sentinels.
func WithParseAttempts(n int) Option {
	return func(e *Extractor) error {
		e.parseAttempts = max(n, 1)
		return nil
	}
}

// WithTopK sets the number of chunks retrieved in ContextRetrieval mode.
func WithTopK(k int) Option {
	return func(e *Extractor) error {
		e.topK = max(k, 1)
		return nil
	}
}

// WithMaxTokens bounds each response.
func WithMaxTokens(tokens int) Option {
	return func(e *Extractor) error {
		e.maxTokens = tokens
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// New creates an Extractor.
func New(generator ai.Generator, opts ...Option) (*Extractor, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	e := &Extractor{
		generator:     generator,
		mode:          ContextSummary,
		contextBudget: DefaultContextBudget,
		parseAttempts: DefaultParseAttempts,
		topK:          DefaultTopK,
		maxTokens:     DefaultMaxTokens,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.mode == ContextRetrieval && e.retriever == nil {
		return nil, ErrRetrieverRequired
	}
	e.logger = e.logger.With("component", "extractor", "mode", e.mode)
	return e, nil
}

// Mode returns the configured context mode.
func (e *Extractor) Mode() ContextMode { return e.mode }

// Extract runs one extraction. Generator failures are returned wrapped in
// core.ErrExtractionService; parse failures never are.
func (e *Extractor) Extract(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || strings.TrimSpace(req.FileName) == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, core.ErrEmptyFileName)
	}
	if req.Summary == nil {
		return nil, fmt.Errorf("%w: %s has no summary", ErrInvalidRequest, req.FileName)
	}
	if _, err := core.Columns(req.DocType); err != nil {
		return nil, err
	}

	excerpts, err := e.excerpts(ctx, req)
	if err != nil {
		return nil, err
	}

	prompt := ai.Prompt{
		System:    buildSystemPrompt(req.DocType),
		User:      buildUserPrompt(req, excerpts),
		JSONMode:  true,
		MaxTokens: e.maxTokens,
	}

	result := &Result{}
	for attempt := 1; attempt <= e.parseAttempts; attempt++ {
		result.Attempts = attempt
		raw, err := e.generator.Generate(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrExtractionService, err)
		}

		obj, err := decodeObject(raw)
		if err == nil {
			result.Record, result.Warnings = buildRecord(req.DocType, req.FileName, obj)
			e.logWarnings(req.FileName, result.Warnings)
			return result, nil
		}

		e.logger.Warn("unparseable extraction response",
			"file", req.FileName, "attempt", attempt, "attempts", e.parseAttempts, "err", err)
		if attempt == 1 {
			prompt.User += retryNotice
		}
	}

	result.Record, result.Warnings = sentinelRecord(req.DocType, req.FileName, "no parseable response")
	result.Degraded = true
	e.logger.Error("extraction degraded to sentinel record", "file", req.FileName, "attempts", result.Attempts)
	return result, nil
}

func (e *Extractor) logWarnings(fileName string, warnings []core.SchemaParseWarning) {
	if len(warnings) == 0 {
		return
	}
	fields := make([]string, len(warnings))
	for i, w := range warnings {
		fields[i] = w.Field
	}
	e.logger.Debug("fields defaulted to sentinels", "file", fileName, "fields", fields)
}

// excerpts gathers the document context for the configured mode.
func (e *Extractor) excerpts(ctx context.Context, req *Request) ([]excerpt, error) {
	mode := e.mode
	if mode == ContextSummary {
		return nil, nil
	}
	if mode == ContextSections && req.DocType != core.DocTypeFiling {
		mode = ContextChunks
	}

	switch mode {
	case ContextChunks:
		if req.Document == nil {
			return nil, nil
		}
		return leadingChunks(req.Document, e.contextBudget), nil

	case ContextSections:
		if req.Document == nil {
			return nil, nil
		}
		sections := Sections(req.Document.FullText, e.contextBudget/len(SectionOrder))
		var out []excerpt
		for _, name := range SectionOrder {
			if text := sections[name]; text != "" {
				out = append(out, excerpt{label: name, text: text})
			}
		}
		return out, nil

	case ContextRetrieval:
		hits, err := e.retriever.Retrieve(ctx, req.DocType, req.FileName, retrievalQueries[req.DocType], e.topK)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			e.logger.Warn("retrieval failed, extracting from summary only", "file", req.FileName, "err", err)
			return nil, nil
		}
		var out []excerpt
		used := 0
		for _, hit := range hits {
			n := utf8.RuneCountInString(hit.Text)
			if used+n > e.contextBudget {
				break
			}
			used += n
			out = append(out, excerpt{label: fmt.Sprintf("chunk %d", hit.Index), text: hit.Text})
		}
		return out, nil
	}
	return nil, nil
}

func leadingChunks(doc *core.AssembledDocument, budget int) []excerpt {
	var out []excerpt
	used := 0
	for _, chunk := range doc.Chunks {
		text := chunk.Text
		n := utf8.RuneCountInString(text)
		if used+n > budget {
			if remaining := budget - used; remaining > 0 && len(out) == 0 {
				out = append(out, excerpt{label: fmt.Sprintf("chunk %d", chunk.Index), text: string([]rune(text)[:remaining])})
			}
			break
		}
		used += n
		out = append(out, excerpt{label: fmt.Sprintf("chunk %d", chunk.Index), text: text})
	}
	return out
}
