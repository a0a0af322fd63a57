package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/finextract/ai"
	"github.com/poiesic/finextract/chunker"
	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/retry"
	"github.com/poiesic/finextract/storage"
)

const (
	// DefaultInputBudget is the largest text, in runes, sent in one call.
	DefaultInputBudget = 24000

	// DefaultMaxSummaryRunes bounds the final summary.
	DefaultMaxSummaryRunes = 4000

	// DefaultMaxTokens bounds each summarization response.
	DefaultMaxTokens = 1024

	// maxRounds bounds the number of reduction rounds.
	maxRounds = 8
)

// Summarizer produces bounded summaries of one document type.
type Summarizer struct {
	docType         core.DocType
	generator       ai.Generator
	policy          retry.Policy
	inputBudget     int
	maxSummaryRunes int
	maxTokens       int
	cache           storage.SummaryCache
	windows         *chunker.Chunker
	logger          *slog.Logger
}

// Option configures a Summarizer.
type Option func(*Summarizer) error

// WithInputBudget sets the largest text, in runes, sent in one call.
func WithInputBudget(runes int) Option {
	return func(s *Summarizer) error {
		if runes < 1 {
			return fmt.Errorf("%w: input budget %d", ErrInvalidBudget, runes)
		}
		s.inputBudget = runes
		return nil
	}
}

// WithMaxSummaryRunes bounds the final summary.
func WithMaxSummaryRunes(runes int) Option {
	return func(s *Summarizer) error {
		if runes < 1 {
			return fmt.Errorf("%w: summary limit %d", ErrInvalidBudget, runes)
		}
		s.maxSummaryRunes = runes
		return nil
	}
}

// WithMaxTokens bounds each response.
func WithMaxTokens(tokens int) Option {
	return func(s *Summarizer) error {
		s.maxTokens = tokens
		return nil
	}
}

// WithRetryPolicy sets the policy applied to each call.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(s *Summarizer) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		s.policy = policy
		return nil
	}
}

// WithCache reuses and stores non-degraded summaries. Nil disables caching.
func WithCache(cache storage.SummaryCache) Option {
	return func(s *Summarizer) error {
		s.cache = cache
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Summarizer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a Summarizer for docType.
func New(docType core.DocType, generator ai.Generator, opts ...Option) (*Summarizer, error) {
	if _, err := core.Columns(docType); err != nil {
		return nil, err
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	s := &Summarizer{
		docType:         docType,
		generator:       generator,
		policy:          retry.DefaultPolicy(),
		inputBudget:     DefaultInputBudget,
		maxSummaryRunes: DefaultMaxSummaryRunes,
		maxTokens:       DefaultMaxTokens,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	// Window summaries must shrink the text or reduction never converges.
	if s.maxSummaryRunes*2 > s.inputBudget {
		return nil, fmt.Errorf("%w: summary limit %d must be at most half the input budget %d",
			ErrInvalidBudget, s.maxSummaryRunes, s.inputBudget)
	}

	windows, err := chunker.New(chunker.WithMaxChunkSize(s.inputBudget))
	if err != nil {
		return nil, err
	}
	s.windows = windows
	s.logger = s.logger.With("component", "summarizer", "doc_type", docType)
	return s, nil
}

// InputBudget returns the largest text, in runes, sent in one call.
func (s *Summarizer) InputBudget() int { return s.inputBudget }

// DocType returns the document type the summarizer prompts for.
func (s *Summarizer) DocType() core.DocType { return s.docType }

// Summarize returns exactly one summary of doc. Service failures never fail
// the call: omitted windows are recorded and the summary is marked Degraded.
func (s *Summarizer) Summarize(ctx context.Context, doc *core.AssembledDocument) (*core.DocumentSummary, error) {
	if doc == nil || strings.TrimSpace(doc.FullText) == "" {
		return nil, core.ErrEmptyDocument
	}

	if cached := s.cached(ctx, doc.FileName); cached != nil {
		return cached, nil
	}

	summary := &core.DocumentSummary{DocType: s.docType, FileName: doc.FileName}
	text := strings.TrimSpace(doc.FullText)

	windows, err := s.windows.Chunk(text)
	if err != nil {
		return nil, err
	}
	summary.Windows = len(windows)

	var partials []string
	for i, window := range windows {
		out, err := s.call(ctx, summarySystemPrompt(s.docType, s.maxSummaryRunes),
			windowUserPrompt(doc.FileName, i, len(windows), window))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.logger.Warn("omitting window after failed summarization",
				"file", doc.FileName, "window", i, "windows", len(windows), "err", err)
			summary.OmittedWindows = append(summary.OmittedWindows, i)
			summary.Degraded = true
			continue
		}
		partials = append(partials, truncate(out, s.maxSummaryRunes))
	}

	switch {
	case len(partials) == 0:
		// Nothing came back; fall back to the leading document text.
		s.logger.Warn("every window failed, using leading document text", "file", doc.FileName)
		summary.Text = truncate(text, s.maxSummaryRunes)
	case len(windows) == 1:
		summary.Text = partials[0]
	default:
		reduced, degraded, err := s.reduce(ctx, doc.FileName, partials)
		if err != nil {
			return nil, err
		}
		summary.Text = reduced
		summary.Degraded = summary.Degraded || degraded
	}

	s.logger.Debug("summarized document",
		"file", doc.FileName,
		"windows", summary.Windows,
		"omitted", len(summary.OmittedWindows),
		"degraded", summary.Degraded,
		"runes", utf8.RuneCountInString(summary.Text))

	if !summary.Degraded && s.cache != nil {
		if err := s.cache.PutSummary(ctx, summary); err != nil {
			s.logger.Warn("failed to cache summary", "file", doc.FileName, "err", err)
		}
	}
	return summary, nil
}

// reduce folds partial summaries into one. When the joined partials exceed
// the budget they are windowed and summarized again.
func (s *Summarizer) reduce(ctx context.Context, fileName string, partials []string) (string, bool, error) {
	degraded := false
	for round := 0; round < maxRounds; round++ {
		joined := strings.Join(partials, "\n\n")
		if utf8.RuneCountInString(joined) <= s.inputBudget {
			out, err := s.call(ctx, reduceSystemPrompt(s.docType, s.maxSummaryRunes), reduceUserPrompt(fileName, partials))
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return "", false, ctxErr
				}
				s.logger.Warn("reduce failed, using joined partial summaries", "file", fileName, "err", err)
				return truncate(joined, s.maxSummaryRunes), true, nil
			}
			return truncate(out, s.maxSummaryRunes), degraded, nil
		}

		windows, err := s.windows.Chunk(joined)
		if err != nil {
			return "", false, err
		}
		s.logger.Debug("reducing partial summaries", "file", fileName, "round", round+1, "windows", len(windows))

		next := make([]string, 0, len(windows))
		for i, window := range windows {
			out, err := s.call(ctx, reduceSystemPrompt(s.docType, s.maxSummaryRunes),
				windowUserPrompt(fileName, i, len(windows), window))
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return "", false, ctxErr
				}
				s.logger.Warn("dropping partial summary window", "file", fileName, "round", round+1, "window", i, "err", err)
				degraded = true
				continue
			}
			next = append(next, truncate(out, s.maxSummaryRunes))
		}
		if len(next) == 0 {
			return truncate(joined, s.maxSummaryRunes), true, nil
		}
		partials = next
	}
	return truncate(strings.Join(partials, "\n\n"), s.maxSummaryRunes), true, nil
}

// call runs one generation under the retry policy. Errors wrap
// core.ErrExtractionService.
func (s *Summarizer) call(ctx context.Context, system, user string) (string, error) {
	var out string
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		text, err := s.generator.Generate(ctx, ai.Prompt{
			System:    system,
			User:      user,
			MaxTokens: s.maxTokens,
		})
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return ai.ErrEmptyResponse
		}
		out = text
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", core.ErrExtractionService, err)
	}
	return out, nil
}

func (s *Summarizer) cached(ctx context.Context, fileName string) *core.DocumentSummary {
	if s.cache == nil {
		return nil
	}
	summary, err := s.cache.GetSummary(ctx, s.docType, fileName)
	if err != nil {
		s.logger.Warn("summary cache lookup failed", "file", fileName, "err", err)
		return nil
	}
	if summary != nil {
		s.logger.Debug("using cached summary", "file", fileName)
	}
	return summary
}

// truncate cuts s to at most limit runes, preferring a whitespace boundary
// in the final tenth.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)[:limit]
	for i := len(runes) - 1; i >= limit-limit/10 && i > 0; i-- {
		if runes[i] == ' ' || runes[i] == '\n' {
			return strings.TrimSpace(string(runes[:i]))
		}
	}
	return string(runes)
}
