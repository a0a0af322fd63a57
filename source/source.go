// Package source discovers raw filings and regulations on disk and normalizes
// them to plain text documents.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/poiesic/finextract/core"
)

var (
	// ErrUnsupportedFormat is returned for a file whose extension has no loader.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNotDirectory is returned when the corpus root is not a directory.
	ErrNotDirectory = errors.New("corpus root is not a directory")
)

// LoadError is a file that was discovered but could not be read or parsed.
type LoadError struct {
	FileName string
	Err      error
}

func (e *LoadError) Error() string { return "load " + e.FileName + ": " + e.Err.Error() }

func (e *LoadError) Unwrap() error { return e.Err }

type loadFunc func(path string) (string, error)

var loaders = map[string]loadFunc{
	".html": loadMarkup,
	".htm":  loadMarkup,
	".xml":  loadMarkup,
	".txt":  loadPlain,
	".md":   loadMarkdown,
	".pdf":  loadPDF,
	".docx": loadDOCX,
}

// DefaultExtensions lists every extension a Loader accepts by default.
func DefaultExtensions() []string {
	exts := make([]string, 0, len(loaders))
	for ext := range loaders {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Loader reads documents from a corpus directory.
type Loader struct {
	extensions map[string]bool
	logger     *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) error {
		l.logger = logger
		return nil
	}
}

// WithExtensions restricts discovery to the given extensions (".html", "pdf", ...).
func WithExtensions(exts ...string) Option {
	return func(l *Loader) error {
		allowed := make(map[string]bool, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			if _, ok := loaders[ext]; !ok {
				return fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
			}
			allowed[ext] = true
		}
		l.extensions = allowed
		return nil
	}
}

// NewLoader creates a Loader accepting DefaultExtensions.
func NewLoader(opts ...Option) (*Loader, error) {
	l := &Loader{logger: slog.Default()}
	if err := WithExtensions(DefaultExtensions()...)(l); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	l.logger = l.logger.With("component", "source")
	return l, nil
}

// Discover walks root recursively and returns the slash-separated paths,
// relative to root, of every supported file, sorted.
func (l *Loader) Discover(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root && !d.IsDir() {
			return fmt.Errorf("%w: %s", ErrNotDirectory, root)
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !l.extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// Load reads and normalizes one file. name is relative to root and becomes
// the document's FileName. Empty text is not an error here; the chunker
// reports it.
func (l *Loader) Load(root, name string) (core.Document, error) {
	ext := strings.ToLower(filepath.Ext(name))
	load, ok := loaders[ext]
	if !ok {
		return core.Document{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}

	text, err := load(filepath.Join(root, filepath.FromSlash(name)))
	if err != nil {
		return core.Document{}, &LoadError{FileName: name, Err: err}
	}
	return core.Document{FileName: name, Text: text}, nil
}

// LoadAll discovers and loads every document under root. Files that fail to
// load are logged and skipped; their errors are joined into the returned
// error alongside the documents that did load.
func (l *Loader) LoadAll(ctx context.Context, root string) ([]core.Document, error) {
	names, err := l.Discover(root)
	if err != nil {
		return nil, err
	}

	docs := make([]core.Document, 0, len(names))
	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return docs, err
		}
		doc, err := l.Load(root, name)
		if err != nil {
			l.logger.Warn("skipping unreadable document", "file", name, "err", err)
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}

	l.logger.Debug("loaded corpus", "root", root, "documents", len(docs), "failed", len(errs))
	return docs, errors.Join(errs...)
}
