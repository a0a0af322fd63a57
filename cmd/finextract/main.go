// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/finextract"
	"github.com/poiesic/finextract/config"
	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/export"
	"github.com/poiesic/finextract/roster"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func docTypeFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "doc-type",
		Aliases:  []string{"t"},
		Usage:    "Document type (filing, regulation)",
		Required: required,
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "finextract",
		Usage: "Extract structured records from financial filings and regulations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"FINEXTRACT_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "workspace",
				Aliases: []string{"w"},
				Usage:   "Workspace directory holding the staged and output tables",
				EnvVars: []string{"FINEXTRACT_WORKSPACE"},
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Table store (csv, badger)",
			},
			&cli.StringFlag{
				Name:    "ai-host",
				Usage:   "Base URL of the embedding and generation service",
				EnvVars: []string{"FINEXTRACT_AI_HOST"},
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name",
			},
			&cli.StringFlag{
				Name:  "generator-model",
				Usage: "Generation model name",
			},
			&cli.StringFlag{
				Name:    "ai-token",
				Usage:   "API token for the AI service",
				EnvVars: []string{"FINEXTRACT_AI_TOKEN"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "stage",
				Usage:  "Chunk and embed the documents of a directory",
				Action: stageCommand,
				Flags: []cli.Flag{
					docTypeFlag(true),
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "Directory of source documents",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent embedding calls (overrides config)",
					},
				},
			},
			{
				Name:   "extract",
				Usage:  "Summarize staged documents and write structured records",
				Action: extractCommand,
				Flags: []cli.Flag{
					docTypeFlag(true),
					&cli.StringFlag{
						Name:  "context-mode",
						Usage: "Extraction context (summary, summary+chunks, summary+sections, summary+retrieval)",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Documents processed concurrently (overrides config)",
					},
					&cli.StringFlag{
						Name:  "roster",
						Usage: "Master roster CSV or XLSX used as filing hints",
					},
					&cli.BoolFlag{
						Name:  "include-incomplete",
						Usage: "Process documents with missing chunks instead of skipping them",
					},
				},
			},
			{
				Name:   "roster",
				Usage:  "Join index composition and stock performance tables into a master roster",
				Action: rosterCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "composition",
						Usage:    "Index composition table (CSV or XLSX)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "performance",
						Usage:    "Stock performance table (CSV or XLSX)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Output path; the extension selects CSV or XLSX",
						Value: "master_roster.csv",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show staging and extraction progress",
				Action: statusCommand,
				Flags:  []cli.Flag{docTypeFlag(false)},
			},
			{
				Name:   "export",
				Usage:  "Write an output table as CSV or XLSX",
				Action: exportCommand,
				Flags: []cli.Flag{
					docTypeFlag(true),
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output path, or - for stdout",
						Value:   "-",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Format when writing to stdout (csv, xlsx)",
						Value: "csv",
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Semantic search over staged chunks",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Search query",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "k",
						Aliases: []string{"n"},
						Usage:   "Maximum number of hits",
						Value:   10,
					},
					docTypeFlag(false),
				},
			},
		},
	}
}

// loadConfig reads the config file, if any, and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if c.IsSet("workspace") {
		cfg.Workspace = c.String("workspace")
	}
	if c.IsSet("store") {
		cfg.Store = config.StoreKind(c.String("store"))
	}
	if c.IsSet("ai-host") {
		cfg.AI.Host = c.String("ai-host")
	}
	if c.IsSet("embedding-model") {
		cfg.AI.EmbeddingModel = c.String("embedding-model")
	}
	if c.IsSet("generator-model") {
		cfg.AI.GeneratorModel = c.String("generator-model")
	}
	if c.IsSet("ai-token") {
		cfg.AI.Token = c.String("ai-token")
	}
	return cfg, nil
}

func openWorkspace(cfg *config.Config) (*finextract.Workspace, error) {
	ws, err := finextract.OpenWorkspace(cfg, finextract.WithProgress(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace %s: %w", cfg.Workspace, err)
	}
	return ws, nil
}

func docTypes(c *cli.Context) ([]core.DocType, error) {
	if !c.IsSet("doc-type") {
		return core.DocTypes, nil
	}
	dt, err := core.ParseDocType(c.String("doc-type"))
	if err != nil {
		return nil, err
	}
	return []core.DocType{dt}, nil
}

func stageCommand(c *cli.Context) error {
	docType, err := core.ParseDocType(c.String("doc-type"))
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("workers") {
		cfg.Staging.Workers = c.Int("workers")
	}
	ws, err := openWorkspace(cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	stager, err := ws.NewStager()
	if err != nil {
		return fmt.Errorf("failed to create stager: %w", err)
	}
	defer stager.Release()

	fmt.Fprintf(os.Stderr, "Workspace: %s (%s)\n", cfg.Workspace, cfg.Store)
	fmt.Fprintf(os.Stderr, "Input: %s\n", c.String("input"))
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	report, err := stager.StageDir(c.Context, docType, c.String("input"))
	if report != nil {
		report.Print(os.Stdout)
	}
	if err != nil {
		return fmt.Errorf("staging failed: %w", err)
	}
	return report.Err()
}

func extractCommand(c *cli.Context) error {
	docType, err := core.ParseDocType(c.String("doc-type"))
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("context-mode") {
		cfg.Extraction.ContextMode = c.String("context-mode")
	}
	if c.IsSet("workers") {
		cfg.Extraction.Workers = c.Int("workers")
	}
	if c.IsSet("roster") {
		cfg.Roster = c.String("roster")
	}
	if c.Bool("include-incomplete") {
		cfg.Extraction.IncludeIncomplete = true
	}
	ws, err := openWorkspace(cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	orch, err := ws.NewOrchestrator(c.Context, docType)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orch.Release()

	fmt.Fprintf(os.Stderr, "Workspace: %s (%s)\n", cfg.Workspace, cfg.Store)
	fmt.Fprintf(os.Stderr, "Generator model: %s\n", cfg.AI.GeneratorModel)
	fmt.Fprintf(os.Stderr, "Context mode: %s\n", cfg.Extraction.ContextMode)
	fmt.Fprintln(os.Stderr)

	summary, err := orch.Run(c.Context)
	if summary != nil {
		summary.Print(os.Stdout)
	}
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	return summary.Err()
}

func rosterCommand(c *cli.Context) error {
	r, err := roster.Build(c.Context, c.String("composition"), c.String("performance"))
	if err != nil {
		return fmt.Errorf("failed to build roster: %w", err)
	}
	if r.Len() == 0 {
		return errors.New("no symbol appears in both tables")
	}
	out := c.String("out")
	if err := r.Save(out); err != nil {
		return fmt.Errorf("failed to save roster: %w", err)
	}
	fmt.Fprintf(os.Stdout, "Wrote %d companies to %s\n", r.Len(), out)
	return nil
}

func statusCommand(c *cli.Context) error {
	types, err := docTypes(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ws, err := openWorkspace(cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	for _, dt := range types {
		st, err := ws.Status(c.Context, dt)
		if err != nil {
			return fmt.Errorf("failed to read %s status: %w", dt, err)
		}
		st.Print(os.Stdout)
	}
	return nil
}

func exportCommand(c *cli.Context) error {
	docType, err := core.ParseDocType(c.String("doc-type"))
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ws, err := openWorkspace(cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	table, err := ws.Store().OutputTable(docType)
	if err != nil {
		return err
	}

	out := c.String("out")
	var n int
	if out == "-" {
		format, err := export.ParseFormat(c.String("format"))
		if err != nil {
			return err
		}
		n, err = export.Table(c.Context, os.Stdout, format, table)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
	} else {
		if n, err = export.TableFile(c.Context, out, table); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
	}
	slog.Info("exported records", "doc_type", docType, "records", n, "out", out)
	return nil
}

func searchCommand(c *cli.Context) error {
	types, err := docTypes(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ws, err := openWorkspace(cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	index, err := ws.NewIndex(c.Context, types...)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	hits, err := index.Search(c.Context, c.String("query"), c.Int("k"), types...)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(hits) == 0 {
		fmt.Fprintln(os.Stdout, "No matches.")
		return nil
	}
	for i, hit := range hits {
		marker := ""
		if hit.Verbatim {
			marker = " verbatim"
		}
		fmt.Fprintf(os.Stdout, "%2d. [%.3f%s] %s %s #%d\n", i+1, hit.Score, marker, hit.DocType, hit.FileName, hit.ChunkIndex)
		fmt.Fprintf(os.Stdout, "    %s\n", snippet(hit.Text, 200))
	}
	return nil
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
