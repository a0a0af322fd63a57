package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/finextract/config"
	"github.com/poiesic/finextract/roster"
)

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func findStringFlag(cmd *cli.Command, name string) *cli.StringFlag {
	for _, flag := range cmd.Flags {
		if f, ok := flag.(*cli.StringFlag); ok && f.Name == name {
			return f
		}
	}
	return nil
}

func TestCommands(t *testing.T) {
	app := newApp()
	for _, name := range []string{"stage", "extract", "roster", "status", "export", "search"} {
		cmd := findCommand(t, app, name)
		assert.NotNil(t, cmd.Action, name)
	}
}

func TestRequiredFlags(t *testing.T) {
	testCases := []struct {
		args []string
		flag string
	}{
		{[]string{"finextract", "stage", "--input", "docs"}, "doc-type"},
		{[]string{"finextract", "stage", "--doc-type", "filing"}, "input"},
		{[]string{"finextract", "extract"}, "doc-type"},
		{[]string{"finextract", "roster", "--composition", "a.csv"}, "performance"},
		{[]string{"finextract", "export"}, "doc-type"},
		{[]string{"finextract", "search"}, "query"},
	}

	for _, tc := range testCases {
		t.Run(tc.args[1]+" requires "+tc.flag, func(t *testing.T) {
			err := newApp().Run(tc.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.flag)
		})
	}
}

func TestFlagDefaults(t *testing.T) {
	app := newApp()

	out := findStringFlag(findCommand(t, app, "roster"), "out")
	require.NotNil(t, out)
	assert.Equal(t, "master_roster.csv", out.Value)

	exportOut := findStringFlag(findCommand(t, app, "export"), "out")
	require.NotNil(t, exportOut)
	assert.Equal(t, "-", exportOut.Value)

	mode := findStringFlag(findCommand(t, app, "extract"), "context-mode")
	require.NotNil(t, mode)
	assert.Empty(t, mode.Value, "context mode comes from the config unless set")
}

func TestInvalidDocType(t *testing.T) {
	err := newApp().Run([]string{"finextract", "status", "--doc-type", "memo"})
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "finextract.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workspace: from-file\nstaging:\n  chunk_size: 4000\n"), 0o644))

	var cfg *config.Config
	app := newApp()
	app.Commands = []*cli.Command{{
		Name: "probe",
		Action: func(c *cli.Context) error {
			var err error
			cfg, err = loadConfig(c)
			return err
		},
	}}

	err := app.Run([]string{"finextract", "--config", path, "--workspace", dir, "--store", "badger",
		"--ai-host", "http://ai:8080/v1", "--generator-model", "llama3.1:8b", "probe"})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, dir, cfg.Workspace)
	assert.Equal(t, config.StoreBadger, cfg.Store)
	assert.Equal(t, 4000, cfg.Staging.ChunkSize)
	assert.Equal(t, "http://ai:8080/v1", cfg.AI.Host)
	assert.Equal(t, "llama3.1:8b", cfg.AI.GeneratorModel)

	t.Run("missing file", func(t *testing.T) {
		err := app.Run([]string{"finextract", "--config", filepath.Join(dir, "nope.yaml"), "probe"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load config")
	})
}

func TestRosterCommand(t *testing.T) {
	dir := t.TempDir()
	composition := filepath.Join(dir, "composition.csv")
	performance := filepath.Join(dir, "performance.csv")
	out := filepath.Join(dir, "master.csv")
	require.NoError(t, os.WriteFile(composition, []byte("#;Company;Symbol;Weight;Price\n1;Apple Inc.;AAPL;7,12;189,5\n2;Microsoft;MSFT;6,9;410\n"), 0o644))
	require.NoError(t, os.WriteFile(performance, []byte("Symbol,Company,Revenue,Net Income\nAAPL,Apple,\"383,285\",\"96,995\"\nNVDA,Nvidia,60922,29760\n"), 0o644))

	err := newApp().RunContext(context.Background(), []string{"finextract", "roster",
		"--composition", composition, "--performance", performance, "--out", out})
	require.NoError(t, err)

	r, err := roster.Load(out)
	require.NoError(t, err)
	require.Equal(t, 1, r.Len())
	e, ok := r.Lookup("aapl")
	require.True(t, ok)
	assert.Equal(t, "Apple Inc.", e.Company)
	assert.InDelta(t, 383285, e.Revenue, 0.001)
}

func TestStatusAndExportCommands(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "filings.xlsx")

	err := newApp().Run([]string{"finextract", "--workspace", dir, "status"})
	require.NoError(t, err)

	err = newApp().Run([]string{"finextract", "--workspace", dir, "export", "--doc-type", "filing", "--out", out})
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestExtractRequiresStagedDocuments(t *testing.T) {
	dir := t.TempDir()
	err := newApp().Run([]string{"finextract", "--workspace", dir, "extract", "--doc-type", "regulation"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run stage first")
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "WaRn"} {
			t.Run(level, func(t *testing.T) {
				app := &cli.App{
					Name:   "test",
					Flags:  []cli.Flag{&cli.StringFlag{Name: "log-level", Value: "info"}},
					Before: setupLogger,
					Action: func(c *cli.Context) error { return nil },
				}
				require.NoError(t, app.Run([]string{"test", "--log-level", level}))
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		err := newApp().Run([]string{"finextract", "-l", "loud", "status"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}
