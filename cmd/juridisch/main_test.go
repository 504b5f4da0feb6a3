package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/legaldocumentflow/internal/config"
	"github.com/Lllllllleong/legaldocumentflow/internal/pipeline"
	"github.com/Lllllllleong/legaldocumentflow/internal/report"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestVersionAndVariants(t *testing.T) {
	assert.Contains(t, execute(t, "version"), "juridisch version "+Version)

	out := execute(t, "variants")
	assert.Contains(t, out, "artikelcontrole")
	assert.Contains(t, out, "repliek")
}

func TestReadInputsOrdersRoles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	docs, images, err := readInputs(map[string]string{
		pipeline.RoleArguments: write("mijn.txt", "c"),
		pipeline.RoleHistory:   write("eerder.txt", "a"),
		pipeline.RoleLatest:    write("laatste.txt", "b"),
	}, []string{write("foto.png", "png")})
	require.NoError(t, err)

	require.Len(t, docs, 3)
	assert.Equal(t, pipeline.RoleHistory, docs[0].Role)
	assert.Equal(t, "eerder.txt", docs[0].Doc.Filename)
	assert.Equal(t, pipeline.RoleArguments, docs[2].Role)
	require.Len(t, images, 1)
	assert.Equal(t, []byte("png"), images[0].Data)

	_, _, err = readInputs(nil, nil)
	assert.Error(t, err)
	_, _, err = readInputs(map[string]string{pipeline.RoleDocument: filepath.Join(dir, "absent.pdf")}, nil)
	assert.Error(t, err)
}

func TestWriteArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uit")
	paths, err := writeArtifacts(dir, &report.Report{
		Export: []byte("{}"), Markdown: "# rapport", Workbook: []byte("xlsx"), ExtractedText: "tekst",
	})
	require.NoError(t, err)
	require.Len(t, paths, 4)

	md, err := os.ReadFile(filepath.Join(dir, "rapport.md"))
	require.NoError(t, err)
	assert.Equal(t, "# rapport", string(md))
}

func TestPromptAPIKey(t *testing.T) {
	var out bytes.Buffer
	key, err := promptAPIKey(strings.NewReader("  abc123 \n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "abc123", key)
	assert.Contains(t, out.String(), "API key")

	_, err = promptAPIKey(strings.NewReader("\n"), &out)
	assert.Error(t, err)
	_, err = promptAPIKey(strings.NewReader(""), &out)
	assert.Error(t, err)
}

func TestPrintProgress(t *testing.T) {
	events := make(chan pipeline.Event, 3)
	events <- pipeline.Event{Phase: pipeline.PhaseStarted, Index: 1, Total: 2, Title: "Nieuwheid"}
	events <- pipeline.Event{Phase: pipeline.PhaseFinished, Index: 1, Total: 2, Title: "Nieuwheid", Summary: "2 nieuwe elementen"}
	events <- pipeline.Event{Phase: pipeline.PhaseFinished, Index: 2, Total: 2, Title: "Synthese", Reason: "blocked"}
	close(events)

	var out bytes.Buffer
	printProgress(&out, events)
	assert.Equal(t, "[1/2] Nieuwheid...\n[1/2] Nieuwheid: 2 nieuwe elementen\n[2/2] Synthese: blocked\n", out.String())
}

func TestNewLogger(t *testing.T) {
	var stderr bytes.Buffer
	newLogger(config.LoggingConfig{Level: "warn"}, &stderr).Info("hidden")
	assert.Empty(t, stderr.String())

	file := filepath.Join(t.TempDir(), "juridisch.log")
	logger := newLogger(config.LoggingConfig{Level: "debug", File: file, MaxSizeMB: 1, MaxBackups: 1}, &stderr)
	logger.Debug("naar bestand", "stage", "nieuwheid")
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"naar bestand"`)
	assert.Empty(t, stderr.String())

	assert.Equal(t, slog.LevelError, parseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLevel("onbekend"))
}

func TestResolveCredentials(t *testing.T) {
	noEnv := func(string) string { return "" }
	adc := func(k string) string {
		if k == envApplicationCredentials {
			return "/tmp/sa.json"
		}
		return ""
	}

	t.Run("prompts without project", func(t *testing.T) {
		cfg := config.DefaultConfig()
		var prompt bytes.Buffer
		require.NoError(t, resolveCredentials(cfg, noEnv, strings.NewReader("sleutel-123\n"), &prompt))
		assert.Equal(t, "sleutel-123", cfg.APIKey)
		assert.Empty(t, cfg.Cloud.ProjectID)
		assert.Contains(t, prompt.String(), "API key")
	})

	t.Run("configured key needs nothing else", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.APIKey = "uit-env"
		require.NoError(t, resolveCredentials(cfg, adc, strings.NewReader(""), &bytes.Buffer{}))
		assert.Equal(t, "uit-env", cfg.APIKey)
	})

	t.Run("ambient credentials need a project", func(t *testing.T) {
		cfg := config.DefaultConfig()
		err := resolveCredentials(cfg, adc, strings.NewReader("ongebruikt\n"), &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), config.EnvProjectID)
		assert.Empty(t, cfg.APIKey)

		cfg.Cloud.ProjectID = "mijn-project"
		assert.NoError(t, resolveCredentials(cfg, adc, strings.NewReader(""), &bytes.Buffer{}))
	})

	t.Run("empty answer fails", func(t *testing.T) {
		cfg := config.DefaultConfig()
		assert.Error(t, resolveCredentials(cfg, noEnv, strings.NewReader("\n"), &bytes.Buffer{}))
	})
}

func TestHaltMessageFollowsVariant(t *testing.T) {
	assert.Contains(t, haltMessage("artikelcontrole"), "geen wetsartikelen")
	assert.Contains(t, haltMessage("repliek"), "geen nieuwe elementen")
}
