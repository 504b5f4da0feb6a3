package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/legaldocumentflow/internal/analysis"
	"github.com/Lllllllleong/legaldocumentflow/internal/config"
	"github.com/Lllllllleong/legaldocumentflow/internal/invoker"
	"github.com/Lllllllleong/legaldocumentflow/internal/models"
	"github.com/Lllllllleong/legaldocumentflow/internal/pipeline"
	"github.com/Lllllllleong/legaldocumentflow/internal/report"
	"github.com/Lllllllleong/legaldocumentflow/internal/services"
	"github.com/Lllllllleong/legaldocumentflow/internal/session"
)

const envApplicationCredentials = "GOOGLE_APPLICATION_CREDENTIALS"

type analyzeFlags struct {
	variant   string
	goal      string
	outDir    string
	documents map[string]string
	images    []string
}

func analyzeCmd(g *globalFlags) *cobra.Command {
	f := analyzeFlags{documents: map[string]string{}}
	roleFlags := map[string]*string{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyse documents and write the report",
		Example: `  juridisch analyze --historiek eerdere.pdf --conclusie laatste.pdf --argumentatie mijn.docx
  juridisch analyze --variant artikelcontrole --document memo.pdf --doel "Schadevergoeding"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for role, p := range roleFlags {
				if *p != "" {
					f.documents[role] = *p
				}
			}
			return runAnalyze(cmd, g, f)
		},
	}
	cmd.Flags().StringVar(&f.variant, "variant", "", "Analysis variant (see 'juridisch variants')")
	cmd.Flags().StringVar(&f.goal, "doel", "", "Specific goal of the analysis")
	cmd.Flags().StringVarP(&f.outDir, "out", "o", ".", "Directory for the report files")
	cmd.Flags().StringSliceVar(&f.images, "afbeelding", nil, "Extra image evidence (repeatable)")
	for _, role := range []string{pipeline.RoleHistory, pipeline.RoleLatest, pipeline.RoleArguments, pipeline.RoleDocument} {
		roleFlags[role] = cmd.Flags().String(role, "", "Document file for role "+role)
	}
	return cmd
}

func runAnalyze(cmd *cobra.Command, g *globalFlags, f analyzeFlags) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	if f.variant == "" {
		f.variant = cfg.Analysis.Variant
	}
	docs, images, err := readInputs(f.documents, f.images)
	if err != nil {
		return err
	}
	if err := resolveCredentials(cfg, os.Getenv, cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := services.NewBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()
	backend.SetLogger(logger)

	runner := services.NewRunner(
		invoker.New(backend, invoker.WithTimeout(cfg.Models.CallTimeout), invoker.WithLogger(logger)),
		cfg.Analysis.ImageConcurrency, logger)

	sessions := session.NewManager(cfg.Session.TTL, session.WithLogger(logger))
	sess := sessions.Create(f.variant, f.goal)
	defer sessions.Destroy(sess.ID)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Documenten verwerken (%d bestanden, %d afbeeldingen)...\n", len(docs), len(images))
	if err := runner.Ingest(ctx, sess, docs, images); err != nil {
		return err
	}

	events := make(chan pipeline.Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		printProgress(out, events)
	}()
	st, rep, err := runner.Analyze(ctx, sess, "", pipeline.ChannelSink(ctx, events))
	close(events)
	<-done
	if err != nil {
		return err
	}

	paths, err := writeArtifacts(f.outDir, rep)
	if err != nil {
		return err
	}
	if st.Halted {
		fmt.Fprintln(out, haltMessage(st.Variant))
	}
	if failed := st.Failed(); len(failed) > 0 {
		fmt.Fprintf(out, "Mislukte stappen: %s\n", strings.Join(failed, ", "))
	}
	for _, p := range paths {
		fmt.Fprintf(out, "Geschreven: %s\n", p)
	}
	return nil
}

func haltMessage(variant string) string {
	if variant == analysis.VariantArticles {
		return "Analyse vroegtijdig gestopt: geen wetsartikelen gevonden."
	}
	return "Analyse vroegtijdig gestopt: geen nieuwe elementen gevonden."
}

// readInputs loads the document for each role and the extra images.
func readInputs(documents map[string]string, imagePaths []string) ([]services.RoleDocument, []models.Document, error) {
	if len(documents) == 0 {
		return nil, nil, fmt.Errorf("no documents given; use --%s, --%s, --%s or --%s",
			pipeline.RoleHistory, pipeline.RoleLatest, pipeline.RoleArguments, pipeline.RoleDocument)
	}
	var docs []services.RoleDocument
	for _, role := range []string{pipeline.RoleHistory, pipeline.RoleLatest, pipeline.RoleArguments, pipeline.RoleDocument} {
		p, ok := documents[role]
		if !ok {
			continue
		}
		doc, err := readDocument(p)
		if err != nil {
			return nil, nil, err
		}
		docs = append(docs, services.RoleDocument{Role: role, Doc: doc})
	}
	images := make([]models.Document, 0, len(imagePaths))
	for _, p := range imagePaths {
		doc, err := readDocument(p)
		if err != nil {
			return nil, nil, err
		}
		images = append(images, doc)
	}
	return docs, images, nil
}

func readDocument(path string) (models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	return models.Document{Filename: filepath.Base(path), Data: data}, nil
}

func writeArtifacts(dir string, rep *report.Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	var paths []string
	for _, a := range []struct {
		name string
		data []byte
	}{
		{services.ArtifactExport, rep.Export},
		{services.ArtifactReport, []byte(rep.Markdown)},
		{services.ArtifactWorkbook, rep.Workbook},
		{services.ArtifactExtracted, []byte(rep.ExtractedText)},
	} {
		p := filepath.Join(dir, a.name)
		if err := os.WriteFile(p, a.data, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func printProgress(w io.Writer, events <-chan pipeline.Event) {
	for ev := range events {
		switch ev.Phase {
		case pipeline.PhaseStarted:
			fmt.Fprintf(w, "[%d/%d] %s...\n", ev.Index, ev.Total, ev.Title)
		case pipeline.PhaseFinished:
			if ev.Reason != "" {
				fmt.Fprintf(w, "[%d/%d] %s: %s\n", ev.Index, ev.Total, ev.Title, ev.Reason)
			} else if ev.Summary != "" {
				fmt.Fprintf(w, "[%d/%d] %s: %s\n", ev.Index, ev.Total, ev.Title, ev.Summary)
			}
		}
	}
}

// resolveCredentials makes sure a model backend can be reached. An API key
// from the environment or config is used as is. Without one, ambient Vertex
// credentials need a project and region; anything else prompts for a key.
func resolveCredentials(cfg *config.Config, getenv func(string) string, in io.Reader, out io.Writer) error {
	if cfg.APIKey != "" {
		return nil
	}
	if getenv(envApplicationCredentials) != "" {
		if cfg.Cloud.ProjectID == "" || cfg.Cloud.Region == "" {
			return fmt.Errorf("%s and %s must be set when using %s",
				config.EnvProjectID, config.EnvRegion, envApplicationCredentials)
		}
		return nil
	}
	key, err := promptAPIKey(in, out)
	if err != nil {
		return err
	}
	cfg.APIKey = key
	return nil
}

func promptAPIKey(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Google API key: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read api key: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return "", fmt.Errorf("an API key is required")
	}
	return key, nil
}
