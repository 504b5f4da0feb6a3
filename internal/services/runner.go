package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/legaldocumentflow/internal/analysis"
	"github.com/Lllllllleong/legaldocumentflow/internal/extract"
	"github.com/Lllllllleong/legaldocumentflow/internal/models"
	"github.com/Lllllllleong/legaldocumentflow/internal/pipeline"
	"github.com/Lllllllleong/legaldocumentflow/internal/report"
	"github.com/Lllllllleong/legaldocumentflow/internal/session"
)

// RoleDocument is an uploaded document together with the role it plays.
type RoleDocument struct {
	Role string
	Doc  models.Document
}

// Runner takes a session from raw uploads to a finished report. It is
// shared by the cloud function and the command line tool.
type Runner struct {
	extractor *extract.Extractor
	sequencer *pipeline.Sequencer
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner wires an extractor and a sequencer around one invoker.
func NewRunner(inv pipeline.Invoker, concurrency int, logger *slog.Logger, opts ...pipeline.Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]pipeline.Option{pipeline.WithLogger(logger)}, opts...)
	return &Runner{
		extractor: extract.New(inv, extract.WithLogger(logger), extract.WithConcurrency(concurrency)),
		sequencer: pipeline.NewSequencer(inv, opts...),
		logger:    logger,
		now:       time.Now,
	}
}

// Ingest extracts docs into sess and analyses extra images. Documents are
// extracted concurrently but recorded in the given order.
func (r *Runner) Ingest(ctx context.Context, sess *session.Session, docs []RoleDocument, images []models.Document) error {
	results := make([]extract.Result, len(docs))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for i, d := range docs {
		eg.Go(func() error {
			results[i] = r.extractor.Extract(gctx, d.Doc)
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, d := range docs {
		sess.AddDocument(d.Role, d.Doc.Filename, results[i])
	}

	if len(images) == 0 {
		return nil
	}
	sess.AddImages(images...)
	merged, err := r.extractor.MergeImages(ctx, sess.Images())
	if err != nil {
		return fmt.Errorf("analyse images: %w", err)
	}
	sess.SetImageAnalysis(merged)
	return nil
}

// Analyze runs the session's variant and renders the report. sink may be nil.
func (r *Runner) Analyze(ctx context.Context, sess *session.Session, caseID string, sink pipeline.ProgressSink) (*pipeline.State, *report.Report, error) {
	variant, goal := sess.Options()
	v, err := analysis.Lookup(variant)
	if err != nil {
		return nil, nil, err
	}
	logCtx := r.logger.With("sessionId", sess.ID, "variant", v.Name)

	st, err := r.sequencer.Run(ctx, v, sess.Inputs(v.Primary), sink)
	if err != nil {
		logCtx.Error("Pipeline could not start.", "error", err)
		return nil, nil, err
	}

	rep, err := report.Assemble(st, report.Meta{
		CaseID:      caseID,
		Goal:        goal,
		GeneratedAt: r.now(),
		Sources:     sess.Sources(),
	})
	if err != nil {
		return st, nil, fmt.Errorf("assemble report: %w", err)
	}
	sess.SetResult(st, rep)
	logCtx.Info("Analysis complete.", "runId", st.RunID, "halted", st.Halted, "failed", len(st.Failed()))
	return st, rep, nil
}
