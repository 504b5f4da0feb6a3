// Package pipeline runs an ordered list of model-backed stages, threading
// each stage's parsed output into the prompts of later stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/legaldocumentflow/internal/invoker"
	"github.com/Lllllllleong/legaldocumentflow/internal/models"
	"github.com/Lllllllleong/legaldocumentflow/internal/parser"
)

// Invoker performs one model call and never fails outright.
type Invoker interface {
	Invoke(ctx context.Context, req invoker.Request) invoker.Output
}

// Sequencer executes variants. It holds no per-run state and can be shared.
type Sequencer struct {
	inv    Invoker
	parser parser.Parser
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithParser replaces the default lenient response parser.
func WithParser(p parser.Parser) Option {
	return func(s *Sequencer) { s.parser = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = logger }
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// WithRunID fixes how run IDs are generated.
func WithRunID(newID func() string) Option {
	return func(s *Sequencer) { s.newID = newID }
}

// NewSequencer creates a Sequencer that calls inv for every model stage.
func NewSequencer(inv Invoker, opts ...Option) *Sequencer {
	s := &Sequencer{
		inv:    inv,
		parser: parser.Lenient{},
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes every stage of v in order and returns a state holding exactly
// one result per declared stage. Stage failures never abort the run; an
// error is returned only for an invalid variant or missing input, before
// any stage executes. sink may be nil.
func (s *Sequencer) Run(ctx context.Context, v Variant, in Inputs, sink ProgressSink) (*State, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if in.empty() {
		return nil, ErrNoInput
	}
	if v.Primary != "" && strings.TrimSpace(in.Text(v.Primary)) == "" {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoInput, v.Primary)
	}
	if sink == nil {
		sink = ProgressFunc(func(Event) {})
	}

	st := NewState(s.newID(), v.Name)
	st.StartedAt = s.now()
	logCtx := s.logger.With("runId", st.RunID, "variant", v.Name)
	logCtx.Info("Starting pipeline run.", "stages", len(v.Stages))

	total := len(v.Stages)
	for i, stage := range v.Stages {
		ev := Event{RunID: st.RunID, Stage: stage.Name, Title: stage.Title, Index: i + 1, Total: total}
		stageLog := logCtx.With("stage", stage.Name)

		result := s.runStage(ctx, stage, in, st, ev, sink, stageLog)
		if err := st.Record(stage.Name, result); err != nil {
			// Validate rejects duplicate names, so this is unreachable.
			return nil, err
		}

		ev.Phase = PhaseFinished
		ev.Status = result.Status
		ev.Reason = result.Reason
		ev.Summary = summarize(stage, result)
		ev.At = s.now()
		sink.Progress(ev)

		if !st.Halted && result.OK() && !result.Local && stage.NoSignal != nil && stage.NoSignal(result.Payload) {
			st.Halted = true
			st.HaltReason = HaltNoSignal
			stageLog.Info("Stage found nothing to analyse, halting run.")
		}
	}

	st.CompletedAt = s.now()
	logCtx.Info("Pipeline run finished.",
		"halted", st.Halted,
		"failed", len(st.Failed()),
		"duration", st.CompletedAt.Sub(st.StartedAt).String())
	return st, nil
}

func (s *Sequencer) runStage(ctx context.Context, stage Stage, in Inputs, st *State, ev Event, sink ProgressSink, logCtx *slog.Logger) models.StageResult {
	if err := ctx.Err(); err != nil {
		return models.Failure(contextReason(err), "")
	}
	if st.Halted {
		return models.Failure(models.ReasonUpstreamMissing, "")
	}
	for _, dep := range stage.Requires {
		if !st.Succeeded(dep) {
			logCtx.Warn("Skipping stage, required upstream stage did not succeed.", "upstream", dep)
			return models.Failure(models.ReasonUpstreamMissing, "")
		}
	}

	if stage.Shortcut != nil {
		if payload, ok := stage.Shortcut(in, st); ok {
			logCtx.Info("Stage answered locally.")
			res := models.Success(payload)
			res.Local = true
			return res
		}
	}

	ev.Phase = PhaseStarted
	ev.At = s.now()
	sink.Progress(ev)

	prompt := stage.Build(in, st)
	out := s.inv.Invoke(ctx, invoker.Request{
		System: prompt.System,
		User:   prompt.User,
		Tier:   stage.Tier,
		Tools:  stage.Tools,
	})

	if !out.OK() {
		reason := models.ReasonInvocationFailed
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			reason = models.ReasonCancelled
		case out.Kind == invoker.KindBlocked:
			reason = models.ReasonBlocked
		case out.Kind == invoker.KindTimeout:
			reason = models.ReasonTimeout
		}
		logCtx.Warn("Stage invocation failed.", "reason", reason, "kind", out.Kind, "error", out.Err)
		return models.Failure(reason, out.Sentinel())
	}

	res := s.parser.Parse(out.Text)
	if !res.OK() {
		logCtx.Warn("Stage response could not be parsed.", "chars", len(out.Text))
		return res
	}
	if stage.Schema != nil {
		if warnings := parser.Validate(res.Payload, stage.Schema); len(warnings) > 0 {
			logCtx.Warn("Stage payload does not match schema.", "violations", len(warnings))
			res.Warnings = warnings
		}
	}
	if out.GroundingFallback {
		res.Warnings = append(res.Warnings, "bronraadpleging niet beschikbaar; antwoord zonder bronnen")
	}
	return res
}

// contextReason maps a done context to a failure reason. An expired caller
// deadline is a timeout, not a cancellation.
func contextReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ReasonTimeout
	}
	return models.ReasonCancelled
}

func summarize(stage Stage, r models.StageResult) string {
	if !r.OK() {
		return r.Reason
	}
	if stage.Summarize != nil {
		return stage.Summarize(r.Payload)
	}
	return "ok"
}
