// Package invoker wraps calls to the remote generative model.
//
// Invoke never returns an error: every outcome, including transport errors,
// safety blocks and deadline expiry, is reported as an Output whose Kind the
// caller inspects.
package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Tier selects a named model variant.
type Tier string

const (
	TierFast     Tier = "fast"
	TierAdvanced Tier = "advanced"
	TierVision   Tier = "vision"
)

// Tool names an optional retrieval capability for a call.
type Tool string

// ToolSourceLookup lets the model fetch a public legal source by URL.
const ToolSourceLookup Tool = "source_lookup"

// Image is binary image content attached to a vision call.
type Image struct {
	Filename  string
	MediaType string
	Data      []byte
}

// Request is one model call.
type Request struct {
	System string
	User   string
	Tier   Tier
	Tools  []Tool
	Images []Image
}

// Generator is the transport to the model service.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

var (
	// ErrBlocked is returned by generators when the service produced no
	// usable content, e.g. because of a safety block.
	ErrBlocked = errors.New("model response blocked or empty")
	// ErrToolsUnsupported is returned by generators that cannot serve a
	// requested tool.
	ErrToolsUnsupported = errors.New("requested tools are not available")
)

// Kind classifies an Output.
type Kind string

const (
	KindOK         Kind = "ok"
	KindBlocked    Kind = "blocked"
	KindInvocation Kind = "invocation"
	KindTimeout    Kind = "timeout"
)

// Output is the result of Invoke.
type Output struct {
	Text string
	Kind Kind
	Err  error
	// Tier is the tier that produced this output; it differs from the
	// requested tier after a grounding fallback.
	Tier              Tier
	GroundingFallback bool
}

// OK reports whether Text holds model content.
func (o Output) OK() bool {
	return o.Kind == KindOK
}

// Sentinel renders a failed output as the marker text kept in exports.
// It embeds the error detail.
func (o Output) Sentinel() string {
	if o.OK() {
		return o.Text
	}
	detail := string(o.Kind)
	if o.Err != nil {
		detail = o.Err.Error()
	}
	b, _ := json.Marshal(map[string]any{
		"error":    detail,
		"kind":     o.Kind,
		"fallback": true,
	})
	return string(b)
}

// DefaultCallTimeout bounds a single model call.
const DefaultCallTimeout = 3 * time.Minute

// Invoker applies per-call deadlines and the grounding fallback on top of a
// Generator.
type Invoker struct {
	gen     Generator
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Invoker) {
		i.logger = logger
	}
}

// New creates an Invoker around gen.
func New(gen Generator, opts ...Option) *Invoker {
	i := &Invoker{
		gen:     gen,
		timeout: DefaultCallTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke performs req. When tools were requested and the call fails, it is
// retried exactly once on the advanced tier without tools.
func (i *Invoker) Invoke(ctx context.Context, req Request) Output {
	out := i.call(ctx, req)
	if out.OK() || len(req.Tools) == 0 || ctx.Err() != nil {
		return out
	}

	i.logger.Warn("Grounded call failed, retrying without tools.",
		"tier", req.Tier, "kind", out.Kind, "error", out.Err)

	retry := req
	retry.Tier = TierAdvanced
	retry.Tools = nil
	out = i.call(ctx, retry)
	out.GroundingFallback = true
	return out
}

func (i *Invoker) call(ctx context.Context, req Request) Output {
	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	started := time.Now()
	text, err := i.gen.Generate(callCtx, req)
	logCtx := i.logger.With("tier", req.Tier, "tools", len(req.Tools), "duration", time.Since(started).String())

	switch {
	case err == nil && strings.TrimSpace(text) == "":
		logCtx.Warn("Model returned no content.")
		return Output{Kind: KindBlocked, Err: ErrBlocked, Tier: req.Tier}
	case err == nil:
		logCtx.Debug("Model call complete.", "chars", len(text))
		return Output{Text: text, Kind: KindOK, Tier: req.Tier}
	case errors.Is(err, ErrBlocked):
		logCtx.Warn("Model response blocked.", "error", err)
		return Output{Kind: KindBlocked, Err: err, Tier: req.Tier}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		logCtx.Error("Model call timed out.", "error", err, "timeout", i.timeout.String())
		return Output{Kind: KindTimeout, Err: err, Tier: req.Tier}
	default:
		logCtx.Error("Model call failed.", "error", err)
		return Output{Kind: KindInvocation, Err: err, Tier: req.Tier}
	}
}
