package gcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"

	"github.com/Lllllllleong/legaldocumentflow/internal/invoker"
)

// maxToolRounds bounds the function-call exchanges of one request.
const maxToolRounds = 4

const (
	sourceLookupDescription = "Haalt de tekst van een publieke juridische bron op (wetgeving, rechtspraak) via een volledige http(s) URL."
	sourceURLDescription    = "Absolute URL van de bron"
)

// Fetcher resolves a source URL for the model's lookup tool.
type Fetcher interface {
	Lookup(ctx context.Context, url string) (string, error)
}

// ModelNames maps each tier to a model name.
type ModelNames struct {
	Fast     string
	Advanced string
	Vision   string
}

// VertexClient holds one pre-configured generative model per tier and
// implements invoker.Generator.
type VertexClient struct {
	models     map[invoker.Tier]*genai.GenerativeModel
	fetcher    Fetcher
	logger     *slog.Logger
	baseClient *genai.Client
}

// NewVertexClient creates a client for the given project and region. An
// apiKey, when set, is passed to the client instead of ambient credentials.
func NewVertexClient(ctx context.Context, projectID, region, apiKey string, names ModelNames) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	var opts []option.ClientOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	baseClient, err := genai.NewClient(ctx, projectID, region, opts...)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	c := &VertexClient{
		models:     make(map[invoker.Tier]*genai.GenerativeModel, 3),
		logger:     slog.Default(),
		baseClient: baseClient,
	}
	for tier, name := range map[invoker.Tier]string{
		invoker.TierFast:     names.Fast,
		invoker.TierAdvanced: names.Advanced,
		invoker.TierVision:   names.Vision,
	} {
		model := baseClient.GenerativeModel(name)
		model.GenerationConfig = genai.GenerationConfig{
			Temperature:     genai.Ptr[float32](0.1),
			TopP:            genai.Ptr[float32](0.95),
			TopK:            genai.Ptr[int32](40),
			MaxOutputTokens: genai.Ptr[int32](8192),
		}
		model.SafetySettings = []*genai.SafetySetting{
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
		}
		c.models[tier] = model
	}
	return c, nil
}

// SetFetcher enables the source lookup tool.
func (c *VertexClient) SetFetcher(f Fetcher) { c.fetcher = f }

// SetLogger sets the logger.
func (c *VertexClient) SetLogger(logger *slog.Logger) { c.logger = logger }

// SetTemperature overrides the sampling temperature of every tier.
func (c *VertexClient) SetTemperature(t float32) {
	for _, m := range c.models {
		m.SetTemperature(t)
	}
}

// SetMaxOutputTokens overrides the output limit of every tier.
func (c *VertexClient) SetMaxOutputTokens(n int32) {
	for _, m := range c.models {
		m.SetMaxOutputTokens(n)
	}
}

// Generate sends one request and returns the concatenated text parts.
func (c *VertexClient) Generate(ctx context.Context, req invoker.Request) (string, error) {
	base, ok := c.models[req.Tier]
	if !ok {
		return "", fmt.Errorf("no model configured for tier %q", req.Tier)
	}
	// The templates are shared; each call works on its own copy.
	model := *base
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	parts := []genai.Part{genai.Text(req.User)}
	for _, img := range req.Images {
		parts = append(parts, genai.Blob{MIMEType: img.MediaType, Data: img.Data})
	}

	if len(req.Tools) == 0 {
		resp, err := model.GenerateContent(ctx, parts...)
		if err != nil {
			return "", classify(err)
		}
		return responseText(resp), nil
	}

	if c.fetcher == nil {
		return "", invoker.ErrToolsUnsupported
	}
	model.Tools = []*genai.Tool{sourceLookupTool()}
	return c.chat(ctx, &model, parts)
}

func (c *VertexClient) chat(ctx context.Context, model *genai.GenerativeModel, parts []genai.Part) (string, error) {
	cs := model.StartChat()
	resp, err := cs.SendMessage(ctx, parts...)
	if err != nil {
		return "", classify(err)
	}

	for round := 0; round < maxToolRounds; round++ {
		calls := functionCalls(resp)
		if len(calls) == 0 {
			return responseText(resp), nil
		}
		replies := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			replies = append(replies, c.answer(ctx, call))
		}
		if resp, err = cs.SendMessage(ctx, replies...); err != nil {
			return "", classify(err)
		}
	}
	return "", fmt.Errorf("model kept calling %s after %d rounds", invoker.SourceLookupFunction, maxToolRounds)
}

func (c *VertexClient) answer(ctx context.Context, call genai.FunctionCall) genai.Part {
	url, _ := call.Args["url"].(string)
	logCtx := c.logger.With("function", call.Name, "url", url)

	if call.Name != invoker.SourceLookupFunction {
		return genai.FunctionResponse{Name: call.Name, Response: map[string]any{"error": "unknown function"}}
	}
	text, err := c.fetcher.Lookup(ctx, url)
	if err != nil {
		logCtx.Warn("Source lookup failed.", "error", err)
		return genai.FunctionResponse{Name: call.Name, Response: map[string]any{"error": err.Error()}}
	}
	logCtx.Info("Source looked up.", "chars", len(text))
	return genai.FunctionResponse{Name: call.Name, Response: map[string]any{"content": text}}
}

func sourceLookupTool() *genai.Tool {
	return &genai.Tool{FunctionDeclarations: []*genai.FunctionDeclaration{{
		Name:        invoker.SourceLookupFunction,
		Description: sourceLookupDescription,
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"url": {Type: genai.TypeString, Description: sourceURLDescription},
			},
			Required: []string{"url"},
		},
	}}}
}

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	var calls []genai.FunctionCall
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if fc, ok := p.(genai.FunctionCall); ok {
				calls = append(calls, fc)
			}
		}
	}
	return calls
}

// responseText joins the text parts of the first candidate. An empty result
// is reported by the invoker as a blocked response.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

func classify(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("%w: %v", invoker.ErrBlocked, err)
	}
	return err
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
