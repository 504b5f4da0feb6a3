package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/Lllllllleong/legaldocumentflow/internal/invoker"
)

// GeminiClient talks to the Gemini API with an API key alone. It is the
// backend for local runs that have no Google Cloud project.
type GeminiClient struct {
	client  *genai.Client
	names   map[invoker.Tier]string
	config  genai.GenerateContentConfig
	fetcher Fetcher
	logger  *slog.Logger
}

// NewGeminiClient creates a Gemini API client. Extra client settings, such as
// a base URL for tests, may be passed in base; its key and backend are
// overwritten.
func NewGeminiClient(ctx context.Context, apiKey string, names ModelNames, base *genai.ClientConfig) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("NewGeminiClient: apiKey cannot be empty")
	}
	cc := genai.ClientConfig{}
	if base != nil {
		cc = *base
	}
	cc.APIKey = apiKey
	cc.Backend = genai.BackendGeminiAPI

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &GeminiClient{
		client: client,
		names: map[invoker.Tier]string{
			invoker.TierFast:     names.Fast,
			invoker.TierAdvanced: names.Advanced,
			invoker.TierVision:   names.Vision,
		},
		config: genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](0.1),
			TopP:            genai.Ptr[float32](0.95),
			TopK:            genai.Ptr[float32](40),
			MaxOutputTokens: 8192,
			SafetySettings: []*genai.SafetySetting{
				{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
				{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
				{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
				{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			},
		},
		logger: slog.Default(),
	}, nil
}

func (c *GeminiClient) SetFetcher(f Fetcher) { c.fetcher = f }
func (c *GeminiClient) SetLogger(logger *slog.Logger) { c.logger = logger }
func (c *GeminiClient) SetTemperature(t float32) { c.config.Temperature = genai.Ptr(t) }
func (c *GeminiClient) SetMaxOutputTokens(n int32) { c.config.MaxOutputTokens = n }

// Generate implements invoker.Generator.
func (c *GeminiClient) Generate(ctx context.Context, req invoker.Request) (string, error) {
	name, ok := c.names[req.Tier]
	if !ok || name == "" {
		return "", fmt.Errorf("no model configured for tier %q", req.Tier)
	}
	cfg := c.config
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if len(req.Tools) > 0 {
		if c.fetcher == nil {
			return "", invoker.ErrToolsUnsupported
		}
		cfg.Tools = []*genai.Tool{geminiLookupTool()}
	}

	user := &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: req.User}}}
	for _, img := range req.Images {
		user.Parts = append(user.Parts, &genai.Part{InlineData: &genai.Blob{MIMEType: img.MediaType, Data: img.Data}})
	}
	history := []*genai.Content{user}

	for round := 0; ; round++ {
		resp, err := c.client.Models.GenerateContent(ctx, name, history, &cfg)
		if err != nil {
			return "", err
		}
		reply := firstContent(resp)
		calls := geminiCalls(reply)
		if len(calls) == 0 {
			return geminiText(reply), nil
		}
		if round == maxToolRounds {
			return "", fmt.Errorf("model kept calling %s after %d rounds", invoker.SourceLookupFunction, maxToolRounds)
		}
		answers := &genai.Content{Role: genai.RoleUser}
		for _, call := range calls {
			answers.Parts = append(answers.Parts, &genai.Part{FunctionResponse: c.answer(ctx, call)})
		}
		history = append(history, reply, answers)
	}
}

func (c *GeminiClient) answer(ctx context.Context, call *genai.FunctionCall) *genai.FunctionResponse {
	url, _ := call.Args["url"].(string)
	logCtx := c.logger.With("function", call.Name, "url", url)
	resp := &genai.FunctionResponse{ID: call.ID, Name: call.Name}

	if call.Name != invoker.SourceLookupFunction {
		resp.Response = map[string]any{"error": "unknown function"}
		return resp
	}
	text, err := c.fetcher.Lookup(ctx, url)
	if err != nil {
		logCtx.Warn("Source lookup failed.", "error", err)
		resp.Response = map[string]any{"error": err.Error()}
		return resp
	}
	logCtx.Info("Source looked up.", "chars", len(text))
	resp.Response = map[string]any{"content": text}
	return resp
}

// Close is a no-op; the Gemini API client holds no connections of its own.
func (c *GeminiClient) Close() error { return nil }

func geminiLookupTool() *genai.Tool {
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

func firstContent(resp *genai.GenerateContentResponse) *genai.Content {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content
}

func geminiCalls(content *genai.Content) []*genai.FunctionCall {
	if content == nil {
		return nil
	}
	var calls []*genai.FunctionCall
	for _, p := range content.Parts {
		if p != nil && p.FunctionCall != nil {
			calls = append(calls, p.FunctionCall)
		}
	}
	return calls
}

// geminiText joins the text parts; a prompt blocked by the API comes back
// without candidates and yields "".
func geminiText(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range content.Parts {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
