package gcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/Lllllllleong/legaldocumentflow/internal/invoker"
)

type stubFetcher struct{ urls []string }

func (f *stubFetcher) Lookup(_ context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	return "Art. 1382 BW: Elke daad van de mens...", nil
}

// geminiServer answers generateContent calls with the given bodies in order
// and records the request bodies.
func geminiServer(t *testing.T, replies ...string) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if !strings.Contains(r.URL.Path, ":generateContent") || len(bodies) > len(replies) {
			http.Error(w, "unexpected call", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, replies[len(bodies)-1])
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), bodies...)
	}
}

func newTestGemini(t *testing.T, srv *httptest.Server) *GeminiClient {
	t.Helper()
	c, err := NewGeminiClient(context.Background(), "test-key",
		ModelNames{Fast: "fast-model", Advanced: "advanced-model", Vision: "vision-model"},
		&genai.ClientConfig{HTTPClient: srv.Client(), HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL}})
	require.NoError(t, err)
	return c
}

func textReply(text string) string {
	b, _ := json.Marshal(map[string]any{"candidates": []any{map[string]any{
		"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
	}}})
	return string(b)
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), "", ModelNames{}, nil)
	assert.Error(t, err)
}

func TestGeminiGenerateText(t *testing.T) {
	srv, bodies := geminiServer(t, textReply(`{"artikelen": []}`))
	c := newTestGemini(t, srv)

	text, err := c.Generate(context.Background(), invoker.Request{System: "sys", User: "DOCUMENT", Tier: invoker.TierFast})
	require.NoError(t, err)
	assert.Equal(t, `{"artikelen": []}`, text)

	got := bodies()
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "DOCUMENT")
	assert.Contains(t, got[0], "sys")
}

func TestGeminiGenerateWithoutFetcherRejectsTools(t *testing.T) {
	srv, bodies := geminiServer(t)
	c := newTestGemini(t, srv)

	_, err := c.Generate(context.Background(), invoker.Request{User: "x", Tier: invoker.TierFast, Tools: []invoker.Tool{invoker.ToolSourceLookup}})
	assert.ErrorIs(t, err, invoker.ErrToolsUnsupported)
	assert.Empty(t, bodies())
}

func TestGeminiGenerateAnswersLookupCalls(t *testing.T) {
	call, _ := json.Marshal(map[string]any{"candidates": []any{map[string]any{
		"content": map[string]any{"role": "model", "parts": []any{map[string]any{
			"functionCall": map[string]any{"name": invoker.SourceLookupFunction, "args": map[string]any{"url": "https://www.ejustice.just.fgov.be/x"}},
		}}},
	}}})
	srv, bodies := geminiServer(t, string(call), textReply(`{"verificaties": []}`))
	c := newTestGemini(t, srv)
	f := &stubFetcher{}
	c.SetFetcher(f)

	text, err := c.Generate(context.Background(), invoker.Request{User: "controleer", Tier: invoker.TierAdvanced, Tools: []invoker.Tool{invoker.ToolSourceLookup}})
	require.NoError(t, err)
	assert.Equal(t, `{"verificaties": []}`, text)
	assert.Equal(t, []string{"https://www.ejustice.just.fgov.be/x"}, f.urls)

	got := bodies()
	require.Len(t, got, 2)
	assert.Contains(t, got[0], invoker.SourceLookupFunction)
	assert.Contains(t, got[1], "functionResponse")
	assert.Contains(t, got[1], "Elke daad van de mens")
}

func TestGeminiGenerateEmptyCandidates(t *testing.T) {
	srv, _ := geminiServer(t, `{"promptFeedback": {"blockReason": "SAFETY"}}`)
	c := newTestGemini(t, srv)

	text, err := c.Generate(context.Background(), invoker.Request{User: "x", Tier: invoker.TierFast})
	require.NoError(t, err)
	assert.Empty(t, text)
}
