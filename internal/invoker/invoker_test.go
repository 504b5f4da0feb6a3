package invoker_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/legaldocumentflow/internal/invoker"
	"github.com/Lllllllleong/legaldocumentflow/internal/invoker/invokertest"
)

func TestInvokeKinds(t *testing.T) {
	tests := []struct {
		name     string
		reply    invokertest.Reply
		wantKind invoker.Kind
	}{
		{name: "content", reply: invokertest.Reply{Text: `{"ok": true}`}, wantKind: invoker.KindOK},
		{name: "empty text", reply: invokertest.Reply{Text: "  \n"}, wantKind: invoker.KindBlocked},
		{name: "blocked error", reply: invokertest.Reply{Err: invoker.ErrBlocked}, wantKind: invoker.KindBlocked},
		{name: "transport error", reply: invokertest.Reply{Err: errors.New("503 unavailable")}, wantKind: invoker.KindInvocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &invokertest.Generator{Replies: []invokertest.Reply{tt.reply}}
			out := invoker.New(gen).Invoke(context.Background(), invoker.Request{User: "x", Tier: invoker.TierFast})
			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, invoker.TierFast, out.Tier)
			assert.Equal(t, 1, gen.CallCount())
		})
	}
}

func TestInvokeTimeout(t *testing.T) {
	gen := &invokertest.Generator{Replies: []invokertest.Reply{{Wait: true}}}
	inv := invoker.New(gen, invoker.WithTimeout(20*time.Millisecond))

	out := inv.Invoke(context.Background(), invoker.Request{User: "x", Tier: invoker.TierAdvanced})
	assert.Equal(t, invoker.KindTimeout, out.Kind)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
}

func TestSentinelEmbedsErrorDetail(t *testing.T) {
	out := invoker.Output{Kind: invoker.KindInvocation, Err: errors.New("quota exceeded")}

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Sentinel()), &decoded))
	assert.Equal(t, "quota exceeded", decoded["error"])
	assert.Equal(t, true, decoded["fallback"])

	ok := invoker.Output{Kind: invoker.KindOK, Text: "antwoord"}
	assert.Equal(t, "antwoord", ok.Sentinel())
}

func TestGroundingFallback(t *testing.T) {
	t.Run("retries once on advanced without tools", func(t *testing.T) {
		gen := &invokertest.Generator{Replies: []invokertest.Reply{
			{Err: invoker.ErrToolsUnsupported},
			{Text: `{"artikelen": []}`},
		}}
		out := invoker.New(gen).Invoke(context.Background(), invoker.Request{
			User:  "controleer",
			Tier:  invoker.TierFast,
			Tools: []invoker.Tool{invoker.ToolSourceLookup},
		})

		require.True(t, out.OK())
		assert.True(t, out.GroundingFallback)
		assert.Equal(t, invoker.TierAdvanced, out.Tier)

		reqs := gen.Requests()
		require.Len(t, reqs, 2)
		assert.Equal(t, []invoker.Tool{invoker.ToolSourceLookup}, reqs[0].Tools)
		assert.Empty(t, reqs[1].Tools)
		assert.Equal(t, invoker.TierAdvanced, reqs[1].Tier)
		assert.Equal(t, "controleer", reqs[1].User)
	})

	t.Run("second failure is returned", func(t *testing.T) {
		gen := &invokertest.Generator{Replies: []invokertest.Reply{
			{Err: errors.New("tool failure")},
			{Err: invoker.ErrBlocked},
		}}
		out := invoker.New(gen).Invoke(context.Background(), invoker.Request{
			Tier:  invoker.TierFast,
			Tools: []invoker.Tool{invoker.ToolSourceLookup},
		})
		assert.Equal(t, invoker.KindBlocked, out.Kind)
		assert.Equal(t, 2, gen.CallCount())
	})

	t.Run("no retry without tools", func(t *testing.T) {
		gen := &invokertest.Generator{Replies: []invokertest.Reply{{Err: errors.New("boom")}}}
		out := invoker.New(gen).Invoke(context.Background(), invoker.Request{Tier: invoker.TierFast})
		assert.Equal(t, invoker.KindInvocation, out.Kind)
		assert.False(t, out.GroundingFallback)
		assert.Equal(t, 1, gen.CallCount())
	})
}

func TestSourceLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wet":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><head><title>BW</title></head><body>
<nav>menu</nav>
<main><h1>Artikel 1382</h1><p>Elke daad van de mens, waardoor aan een ander schade wordt veroorzaakt.</p></main>
</body></html>`))
		case "/tekst":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("platte tekst"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	lookup := invoker.NewSourceLookup(srv.Client())
	ctx := context.Background()

	text, err := lookup.Lookup(ctx, srv.URL+"/wet")
	require.NoError(t, err)
	assert.Contains(t, text, "Artikel 1382")
	assert.Contains(t, text, "schade")
	assert.NotContains(t, text, "menu")

	text, err = lookup.Lookup(ctx, srv.URL+"/tekst")
	require.NoError(t, err)
	assert.Equal(t, "platte tekst", text)

	_, err = lookup.Lookup(ctx, srv.URL+"/ontbreekt")
	assert.Error(t, err)

	_, err = lookup.Lookup(ctx, "ftp://example.org/x")
	assert.ErrorIs(t, err, invoker.ErrSourceURL)
}
