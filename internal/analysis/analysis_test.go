package analysis_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/legaldocumentflow/internal/analysis"
	"github.com/Lllllllleong/legaldocumentflow/internal/invoker"
	"github.com/Lllllllleong/legaldocumentflow/internal/invoker/invokertest"
	"github.com/Lllllllleong/legaldocumentflow/internal/models"
	"github.com/Lllllllleong/legaldocumentflow/internal/pipeline"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func run(t *testing.T, v pipeline.Variant, in pipeline.Inputs, replies ...invokertest.Reply) (*pipeline.State, *invokertest.Generator) {
	t.Helper()
	gen := &invokertest.Generator{Replies: replies}
	seq := pipeline.NewSequencer(invoker.New(gen, invoker.WithLogger(quiet)), pipeline.WithLogger(quiet))
	st, err := seq.Run(context.Background(), v, in, nil)
	require.NoError(t, err)
	return st, gen
}

func TestVariantsAreValid(t *testing.T) {
	for _, name := range analysis.Names() {
		v, err := analysis.Lookup(name)
		require.NoError(t, err)
		assert.NoError(t, v.Validate(), name)
	}
	_, err := analysis.Lookup("onbekend")
	assert.Error(t, err)
}

func TestArticle1382Scenario(t *testing.T) {
	const doc = "Artikel 1382 BW stelt aansprakelijkheid vast"
	in := pipeline.Inputs{Texts: map[string]string{pipeline.RoleDocument: doc}, Goal: "Schadevergoeding verkrijgen"}

	st, gen := run(t, analysis.Articles(), in,
		invokertest.Reply{Text: "```json\n" + `{
			"artikelen": [{"id": "A001", "categorie": "statutory article", "artikel": "Art. 1382 BW",
			               "citaat": "Artikel 1382 BW stelt aansprakelijkheid vast", "confidence": 0.95}],
			"samenvatting": {"totaal_artikelen": 1}
		}` + "\n```"},
		invokertest.Reply{Text: `{"verificaties": [{"artikel_id": "A001", "artikel": "Art. 1382 BW", "status": "Verouderd",
			"correcte_verwijzing": "Art. 6.5 BW"}], "problemen": ["Art. 1382 BW is vervangen door Boek 6"]}`},
		invokertest.Reply{Text: `{"strategisch_memorandum": {"executive_summary": "ok", "prioritaire_acties": ["Verwijzing aanpassen"]}}`},
	)

	assert.Empty(t, st.Failed())
	reqs := gen.Requests()
	require.Len(t, reqs, 3)
	assert.Contains(t, reqs[0].User, doc)

	findings := analysis.DecodeFindings(st.Payload(analysis.StageExtraction), analysis.KeyArticles)
	require.Len(t, findings, 1)
	assert.Equal(t, analysis.CategoryStatute, findings[0].Category)
	assert.Equal(t, "Art. 1382 BW", findings[0].Label)

	// Later stages receive exactly that one finding.
	for _, req := range reqs[1:] {
		assert.Equal(t, 1, strings.Count(req.User, `"id": "A001"`))
		assert.NotContains(t, req.User, `"id": "A002"`)
	}
	assert.Equal(t, []invoker.Tool{invoker.ToolSourceLookup}, reqs[1].Tools)
	assert.Equal(t, invoker.TierAdvanced, reqs[2].Tier)
	assert.Contains(t, reqs[2].User, "Schadevergoeding verkrijgen")

	verdicts := analysis.DecodeVerifications(st.Payload(analysis.StageVerification))
	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].OK())
	assert.Equal(t, "Art. 6.5 BW", verdicts[0].Correction)
}

func TestArticlesHaltsWithoutArticles(t *testing.T) {
	in := pipeline.Inputs{Texts: map[string]string{pipeline.RoleDocument: "Geen verwijzingen hier."}}
	st, gen := run(t, analysis.Articles(), in, invokertest.Reply{Text: `{"artikelen": []}`})

	assert.True(t, st.Halted)
	assert.Equal(t, 1, gen.CallCount())
	r, _ := st.Get(analysis.StageAdvice)
	assert.Equal(t, models.ReasonUpstreamMissing, r.Reason)
}

func TestRebuttalSkipsSpecialistsWithoutFindings(t *testing.T) {
	in := pipeline.Inputs{Texts: map[string]string{
		pipeline.RoleHistory:   "Eerdere conclusie.",
		pipeline.RoleLatest:    "Nieuwe conclusie met exceptie van verjaring.",
		pipeline.RoleArguments: strings.Repeat("a", 1500),
	}}

	st, gen := run(t, analysis.Rebuttal(), in,
		invokertest.Reply{Text: `{"nieuwe_elementen": [{"id": "N001", "categorie": "Nieuw Procedureel Middel", "citaat": "verjaring", "confidence": 0.8}],
			"samenvatting": {"totaal_nieuwe_elementen": 1, "visuele_elementen_gevonden": 0}}`},
		invokertest.Reply{Text: `{"procedurele_analyse": [{"element_id": "N001"}], "prioriteit_volgorde": ["N001"]}`},
		invokertest.Reply{Text: `{"structurele_integriteit": {"hoofdargumentatie_intact": false}}`},
		invokertest.Reply{Text: `{"strategisch_memorandum": {"prioritaire_acties": ["Verjaring betwisten"]}}`},
	)

	assert.Equal(t, 6, st.Len())
	assert.Empty(t, st.Failed())
	assert.Equal(t, 4, gen.CallCount())

	for _, name := range []string{analysis.StageFactual, analysis.StageLegal} {
		r, _ := st.Get(name)
		assert.True(t, r.Local, name)
	}

	reqs := gen.Requests()
	assert.Contains(t, reqs[1].User, "verjaring")
	assert.Equal(t, invoker.TierAdvanced, reqs[3].Tier)
	assert.Contains(t, reqs[3].User, `"N001"`)
}

func TestRebuttalFactualPromptTruncatesArgumentation(t *testing.T) {
	in := pipeline.Inputs{Texts: map[string]string{
		pipeline.RoleLatest:    "Nieuw stuk 12.",
		pipeline.RoleArguments: strings.Repeat("x", 1200),
	}}

	_, gen := run(t, analysis.Rebuttal(), in,
		invokertest.Reply{Text: `{"nieuwe_elementen": [{"categorie": "Nieuw Stuk/Feit", "citaat": "stuk 12"}]}`},
	)

	reqs := gen.Requests()
	require.GreaterOrEqual(t, len(reqs), 2)
	factual := reqs[1].User
	assert.Contains(t, factual, strings.Repeat("x", 1000)+"...")
	assert.NotContains(t, factual, strings.Repeat("x", 1001))
	assert.Contains(t, factual, `"id": "N001"`, "missing ids get a positional one")
}

func TestDecodeFindingsDefaults(t *testing.T) {
	payload := map[string]any{
		analysis.KeyNewElements: []any{
			map[string]any{"categorie": "Nieuw Visueel Bewijs", "confidence": 1.4},
			"geen object",
			map[string]any{"id": "X", "categorie": "iets anders", "confidence": "0.3", "twijfelgeval": "ja"},
		},
	}

	findings := analysis.DecodeFindings(payload, analysis.KeyNewElements)
	require.Len(t, findings, 2)

	assert.Equal(t, "N001", findings[0].ID)
	assert.Equal(t, 1.0, findings[0].Confidence)
	assert.True(t, findings[0].Visual)

	assert.Equal(t, analysis.CategoryUnknown, findings[1].Category)
	assert.Equal(t, 0.3, findings[1].Confidence)
	assert.True(t, findings[1].Ambiguous)

	assert.Empty(t, analysis.DecodeFindings(map[string]any{}, analysis.KeyNewElements))
}

func TestParseCategory(t *testing.T) {
	tests := map[string]analysis.Category{
		"Nieuw Argument":           analysis.CategoryArgument,
		"Nieuwe Juridische Bron":   analysis.CategoryLegalSource,
		"Nieuw Stuk/Feit":          analysis.CategoryFact,
		"Nieuw Procedureel Middel": analysis.CategoryProcedural,
		"Nieuw Visueel Bewijs":     analysis.CategoryVisual,
		"statutory article":        analysis.CategoryStatute,
		"Wetsartikel":              analysis.CategoryStatute,
		"":                         analysis.CategoryUnknown,
	}
	for label, want := range tests {
		assert.Equal(t, want, analysis.ParseCategory(label), label)
	}
}

func TestDecodeVerificationsNormalisesStatus(t *testing.T) {
	verdicts := analysis.DecodeVerifications(map[string]any{"verificaties": []any{
		map[string]any{"artikel_id": "A001", "status": " correct "},
		map[string]any{"artikel_id": "A002", "status": "VEROUDERD"},
		map[string]any{"artikel_id": "A003"},
		map[string]any{"artikel_id": "A004", "status": "Gedeeltelijk"},
	}})
	require.Len(t, verdicts, 4)

	assert.Equal(t, analysis.VerdictCorrect, verdicts[0].Status)
	assert.True(t, verdicts[0].OK())
	assert.Equal(t, analysis.VerdictOutdated, verdicts[1].Status)
	assert.Equal(t, analysis.VerdictUnsure, verdicts[2].Status)
	assert.Equal(t, "Gedeeltelijk", verdicts[3].Status)
	assert.Equal(t, 3, analysis.NewVerdicts(verdicts).Problems())
}

func TestVerdictsForFallsBackToLabel(t *testing.T) {
	idx := analysis.NewVerdicts([]analysis.Verification{
		{Article: "Art. 1382 BW", Status: analysis.VerdictWrong},
		{ArticleID: "A002", Article: "Art. 6.5 BW", Status: analysis.VerdictCorrect},
	})

	v, ok := idx.For(analysis.Finding{ID: "A001", Label: "art 1382  bw"})
	require.True(t, ok)
	assert.Equal(t, analysis.VerdictWrong, v.Status)

	v, ok = idx.For(analysis.Finding{ID: "A002"})
	require.True(t, ok)
	assert.True(t, v.OK())

	_, ok = idx.For(analysis.Finding{ID: "A009", Label: "Art. 1 Ger.W."})
	assert.False(t, ok)
}
