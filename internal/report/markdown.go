package report

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/legaldocumentflow/internal/analysis"
	"github.com/Lllllllleong/legaldocumentflow/internal/pipeline"
)

// Section headings, in report order.
const (
	HeadingOverview    = "## Overzicht en indicatoren"
	HeadingConclusions = "## Probleemgerichte conclusies"
	HeadingAdvice      = "## Strategisch advies"
	HeadingIntegrity   = "## Structurele integriteit"
	HeadingStages      = "## Verloop van de analyse"
)

const haltedNotice = "Geen nieuwe elementen gedetecteerd. Analyse gestopt."

type sections struct {
	overview    string
	conclusions string
	advice      string
	integrity   string
}

// Markdown renders the fixed-template human-readable report.
func Markdown(st *pipeline.State, meta Meta) string {
	var s sections
	switch st.Variant {
	case analysis.VariantArticles:
		s = articleSections(st)
	default:
		s = rebuttalSections(st)
	}

	var b strings.Builder
	b.WriteString("# Juridisch analyserapport\n")
	fmt.Fprintf(&b, "Gegenereerd: %s\n", meta.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Variant: %s\n", st.Variant)
	if meta.CaseID != "" {
		fmt.Fprintf(&b, "Dossier: %s\n", meta.CaseID)
	}
	if meta.Goal != "" {
		fmt.Fprintf(&b, "Specifiek doel: %s\n", meta.Goal)
	}

	for _, sec := range []struct{ heading, body string }{
		{HeadingOverview, s.overview},
		{HeadingConclusions, s.conclusions},
		{HeadingAdvice, s.advice},
		{HeadingIntegrity, s.integrity},
		{HeadingStages, stageStatus(st)},
	} {
		body := strings.TrimSpace(sec.body)
		if body == "" {
			body = NoData
		}
		fmt.Fprintf(&b, "\n%s\n%s\n", sec.heading, body)
	}
	return b.String()
}

func rebuttalSections(st *pipeline.State) sections {
	var s sections

	if st.Succeeded(analysis.StageNovelty) {
		novelty := st.Payload(analysis.StageNovelty)
		findings := analysis.DecodeFindings(novelty, analysis.KeyNewElements)

		var b strings.Builder
		if st.Halted {
			b.WriteString(haltedNotice + "\n\n")
		}
		fmt.Fprintf(&b, "- Nieuwe elementen gedetecteerd: %d\n", len(findings))
		fmt.Fprintf(&b, "- Procedurele risico's: %s\n", countOf(st, analysis.StageProcedural, "procedurele_analyse"))
		fmt.Fprintf(&b, "- Feitelijke issues: %s\n", countOf(st, analysis.StageFactual, "feitelijke_analyse"))
		fmt.Fprintf(&b, "- Juridische aanvallen: %s\n", countOf(st, analysis.StageLegal, "juridische_analyse"))
		if visual := analysis.Int(analysis.Map(novelty, "samenvatting"), "visuele_elementen_gevonden", 0); visual > 0 {
			fmt.Fprintf(&b, "- Visuele elementen gedetecteerd: %d\n", visual)
		}
		if len(findings) > 0 {
			b.WriteString("\n")
			for _, f := range findings {
				b.WriteString(findingLine(f, ""))
			}
		}
		s.overview = b.String()
	}

	var c strings.Builder
	for _, part := range []struct {
		title, stage, key string
	}{
		{"Procedureel (prioriteit)", analysis.StageProcedural, "prioriteit_volgorde"},
		{"Feitelijk (grootste risico's)", analysis.StageFactual, "grootste_risico_feiten"},
		{"Juridisch (prioritaire verweren)", analysis.StageLegal, "prioritaire_verweren"},
	} {
		if !st.Succeeded(part.stage) {
			continue
		}
		fmt.Fprintf(&c, "### %s\n%s\n", part.title, bullets(analysis.Strings(st.Payload(part.stage), part.key), "Geen punten"))
	}
	if st.Succeeded(analysis.StageImpact) {
		impact := st.Payload(analysis.StageImpact)
		if opp := analysis.Strings(impact, "nieuwe_opportuniteiten"); len(opp) > 0 {
			fmt.Fprintf(&c, "### Nieuwe opportuniteiten\n%s\n", bullets(opp, ""))
		}
		fmt.Fprintf(&c, "### Visueel bewijs strategie\n%s\n",
			analysis.String(impact, "visueel_bewijs_strategie", "Geen visuele bewijzen geanalyseerd"))
	}
	s.conclusions = c.String()

	if st.Succeeded(analysis.StageSynthesis) {
		s.advice = memorandum(st.Payload(analysis.StageSynthesis))
	}
	if st.Succeeded(analysis.StageImpact) {
		s.integrity = integrity(st.Payload(analysis.StageImpact))
	}
	return s
}

func articleSections(st *pipeline.State) sections {
	var s sections

	var verdicts *analysis.Verdicts
	if st.Succeeded(analysis.StageVerification) {
		verdicts = analysis.NewVerdicts(analysis.DecodeVerifications(st.Payload(analysis.StageVerification)))
	}

	if st.Succeeded(analysis.StageExtraction) {
		articles := analysis.DecodeFindings(st.Payload(analysis.StageExtraction), analysis.KeyArticles)
		var b strings.Builder
		if st.Halted {
			b.WriteString("Geen wetsartikelen gevonden. Analyse gestopt.\n\n")
		}
		fmt.Fprintf(&b, "- Artikelen gevonden: %d\n", len(articles))
		if verdicts != nil {
			fmt.Fprintf(&b, "- Artikelen met problemen: %d\n", verdicts.Problems())
		}
		if len(articles) > 0 {
			b.WriteString("\n")
			for _, a := range articles {
				b.WriteString(findingLine(a, verdictSymbol(verdicts, a)))
			}
		}
		s.overview = b.String()
	}

	if st.Succeeded(analysis.StageVerification) {
		payload := st.Payload(analysis.StageVerification)
		var c strings.Builder
		c.WriteString(bullets(analysis.Strings(payload, "problemen"), "Geen problemen vastgesteld"))
		c.WriteString("\n")
		for _, v := range verdicts.All() {
			if v.OK() {
				continue
			}
			fmt.Fprintf(&c, "\n### %s %s (%s)\n", symbolFor(v), v.Article, v.Status)
			if v.Note != "" {
				c.WriteString(v.Note + "\n")
			}
			if v.Correction != "" {
				fmt.Fprintf(&c, "Correcte verwijzing: %s\n", v.Correction)
			}
			if len(v.Sources) > 0 {
				fmt.Fprintf(&c, "Bronnen: %s\n", strings.Join(v.Sources, ", "))
			}
		}
		s.conclusions = c.String()
	}

	if st.Succeeded(analysis.StageAdvice) {
		advice := st.Payload(analysis.StageAdvice)
		s.advice = memorandum(advice)
		if _, ok := advice["structurele_integriteit"]; ok {
			s.integrity = integrity(advice)
		}
	}
	return s
}

func memorandum(payload map[string]any) string {
	memo := analysis.Map(payload, "strategisch_memorandum")
	var b strings.Builder
	if summary := analysis.String(memo, "executive_summary", ""); summary != "" {
		fmt.Fprintf(&b, "**Executive summary:** %s\n\n", summary)
	}
	if actions := analysis.Strings(memo, "prioritaire_acties"); len(actions) > 0 {
		b.WriteString("**Prioritaire acties:**\n")
		for i, a := range actions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, a)
		}
		b.WriteString("\n")
	}
	if defence := analysis.String(memo, "hoofdverweer", ""); defence != "" {
		fmt.Fprintf(&b, "**Hoofdverweer:** %s\n\n", defence)
	}
	if visual := analysis.String(memo, "visueel_bewijs_strategie", ""); visual != "" {
		fmt.Fprintf(&b, "**Visuele bewijzen:** %s\n", visual)
	}
	return b.String()
}

func integrity(payload map[string]any) string {
	si := analysis.Map(payload, "structurele_integriteit")
	var b strings.Builder
	if analysis.Bool(si, "hoofdargumentatie_intact", false) {
		b.WriteString("✅ Hoofdargumentatie blijft intact\n")
	} else {
		b.WriteString("❌ Hoofdargumentatie aangetast\n")
	}
	if analysis.Bool(si, "herstructurering_nodig", false) {
		b.WriteString("⚠️ Herstructurering nodig\n")
	}
	if pillars := analysis.Strings(si, "kritieke_pijlers_aangetast"); len(pillars) > 0 {
		fmt.Fprintf(&b, "\n**Aangetaste pijlers:**\n%s", bullets(pillars, ""))
	}
	if changes := analysis.Strings(si, "voorgestelde_aanpassingen"); len(changes) > 0 {
		fmt.Fprintf(&b, "\n**Voorgestelde aanpassingen:**\n%s", bullets(changes, ""))
	}
	return b.String()
}

func stageStatus(st *pipeline.State) string {
	var b strings.Builder
	for _, e := range st.Entries() {
		switch {
		case e.Result.OK() && len(e.Result.Warnings) > 0:
			fmt.Fprintf(&b, "- ⚠️ %s: %d waarschuwingen\n", e.Name, len(e.Result.Warnings))
		case e.Result.OK():
			fmt.Fprintf(&b, "- ✅ %s\n", e.Name)
		default:
			fmt.Fprintf(&b, "- ❌ %s: %s\n", e.Name, e.Result.Reason)
		}
	}
	return b.String()
}

func findingLine(f analysis.Finding, symbol string) string {
	var b strings.Builder
	b.WriteString("- ")
	if symbol != "" {
		b.WriteString(symbol + " ")
	}
	if f.Label != "" {
		fmt.Fprintf(&b, "%s (%s)", f.Label, f.ID)
	} else {
		fmt.Fprintf(&b, "%s [%s]", f.ID, f.Category)
	}
	fmt.Fprintf(&b, ", confidence %.2f", f.Confidence)
	if f.Visual {
		b.WriteString(" 🖼️")
	}
	if f.Ambiguous {
		b.WriteString(" (twijfelgeval)")
	}
	if f.Quote != "" {
		fmt.Fprintf(&b, ": %q", f.Quote)
	}
	b.WriteString("\n")
	return b.String()
}

func verdictSymbol(verdicts *analysis.Verdicts, f analysis.Finding) string {
	if verdicts == nil {
		return ""
	}
	v, ok := verdicts.For(f)
	if !ok {
		return "❔"
	}
	return symbolFor(v)
}

func symbolFor(v analysis.Verification) string {
	switch v.Status {
	case analysis.VerdictCorrect:
		return "✅"
	case analysis.VerdictWrong:
		return "❌"
	default:
		return "⚠️"
	}
}

func countOf(st *pipeline.State, stage, key string) string {
	if !st.Succeeded(stage) {
		return NoData
	}
	return fmt.Sprint(analysis.Count(st.Payload(stage), key))
}

func bullets(items []string, empty string) string {
	if len(items) == 0 {
		if empty == "" {
			return ""
		}
		return "- " + empty + "\n"
	}
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	return b.String()
}
