package analysis

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/legaldocumentflow/internal/invoker"
	"github.com/Lllllllleong/legaldocumentflow/internal/pipeline"
)

// Stage names of the rebuttal variant.
const (
	StageNovelty    = "nieuwheid"
	StageProcedural = "procedureel"
	StageFactual    = "feitelijk"
	StageLegal      = "juridisch"
	StageImpact     = "impact"
	StageSynthesis  = "synthese"
)

// KeyNewElements holds the findings of the novelty stage.
const KeyNewElements = "nieuwe_elementen"

// argumentationExcerpt bounds how much of the client's own argumentation is
// sent to the factual stage.
const argumentationExcerpt = 1000

const jsonOnly = "BELANGRIJK: Geef je antwoord ALLEEN in JSON format, zonder extra tekst."

const noveltySystem = `Je bent een gespecialiseerde juridische analist met één kerncompetentie: het detecteren van volledig nieuwe elementen in juridische conclusies. Je werkt uitsluitend differentieel en identificeert alleen wat ECHT nieuw is.

KERNPRINCIPE: Als iets eerder is vermeld, zelfs in andere bewoordingen, is het NIET nieuw.

Je output is de enige input voor alle volgende analyses. Fouten in jouw detectie kunnen later niet worden hersteld.

` + jsonOnly

const noveltyUser = `TAAK: Vergelijk het DOELWIT document met de HISTORIEK. Identificeer ALLEEN elementen die:
1. Nog NOOIT eerder zijn vermeld, zelfs niet impliciet
2. Geen herformulering zijn van bestaande argumenten
3. Geen samenvatting zijn van eerdere punten
4. Geen logische afleiding zijn uit eerder gestelde feiten

LET OP: Behandel [AFBEELDING ANALYSE] secties als mogelijk juridisch relevante nieuwe informatie.

INPUT:
- HISTORIEK_TEGENPARTIJ:
%s

- LAATSTE_CONCLUSIE_TEGENPARTIJ:
%s

OUTPUT FORMAT (JSON):
{
  "nieuwe_elementen": [
    {
      "id": "N001",
      "categorie": "[Nieuw Argument|Nieuwe Juridische Bron|Nieuw Stuk/Feit|Nieuw Procedureel Middel|Nieuw Visueel Bewijs]",
      "citaat": "[exacte tekst uit het document]",
      "locatie": "[paragraaf of pagina]",
      "waarom_nieuw": "[waarom dit element niet in de historiek voorkomt]",
      "confidence": 0.0,
      "twijfelgeval": false,
      "twijfel_reden": "[alleen indien twijfelgeval]",
      "bevat_visueel_element": false
    }
  ],
  "samenvatting": {
    "totaal_nieuwe_elementen": 0,
    "hoogste_impact_element": "[id]",
    "visuele_elementen_gevonden": 0
  }
}`

const proceduralSystem = `Je bent een expert in Belgisch procesrecht, gespecialiseerd in procedurele "knock-out" argumenten. Je analyseert UITSLUITEND de nieuwe procedurele elementen die je worden aangereikt.

Je focus ligt op argumenten die de zaak kunnen beëindigen zonder inhoudelijke behandeling: verjaring, bevoegdheid, ontvankelijkheid.

` + jsonOnly

const proceduralUser = `INPUT: Nieuwe procedurele elementen:
%s

Evalueer voor elk element:
1. CLASSIFICATIE (verjaring/bevoegdheid/ontvankelijkheid)
2. JURIDISCHE STERKTE met artikelen en rechtspraak
3. TIMING: waarom wordt dit nu pas opgeworpen?

OUTPUT FORMAT (JSON):
{
  "procedurele_analyse": [
    {
      "element_id": "[id]",
      "type_exceptie": "[classificatie]",
      "juridische_basis": {"artikelen": ["Art. X Ger.W."], "rechtspraak": ["Cass. datum, AR nr"]},
      "sterkte_beoordeling": {"score": "[Hoog|Medium|Laag]", "motivering": ""},
      "timing_implicaties": {"mogelijke_redenen": [], "rechtsverwerking_mogelijk": false, "contra_argument": ""}
    }
  ],
  "prioriteit_volgorde": ["element_id"],
  "onmiddellijke_actie_vereist": false
}`

const factualSystem = `Je bent een forensisch analist voor juridische procedures. Je analyseert nieuwe feitelijke beweringen en bewijsstukken en zoekt naar inconsistenties, contradicties en bewijsgaten.

Visuele bewijzen (foto's, schema's, grafieken) kunnen cruciale informatie bevatten. Analyseer [AFBEELDING ANALYSE] secties extra zorgvuldig.

` + jsonOnly

const factualUser = `INPUT:
- Nieuwe feiten/stukken: %s
- Mijn argumentatie (voor contradictie-check): %s

ANALYSEER:
1. Consistentie met eerdere beweringen
2. Bewijsgaten
3. Geloofwaardigheid en timing
4. Visuele bewijzen, indien aanwezig

OUTPUT FORMAT (JSON):
{
  "feitelijke_analyse": [
    {
      "element_id": "[id]",
      "feit_samenvatting": "",
      "type_bewijs": "[Documentair|Getuigenis|Visueel|Technisch|Anders]",
      "contradictie_analyse": {"interne_contradicties": [], "conflict_met_mijn_standpunt": []},
      "bewijs_analyse": {"vereist_bewijs": [], "aangeleverd_bewijs": [], "bewijs_gaten": [], "bewijskracht": "[Sterk|Matig|Zwak]", "visuele_component": ""},
      "geloofwaardigheid": {"timing_verdacht": false, "bron_betrouwbaarheid": "[Hoog|Medium|Laag]", "manipulatie_risico": "[Laag|Medium|Hoog]"}
    }
  ],
  "grootste_risico_feiten": [],
  "aanvullend_onderzoek_nodig": [],
  "visueel_bewijs_impact": ""
}`

const legalSystem = `Je bent een expert in Belgisch materieel recht. Je analyseert nieuwe juridische argumenten op hun impact op de constitutieve elementen van de rechtsvordering, element per element, in termen van aanval en verdediging.

` + jsonOnly

const legalUser = `INPUT:
- Nieuwe juridische argumenten: %s
- Feitelijke ondersteuning: %s

ANALYSEER de impact op de constitutieve elementen en formuleer verweer.

OUTPUT FORMAT (JSON):
{
  "juridische_analyse": [
    {
      "element_id": "[id]",
      "aangevallen_element": "[Fout|Schade|Causaal Verband|Andere]",
      "argument_samenvatting": "",
      "juridische_sterkte": {"score": "[Sterk|Matig|Zwak]", "onderbouwing": {"sterke_punten": [], "zwakke_punten": []}},
      "impact_op_mijn_vordering": {"ernst": "[Fataal|Ernstig|Beperkt|Minimaal]", "getroffen_elementen": []},
      "verweer_opties": []
    }
  ],
  "prioritaire_verweren": []
}`

const impactSystem = `Je bent een strategisch analist die de gecombineerde output van alle specialistische analyses samenbrengt. Je identificeert cascade-effecten, kruisverbanden en patronen die afzonderlijke analyses hebben gemist.

` + jsonOnly

const impactUser = `SYNTHETISEER de analyses:
- Nieuwe elementen (samenvatting): %s
- Procedureel: %s
- Feitelijk: %s
- Juridisch: %s

IDENTIFICEER:
1. Cascade-effecten
2. Synergieën tussen argumenten
3. Strategische opportuniteiten
4. Impact van visuele bewijzen

OUTPUT FORMAT (JSON):
{
  "impact_matrix": {"direct_aangevallen_argumenten": [], "indirecte_impacts": []},
  "synergie_analyse": [],
  "nieuwe_opportuniteiten": [],
  "visueel_bewijs_strategie": "",
  "structurele_integriteit": {
    "hoofdargumentatie_intact": true,
    "kritieke_pijlers_aangetast": [],
    "herstructurering_nodig": false,
    "voorgestelde_aanpassingen": []
  }
}`

const synthesisSystem = `Je bent de hoofdstrateeg die alle analyses integreert tot een coherent actieplan. Je formuleert concrete teksten voor de repliek, prioriteert acties en ontwikkelt de optimale processtrategie.

Je output is direct bruikbaar voor de advocaat. Wees precies in je juridische formuleringen en gebruik de Belgische juridische stijl.

` + jsonOnly

const synthesisUser = `FINALE SYNTHESE. Samenvatting van de analyses:
%s

BELANGRIJKSTE BEVINDINGEN:
- Procedureel: %s
- Feitelijk: %s
- Juridisch: %s
- Visuele bewijzen: %d elementen gedetecteerd
%s
CREËER:
1. Executive summary (3 zinnen)
2. Top 3 prioritaire acties
3. Formulering van het hoofdverweer
4. Strategie voor visuele bewijzen

OUTPUT FORMAT (JSON):
{
  "strategisch_memorandum": {
    "executive_summary": "",
    "prioritaire_acties": [],
    "hoofdverweer": "",
    "visueel_bewijs_strategie": "",
    "verweer_hierarchie": {}
  }
}`

var noveltySchema = map[string]any{
	"type":     "object",
	"required": []string{KeyNewElements},
	"properties": map[string]any{
		KeyNewElements: map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"categorie", "citaat"},
				"properties": map[string]any{
					"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
				},
			},
		},
		"samenvatting": map[string]any{"type": "object"},
	},
}

var integritySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"structurele_integriteit": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"hoofdargumentatie_intact": map[string]any{"type": "boolean"},
				"herstructurering_nodig":   map[string]any{"type": "boolean"},
			},
		},
	},
}

// Rebuttal returns the six-stage variant that analyses the opposing party's
// latest conclusion against its history and the client's argumentation.
func Rebuttal() pipeline.Variant {
	return pipeline.Variant{
		Name:    VariantRebuttal,
		Title:   "Repliek-analyse",
		Roles:   []string{pipeline.RoleHistory, pipeline.RoleLatest, pipeline.RoleArguments},
		Primary: pipeline.RoleLatest,
		Stages: []pipeline.Stage{
			{
				Name:      StageNovelty,
				Title:     "Nieuwheidsdetectie",
				Tier:      invoker.TierFast,
				Build:     buildNovelty,
				Summarize: countSummary(KeyNewElements, "nieuwe elementen gevonden"),
				NoSignal:  func(p map[string]any) bool { return Count(p, KeyNewElements) == 0 },
				Schema:    noveltySchema,
			},
			{
				Name:      StageProcedural,
				Title:     "Procedurele analyse",
				Requires:  []string{StageNovelty},
				Tier:      invoker.TierFast,
				Build:     buildProcedural,
				Shortcut:  shortcutWhenNone(emptyProcedural, CategoryProcedural),
				Summarize: countSummary("procedurele_analyse", "risico's geanalyseerd"),
			},
			{
				Name:      StageFactual,
				Title:     "Feitelijke analyse",
				Requires:  []string{StageNovelty},
				Tier:      invoker.TierFast,
				Build:     buildFactual,
				Shortcut:  shortcutWhenNone(emptyFactual, CategoryFact, CategoryVisual),
				Summarize: countSummary("feitelijke_analyse", "elementen geanalyseerd"),
			},
			{
				Name:      StageLegal,
				Title:     "Juridische analyse",
				Requires:  []string{StageNovelty},
				Optional:  []string{StageFactual},
				Tier:      invoker.TierFast,
				Build:     buildLegal,
				Shortcut:  shortcutWhenNone(emptyLegal, CategoryArgument, CategoryLegalSource),
				Summarize: countSummary("juridische_analyse", "argumenten geanalyseerd"),
			},
			{
				Name:      StageImpact,
				Title:     "Impactanalyse",
				Requires:  []string{StageNovelty},
				Optional:  []string{StageProcedural, StageFactual, StageLegal},
				Tier:      invoker.TierFast,
				Build:     buildImpact,
				Summarize: func(map[string]any) string { return "impactmatrix opgesteld" },
				Schema:    integritySchema,
			},
			{
				Name:      StageSynthesis,
				Title:     "Finale synthese",
				Requires:  []string{StageNovelty},
				Optional:  []string{StageProcedural, StageFactual, StageLegal, StageImpact},
				Tier:      invoker.TierAdvanced,
				Build:     buildSynthesis,
				Summarize: func(map[string]any) string { return "synthese compleet" },
			},
		},
	}
}

func buildNovelty(in pipeline.Inputs, _ *pipeline.State) pipeline.Prompt {
	return pipeline.Prompt{
		System: noveltySystem,
		User:   fmt.Sprintf(noveltyUser, orNone(in.Text(pipeline.RoleHistory)), in.Text(pipeline.RoleLatest)),
	}
}

func buildProcedural(_ pipeline.Inputs, st *pipeline.State) pipeline.Prompt {
	findings := FilterFindings(DecodeFindings(st.Payload(StageNovelty), KeyNewElements), CategoryProcedural)
	return pipeline.Prompt{System: proceduralSystem, User: fmt.Sprintf(proceduralUser, indent(findings))}
}

func buildFactual(in pipeline.Inputs, st *pipeline.State) pipeline.Prompt {
	findings := FilterFindings(DecodeFindings(st.Payload(StageNovelty), KeyNewElements), CategoryFact, CategoryVisual)
	own := truncate(in.Text(pipeline.RoleArguments), argumentationExcerpt)
	return pipeline.Prompt{System: factualSystem, User: fmt.Sprintf(factualUser, indent(findings), orNone(own))}
}

func buildLegal(_ pipeline.Inputs, st *pipeline.State) pipeline.Prompt {
	findings := FilterFindings(DecodeFindings(st.Payload(StageNovelty), KeyNewElements), CategoryArgument, CategoryLegalSource)
	support := List(st.Payload(StageFactual), "feitelijke_analyse")
	if support == nil {
		support = []any{}
	}
	return pipeline.Prompt{System: legalSystem, User: fmt.Sprintf(legalUser, indent(findings), indent(support))}
}

func buildImpact(_ pipeline.Inputs, st *pipeline.State) pipeline.Prompt {
	return pipeline.Prompt{
		System: impactSystem,
		User: fmt.Sprintf(impactUser,
			indent(Map(st.Payload(StageNovelty), "samenvatting")),
			indent(st.Payload(StageProcedural)),
			indent(st.Payload(StageFactual)),
			indent(st.Payload(StageLegal)),
		),
	}
}

func buildSynthesis(in pipeline.Inputs, st *pipeline.State) pipeline.Prompt {
	novelty := st.Payload(StageNovelty)
	visual := Int(Map(novelty, "samenvatting"), "visuele_elementen_gevonden", 0)
	summary := map[string]any{
		"nieuwe_elementen":     Count(novelty, KeyNewElements),
		"procedurele_risicos":  Count(st.Payload(StageProcedural), "procedurele_analyse"),
		"feitelijke_issues":    Count(st.Payload(StageFactual), "feitelijke_analyse"),
		"juridische_aanvallen": Count(st.Payload(StageLegal), "juridische_analyse"),
		"visuele_elementen":    visual,
		"hoofdrisico":          Map(st.Payload(StageImpact), "structurele_integriteit"),
	}

	var goal string
	if g := strings.TrimSpace(in.Goal); g != "" {
		goal = "- Specifiek doel van de cliënt: " + g + "\n"
	}

	return pipeline.Prompt{
		System: synthesisSystem,
		User: fmt.Sprintf(synthesisUser,
			indent(summary),
			indent(nonNil(List(st.Payload(StageProcedural), "prioriteit_volgorde"))),
			indent(nonNil(List(st.Payload(StageFactual), "grootste_risico_feiten"))),
			indent(nonNil(List(st.Payload(StageLegal), "prioritaire_verweren"))),
			visual,
			goal,
		),
	}
}

func emptyProcedural() map[string]any {
	return map[string]any{"procedurele_analyse": []any{}, "prioriteit_volgorde": []any{}, "onmiddellijke_actie_vereist": false}
}

func emptyFactual() map[string]any {
	return map[string]any{"feitelijke_analyse": []any{}, "grootste_risico_feiten": []any{}}
}

func emptyLegal() map[string]any {
	return map[string]any{"juridische_analyse": []any{}, "prioritaire_verweren": []any{}}
}

// shortcutWhenNone answers a specialist stage locally with an empty analysis
// when the novelty stage found nothing in its categories.
func shortcutWhenNone(empty func() map[string]any, cats ...Category) func(pipeline.Inputs, *pipeline.State) (map[string]any, bool) {
	return func(_ pipeline.Inputs, st *pipeline.State) (map[string]any, bool) {
		findings := FilterFindings(DecodeFindings(st.Payload(StageNovelty), KeyNewElements), cats...)
		if len(findings) > 0 {
			return nil, false
		}
		return empty(), true
	}
}

func countSummary(key, label string) func(map[string]any) string {
	return func(p map[string]any) string {
		return fmt.Sprintf("%d %s", Count(p, key), label)
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(geen)"
	}
	return s
}

func nonNil(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}
