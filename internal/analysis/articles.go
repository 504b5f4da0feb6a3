package analysis

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/legaldocumentflow/internal/invoker"
	"github.com/Lllllllleong/legaldocumentflow/internal/pipeline"
)

// Stage names of the articles variant.
const (
	StageExtraction   = "extractie"
	StageVerification = "verificatie"
	StageAdvice       = "advies"
)

// KeyArticles holds the findings of the extraction stage.
const KeyArticles = "artikelen"

// Verification statuses the verification stage is asked to use.
const (
	VerdictCorrect  = "Correct"
	VerdictWrong    = "Onjuist"
	VerdictOutdated = "Verouderd"
	VerdictUnsure   = "Onzeker"
)

const extractionSystem = `Je bent een Belgische juridische analist. Je taak is beperkt en mechanisch: identificeer ELK wetsartikel waarnaar in het document wordt verwezen, exact zoals het er staat.

Interpreteer niet en beoordeel niet. Neem ook impliciete verwijzingen op ("voormeld artikel", "het vorige lid") als twijfelgeval.

` + jsonOnly

const extractionUser = `DOCUMENT:
%s

OUTPUT FORMAT (JSON):
{
  "artikelen": [
    {
      "id": "A001",
      "categorie": "Wetsartikel",
      "artikel": "[genormaliseerde verwijzing, bv. Art. 1382 BW]",
      "citaat": "[exacte zin uit het document]",
      "locatie": "[paragraaf of pagina]",
      "confidence": 0.0,
      "twijfelgeval": false,
      "twijfel_reden": ""
    }
  ],
  "samenvatting": {"totaal_artikelen": 0, "wetboeken": []}
}`

const verificationSystem = `Je bent een Belgische wetgevingsspecialist. Je controleert of wetsartikelen correct worden aangehaald: bestaat het artikel, is de nummering juist, is het nog van kracht (let op de hervorming van het Burgerlijk Wetboek), en ondersteunt de inhoud de bewering in het citaat.

Gebruik de functie raadpleeg_bron om officiële bronnen te raadplegen (bv. https://www.ejustice.just.fgov.be) wanneer je twijfelt.

` + jsonOnly

const verificationUser = `TE CONTROLEREN ARTIKELEN:
%s

OUTPUT FORMAT (JSON):
{
  "verificaties": [
    {
      "artikel_id": "A001",
      "artikel": "Art. 1382 BW",
      "status": "[Correct|Onjuist|Verouderd|Onzeker]",
      "toelichting": "",
      "correcte_verwijzing": "[alleen indien niet correct]",
      "bronnen": []
    }
  ],
  "problemen": ["[korte beschrijving van elk probleem]"]
}`

const adviceSystem = `Je bent een ervaren Belgische advocaat en processtrateeg. Op basis van de gevonden wetsartikelen en hun controle formuleer je concreet strategisch advies. Houd rekening met het specifieke doel van de cliënt.

` + jsonOnly

const adviceUser = `GEVONDEN ARTIKELEN:
%s

CONTROLE:
%s

SPECIFIEK DOEL:
%s

OUTPUT FORMAT (JSON):
{
  "strategisch_memorandum": {
    "executive_summary": "",
    "prioritaire_acties": [],
    "verweer_hierarchie": {}
  },
  "structurele_integriteit": {
    "hoofdargumentatie_intact": true,
    "kritieke_pijlers_aangetast": [],
    "herstructurering_nodig": false,
    "voorgestelde_aanpassingen": []
  }
}`

var extractionSchema = map[string]any{
	"type":     "object",
	"required": []string{KeyArticles},
	"properties": map[string]any{
		KeyArticles: map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"artikel"},
				"properties": map[string]any{
					"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
				},
			},
		},
	},
}

var verificationSchema = map[string]any{
	"type":     "object",
	"required": []string{"verificaties"},
	"properties": map[string]any{
		"verificaties": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"status": map[string]any{"enum": []string{VerdictCorrect, VerdictWrong, VerdictOutdated, VerdictUnsure}},
				},
			},
		},
	},
}

// Articles returns the three-stage variant that extracts cited statutory
// articles, verifies them against public sources and gives strategic advice.
func Articles() pipeline.Variant {
	return pipeline.Variant{
		Name:    VariantArticles,
		Title:   "Artikelcontrole",
		Roles:   []string{pipeline.RoleDocument},
		Primary: pipeline.RoleDocument,
		Stages: []pipeline.Stage{
			{
				Name:      StageExtraction,
				Title:     "Extractie van wetsartikelen",
				Tier:      invoker.TierFast,
				Build:     buildExtraction,
				Summarize: countSummary(KeyArticles, "artikelen gevonden"),
				NoSignal:  func(p map[string]any) bool { return Count(p, KeyArticles) == 0 },
				Schema:    extractionSchema,
			},
			{
				Name:      StageVerification,
				Title:     "Controle van wetsartikelen",
				Requires:  []string{StageExtraction},
				Tier:      invoker.TierFast,
				Tools:     []invoker.Tool{invoker.ToolSourceLookup},
				Build:     buildVerification,
				Summarize: countSummary("problemen", "problemen vastgesteld"),
				Schema:    verificationSchema,
			},
			{
				Name:      StageAdvice,
				Title:     "Strategisch advies",
				Requires:  []string{StageExtraction},
				Optional:  []string{StageVerification},
				Tier:      invoker.TierAdvanced,
				Build:     buildAdvice,
				Summarize: func(map[string]any) string { return "advies opgesteld" },
				Schema:    integritySchema,
			},
		},
	}
}

func buildExtraction(in pipeline.Inputs, _ *pipeline.State) pipeline.Prompt {
	return pipeline.Prompt{System: extractionSystem, User: fmt.Sprintf(extractionUser, in.Text(pipeline.RoleDocument))}
}

func buildVerification(_ pipeline.Inputs, st *pipeline.State) pipeline.Prompt {
	articles := DecodeFindings(st.Payload(StageExtraction), KeyArticles)
	return pipeline.Prompt{System: verificationSystem, User: fmt.Sprintf(verificationUser, indent(articles))}
}

func buildAdvice(in pipeline.Inputs, st *pipeline.State) pipeline.Prompt {
	articles := DecodeFindings(st.Payload(StageExtraction), KeyArticles)
	goal := strings.TrimSpace(in.Goal)
	if goal == "" {
		goal = "Geen specifiek doel opgegeven; geef algemeen advies."
	}
	return pipeline.Prompt{
		System: adviceSystem,
		User:   fmt.Sprintf(adviceUser, indent(articles), indent(st.Payload(StageVerification)), goal),
	}
}

// Verification is one decoded verdict of the verification stage.
type Verification struct {
	ArticleID  string
	Article    string
	Status     string
	Note       string
	Correction string
	Sources    []string
}

// OK reports whether the article was confirmed as correctly cited.
func (v Verification) OK() bool {
	return v.Status == VerdictCorrect
}

// DecodeVerifications reads the verdicts of a verification payload. Statuses
// are normalised to the Verdict constants; unknown ones are kept verbatim.
func DecodeVerifications(payload map[string]any) []Verification {
	var out []Verification
	for _, obj := range Objects(payload, "verificaties") {
		out = append(out, Verification{
			ArticleID:  strings.TrimSpace(String(obj, "artikel_id", "")),
			Article:    String(obj, "artikel", ""),
			Status:     normalizeVerdict(String(obj, "status", VerdictUnsure)),
			Note:       String(obj, "toelichting", ""),
			Correction: String(obj, "correcte_verwijzing", ""),
			Sources:    Strings(obj, "bronnen"),
		})
	}
	return out
}

func normalizeVerdict(status string) string {
	status = strings.TrimSpace(status)
	for _, v := range []string{VerdictCorrect, VerdictWrong, VerdictOutdated, VerdictUnsure} {
		if strings.EqualFold(status, v) {
			return v
		}
	}
	if status == "" {
		return VerdictUnsure
	}
	return status
}

// Verdicts indexes verification results for lookup per article.
type Verdicts struct {
	list    []Verification
	byID    map[string]int
	byLabel map[string]int
}

// NewVerdicts indexes vs by article id and by normalised article label.
// The first verdict for a key wins.
func NewVerdicts(vs []Verification) *Verdicts {
	idx := &Verdicts{list: vs, byID: map[string]int{}, byLabel: map[string]int{}}
	for i, v := range vs {
		if v.ArticleID != "" {
			if _, ok := idx.byID[v.ArticleID]; !ok {
				idx.byID[v.ArticleID] = i
			}
		}
		if key := labelKey(v.Article); key != "" {
			if _, ok := idx.byLabel[key]; !ok {
				idx.byLabel[key] = i
			}
		}
	}
	return idx
}

// All returns the verdicts in payload order.
func (idx *Verdicts) All() []Verification {
	return idx.list
}

// Problems counts verdicts that are not Correct.
func (idx *Verdicts) Problems() int {
	n := 0
	for _, v := range idx.list {
		if !v.OK() {
			n++
		}
	}
	return n
}

// For returns the verdict of an article, matching on id first and on the
// normalised label otherwise.
func (idx *Verdicts) For(f Finding) (Verification, bool) {
	if i, ok := idx.byID[f.ID]; ok && f.ID != "" {
		return idx.list[i], true
	}
	if i, ok := idx.byLabel[labelKey(f.Label)]; ok && labelKey(f.Label) != "" {
		return idx.list[i], true
	}
	return Verification{}, false
}

// labelKey folds case, whitespace and dots so "art. 1382 BW" and
// "Art 1382  BW" compare equal.
func labelKey(label string) string {
	label = strings.ToLower(strings.ReplaceAll(label, ".", " "))
	return strings.Join(strings.Fields(label), " ")
}
