package analysis

import (
	"fmt"
	"strings"
)

// Category is the fixed set of finding kinds.
type Category string

const (
	CategoryArgument    Category = "Nieuw Argument"
	CategoryLegalSource Category = "Nieuwe Juridische Bron"
	CategoryFact        Category = "Nieuw Stuk/Feit"
	CategoryProcedural  Category = "Nieuw Procedureel Middel"
	CategoryVisual      Category = "Nieuw Visueel Bewijs"
	CategoryStatute     Category = "Wetsartikel"
	CategoryUnknown     Category = "Onbekend"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryArgument,
	CategoryLegalSource,
	CategoryFact,
	CategoryProcedural,
	CategoryVisual,
	CategoryStatute,
}

// ParseCategory maps the label a model used to a Category. Models vary the
// wording, so matching is by keyword.
func ParseCategory(label string) Category {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case l == "":
		return CategoryUnknown
	case strings.Contains(l, "procedure"), strings.Contains(l, "procedureel"):
		return CategoryProcedural
	case strings.Contains(l, "visueel"), strings.Contains(l, "visual"):
		return CategoryVisual
	case strings.Contains(l, "wetsartikel"), strings.Contains(l, "statutory"), strings.Contains(l, "artikel"):
		return CategoryStatute
	case strings.Contains(l, "juridische"), strings.Contains(l, "bron"), strings.Contains(l, "legal source"):
		return CategoryLegalSource
	case strings.Contains(l, "feit"), strings.Contains(l, "stuk"), strings.Contains(l, "fact"), strings.Contains(l, "exhibit"):
		return CategoryFact
	case strings.Contains(l, "argument"):
		return CategoryArgument
	default:
		return CategoryUnknown
	}
}

// Finding is one structured unit extracted by a discovery stage.
type Finding struct {
	ID              string   `json:"id"`
	Category        Category `json:"categorie"`
	Label           string   `json:"label,omitempty"`
	Quote           string   `json:"citaat"`
	Location        string   `json:"locatie,omitempty"`
	Reason          string   `json:"reden,omitempty"`
	Confidence      float64  `json:"confidence"`
	Ambiguous       bool     `json:"twijfelgeval"`
	AmbiguityReason string   `json:"twijfel_reden,omitempty"`
	Visual          bool     `json:"bevat_visueel_element"`
}

// DecodeFindings reads the findings array at key from a parsed payload.
// Elements without an id get a positional one; confidence is clamped to
// [0, 1].
func DecodeFindings(payload map[string]any, key string) []Finding {
	objs := Objects(payload, key)
	out := make([]Finding, 0, len(objs))
	for i, obj := range objs {
		f := Finding{
			ID:              String(obj, "id", positionalID(key, i)),
			Category:        ParseCategory(String(obj, "categorie", "")),
			Label:           String(obj, "artikel", ""),
			Quote:           String(obj, "citaat", ""),
			Location:        String(obj, "locatie", ""),
			Reason:          String(obj, "waarom_nieuw", String(obj, "reden", "")),
			Confidence:      clamp(Float(obj, "confidence", 0)),
			Ambiguous:       Bool(obj, "twijfelgeval", false),
			AmbiguityReason: String(obj, "twijfel_reden", ""),
			Visual:          Bool(obj, "bevat_visueel_element", false),
		}
		if f.Category == CategoryVisual {
			f.Visual = true
		}
		out = append(out, f)
	}
	return out
}

// FilterFindings returns the findings whose category is one of cats.
func FilterFindings(findings []Finding, cats ...Category) []Finding {
	var out []Finding
	for _, f := range findings {
		for _, c := range cats {
			if f.Category == c {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func positionalID(key string, i int) string {
	prefix := "N"
	if key == KeyArticles {
		prefix = "A"
	}
	return fmt.Sprintf("%s%03d", prefix, i+1)
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
