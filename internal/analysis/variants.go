// Package analysis defines the legal analysis variants as stage descriptor
// lists, together with their prompts and payload decoding.
package analysis

import (
	"fmt"
	"sort"

	"github.com/Lllllllleong/legaldocumentflow/internal/pipeline"
)

// Variant names.
const (
	VariantRebuttal = "repliek"
	VariantArticles = "artikelcontrole"
)

var variants = map[string]func() pipeline.Variant{
	VariantRebuttal: Rebuttal,
	VariantArticles: Articles,
}

// Lookup returns the variant registered under name.
func Lookup(name string) (pipeline.Variant, error) {
	build, ok := variants[name]
	if !ok {
		return pipeline.Variant{}, fmt.Errorf("unknown analysis variant %q (known: %v)", name, Names())
	}
	return build(), nil
}

// Names lists the registered variant names.
func Names() []string {
	out := make([]string, 0, len(variants))
	for name := range variants {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
