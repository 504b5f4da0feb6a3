package report

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/legaldocumentflow/internal/pipeline"
)

var roleTitles = map[string]string{
	pipeline.RoleHistory:   "Historiek tegenpartij",
	pipeline.RoleLatest:    "Laatste conclusie tegenpartij",
	pipeline.RoleArguments: "Mijn argumentatie",
	pipeline.RoleDocument:  "Document",
	pipeline.RoleImages:    "Extra afbeeldingen",
}

// ExtractedText renders the extracted content of every source document.
func ExtractedText(meta Meta) string {
	var b strings.Builder
	b.WriteString("# Geëxtraheerde document content\n")
	fmt.Fprintf(&b, "Gegenereerd: %s\n", meta.GeneratedAt.Format("2006-01-02 15:04:05"))

	if len(meta.Sources) == 0 {
		b.WriteString("\nGeen content\n")
		return b.String()
	}
	for _, src := range meta.Sources {
		title, ok := roleTitles[src.Role]
		if !ok {
			title = src.Role
		}
		fmt.Fprintf(&b, "\n## %s", title)
		if src.Filename != "" {
			fmt.Fprintf(&b, " (%s)", src.Filename)
		}
		b.WriteString("\n")

		text := strings.TrimSpace(src.Text)
		if text == "" {
			text = "Geen content"
		}
		b.WriteString(text + "\n")
		if len(src.Images) > 0 {
			fmt.Fprintf(&b, "\n%d afbeelding(en) gedetecteerd in %s\n", len(src.Images), src.Filename)
		}
	}
	return b.String()
}
