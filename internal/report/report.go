// Package report renders a finished pipeline state into the artifacts handed
// to users: a lossless JSON export, a Markdown report, an xlsx findings
// workbook and an export of the extracted document text.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Lllllllleong/legaldocumentflow/internal/models"
	"github.com/Lllllllleong/legaldocumentflow/internal/pipeline"
)

// NoData replaces any report section whose source stage did not succeed.
const NoData = "Geen gegevens beschikbaar"

// Source is one extracted input document.
type Source struct {
	Role     string                 `json:"role"`
	Filename string                 `json:"filename"`
	Text     string                 `json:"text"`
	Images   []models.DetectedImage `json:"images,omitempty"`
}

// Meta is run information that is not part of the pipeline state.
type Meta struct {
	CaseID      string
	Goal        string
	GeneratedAt time.Time
	Sources     []Source
}

// Report holds the rendered artifacts.
type Report struct {
	Export        []byte
	Markdown      string
	Workbook      []byte
	ExtractedText string
}

type exportMetadata struct {
	RunID       string    `json:"runId"`
	CaseID      string    `json:"caseId,omitempty"`
	Variant     string    `json:"variant"`
	Goal        string    `json:"goal,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
	Halted      bool      `json:"halted"`
	HaltReason  string    `json:"haltReason,omitempty"`
	Failed      []string  `json:"failedStages,omitempty"`
}

type exportDocument struct {
	Metadata exportMetadata  `json:"metadata"`
	State    *pipeline.State `json:"state"`
}

// Assemble renders every artifact for st.
func Assemble(st *pipeline.State, meta Meta) (*Report, error) {
	if st == nil {
		return nil, fmt.Errorf("report: nil state")
	}
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now()
	}

	export, err := Export(st, meta)
	if err != nil {
		return nil, err
	}
	workbook, err := Workbook(st)
	if err != nil {
		return nil, err
	}

	return &Report{
		Export:        export,
		Markdown:      Markdown(st, meta),
		Workbook:      workbook,
		ExtractedText: ExtractedText(meta),
	}, nil
}

// Export serialises the full state, including the raw text of failed
// stages, together with run metadata.
func Export(st *pipeline.State, meta Meta) ([]byte, error) {
	doc := exportDocument{
		Metadata: exportMetadata{
			RunID:       st.RunID,
			CaseID:      meta.CaseID,
			Variant:     st.Variant,
			Goal:        meta.Goal,
			GeneratedAt: meta.GeneratedAt.UTC(),
			Halted:      st.Halted,
			HaltReason:  st.HaltReason,
			Failed:      st.Failed(),
		},
		State: st,
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return b, nil
}

// ReadExport restores the state from an export written by Export.
func ReadExport(b []byte) (*pipeline.State, error) {
	var doc struct {
		State *pipeline.State `json:"state"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal export: %w", err)
	}
	if doc.State == nil {
		return nil, fmt.Errorf("export has no state")
	}
	return doc.State, nil
}
