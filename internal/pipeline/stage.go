package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Lllllllleong/legaldocumentflow/internal/invoker"
)

// Document roles used by the built-in variants.
const (
	RoleHistory   = "historiek"
	RoleLatest    = "conclusie"
	RoleArguments = "argumentatie"
	RoleDocument  = "document"
	// RoleImages holds the merged analysis of separately uploaded images.
	RoleImages    = "afbeeldingen"
)

// ErrNoInput is returned by Run when there is no document text at all.
var ErrNoInput = errors.New("no document text to analyse")

// Inputs are the caller-supplied texts for one run, keyed by document role.
type Inputs struct {
	Texts map[string]string
	Goal  string
}

// Text returns the text for role, or "" when absent.
func (in Inputs) Text(role string) string {
	return in.Texts[role]
}

func (in Inputs) empty() bool {
	for _, t := range in.Texts {
		if strings.TrimSpace(t) != "" {
			return false
		}
	}
	return true
}

// Prompt is the system instruction and user content for one model call.
type Prompt struct {
	System string
	User   string
}

// Stage describes one named step. Build reads the inputs and the results of
// earlier stages; the state it receives must be treated as read-only.
type Stage struct {
	Name  string
	Title string
	// Requires lists stages that must have succeeded for this stage to run.
	Requires []string
	// Optional lists stages whose payload is used when present. A failed
	// optional stage is seen as an empty payload.
	Optional []string
	Tier     invoker.Tier
	Tools    []invoker.Tool

	Build func(in Inputs, st *State) Prompt
	// Shortcut may answer the stage locally, skipping the model call.
	Shortcut func(in Inputs, st *State) (map[string]any, bool)
	// Summarize renders a short progress line for a successful payload.
	Summarize func(payload map[string]any) string
	// NoSignal reports that a successful payload ends the run early.
	NoSignal func(payload map[string]any) bool
	// Schema is an optional JSON Schema checked against the payload.
	Schema map[string]any
}

// Variant is a named, ordered list of stages.
type Variant struct {
	Name  string
	Title string
	// Roles lists the document roles the variant reads; Primary must be
	// non-empty for a run to start.
	Roles   []string
	Primary string
	Stages  []Stage
}

// Validate checks that stage names are unique and that every dependency
// names an earlier stage.
func (v Variant) Validate() error {
	if len(v.Stages) == 0 {
		return fmt.Errorf("variant %q has no stages", v.Name)
	}
	seen := make(map[string]bool, len(v.Stages))
	for _, st := range v.Stages {
		if st.Name == "" {
			return fmt.Errorf("variant %q: stage without name", v.Name)
		}
		if seen[st.Name] {
			return fmt.Errorf("variant %q: duplicate stage %q", v.Name, st.Name)
		}
		if st.Build == nil {
			return fmt.Errorf("variant %q: stage %q has no prompt builder", v.Name, st.Name)
		}
		for _, dep := range append(append([]string{}, st.Requires...), st.Optional...) {
			if !seen[dep] {
				return fmt.Errorf("variant %q: stage %q depends on %q which does not run before it", v.Name, st.Name, dep)
			}
		}
		seen[st.Name] = true
	}
	return nil
}

// StageNames returns the declared stage names in order.
func (v Variant) StageNames() []string {
	out := make([]string, len(v.Stages))
	for i, st := range v.Stages {
		out[i] = st.Name
	}
	return out
}
