package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Lllllllleong/legaldocumentflow/internal/models"
)

// HaltNoSignal is the halt reason recorded when a discovery stage finds
// nothing worth analysing.
const HaltNoSignal = "no signal"

// Entry is one stage result in execution order.
type Entry struct {
	Name   string             `json:"name"`
	Result models.StageResult `json:"result"`
}

// State is the ordered mapping from stage name to result produced by one
// run. Entries are only ever appended.
type State struct {
	RunID       string
	Variant     string
	Halted      bool
	HaltReason  string
	StartedAt   time.Time
	CompletedAt time.Time

	order   []string
	results map[string]models.StageResult
}

// NewState returns an empty state for a run.
func NewState(runID, variant string) *State {
	return &State{
		RunID:   runID,
		Variant: variant,
		results: make(map[string]models.StageResult),
	}
}

// Record appends the result for a stage. A stage can be recorded once.
func (s *State) Record(name string, result models.StageResult) error {
	if s.results == nil {
		s.results = make(map[string]models.StageResult)
	}
	if _, exists := s.results[name]; exists {
		return fmt.Errorf("stage %q already recorded", name)
	}
	s.order = append(s.order, name)
	s.results[name] = result
	return nil
}

// Get returns the result recorded for name.
func (s *State) Get(name string) (models.StageResult, bool) {
	r, ok := s.results[name]
	return r, ok
}

// Succeeded reports whether name was recorded with a usable payload.
func (s *State) Succeeded(name string) bool {
	r, ok := s.results[name]
	return ok && r.OK()
}

// Payload returns the payload of a successful stage, or an empty map when
// the stage is absent or failed.
func (s *State) Payload(name string) map[string]any {
	r, ok := s.results[name]
	if !ok || !r.OK() || r.Payload == nil {
		return map[string]any{}
	}
	return r.Payload
}

// Names returns stage names in execution order.
func (s *State) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of recorded stages.
func (s *State) Len() int {
	return len(s.order)
}

// Entries returns all results in execution order.
func (s *State) Entries() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, Entry{Name: name, Result: s.results[name]})
	}
	return out
}

// Failed returns the names of stages recorded as failures.
func (s *State) Failed() []string {
	var out []string
	for _, name := range s.order {
		if !s.results[name].OK() {
			out = append(out, name)
		}
	}
	return out
}

type stateJSON struct {
	RunID       string    `json:"runId"`
	Variant     string    `json:"variant"`
	Halted      bool      `json:"halted"`
	HaltReason  string    `json:"haltReason,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	Stages      []Entry   `json:"stages"`
}

// MarshalJSON encodes the state with stages as an ordered list so that
// execution order survives the round trip.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		RunID:       s.RunID,
		Variant:     s.Variant,
		Halted:      s.Halted,
		HaltReason:  s.HaltReason,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		Stages:      s.Entries(),
	})
}

// UnmarshalJSON restores a state written by MarshalJSON.
func (s *State) UnmarshalJSON(b []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	restored := NewState(raw.RunID, raw.Variant)
	restored.Halted = raw.Halted
	restored.HaltReason = raw.HaltReason
	restored.StartedAt = raw.StartedAt
	restored.CompletedAt = raw.CompletedAt
	for _, e := range raw.Stages {
		if err := restored.Record(e.Name, e.Result); err != nil {
			return err
		}
	}
	*s = *restored
	return nil
}
