// Package session keeps the uploaded documents and the latest analysis of
// one user interaction in memory.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/legaldocumentflow/internal/extract"
	"github.com/Lllllllleong/legaldocumentflow/internal/models"
	"github.com/Lllllllleong/legaldocumentflow/internal/pipeline"
	"github.com/Lllllllleong/legaldocumentflow/internal/report"
)

type document struct {
	role     string
	filename string
	result   extract.Result
}

// Session is the explicit context of one analysis and its follow-ups. It is
// safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu            sync.Mutex
	variant       string
	goal          string
	docs          []document
	images        []models.Document
	imageAnalysis string
	state         *pipeline.State
	rep           *report.Report
	lastSeen      time.Time
}

// Options returns the variant and goal the next run uses.
func (s *Session) Options() (variant, goal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.variant, s.goal
}

// Configure changes the variant and goal for later runs. Empty values keep
// the current setting.
func (s *Session) Configure(variant, goal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if variant != "" {
		s.variant = variant
	}
	if goal != "" {
		s.goal = goal
	}
}

// AddDocument stores the extraction of an uploaded document. A second
// document for the same role replaces the first.
func (s *Session) AddDocument(role, filename string, res extract.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.docs {
		if d.role == role {
			s.docs[i] = document{role: role, filename: filename, result: res}
			return
		}
	}
	s.docs = append(s.docs, document{role: role, filename: filename, result: res})
}

// Roles returns the roles that have a document, in upload order.
func (s *Session) Roles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.docs))
	for i, d := range s.docs {
		out[i] = d.role
	}
	return out
}

// AddImages appends separately uploaded images.
func (s *Session) AddImages(images ...models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, images...)
}

// Images returns a copy of the uploaded images in upload order.
func (s *Session) Images() []models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Document(nil), s.images...)
}

// SetImageAnalysis stores the merged analysis of the uploaded images.
func (s *Session) SetImageAnalysis(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imageAnalysis = text
}

// Inputs builds the pipeline inputs. The image analysis is appended to the
// primary role's text, since that is the document the images support.
func (s *Session) Inputs(primary string) pipeline.Inputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	texts := make(map[string]string, len(s.docs)+1)
	for _, d := range s.docs {
		texts[d.role] = d.result.Text
	}
	if strings.TrimSpace(s.imageAnalysis) != "" {
		texts[primary] += s.imageAnalysis
	}
	return pipeline.Inputs{Texts: texts, Goal: s.goal}
}

// Sources lists the documents for the extracted-text report.
func (s *Session) Sources() []report.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]report.Source, 0, len(s.docs)+1)
	for _, d := range s.docs {
		out = append(out, report.Source{Role: d.role, Filename: d.filename, Text: d.result.Text, Images: d.result.Images})
	}
	if s.imageAnalysis != "" {
		out = append(out, report.Source{Role: pipeline.RoleImages, Text: s.imageAnalysis})
	}
	return out
}

// SetResult stores the outcome of the latest run.
func (s *Session) SetResult(st *pipeline.State, rep *report.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.rep = rep
}

// Result returns the latest run, if any.
func (s *Session) Result() (*pipeline.State, *report.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.rep, s.state != nil
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
