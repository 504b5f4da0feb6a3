package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/Lllllllleong/legaldocumentflow/internal/analysis"
	"github.com/Lllllllleong/legaldocumentflow/internal/config"
	"github.com/Lllllllleong/legaldocumentflow/internal/gcp"
	"github.com/Lllllllleong/legaldocumentflow/internal/invoker"
	"github.com/Lllllllleong/legaldocumentflow/internal/models"
	"github.com/Lllllllleong/legaldocumentflow/internal/pipeline"
	"github.com/Lllllllleong/legaldocumentflow/internal/report"
	"github.com/Lllllllleong/legaldocumentflow/internal/session"
)

// Object names of the artifacts written per run.
const (
	ArtifactExport    = "analyse.json"
	ArtifactReport    = "rapport.md"
	ArtifactWorkbook  = "bevindingen.xlsx"
	ArtifactExtracted = "geextraheerde_tekst.md"
)

// ErrBadRequest marks errors caused by the request rather than the service.
var ErrBadRequest = errors.New("bad request")

// ObjectStore reads input documents and writes artifacts.
type ObjectStore interface {
	Read(ctx context.Context, uri string) ([]byte, string, error)
	Save(ctx context.Context, object, contentType string, data []byte) (string, error)
}

// RunRecorder tracks case and run status.
type RunRecorder interface {
	UpdateCase(ctx context.Context, caseID, status, errDetails string) error
	CompleteRun(ctx context.Context, runID string, run models.AnalysisRun) error
}

// AnalyzerConfig holds all configuration for the analyzer service.
type AnalyzerConfig struct {
	ProjectID      string
	Region         string
	ReportsBucket  string
	Collection     string
	DefaultVariant string
	SessionTTL     time.Duration
}

// AnalyzerFunction holds the dependencies for the case analysis logic.
type AnalyzerFunction struct {
	runner   *Runner
	sessions *session.Manager
	objects  ObjectStore
	runs     RunRecorder
	config   AnalyzerConfig
	now      func() time.Time
}

// NewAnalyzer creates an AnalyzerFunction from the environment.
func NewAnalyzer(ctx context.Context) (*AnalyzerFunction, error) {
	cfg, err := config.NewLoader(slog.Default()).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Cloud.ProjectID == "" {
		return nil, fmt.Errorf("%s environment variable must be set", config.EnvProjectID)
	}
	if cfg.Cloud.ReportsBucket == "" {
		return nil, fmt.Errorf("%s environment variable must be set", config.EnvReportsBucket)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.Cloud.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	vertexClient, err := NewVertex(ctx, cfg)
	if err != nil {
		return nil, err
	}

	inv := invoker.New(vertexClient, invoker.WithTimeout(cfg.Models.CallTimeout))
	f := NewAnalyzerWith(
		NewRunner(inv, cfg.Analysis.ImageConcurrency, slog.Default()),
		&GCSObjects{Client: storageClient, Bucket: cfg.Cloud.ReportsBucket},
		gcp.NewCaseStore(firestoreClient, cfg.Cloud.FirestoreCollection),
		AnalyzerConfig{
			ProjectID:      cfg.Cloud.ProjectID,
			Region:         cfg.Cloud.Region,
			ReportsBucket:  cfg.Cloud.ReportsBucket,
			Collection:     cfg.Cloud.FirestoreCollection,
			DefaultVariant: cfg.Analysis.Variant,
			SessionTTL:     cfg.Session.TTL,
		},
	)
	go f.SweepSessions(ctx, cfg.Session.SweepInterval)
	slog.Info("Case analyzer initialized.", "reportsBucket", cfg.Cloud.ReportsBucket, "defaultVariant", cfg.Analysis.Variant)
	return f, nil
}

// Backend is a model client the invoker can call.
type Backend interface {
	invoker.Generator
	SetLogger(logger *slog.Logger)
	Close() error
}

// ErrNoCredentials is returned when neither an API key nor a Vertex project
// is configured.
var ErrNoCredentials = errors.New("no model credentials: set an API key or a project and region")

// NewBackend picks the model backend for cfg. An API key selects the Gemini
// API; otherwise Vertex AI is used with ambient credentials, which needs a
// project and region.
func NewBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch {
	case cfg.APIKey != "":
		return NewGemini(ctx, cfg)
	case cfg.Cloud.ProjectID != "" && cfg.Cloud.Region != "":
		return NewVertex(ctx, cfg)
	default:
		return nil, ErrNoCredentials
	}
}

// NewVertex creates the tiered model client with the source lookup tool.
func NewVertex(ctx context.Context, cfg *config.Config) (*gcp.VertexClient, error) {
	vc, err := gcp.NewVertexClient(ctx, cfg.Cloud.ProjectID, cfg.Cloud.Region, cfg.APIKey, modelNames(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	vc.SetTemperature(cfg.Models.Temperature)
	vc.SetMaxOutputTokens(cfg.Models.MaxTokens)
	vc.SetFetcher(invoker.NewSourceLookup(nil))
	return vc, nil
}

// NewGemini creates a Gemini API client authenticated by cfg.APIKey.
func NewGemini(ctx context.Context, cfg *config.Config) (*gcp.GeminiClient, error) {
	gc, err := gcp.NewGeminiClient(ctx, cfg.APIKey, modelNames(cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	gc.SetTemperature(cfg.Models.Temperature)
	gc.SetMaxOutputTokens(cfg.Models.MaxTokens)
	gc.SetFetcher(invoker.NewSourceLookup(nil))
	return gc, nil
}

func modelNames(cfg *config.Config) gcp.ModelNames {
	return gcp.ModelNames{Fast: cfg.Models.Fast, Advanced: cfg.Models.Advanced, Vision: cfg.Models.Vision}
}

// NewAnalyzerWith assembles an AnalyzerFunction from explicit dependencies.
func NewAnalyzerWith(runner *Runner, objects ObjectStore, runs RunRecorder, cfg AnalyzerConfig) *AnalyzerFunction {
	if cfg.DefaultVariant == "" {
		cfg.DefaultVariant = analysis.VariantRebuttal
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = config.DefaultConfig().Session.TTL
	}
	return &AnalyzerFunction{
		runner:   runner,
		sessions: session.NewManager(cfg.SessionTTL),
		objects:  objects,
		runs:     runs,
		config:   cfg,
		now:      time.Now,
	}
}

// Process analyses one case and stores the artifacts. The session stays
// open afterwards so follow-up requests can re-run it with another goal or
// variant without uploading the documents again.
func (f *AnalyzerFunction) Process(ctx context.Context, req *models.AnalyzeRequest) (*models.AnalyzeResponse, error) {
	if req.CaseID == "" {
		req.CaseID = uuid.NewString()
	}
	if req.Variant == "" && req.SessionID == "" {
		req.Variant = f.config.DefaultVariant
	}
	logCtx := slog.With("caseId", req.CaseID, "sessionId", req.SessionID, "variant", req.Variant, "executionId", req.ExecutionID)
	logCtx.Info("Starting case analysis.", "documents", len(req.Documents), "extraImages", len(req.ExtraImages))

	if req.Variant != "" {
		if _, err := analysis.Lookup(req.Variant); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
	}
	if len(req.Documents) == 0 && req.SessionID == "" {
		return nil, fmt.Errorf("%w: no documents", ErrBadRequest)
	}

	docs := make([]RoleDocument, 0, len(req.Documents))
	for _, ref := range req.Documents {
		doc, err := f.loadDocument(ctx, ref)
		if err != nil {
			return nil, err
		}
		docs = append(docs, RoleDocument{Role: ref.Role, Doc: doc})
	}
	images := make([]models.Document, 0, len(req.ExtraImages))
	for _, ref := range req.ExtraImages {
		doc, err := f.loadDocument(ctx, ref)
		if err != nil {
			return nil, err
		}
		images = append(images, doc)
	}

	sess, created, err := f.openSession(req)
	if err != nil {
		return nil, err
	}
	logCtx = logCtx.With("sessionId", sess.ID)
	// A new session is only kept once it has produced a report.
	kept := false
	defer func() {
		if created && !kept {
			f.sessions.Destroy(sess.ID)
		}
	}()

	var previousRunID string
	if prev, _, ok := sess.Result(); ok {
		previousRunID = prev.RunID
		logCtx.Info("Re-running analysis in existing session.", "previousRunId", previousRunID)
	}

	f.updateCase(ctx, logCtx, req.CaseID, models.StatusRunning, "")

	if len(docs) > 0 || len(images) > 0 {
		if err := f.runner.Ingest(ctx, sess, docs, images); err != nil {
			return nil, f.fail(ctx, logCtx, req.CaseID, "failed to ingest documents", err)
		}
	}
	st, rep, err := f.runner.Analyze(ctx, sess, req.CaseID, nil)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoInput) {
			f.updateCase(ctx, logCtx, req.CaseID, models.StatusFailed, err.Error())
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return nil, f.fail(ctx, logCtx, req.CaseID, "analysis failed", err)
	}
	logCtx = logCtx.With("runId", st.RunID)

	resp, err := f.saveArtifacts(ctx, req.CaseID, st, rep)
	if err != nil {
		return nil, f.fail(ctx, logCtx, req.CaseID, "failed to save artifacts", err)
	}
	kept = true
	resp.SessionID = sess.ID
	resp.PreviousRunID = previousRunID

	run := models.AnalysisRun{
		CaseID:         req.CaseID,
		SessionID:      sess.ID,
		PreviousRunID:  previousRunID,
		Variant:        st.Variant,
		Status:         models.StatusSucceeded,
		Halted:         st.Halted,
		HaltReason:     st.HaltReason,
		FailedStages:   resp.FailedStages,
		ExportGCSUri:   resp.ExportGCSUri,
		ReportGCSUri:   resp.ReportGCSUri,
		WorkbookGCSUri: resp.WorkbookGCSUri,
		CreatedAt:      st.StartedAt,
	}
	if err := f.runs.CompleteRun(ctx, st.RunID, run); err != nil {
		logCtx.Warn("Failed to record run.", "error", err)
	}
	f.updateCase(ctx, logCtx, req.CaseID, models.StatusSucceeded, "")

	logCtx.Info("Case analysis complete.", "halted", st.Halted, "failedStages", len(resp.FailedStages))
	return resp, nil
}

// openSession returns the session named by req, or a new one. Unknown and
// expired sessions are request errors.
func (f *AnalyzerFunction) openSession(req *models.AnalyzeRequest) (*session.Session, bool, error) {
	if req.SessionID == "" {
		return f.sessions.Create(req.Variant, req.Goal), true, nil
	}
	sess, err := f.sessions.Get(req.SessionID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: session %s: %v", ErrBadRequest, req.SessionID, err)
	}
	sess.Configure(req.Variant, req.Goal)
	return sess, false, nil
}

// SweepSessions drops idle sessions every interval until ctx is done.
func (f *AnalyzerFunction) SweepSessions(ctx context.Context, interval time.Duration) {
	f.sessions.Run(ctx, interval)
}

func (f *AnalyzerFunction) saveArtifacts(ctx context.Context, caseID string, st *pipeline.State, rep *report.Report) (*models.AnalyzeResponse, error) {
	prefix := path.Join(caseID, st.RunID)
	resp := &models.AnalyzeResponse{
		RunID:        st.RunID,
		Status:       models.StatusSucceeded,
		Halted:       st.Halted,
		HaltReason:   st.HaltReason,
		FailedStages: st.Failed(),
	}
	for _, a := range []struct {
		name, contentType string
		data              []byte
		uri               *string
	}{
		{ArtifactExport, "application/json", rep.Export, &resp.ExportGCSUri},
		{ArtifactReport, "text/markdown; charset=utf-8", []byte(rep.Markdown), &resp.ReportGCSUri},
		{ArtifactWorkbook, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rep.Workbook, &resp.WorkbookGCSUri},
		{ArtifactExtracted, "text/markdown; charset=utf-8", []byte(rep.ExtractedText), nil},
	} {
		uri, err := f.objects.Save(ctx, path.Join(prefix, a.name), a.contentType, a.data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.name, err)
		}
		if a.uri != nil {
			*a.uri = uri
		}
	}
	return resp, nil
}

func (f *AnalyzerFunction) loadDocument(ctx context.Context, ref models.DocumentRef) (models.Document, error) {
	doc := models.Document{Filename: ref.Filename, MediaType: ref.MediaType}
	switch {
	case ref.ContentBase64 != "":
		data, err := base64.StdEncoding.DecodeString(ref.ContentBase64)
		if err != nil {
			return doc, fmt.Errorf("%w: document %q is not valid base64: %v", ErrBadRequest, ref.Filename, err)
		}
		doc.Data = data
	case ref.GCSUri != "":
		data, contentType, err := f.objects.Read(ctx, ref.GCSUri)
		if err != nil {
			if errors.Is(err, gcp.ErrInvalidURI) {
				return doc, fmt.Errorf("%w: %v", ErrBadRequest, err)
			}
			return doc, fmt.Errorf("failed to read %s: %w", ref.GCSUri, err)
		}
		doc.Data = data
		if doc.MediaType == "" {
			doc.MediaType = contentType
		}
		if doc.Filename == "" {
			doc.Filename = path.Base(ref.GCSUri)
		}
	default:
		return doc, fmt.Errorf("%w: document for role %q has neither content nor gcsUri", ErrBadRequest, ref.Role)
	}
	return doc, nil
}

func (f *AnalyzerFunction) fail(ctx context.Context, logCtx *slog.Logger, caseID, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	f.updateCase(ctx, logCtx, caseID, models.StatusFailed, fullError)
	return fmt.Errorf("%s: %w", message, originalErr)
}

func (f *AnalyzerFunction) updateCase(ctx context.Context, logCtx *slog.Logger, caseID, status, details string) {
	if err := f.runs.UpdateCase(ctx, caseID, status, details); err != nil {
		// Direct HTTP calls may analyse cases that intake never saw.
		logCtx.Warn("Failed to update case status.", "status", status, "error", err)
	}
}

// GCSObjects is an ObjectStore backed by one artifacts bucket.
type GCSObjects struct {
	Client *storage.Client
	Bucket string
}

// Read downloads any gs:// object.
func (g *GCSObjects) Read(ctx context.Context, uri string) ([]byte, string, error) {
	return gcp.ReadObject(ctx, g.Client, uri)
}

// Save writes object to the artifacts bucket and returns its URI.
func (g *GCSObjects) Save(ctx context.Context, object, contentType string, data []byte) (string, error) {
	if err := gcp.SaveToGCSAtomically(ctx, g.Client.Bucket(g.Bucket), object, contentType, data); err != nil {
		return "", err
	}
	return gcp.ObjectURI(g.Bucket, object), nil
}
