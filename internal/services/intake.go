package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/Lllllllleong/legaldocumentflow/internal/analysis"
	"github.com/Lllllllleong/legaldocumentflow/internal/config"
	"github.com/Lllllllleong/legaldocumentflow/internal/extract"
	"github.com/Lllllllleong/legaldocumentflow/internal/gcp"
	"github.com/Lllllllleong/legaldocumentflow/internal/models"
	"github.com/Lllllllleong/legaldocumentflow/internal/pipeline"
)

// ErrObjectName is returned for uploads outside <variant>/<case>/<role>/<file>.
var ErrObjectName = errors.New("object name must be <variant>/<caseId>/<role>/<filename>")

// GCSEvent is the payload of a GCS object event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// Upload is a parsed intake object name.
type Upload struct {
	Variant  string
	CaseID   string
	Role     string
	Filename string
}

// ParseObjectName splits an intake object name.
func ParseObjectName(name string) (Upload, error) {
	parts := strings.SplitN(name, "/", 4)
	if len(parts) != 4 || parts[0] == "" || parts[1] == "" || parts[2] == "" || parts[3] == "" || strings.HasSuffix(name, "/") {
		return Upload{}, fmt.Errorf("%w: %q", ErrObjectName, name)
	}
	return Upload{Variant: parts[0], CaseID: parts[1], Role: parts[2], Filename: parts[3]}, nil
}

// CaseRecorder is the case bookkeeping used by intake.
type CaseRecorder interface {
	AddDocument(ctx context.Context, caseID, variant string, doc models.CaseDocument) (*models.Case, bool, error)
	ClaimTrigger(ctx context.Context, caseID string) (bool, error)
	SetExecution(ctx context.Context, caseID, executionID string) error
	UpdateCase(ctx context.Context, caseID, status, errDetails string) error
}

// WorkflowStarter starts one analysis workflow execution.
type WorkflowStarter interface {
	Start(ctx context.Context, arg models.WorkflowArgument) (string, error)
}

// IntakeConfig holds all configuration for the intake service.
type IntakeConfig struct {
	ProjectID        string
	Collection       string
	WorkflowID       string
	WorkflowLocation string
}

// IntakeFunction records uploaded case documents and starts the analysis
// workflow once a case has every document its variant reads.
type IntakeFunction struct {
	objects  ObjectStore
	cases    CaseRecorder
	workflow WorkflowStarter
	now      func() time.Time
}

// NewIntake creates an IntakeFunction from the environment.
func NewIntake(ctx context.Context) (*IntakeFunction, error) {
	cfg, err := config.NewLoader(slog.Default()).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Cloud.ProjectID == "" {
		return nil, fmt.Errorf("%s environment variable must be set", config.EnvProjectID)
	}
	if cfg.Cloud.WorkflowID == "" {
		return nil, fmt.Errorf("%s environment variable must be set", config.EnvWorkflowID)
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.Cloud.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}

	ic := IntakeConfig{
		ProjectID:        cfg.Cloud.ProjectID,
		Collection:       cfg.Cloud.FirestoreCollection,
		WorkflowID:       cfg.Cloud.WorkflowID,
		WorkflowLocation: cfg.Cloud.WorkflowLocation,
	}
	f := NewIntakeWith(
		&GCSObjects{Client: storageClient, Bucket: cfg.Cloud.IntakeBucket},
		gcp.NewCaseStore(firestoreClient, ic.Collection),
		&Workflows{Client: executionsClient, Config: ic},
	)
	slog.Info("Document intake initialized.", "workflowId", ic.WorkflowID)
	return f, nil
}

// NewIntakeWith assembles an IntakeFunction from explicit dependencies.
func NewIntakeWith(objects ObjectStore, cases CaseRecorder, workflow WorkflowStarter) *IntakeFunction {
	return &IntakeFunction{objects: objects, cases: cases, workflow: workflow, now: time.Now}
}

// Process handles one finalized upload. Objects outside the naming scheme
// and duplicate uploads are skipped without error.
func (f *IntakeFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	up, err := ParseObjectName(e.Name)
	if err != nil {
		logCtx.Warn("Ignoring object outside the intake layout.", "error", err)
		return nil
	}
	variant, err := analysis.Lookup(up.Variant)
	if err != nil {
		logCtx.Warn("Ignoring object for unknown variant.", "error", err)
		return nil
	}
	logCtx = logCtx.With("caseId", up.CaseID, "role", up.Role)

	uri := gcp.ObjectURI(e.Bucket, e.Name)
	data, contentType, err := f.objects.Read(ctx, uri)
	if err != nil {
		logCtx.Error("Failed to download object", "error", err)
		return err
	}
	if contentType == "" {
		contentType = e.ContentType
	}

	fileHash := calculateHash(data)
	logCtx = logCtx.With("fileHash", fileHash)

	mediaType := extract.DetectMediaType(models.Document{Filename: up.Filename, MediaType: contentType, Data: data})
	doc := models.CaseDocument{
		Role:      up.Role,
		FileHash:  fileHash,
		GCSUri:    uri,
		MediaType: mediaType,
		CreatedAt: f.now(),
	}
	if mediaType == extract.MediaPDF {
		pages, err := extract.PageCount(data)
		if err != nil {
			// The extractor reports unreadable PDFs to the user; intake only records them.
			logCtx.Warn("Could not count PDF pages.", "error", err)
		}
		doc.PageCount = pages
	}

	key := up.Role
	if up.Role == pipeline.RoleImages {
		key = path.Join(pipeline.RoleImages, up.Filename)
	}
	doc.Role = key

	c, duplicate, err := f.cases.AddDocument(ctx, up.CaseID, variant.Name, doc)
	if err != nil {
		logCtx.Error("Failed to record document", "error", err)
		return err
	}
	if duplicate {
		logCtx.Info("Duplicate file detected. Skipping.")
		return nil
	}
	logCtx.Info("Document recorded.", "mediaType", mediaType, "pageCount", doc.PageCount)

	if missing := missingRoles(variant, c); len(missing) > 0 {
		logCtx.Info("Case incomplete, waiting for more documents.", "missing", missing)
		return nil
	}
	claimed, err := f.cases.ClaimTrigger(ctx, up.CaseID)
	if err != nil {
		logCtx.Error("Failed to claim workflow trigger", "error", err)
		return err
	}
	if !claimed {
		logCtx.Info("Workflow already triggered for this case.")
		return nil
	}

	execID, err := f.workflow.Start(ctx, workflowArgument(up.CaseID, variant, c))
	if err != nil {
		return f.handleError(ctx, logCtx, up.CaseID, "failed to trigger workflow execution", err)
	}
	if err := f.cases.SetExecution(ctx, up.CaseID, execID); err != nil {
		logCtx.Warn("Failed to record workflow execution.", "error", err)
	}
	logCtx.Info("Hand-off to workflow complete.", "executionId", execID)
	return nil
}

func (f *IntakeFunction) handleError(ctx context.Context, logCtx *slog.Logger, caseID, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := f.cases.UpdateCase(ctx, caseID, models.StatusFailed, fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

func missingRoles(v pipeline.Variant, c *models.Case) []string {
	var missing []string
	for _, role := range v.Roles {
		if _, ok := c.Documents[role]; !ok {
			missing = append(missing, role)
		}
	}
	return missing
}

// workflowArgument lists documents in the variant's role order and images
// by name.
func workflowArgument(caseID string, v pipeline.Variant, c *models.Case) models.WorkflowArgument {
	arg := models.WorkflowArgument{CaseID: caseID, Variant: v.Name, Documents: []models.DocumentRef{}}
	for _, role := range v.Roles {
		d := c.Documents[role]
		arg.Documents = append(arg.Documents, models.DocumentRef{
			Role: role, GCSUri: d.GCSUri, Filename: path.Base(d.GCSUri), MediaType: d.MediaType,
		})
	}
	var images []string
	for key := range c.Documents {
		if strings.HasPrefix(key, pipeline.RoleImages+"/") {
			images = append(images, key)
		}
	}
	sort.Strings(images)
	for _, key := range images {
		d := c.Documents[key]
		arg.ExtraImages = append(arg.ExtraImages, models.DocumentRef{
			Role: pipeline.RoleImages, GCSUri: d.GCSUri, Filename: path.Base(d.GCSUri), MediaType: d.MediaType,
		})
	}
	return arg
}

func calculateHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Workflows starts executions of the analysis workflow.
type Workflows struct {
	Client *executions.Client
	Config IntakeConfig
}

// Start creates an execution and returns its resource name.
func (w *Workflows) Start(ctx context.Context, arg models.WorkflowArgument) (string, error) {
	payloadBytes, err := json.Marshal(arg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", w.Config.ProjectID, w.Config.WorkflowLocation, w.Config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := w.Client.CreateExecution(ctx, req)
	if err != nil {
		return "", err
	}
	return exec.GetName(), nil
}
