package models

import "time"

// Document is an uploaded artifact as received from a caller.
// It is held in memory for the lifetime of one analysis session.
type Document struct {
	Filename  string
	MediaType string
	Data      []byte
}

// DetectedImage records an image found inside a document's structure.
// Pixel data is never decoded; only the presence is reported.
type DetectedImage struct {
	Page           int    `json:"page,omitempty"`
	Name           string `json:"name,omitempty"`
	RelationshipID string `json:"relationshipId,omitempty"`
	Detected       bool   `json:"detected"`
}

// CaseDocument is one uploaded file of a case as tracked in Firestore.
type CaseDocument struct {
	Role      string    `firestore:"role,omitempty"`
	FileHash  string    `firestore:"fileHash,omitempty"`
	GCSUri    string    `firestore:"gcsUri,omitempty"`
	MediaType string    `firestore:"mediaType,omitempty"`
	PageCount int       `firestore:"pageCount,omitempty"`
	CreatedAt time.Time `firestore:"createdAt,omitempty"`
}

// Case is the Firestore record that groups the documents of one dossier.
type Case struct {
	Variant             string                  `firestore:"variant,omitempty"`
	Status              string                  `firestore:"status,omitempty"`
	ErrorDetails        string                  `firestore:"errorDetails,omitempty"`
	Documents           map[string]CaseDocument `firestore:"documents,omitempty"`
	WorkflowExecutionID string                  `firestore:"workflowExecutionId,omitempty"`
	CreatedAt           time.Time               `firestore:"createdAt,omitempty"`
}

// AnalysisRun tracks one pipeline execution in Firestore.
type AnalysisRun struct {
	CaseID         string    `firestore:"caseId,omitempty"`
	SessionID      string    `firestore:"sessionId,omitempty"`
	PreviousRunID  string    `firestore:"previousRunId,omitempty"`
	Variant        string    `firestore:"variant,omitempty"`
	Status         string    `firestore:"status,omitempty"`
	ErrorDetails   string    `firestore:"errorDetails,omitempty"`
	Halted         bool      `firestore:"halted"`
	HaltReason     string    `firestore:"haltReason,omitempty"`
	FailedStages   []string  `firestore:"failedStages,omitempty"`
	ExportGCSUri   string    `firestore:"exportGcsUri,omitempty"`
	ReportGCSUri   string    `firestore:"reportGcsUri,omitempty"`
	WorkbookGCSUri string    `firestore:"workbookGcsUri,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt,omitempty"`
	CompletedAt    time.Time `firestore:"completedAt,omitempty"`
}

// Run and case status values.
const (
	StatusReceived  = "RECEIVED"
	StatusComplete  = "COMPLETE"
	StatusTriggered = "TRIGGERED"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)
