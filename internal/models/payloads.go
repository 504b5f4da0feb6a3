package models

// These structs define the JSON payloads for HTTP requests and responses
// between the Cloud Workflow, the intake function and the analyzer function.

// DocumentRef points at one input document, either in GCS or inline.
type DocumentRef struct {
	Role          string `json:"role"`
	GCSUri        string `json:"gcsUri,omitempty"`
	Filename      string `json:"filename,omitempty"`
	MediaType     string `json:"mediaType,omitempty"`
	ContentBase64 string `json:"contentBase64,omitempty"`
}

// AnalyzeRequest is the input for the case-analyzer function. A request with
// a SessionID re-runs the analysis on the documents of that session; its own
// documents, if any, are added to the session first.
type AnalyzeRequest struct {
	SessionID   string        `json:"sessionId,omitempty"`
	CaseID      string        `json:"caseId"`
	Variant     string        `json:"variant"`
	Goal        string        `json:"goal,omitempty"`
	Documents   []DocumentRef `json:"documents"`
	ExtraImages []DocumentRef `json:"extraImages,omitempty"`
	ExecutionID string        `json:"executionId,omitempty"`
}

// AnalyzeResponse is the output of the case-analyzer function.
type AnalyzeResponse struct {
	SessionID      string   `json:"sessionId"`
	RunID          string   `json:"runId"`
	PreviousRunID  string   `json:"previousRunId,omitempty"`
	Status         string   `json:"status"`
	Halted         bool     `json:"halted"`
	HaltReason     string   `json:"haltReason,omitempty"`
	FailedStages   []string `json:"failedStages,omitempty"`
	ExportGCSUri   string   `json:"exportGcsUri"`
	ReportGCSUri   string   `json:"reportGcsUri"`
	WorkbookGCSUri string   `json:"workbookGcsUri,omitempty"`
}

// WorkflowArgument is the execution argument handed to the Cloud Workflow
// once a case has all documents its variant needs.
type WorkflowArgument struct {
	CaseID      string        `json:"caseId"`
	Variant     string        `json:"variant"`
	Documents   []DocumentRef `json:"documents"`
	ExtraImages []DocumentRef `json:"extraImages,omitempty"`
}
