package models

// StageStatus tags a StageResult as success or failure.
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StageFailure StageStatus = "failure"
)

// Failure reasons recorded on StageResult.
const (
	ReasonUpstreamMissing  = "upstream missing"
	ReasonParseFailed      = "parse failed"
	ReasonBlocked          = "blocked"
	ReasonInvocationFailed = "invocation failed"
	ReasonTimeout          = "timeout"
	ReasonCancelled        = "cancelled"
)

// StageResult is the outcome of one pipeline stage. Once stored in a
// pipeline state it must not be modified; payload maps are shared.
type StageResult struct {
	Status   StageStatus    `json:"status"`
	Payload  map[string]any `json:"payload,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Raw      string         `json:"raw,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	// Local is set when the payload was produced without a model call.
	Local bool `json:"local,omitempty"`
}

// Success wraps a parsed payload.
func Success(payload map[string]any) StageResult {
	if payload == nil {
		payload = map[string]any{}
	}
	return StageResult{Status: StageSuccess, Payload: payload}
}

// Failure records why a stage produced no usable payload. raw is kept
// verbatim so callers can render or export it.
func Failure(reason, raw string) StageResult {
	return StageResult{Status: StageFailure, Reason: reason, Raw: raw}
}

// OK reports whether the result carries a usable payload.
func (r StageResult) OK() bool {
	return r.Status == StageSuccess
}
