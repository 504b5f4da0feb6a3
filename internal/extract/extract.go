// Package extract turns uploaded documents into plain text for the analysis
// pipeline. Extraction never fails: unreadable input yields a short Dutch
// diagnostic in place of the text.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/Lllllllleong/legaldocumentflow/internal/invoker"
	"github.com/Lllllllleong/legaldocumentflow/internal/models"
)

// Media types handled natively.
const (
	MediaText     = "text/plain"
	MediaMarkdown = "text/markdown"
	MediaPDF      = "application/pdf"
	MediaDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

const (
	diagEmpty       = "Leeg bestand - geen inhoud om te analyseren"
	diagUnsupported = "Bestandstype %s wordt niet ondersteund - upload als TXT, PDF, DOCX, XLSX of afbeelding"
	diagPDF         = "Fout bij PDF verwerking - probeer het bestand als afbeelding te uploaden"
	diagDOCX        = "Fout bij DOCX verwerking - probeer het bestand als PDF of afbeelding"
	diagXLSX        = "Fout bij XLSX verwerking - exporteer het werkblad als PDF"
	diagImage       = "Fout bij beeldanalyse: %s"
)

// Invoker is the model call used for image analysis.
type Invoker interface {
	Invoke(ctx context.Context, req invoker.Request) invoker.Output
}

// Result is the outcome of extracting one document.
type Result struct {
	Text      string                 `json:"text"`
	Images    []models.DetectedImage `json:"images"`
	MediaType string                 `json:"mediaType"`
	// Diagnostic is set when Text is an error message rather than content.
	Diagnostic bool `json:"diagnostic,omitempty"`
}

func diagnostic(mediaType, text string) Result {
	return Result{Text: text, Images: []models.DetectedImage{}, MediaType: mediaType, Diagnostic: true}
}

// Extractor extracts text from documents. It is safe for concurrent use.
type Extractor struct {
	inv         Invoker
	logger      *slog.Logger
	concurrency int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// WithConcurrency bounds how many images MergeImages analyses at once.
func WithConcurrency(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New creates an Extractor. inv may be nil, in which case images are
// reported as not analysable.
func New(inv Invoker, opts ...Option) *Extractor {
	e := &Extractor{inv: inv, logger: slog.Default(), concurrency: 4}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the text and detected images of doc.
func (e *Extractor) Extract(ctx context.Context, doc models.Document) Result {
	mediaType := DetectMediaType(doc)
	logCtx := e.logger.With("filename", doc.Filename, "mediaType", mediaType, "bytes", len(doc.Data))

	if len(doc.Data) == 0 {
		logCtx.Warn("Document is empty.")
		return diagnostic(mediaType, diagEmpty)
	}

	var res Result
	switch {
	case mediaType == MediaText || mediaType == MediaMarkdown:
		res = Result{Text: decodeText(doc.Data), Images: []models.DetectedImage{}}
	case mediaType == MediaPDF:
		res = extractPDF(doc.Data, logCtx)
	case mediaType == MediaDOCX:
		res = extractDOCX(doc.Data, logCtx)
	case mediaType == MediaXLSX:
		res = extractXLSX(doc.Data, logCtx)
	case strings.HasPrefix(mediaType, "image/"):
		res = e.analyzeImage(ctx, doc, mediaType, "Document: "+doc.Filename)
	default:
		logCtx.Warn("Unsupported document type.")
		return diagnostic(mediaType, fmt.Sprintf(diagUnsupported, mediaType))
	}

	res.MediaType = mediaType
	if res.Images == nil {
		res.Images = []models.DetectedImage{}
	}
	if len(res.Images) > 0 {
		logCtx.Info("Embedded images detected.", "count", len(res.Images))
	}
	logCtx.Info("Document extracted.", "chars", len(res.Text), "diagnostic", res.Diagnostic)
	return res
}

// DetectMediaType returns the declared media type without parameters, or a
// sniffed one when the declaration is missing or generic.
func DetectMediaType(doc models.Document) string {
	declared := normalize(doc.MediaType)
	if declared != "" && declared != "application/octet-stream" && declared != "application/zip" {
		return declared
	}

	switch strings.ToLower(filepath.Ext(doc.Filename)) {
	case ".txt":
		return MediaText
	case ".md":
		return MediaMarkdown
	case ".pdf":
		return MediaPDF
	case ".docx":
		return MediaDOCX
	case ".xlsx":
		return MediaXLSX
	}

	if len(doc.Data) == 0 {
		return declared
	}
	return normalize(mimetype.Detect(doc.Data).String())
}

func normalize(mediaType string) string {
	mt, _, _ := strings.Cut(mediaType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}
