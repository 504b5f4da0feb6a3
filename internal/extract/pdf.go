package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/legaldocumentflow/internal/models"
)

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// PageCount validates data in relaxed mode and returns its page count.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), relaxedConfig())
	if err != nil {
		return 0, fmt.Errorf("failed to count pdf pages: %w", err)
	}
	return n, nil
}

func extractPDF(data []byte, logCtx *slog.Logger) (res Result) {
	// The text reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			logCtx.Error("PDF reader panicked.", "panic", fmt.Sprint(r))
			res = diagnostic(MediaPDF, diagPDF)
		}
	}()

	if err := api.Validate(bytes.NewReader(data), relaxedConfig()); err != nil {
		logCtx.Error("PDF failed validation.", "error", err)
		return diagnostic(MediaPDF, diagPDF)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		logCtx.Error("Failed to open PDF.", "error", err)
		return diagnostic(MediaPDF, diagPDF)
	}

	var b strings.Builder
	images := []models.DetectedImage{}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			logCtx.Warn("Failed to read page text.", "page", i, "error", err)
		}
		fmt.Fprintf(&b, "\n--- Pagina %d ---\n%s", i, text)

		images = append(images, pageImages(page, i)...)
	}

	return Result{Text: b.String(), Images: images}
}

// pageImages lists the image XObjects in a page's resource dictionary.
func pageImages(page pdf.Page, pageNum int) []models.DetectedImage {
	xobjects := page.Resources().Key("XObject")
	var out []models.DetectedImage
	for _, name := range xobjects.Keys() {
		if xobjects.Key(name).Key("Subtype").Name() == "Image" {
			out = append(out, models.DetectedImage{Page: pageNum, Name: "/" + name, Detected: true})
		}
	}
	return out
}
