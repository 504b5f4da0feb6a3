package extract

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/legaldocumentflow/internal/invoker"
	"github.com/Lllllllleong/legaldocumentflow/internal/models"
)

// Markers that introduce image analyses in extracted text.
const (
	MarkerImageAnalysis = "[AFBEELDING ANALYSE]"
	MarkerExtraImages   = "[EXTRA VISUELE BEWIJZEN]"
)

const imagePrompt = `Analyseer deze afbeelding in een juridische context.

%s

Geef een gedetailleerde analyse met:
1. TEKST EXTRACTIE: Transcribeer ALLE zichtbare tekst exact
2. VISUELE BESCHRIJVING: Beschrijf wat je ziet (grafieken, schema's, handtekeningen, ...)
3. JURIDISCHE RELEVANTIE: Identificeer mogelijk juridisch relevante elementen
4. DOCUMENT TYPE: Identificeer het type document of afbeelding indien mogelijk

Structureer je antwoord met duidelijke kopjes.`

// describe runs the vision model on one image and returns its analysis, or
// a diagnostic when the call fails.
func (e *Extractor) describe(ctx context.Context, doc models.Document, mediaType, hint string) (string, bool) {
	if e.inv == nil {
		return fmt.Sprintf(diagImage, "geen model beschikbaar"), false
	}
	out := e.inv.Invoke(ctx, invoker.Request{
		User: fmt.Sprintf(imagePrompt, "Context: "+hint),
		Tier: invoker.TierVision,
		Images: []invoker.Image{{
			Filename:  doc.Filename,
			MediaType: mediaType,
			Data:      doc.Data,
		}},
	})
	if !out.OK() {
		detail := string(out.Kind)
		if out.Err != nil {
			detail = out.Err.Error()
		}
		e.logger.Warn("Image analysis failed.", "filename", doc.Filename, "kind", out.Kind, "error", out.Err)
		return fmt.Sprintf(diagImage, detail), false
	}
	return strings.TrimSpace(out.Text), true
}

func (e *Extractor) analyzeImage(ctx context.Context, doc models.Document, mediaType, hint string) Result {
	text, ok := e.describe(ctx, doc, mediaType, hint)
	if !ok {
		return diagnostic(mediaType, text)
	}
	return Result{Text: MarkerImageAnalysis + "\n" + text, Images: []models.DetectedImage{}}
}

// MergeImages analyses images concurrently and returns a single text block
// with one tagged section per image, in the order given. Failed analyses
// appear as diagnostics in their section. The only error is cancellation
// of ctx.
func (e *Extractor) MergeImages(ctx context.Context, images []models.Document) (string, error) {
	if len(images) == 0 {
		return "", nil
	}

	sections := make([]string, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, img := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			mediaType := DetectMediaType(img)
			text, _ := e.describe(gctx, img, mediaType, "Extra bewijs: "+img.Filename)
			sections[i] = fmt.Sprintf("\n[AFBEELDING: %s]\n%s\n", img.Filename, text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.logger.Info("Extra images analysed.", "count", len(images))
	return "\n\n" + MarkerExtraImages + "\n" + strings.Join(sections, ""), nil
}
