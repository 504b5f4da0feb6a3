package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/lu4p/cat/docxtxt"
	"golang.org/x/net/html"

	"github.com/Lllllllleong/legaldocumentflow/internal/models"
)

const (
	docxBody = "word/document.xml"
	docxRels = "word/_rels/document.xml.rels"
)

var errEntryMissing = errors.New("archive entry not found")

func extractDOCX(data []byte, logCtx *slog.Logger) Result {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		logCtx.Error("Failed to open DOCX archive.", "error", err)
		return diagnostic(MediaDOCX, diagDOCX)
	}

	text, err := docxText(data, zr, logCtx)
	if err != nil {
		logCtx.Error("Failed to read DOCX body.", "error", err)
		return diagnostic(MediaDOCX, diagDOCX)
	}

	images, err := docxImages(zr)
	if err != nil {
		logCtx.Warn("Failed to read DOCX relationships.", "error", err)
		images = nil
	}
	return Result{Text: text, Images: images}
}

func openEntry(zr *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("%w: %s", errEntryMissing, name)
}

// docxText reads the paragraph text with docxtxt. Its matcher only sees
// paragraphs written without attributes, so a document whose paragraphs all
// carry rsid attributes, as Word writes them, is decoded from the XML stream.
func docxText(data []byte, zr *zip.Reader, logCtx *slog.Logger) (string, error) {
	text, err := docxtxt.BytesToStr(data)
	if err == nil && strings.TrimSpace(text) != "" {
		return html.UnescapeString(text), nil
	}
	if err != nil {
		logCtx.Debug("docxtxt could not read the document, decoding the body directly.", "error", err)
	}
	return docxParagraphs(zr)
}

// docxParagraphs streams the body and emits one line per w:p.
func docxParagraphs(zr *zip.Reader) (string, error) {
	rc, err := openEntry(zr, docxBody)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var (
		out     strings.Builder
		para    strings.Builder
		inText  bool
		decoder = xml.NewDecoder(rc)
	)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", docxBody, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteString(para.String())
				out.WriteByte('\n')
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	out.WriteString(para.String())
	return out.String(), nil
}

type relationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// docxImages lists relationships whose type names an image.
func docxImages(zr *zip.Reader) ([]models.DetectedImage, error) {
	rc, err := openEntry(zr, docxRels)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var rels relationships
	if err := xml.NewDecoder(rc).Decode(&rels); err != nil {
		return nil, fmt.Errorf("decode %s: %w", docxRels, err)
	}

	var out []models.DetectedImage
	for _, r := range rels.Items {
		if strings.Contains(r.Type, "image") {
			out = append(out, models.DetectedImage{Name: r.Target, RelationshipID: r.ID, Detected: true})
		}
	}
	return out, nil
}
