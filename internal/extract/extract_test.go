package extract_test

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Lllllllleong/legaldocumentflow/internal/extract"
	"github.com/Lllllllleong/legaldocumentflow/internal/invoker"
	"github.com/Lllllllleong/legaldocumentflow/internal/invoker/invokertest"
	"github.com/Lllllllleong/legaldocumentflow/internal/models"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newExtractor(gen invoker.Generator) *extract.Extractor {
	return extract.New(invoker.New(gen, invoker.WithLogger(quiet)), extract.WithLogger(quiet))
}

func TestExtractNeverFails(t *testing.T) {
	tests := []struct {
		name       string
		doc        models.Document
		diagnostic bool
		contains   string
	}{
		{
			name:     "plain text",
			doc:      models.Document{Filename: "a.txt", MediaType: "text/plain; charset=utf-8", Data: []byte("Artikel 1382 BW")},
			contains: "Artikel 1382 BW",
		},
		{
			name:     "invalid utf-8 is replaced",
			doc:      models.Document{Filename: "a.txt", MediaType: "text/plain", Data: []byte{'a', 0xff, 'b'}},
			contains: "a�b",
		},
		{
			name:       "empty document",
			doc:        models.Document{Filename: "leeg.txt", MediaType: "text/plain"},
			diagnostic: true,
			contains:   "Leeg bestand",
		},
		{
			name:       "corrupt pdf",
			doc:        models.Document{Filename: "kapot.pdf", MediaType: "application/pdf", Data: []byte("%PDF-1.4 dit is geen pdf")},
			diagnostic: true,
			contains:   "Fout bij PDF verwerking",
		},
		{
			name:       "corrupt docx",
			doc:        models.Document{Filename: "kapot.docx", MediaType: extract.MediaDOCX, Data: []byte("geen zip")},
			diagnostic: true,
			contains:   "Fout bij DOCX verwerking",
		},
		{
			name:       "docx without body",
			doc:        models.Document{Filename: "leeg.docx", MediaType: extract.MediaDOCX, Data: buildZip(t, map[string]string{"other.xml": "<a/>"})},
			diagnostic: true,
			contains:   "Fout bij DOCX verwerking",
		},
		{
			name:       "corrupt xlsx",
			doc:        models.Document{Filename: "kapot.xlsx", MediaType: extract.MediaXLSX, Data: []byte("geen zip")},
			diagnostic: true,
			contains:   "Fout bij XLSX verwerking",
		},
		{
			name:       "unsupported type",
			doc:        models.Document{Filename: "audio.mp3", MediaType: "audio/mpeg", Data: []byte{1, 2, 3}},
			diagnostic: true,
			contains:   "audio/mpeg",
		},
	}

	ex := newExtractor(&invokertest.Generator{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ex.Extract(context.Background(), tt.doc)
			assert.Equal(t, tt.diagnostic, res.Diagnostic)
			assert.Contains(t, res.Text, tt.contains)
			assert.NotNil(t, res.Images)
			if tt.diagnostic {
				assert.Empty(t, res.Images)
			}
		})
	}
}

func TestDetectMediaType(t *testing.T) {
	tests := []struct {
		name string
		doc  models.Document
		want string
	}{
		{name: "declared wins", doc: models.Document{MediaType: "Application/PDF", Data: []byte("x")}, want: extract.MediaPDF},
		{name: "extension for octet-stream", doc: models.Document{Filename: "Conclusie.DOCX", MediaType: "application/octet-stream"}, want: extract.MediaDOCX},
		{name: "sniffed png", doc: models.Document{Filename: "scan", Data: pngBytes(t)}, want: "image/png"},
		{name: "sniffed pdf", doc: models.Document{Filename: "upload", Data: []byte("%PDF-1.4\n")}, want: extract.MediaPDF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extract.DetectMediaType(tt.doc))
		})
	}
}

func TestExtractPDF(t *testing.T) {
	ex := newExtractor(&invokertest.Generator{})
	res := ex.Extract(context.Background(), models.Document{Filename: "conclusie.pdf", MediaType: extract.MediaPDF, Data: minimalPDF()})

	require.False(t, res.Diagnostic, res.Text)
	assert.Contains(t, res.Text, "--- Pagina 1 ---")
	assert.Contains(t, res.Text, "--- Pagina 2 ---")
	assert.Contains(t, res.Text, "Artikel")
	assert.Less(t, strings.Index(res.Text, "--- Pagina 1 ---"), strings.Index(res.Text, "--- Pagina 2 ---"))

	require.Len(t, res.Images, 1)
	assert.Equal(t, 1, res.Images[0].Page)
	assert.Equal(t, "/Im0", res.Images[0].Name)
	assert.True(t, res.Images[0].Detected)

	n, err := extract.PageCount(minimalPDF())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestExtractDOCX(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Eerste alinea over</w:t></w:r><w:r><w:t xml:space="preserve"> artikel 1382 BW.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Tweede alinea &amp; slot.</w:t></w:r></w:p>
  </w:body>
</w:document>`
	rels := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
  <Relationship Id="rId5" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/>
</Relationships>`

	data := buildZip(t, map[string]string{
		"word/document.xml":            body,
		"word/_rels/document.xml.rels": rels,
	})

	res := newExtractor(&invokertest.Generator{}).Extract(context.Background(), models.Document{Filename: "conclusie.docx", Data: data})
	require.False(t, res.Diagnostic, res.Text)
	assert.Equal(t, extract.MediaDOCX, res.MediaType)
	assert.Equal(t, "Eerste alinea over artikel 1382 BW.\nTweede alinea & slot.\n", res.Text)
	require.Len(t, res.Images, 1)
	assert.Equal(t, "rId5", res.Images[0].RelationshipID)
	assert.Equal(t, "media/image1.png", res.Images[0].Name)
}

func TestExtractDOCXWithParagraphAttributes(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p w:rsidR="00A1B2C3" w:rsidRDefault="00A1B2C3"><w:r><w:t>Conclusie van</w:t></w:r><w:r><w:t xml:space="preserve"> eiser</w:t></w:r></w:p>
    <w:p w:rsidR="00A1B2C3"><w:r><w:t>Stuk</w:t><w:tab/><w:t>12</w:t></w:r></w:p>
  </w:body>
</w:document>`
	data := buildZip(t, map[string]string{"word/document.xml": body})

	res := newExtractor(&invokertest.Generator{}).Extract(context.Background(), models.Document{Filename: "word.docx", Data: data})
	require.False(t, res.Diagnostic, res.Text)
	assert.Equal(t, "Conclusie van eiser\nStuk\t12\n", res.Text)
	assert.Empty(t, res.Images)
}

func TestExtractXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Stuk"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Omschrijving"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", 12))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "Factuur"))
	require.NoError(t, f.AddPictureFromBytes("Sheet1", "C3", &excelize.Picture{
		Extension: ".png",
		File:      pngBytes(t),
		Format:    &excelize.GraphicOptions{},
	}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	res := newExtractor(&invokertest.Generator{}).Extract(context.Background(), models.Document{
		Filename:  "stukken.xlsx",
		MediaType: extract.MediaXLSX,
		Data:      buf.Bytes(),
	})
	require.False(t, res.Diagnostic, res.Text)
	assert.Contains(t, res.Text, "--- Blad Sheet1 ---")
	assert.Contains(t, res.Text, "Stuk\tOmschrijving\n")
	assert.Contains(t, res.Text, "12\tFactuur\n")
	require.Len(t, res.Images, 1)
	assert.Equal(t, "Sheet1!C3", res.Images[0].Name)
}

func TestExtractImage(t *testing.T) {
	gen := &invokertest.Generator{Replies: []invokertest.Reply{{Text: "TEKST EXTRACTIE: handtekening"}}}
	res := newExtractor(gen).Extract(context.Background(), models.Document{Filename: "scan.png", MediaType: "image/png", Data: pngBytes(t)})

	assert.False(t, res.Diagnostic)
	assert.Equal(t, "[AFBEELDING ANALYSE]\nTEKST EXTRACTIE: handtekening", res.Text)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, invoker.TierVision, reqs[0].Tier)
	require.Len(t, reqs[0].Images, 1)
	assert.Equal(t, "image/png", reqs[0].Images[0].MediaType)
	assert.Contains(t, reqs[0].User, "Document: scan.png")
}

func TestExtractImageBlocked(t *testing.T) {
	gen := &invokertest.Generator{Replies: []invokertest.Reply{{Err: invoker.ErrBlocked}}}
	res := newExtractor(gen).Extract(context.Background(), models.Document{Filename: "scan.jpg", MediaType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}})

	assert.True(t, res.Diagnostic)
	assert.True(t, strings.HasPrefix(res.Text, "Fout bij beeldanalyse"))
	assert.Empty(t, res.Images)
}

func TestMergeImagesKeepsUploadOrder(t *testing.T) {
	gen := &invokertest.Generator{Respond: func(req invoker.Request) invokertest.Reply {
		switch req.Images[0].Filename {
		case "foto1.png":
			return invokertest.Reply{Text: "beschrijving een"}
		default:
			return invokertest.Reply{Text: "beschrijving twee"}
		}
	}}

	images := []models.Document{
		{Filename: "foto1.png", MediaType: "image/png", Data: pngBytes(t)},
		{Filename: "foto2.png", MediaType: "image/png", Data: pngBytes(t)},
	}
	merged, err := newExtractor(gen).MergeImages(context.Background(), images)
	require.NoError(t, err)

	assert.Contains(t, merged, "[EXTRA VISUELE BEWIJZEN]")
	first := strings.Index(merged, "[AFBEELDING: foto1.png]\nbeschrijving een")
	second := strings.Index(merged, "[AFBEELDING: foto2.png]\nbeschrijving twee")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)
	assert.Equal(t, 2, gen.CallCount())
}

func TestMergeImagesCancelled(t *testing.T) {
	gen := &invokertest.Generator{Respond: func(invoker.Request) invokertest.Reply { return invokertest.Reply{Wait: true} }}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newExtractor(gen).MergeImages(ctx, []models.Document{{Filename: "a.png", MediaType: "image/png", Data: []byte{1}}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMergeImagesEmpty(t *testing.T) {
	merged, err := newExtractor(&invokertest.Generator{}).MergeImages(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, merged)
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// minimalPDF assembles a two-page PDF with one image XObject on page one,
// computing the cross-reference offsets.
func minimalPDF() []byte {
	content1 := "BT /F1 12 Tf 72 720 Td (Artikel 1382 BW) Tj ET"
	content2 := "BT /F1 12 Tf 72 720 Td (Tweede pagina) Tj ET"
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 6 0 R] /Count 2 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> /XObject << /Im0 7 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content1), content1),
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 8 0 R >>",
		"<< /Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceGray /BitsPerComponent 8 /Length 1 >>\nstream\n\xff\nendstream",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content2), content2),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}
