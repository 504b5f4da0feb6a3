package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Lllllllleong/legaldocumentflow/internal/analysis"
	"github.com/Lllllllleong/legaldocumentflow/internal/pipeline"
)

const (
	sheetFindings = "Bevindingen"
	sheetStages   = "Verloop"
)

// Workbook returns an xlsx file with one row per finding of the discovery
// stage and one row per stage.
func Workbook(st *pipeline.State) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetFindings); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetStages); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	index, _ := f.GetSheetIndex(sheetFindings)
	f.SetActiveSheet(index)

	findings, verdicts := workbookFindings(st)

	writeRow(f, sheetFindings, 1, "ID", "Categorie", "Artikel", "Citaat", "Locatie", "Confidence", "Twijfelgeval", "Visueel", "Controle")
	for i, fd := range findings {
		status := ""
		if v, ok := verdicts.For(fd); ok {
			status = v.Status
		}
		writeRow(f, sheetFindings, i+2,
			fd.ID, string(fd.Category), fd.Label, truncate(fd.Quote, 500), fd.Location,
			fd.Confidence, yesNo(fd.Ambiguous), yesNo(fd.Visual), status)
	}

	writeRow(f, sheetStages, 1, "Stage", "Status", "Reden", "Waarschuwingen")
	for i, e := range st.Entries() {
		writeRow(f, sheetStages, i+2, e.Name, string(e.Result.Status), e.Result.Reason, strings.Join(e.Result.Warnings, "; "))
	}

	_ = f.SetColWidth(sheetFindings, "A", "C", 18)
	_ = f.SetColWidth(sheetFindings, "D", "D", 80)
	_ = f.SetColWidth(sheetFindings, "E", "I", 14)
	_ = f.SetColWidth(sheetStages, "A", "D", 24)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func workbookFindings(st *pipeline.State) ([]analysis.Finding, *analysis.Verdicts) {
	verdicts := analysis.NewVerdicts(nil)
	if st.Variant == analysis.VariantArticles {
		verdicts = analysis.NewVerdicts(analysis.DecodeVerifications(st.Payload(analysis.StageVerification)))
		return analysis.DecodeFindings(st.Payload(analysis.StageExtraction), analysis.KeyArticles), verdicts
	}
	return analysis.DecodeFindings(st.Payload(analysis.StageNovelty), analysis.KeyNewElements), verdicts
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func yesNo(b bool) string {
	if b {
		return "ja"
	}
	return "nee"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
