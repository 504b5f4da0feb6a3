package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Lllllllleong/legaldocumentflow/internal/models"
)

func extractXLSX(data []byte, logCtx *slog.Logger) Result {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		logCtx.Error("Failed to open workbook.", "error", err)
		return diagnostic(MediaXLSX, diagXLSX)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logCtx.Warn("Failed to close workbook.", "error", err)
		}
	}()

	var b strings.Builder
	images := []models.DetectedImage{}
	for idx, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			logCtx.Error("Failed to read sheet.", "sheet", sheet, "error", err)
			return diagnostic(MediaXLSX, diagXLSX)
		}

		fmt.Fprintf(&b, "\n--- Blad %s ---\n", sheet)
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if line != "" {
				b.WriteString(line)
				b.WriteByte('\n')
			}
		}

		cells, err := f.GetPictureCells(sheet)
		if err != nil {
			logCtx.Warn("Failed to list pictures.", "sheet", sheet, "error", err)
			continue
		}
		for _, cell := range cells {
			images = append(images, models.DetectedImage{Page: idx + 1, Name: sheet + "!" + cell, Detected: true})
		}
	}
	return Result{Text: b.String(), Images: images}
}
