package httpapi

import (
	"bytes"
	"fmt"

	"wisefido-power/internal/models"

	"github.com/xuri/excelize/v2"
)

var HistoryExportHeader = []string{"Time", "Power (W)", "Band"}

const historySheet = "Power History"

// GenerateHistoryExport one row per history point, oldest first
func GenerateHistoryExport(series models.HistorySeries) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo needs the file open, so Close is called explicitly below

	index, err := f.NewSheet(historySheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range HistoryExportHeader {
		if err := setCellValue(f, historySheet, col+1, 1, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header: %w", err)
		}
	}
	if err := f.SetCellStyle(historySheet, "A1", "C1", headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(historySheet, "A", "A", 22); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, p := range series {
		row := i + 2
		values := []interface{}{
			p.Timestamp.Format("2006-01-02 15:04:05"),
			p.PowerWatts,
			models.Classify(p.PowerWatts).String(),
		}
		for col, v := range values {
			if err := setCellValue(f, historySheet, col+1, row, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d: %w", row, err)
			}
		}
	}

	if err := f.SetPanes(historySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func setCellValue(f *excelize.File, sheet string, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}
