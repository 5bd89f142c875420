package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"devsheet/activity"
)

// ItemWriter exports the raw activity log rather than a rendered report.
type ItemWriter interface {
	WriteItems(path string, items []activity.Item) error
}

func ItemWriterForPath(path string) (ItemWriter, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return &ItemCSVWriter{}, nil
	case ".xlsx":
		return &ItemExcelWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output extension on %s (want .csv or .xlsx)", path)
	}
}

var itemHeaders = []string{"ID", "Source", "OccurredAt", "AuthorRaw", "AuthorResolved", "RawText", "EnrichedText", "LinkedRefs"}

func itemRecord(item activity.Item) []string {
	return []string{
		item.ID,
		string(item.Source),
		item.OccurredAt.Format(time.RFC3339),
		item.AuthorRaw,
		item.AuthorResolved,
		item.RawText,
		item.EnrichedText,
		strings.Join(item.LinkedRefs, ", "),
	}
}

type ItemCSVWriter struct{}

func (w *ItemCSVWriter) WriteItems(path string, items []activity.Item) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv output %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(itemHeaders); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	for _, item := range items {
		if err := writer.Write(itemRecord(item)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv output: %w", err)
	}
	return nil
}

type ItemExcelWriter struct{}

func (w *ItemExcelWriter) WriteItems(path string, items []activity.Item) error {
	file := excelize.NewFile()
	defer file.Close()

	sheet := file.GetSheetName(0)
	for col, header := range itemHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := file.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("set excel header %s: %w", cell, err)
		}
	}

	for i, item := range items {
		for col, value := range itemRecord(item) {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := file.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("set excel value %s: %w", cell, err)
			}
		}
	}

	if err := file.SaveAs(path); err != nil {
		return fmt.Errorf("save excel output %s: %w", path, err)
	}
	return nil
}
