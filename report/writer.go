package report

import (
	"fmt"
	"path/filepath"
	"strings"
)

type Writer interface {
	Write(path string, rows []Row) error
}

// WriterForPath picks the output format from the file extension.
func WriterForPath(path string) (Writer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return &CSVWriter{}, nil
	case ".xlsx":
		return &ExcelWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output extension on %s (want .csv or .xlsx)", path)
	}
}
