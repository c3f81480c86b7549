package writer

import (
	"context"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/fluxo/tsv-export/pkg/export"
	"github.com/fluxo/tsv-export/pkg/sink"
)

const defaultSheetName = "Sheet1"

// ExcelWriter implements Writer for xlsx output
type ExcelWriter struct {
	file       *excelize.File
	sink       *sink.XLSXSink
	stream     *excelize.StreamWriter
	outputPath string
	sheetName  string
	startRow   int
}

// NewExcelWriter creates a new Excel writer
func NewExcelWriter() *ExcelWriter {
	return &ExcelWriter{
		sheetName: defaultSheetName,
		startRow:  1,
	}
}

// Initialize prepares the workbook and its stream writer
func (w *ExcelWriter) Initialize(ctx context.Context, metadata *export.Metadata, outputPath string) error {
	w.outputPath = outputPath

	if metadata.Options.SheetName != "" {
		w.sheetName = metadata.Options.SheetName
	}
	if metadata.Options.StartRow > 0 {
		w.startRow = metadata.Options.StartRow
	}

	w.file = excelize.NewFile()

	index, err := w.file.NewSheet(w.sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	w.file.SetActiveSheet(index)

	if w.sheetName != defaultSheetName {
		if err := w.file.DeleteSheet(defaultSheetName); err != nil {
			return fmt.Errorf("failed to drop default sheet: %w", err)
		}
	}

	stream, err := w.file.NewStreamWriter(w.sheetName)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}
	w.stream = stream
	w.sink = sink.NewXLSXSink(stream, w.startRow)

	return nil
}

// WriteHeader writes the column headers and applies column widths
func (w *ExcelWriter) WriteHeader(columns []export.Column) error {
	if w.sink == nil {
		return errNotInitialized
	}

	// Widths must be set before the first row reaches the stream writer.
	for i, col := range columns {
		if col.Width > 0 {
			if err := w.stream.SetColWidth(i+1, i+1, float64(col.Width)); err != nil {
				return fmt.Errorf("failed to set width of column %d: %w", i+1, err)
			}
		}
	}

	return w.sink.WriteHeaders(columnNames(columns))
}

// WriteRecords appends data records
func (w *ExcelWriter) WriteRecords(records []export.Record) error {
	if w.sink == nil {
		return errNotInitialized
	}
	for _, record := range records {
		if err := w.sink.WriteValues(record.Values); err != nil {
			return err
		}
	}
	return nil
}

// LineCount returns the rows written so far
func (w *ExcelWriter) LineCount() int64 {
	if w.sink == nil {
		return 0
	}
	return w.sink.LineCount()
}

// Finalize saves the workbook and returns metadata
func (w *ExcelWriter) Finalize() (*FileMetadata, error) {
	if w.sink == nil {
		return nil, errNotInitialized
	}
	if w.file == nil {
		return nil, fmt.Errorf("workbook already closed")
	}

	if err := w.stream.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush stream: %w", err)
	}

	if err := w.file.SaveAs(w.outputPath); err != nil {
		return nil, fmt.Errorf("failed to save Excel file: %w", err)
	}

	err := w.file.Close()
	w.file = nil
	if err != nil {
		return nil, fmt.Errorf("failed to close Excel file: %w", err)
	}

	return describeFile(w.outputPath, w.sink.LineCount())
}

// Cleanup releases resources on error
func (w *ExcelWriter) Cleanup() error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	if w.outputPath != "" {
		if err := os.Remove(w.outputPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove file: %w", err)
		}
	}
	return nil
}
