package writer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/fluxo/tsv-export/pkg/export"
)

func TestExcelWriter_BasicExport(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "test_export.xlsx")

	w := NewExcelWriter()
	metadata := testMetadata(export.FormatExcel)
	metadata.Options.SheetName = "Users"

	if err := w.Initialize(context.Background(), metadata, outputPath); err != nil {
		t.Fatalf("Failed to initialize writer: %v", err)
	}
	if err := w.WriteHeader(metadata.Columns); err != nil {
		t.Fatalf("Failed to write header: %v", err)
	}
	records := []export.Record{
		{Values: []string{"1", "Alice", "alice@example.com"}},
		{Values: []string{"2", "Bob", "bob@example.com"}},
	}
	if err := w.WriteRecords(records); err != nil {
		t.Fatalf("Failed to write records: %v", err)
	}

	fileMetadata, err := w.Finalize()
	if err != nil {
		t.Fatalf("Failed to finalize: %v", err)
	}
	if fileMetadata.RowCount != 3 {
		t.Errorf("Expected 3 rows, got %d", fileMetadata.RowCount)
	}
	if fileMetadata.Size == 0 {
		t.Error("File size should not be zero")
	}

	f, err := excelize.OpenFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Users")
	if err != nil {
		t.Fatalf("Failed to read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "ID" || rows[2][1] != "Bob" {
		t.Errorf("Unexpected rows: %v", rows)
	}
	if idx, _ := f.GetSheetIndex("Sheet1"); idx != -1 {
		t.Error("Default sheet should have been removed")
	}
}
