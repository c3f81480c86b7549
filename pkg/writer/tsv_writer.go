package writer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fluxo/tsv-export/pkg/export"
	"github.com/fluxo/tsv-export/pkg/sink"
)

var errNotInitialized = errors.New("writer not initialized")

// TSVWriter implements Writer for tab-separated output. Lines go straight to
// the file without buffering, so a failing row is reported on the call that
// wrote it.
type TSVWriter struct {
	file       *os.File
	sink       *sink.TSVSink
	outputPath string
	encoding   string
	separator  string
}

// NewTSVWriter creates a new TSV writer
func NewTSVWriter() *TSVWriter {
	return &TSVWriter{
		separator: sink.LineSeparator,
	}
}

// Initialize creates the file and the sink on top of it
func (w *TSVWriter) Initialize(ctx context.Context, metadata *export.Metadata, outputPath string) error {
	w.outputPath = outputPath
	w.encoding = metadata.Options.Encoding

	if metadata.Options.LineSeparator != "" {
		sep, err := sink.ParseLineSeparator(metadata.Options.LineSeparator)
		if err != nil {
			return err
		}
		w.separator = sep
	}

	enc, err := sink.LookupEncoding(w.encoding)
	if err != nil {
		return err
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create TSV file: %w", err)
	}
	w.file = file
	w.sink = sink.NewTSVSink(file, sink.WithLineSeparator(w.separator), sink.WithEncoding(enc))

	return nil
}

// WriteHeader writes the column headers
func (w *TSVWriter) WriteHeader(columns []export.Column) error {
	if w.sink == nil {
		return errNotInitialized
	}
	return w.sink.WriteHeaders(columnNames(columns))
}

// WriteRecords appends data records
func (w *TSVWriter) WriteRecords(records []export.Record) error {
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

// LineCount returns the lines written so far
func (w *TSVWriter) LineCount() int64 {
	if w.sink == nil {
		return 0
	}
	return w.sink.LineCount()
}

// Finalize closes the file and returns metadata
func (w *TSVWriter) Finalize() (*FileMetadata, error) {
	if w.sink == nil {
		return nil, errNotInitialized
	}

	if err := w.file.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync file: %w", err)
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return describeFile(w.outputPath, w.sink.LineCount())
}

// Cleanup releases resources on error
func (w *TSVWriter) Cleanup() error {
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
