package writer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/fluxo/tsv-export/pkg/export"
)

// FileMetadata contains metadata about the generated file
type FileMetadata struct {
	Path     string
	Size     int64
	Checksum string
	RowCount int64
}

// Writer defines the lifecycle every format writer follows
type Writer interface {
	// Initialize creates the output file and its sink
	Initialize(ctx context.Context, metadata *export.Metadata, outputPath string) error

	// WriteHeader writes the column headers
	WriteHeader(columns []export.Column) error

	// WriteRecords appends data records, stopping at the first failure
	WriteRecords(records []export.Record) error

	// LineCount returns the number of lines written, header included
	LineCount() int64

	// Finalize closes the file and returns metadata
	Finalize() (*FileMetadata, error)

	// Cleanup releases resources on error
	Cleanup() error
}

// New returns an uninitialized writer for format.
func New(format export.Format) (Writer, error) {
	switch format {
	case export.FormatTSV:
		return NewTSVWriter(), nil
	case export.FormatExcel:
		return NewExcelWriter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

func columnNames(columns []export.Column) []string {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = col.Name
	}
	return names
}

// describeFile stats and hashes a finished file.
func describeFile(path string, rows int64) (*FileMetadata, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	checksum, err := fileChecksum(path)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return &FileMetadata{
		Path:     path,
		Size:     fileInfo.Size(),
		Checksum: checksum,
		RowCount: rows,
	}, nil
}

// fileChecksum calculates the SHA256 checksum of a file
func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
