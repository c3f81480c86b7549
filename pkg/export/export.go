// Package export holds the request types shared by the writers, the task
// manager and the gRPC service.
package export

import (
	"fmt"
	"strings"
)

// Format selects the output file type.
type Format int

const (
	FormatUnspecified Format = iota
	FormatTSV
	FormatExcel
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatTSV:
		return "tsv"
	case FormatExcel:
		return "xlsx"
	default:
		return "unspecified"
	}
}

// Extension returns the file extension for the format, with the dot.
func (f Format) Extension() string {
	switch f {
	case FormatTSV:
		return ".tsv"
	case FormatExcel:
		return ".xlsx"
	default:
		return ""
	}
}

// ParseFormat converts a format name to Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tsv", "tab", "text/tab-separated-values":
		return FormatTSV, nil
	case "xlsx", "excel":
		return FormatExcel, nil
	default:
		return FormatUnspecified, fmt.Errorf("unsupported format %q", s)
	}
}

// Column describes one output column.
type Column struct {
	Name  string
	Width int
}

// Options tune a single export. Empty fields fall back to service defaults.
type Options struct {
	Encoding      string
	LineSeparator string
	SheetName     string
	StartRow      int
}

// Metadata describes an export request.
type Metadata struct {
	RequestID string
	Format    Format
	Filename  string
	Columns   []Column
	Options   Options
}

// Record is one data row.
type Record struct {
	Values []string
}

// Validate checks the fields an export cannot start without. Cell values are
// not checked against the columns.
func (m *Metadata) Validate() error {
	if m.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}
	if m.Format == FormatUnspecified {
		return fmt.Errorf("format must be specified")
	}
	if m.Filename == "" {
		return fmt.Errorf("filename is required")
	}
	if len(m.Columns) == 0 {
		return fmt.Errorf("at least one column is required")
	}
	for i, col := range m.Columns {
		if col.Name == "" {
			return fmt.Errorf("column %d name is required", i)
		}
	}
	return nil
}
