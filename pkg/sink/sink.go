// Package sink writes header and value lines to an append-only destination.
package sink

import (
	"errors"
	"fmt"
	"io"
	"syscall"
)

const (
	opWriteHeaders = "writeHeaders"
	opWriteValues  = "writeValues"
)

// OutputSink accepts a header line and value lines and counts what it wrote.
//
// Implementations are not safe for concurrent use. The destination belongs to
// whoever constructed the sink; a sink never closes it.
type OutputSink interface {
	// WriteHeaders writes the header line.
	WriteHeaders(headers []string) error

	// WriteValues writes one data line.
	WriteValues(values []string) error

	// LineCount returns the number of successful writes so far.
	LineCount() int64
}

// WriteFailure is returned when the destination rejects a write.
type WriteFailure struct {
	Op  string
	Err error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("%s: write failed: %v", e.Op, e.Err)
}

func (e *WriteFailure) Unwrap() error { return e.Err }

// IsBrokenPipe reports whether err comes from a reader that went away, such
// as `head` closing its end of a pipe.
func IsBrokenPipe(err error) bool {
	return err != nil && (errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe))
}

var (
	_ OutputSink = (*TSVSink)(nil)
	_ OutputSink = (*XLSXSink)(nil)
)
