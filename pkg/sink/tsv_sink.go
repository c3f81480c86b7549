package sink

import (
	"io"
	"runtime"

	"golang.org/x/text/encoding"

	"github.com/fluxo/tsv-export/pkg/tsv"
)

// LineSeparator is the platform's end-of-line marker.
var LineSeparator = platformLineSeparator()

func platformLineSeparator() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// TSVSink writes tab-separated lines to an io.Writer. A separator goes
// between lines, never after the last one.
type TSVSink struct {
	w          io.Writer
	separator  string
	encoder    *encoding.Encoder
	lineNumber int64
	buf        []byte
}

// Option configures a TSVSink.
type Option func(*TSVSink)

// WithLineSeparator replaces the platform line separator.
func WithLineSeparator(sep string) Option {
	return func(s *TSVSink) {
		s.separator = sep
	}
}

// WithEncoding transcodes every line from UTF-8 to enc. Runes that enc
// cannot represent are replaced. A nil enc leaves lines as UTF-8.
func WithEncoding(enc encoding.Encoding) Option {
	return func(s *TSVSink) {
		if enc == nil {
			s.encoder = nil
			return
		}
		s.encoder = encoding.ReplaceUnsupported(enc.NewEncoder())
	}
}

// NewTSVSink returns a sink writing to w.
func NewTSVSink(w io.Writer, opts ...Option) *TSVSink {
	s := &TSVSink{
		w:         w,
		separator: LineSeparator,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WriteHeaders writes headers as a line.
func (s *TSVSink) WriteHeaders(headers []string) error {
	return s.writeLine(opWriteHeaders, tsv.Join(headers))
}

// WriteValues writes values as a line.
func (s *TSVSink) WriteValues(values []string) error {
	return s.writeLine(opWriteValues, tsv.Join(values))
}

// LineCount returns the number of lines written.
func (s *TSVSink) LineCount() int64 {
	return s.lineNumber
}

// writeLine issues a single Write holding the separator, if one is due, and
// the line. The counter moves only once the destination accepted the bytes.
func (s *TSVSink) writeLine(op, line string) error {
	s.buf = s.buf[:0]
	if s.lineNumber > 0 {
		s.buf = append(s.buf, s.separator...)
	}
	s.buf = append(s.buf, line...)

	out := s.buf
	if s.encoder != nil {
		var err error
		if out, err = s.encoder.Bytes(s.buf); err != nil {
			return &WriteFailure{Op: op, Err: err}
		}
	}

	if _, err := s.w.Write(out); err != nil {
		return &WriteFailure{Op: op, Err: err}
	}
	s.lineNumber++
	return nil
}
