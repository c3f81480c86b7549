package sink

import (
	"github.com/xuri/excelize/v2"
)

// XLSXSink writes each line as a row of an excelize stream writer, starting
// at startRow. Rows need no separator; the line count picks the row.
type XLSXSink struct {
	sw         *excelize.StreamWriter
	startRow   int
	lineNumber int64
}

// NewXLSXSink returns a sink appending rows to sw. A startRow below 1 is
// treated as 1.
func NewXLSXSink(sw *excelize.StreamWriter, startRow int) *XLSXSink {
	if startRow < 1 {
		startRow = 1
	}
	return &XLSXSink{sw: sw, startRow: startRow}
}

func (s *XLSXSink) WriteHeaders(headers []string) error {
	return s.writeRow(opWriteHeaders, headers)
}

func (s *XLSXSink) WriteValues(values []string) error {
	return s.writeRow(opWriteValues, values)
}

func (s *XLSXSink) LineCount() int64 {
	return s.lineNumber
}

// Row returns the sheet row the next line will land on.
func (s *XLSXSink) Row() int {
	return s.startRow + int(s.lineNumber)
}

func (s *XLSXSink) writeRow(op string, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, s.Row())
	if err != nil {
		return &WriteFailure{Op: op, Err: err}
	}
	row := make([]interface{}, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	if err := s.sw.SetRow(cell, row); err != nil {
		return &WriteFailure{Op: op, Err: err}
	}
	s.lineNumber++
	return nil
}
