// Command csv2tsv converts a CSV file to tab-separated values.
//
//	csv2tsv [-charset latin2] [-out-charset utf-8] [-eol lf] [-o out.tsv] [in.csv]
//
// The input separator is detected from the first line. Cells are copied
// verbatim; a cell holding a tab or a line break produces a malformed line
// and is reported on stderr.
package main

import (
	"bufio"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/fluxo/tsv-export/pkg/logger"
	"github.com/fluxo/tsv-export/pkg/sink"
)

func main() {
	log := logger.NewWithWriter("info", "text", os.Stderr, false)
	if err := Main(log); err != nil {
		if sink.IsBrokenPipe(err) {
			os.Exit(0)
		}
		log.Fatal("csv2tsv failed", logger.Fields{"error": err.Error()})
	}
}

func Main(log *logger.Logger) error {
	var inCharset, outCharset, eol, outPath string
	flag.StringVar(&inCharset, "charset", "utf-8", "input charset name")
	flag.StringVar(&outCharset, "out-charset", "utf-8", "output charset name")
	flag.StringVar(&eol, "eol", "", "line separator: lf, crlf or cr (default: platform)")
	flag.StringVar(&outPath, "o", "-", "output file, - for stdout")
	flag.Parse()

	inEnc, err := sink.LookupEncoding(inCharset)
	if err != nil {
		return err
	}
	outEnc, err := sink.LookupEncoding(outCharset)
	if err != nil {
		return err
	}
	sep, err := sink.ParseLineSeparator(eol)
	if err != nil {
		return err
	}

	in := os.Stdin
	if fn := flag.Arg(0); fn != "" && fn != "-" {
		if in, err = os.Open(fn); err != nil {
			return err
		}
		defer in.Close()
	}
	r := io.Reader(in)
	if inEnc != nil {
		r = inEnc.NewDecoder().Reader(r)
	}

	out := os.Stdout
	if outPath != "" && outPath != "-" {
		if out, err = os.Create(outPath); err != nil {
			return err
		}
		defer out.Close()
	}

	bw := bufio.NewWriterSize(out, 1<<16)
	s := sink.NewTSVSink(bw, sink.WithLineSeparator(sep), sink.WithEncoding(outEnc))
	stats, err := convert(r, s)
	if flushErr := bw.Flush(); err == nil {
		err = flushErr
	}
	if err != nil {
		return err
	}

	if stats.unsafeCells > 0 {
		log.Warn("cells containing tabs or line breaks were copied verbatim", logger.Fields{
			"cells": stats.unsafeCells,
		})
	}
	if out != os.Stdout {
		return out.Close()
	}
	return nil
}

type convertStats struct {
	lines       int64
	unsafeCells int
}

// convert copies CSV records from r into s, the first record as headers.
func convert(r io.Reader, s sink.OutputSink) (convertStats, error) {
	var stats convertStats

	br := bufio.NewReaderSize(r, 1<<20)
	b, err := br.Peek(1024)
	if err != nil && len(b) == 0 {
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		return stats, err
	}

	cr := csv.NewReader(br)
	cr.Comma = detectSeparator(b)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read line %d: %w", stats.lines+1, err)
		}
		for _, cell := range row {
			if strings.ContainsAny(cell, "\t\r\n") {
				stats.unsafeCells++
			}
		}
		if s.LineCount() == 0 {
			err = s.WriteHeaders(row)
		} else {
			err = s.WriteValues(row)
		}
		if err != nil {
			return stats, err
		}
		stats.lines = s.LineCount()
	}
	return stats, nil
}

// detectSeparator scans the first line of b. It prefers the first of
// ",;\t|", then any other rune that cannot be part of a plain field, and
// falls back to ','.
func detectSeparator(b []byte) rune {
	fallback := rune(0)
	for _, r := range string(b) {
		if r == '\n' || r == '\r' {
			break
		}
		if strings.ContainsRune(",;\t|", r) {
			return r
		}
		if fallback != 0 || strings.ContainsRune("\"_ .-", r) || unicode.IsLetter(r) || unicode.IsNumber(r) {
			continue
		}
		fallback = r
	}
	if fallback != 0 {
		return fallback
	}
	return ','
}
