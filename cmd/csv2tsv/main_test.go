package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxo/tsv-export/pkg/sink"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
		lines int64
	}{
		{"comma", "id,name\n1,alice\n2,\"bob, jr\"\n", "id\tname\n1\talice\n2\tbob, jr", 3},
		{"semicolon", "id;name\n1;\n", "id\tname\n1\t", 2},
		{"single column", "id\n1\n", "id\n1", 2},
		{"empty", "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			s := sink.NewTSVSink(&buf, sink.WithLineSeparator("\n"))

			stats, err := convert(strings.NewReader(tt.in), s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
			assert.Equal(t, tt.lines, stats.lines)
			assert.Zero(t, stats.unsafeCells)
		})
	}
}

func TestConvert_CountsUnsafeCells(t *testing.T) {
	var buf bytes.Buffer
	s := sink.NewTSVSink(&buf, sink.WithLineSeparator("\n"))

	stats, err := convert(strings.NewReader("a,b\n\"x\ty\",\"multi\nline\"\n"), s)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.unsafeCells)
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("no space left on device") }

func TestConvert_WriteFailure(t *testing.T) {
	s := sink.NewTSVSink(brokenWriter{})

	_, err := convert(strings.NewReader("id\n1\n"), s)
	var wf *sink.WriteFailure
	require.True(t, errors.As(err, &wf))
	assert.Equal(t, "writeHeaders", wf.Op)
}

func TestDetectSeparator(t *testing.T) {
	assert.Equal(t, ',', detectSeparator([]byte("a,b")))
	assert.Equal(t, ';', detectSeparator([]byte("\"a\";b")))
	assert.Equal(t, '|', detectSeparator([]byte("first name|b")))
	assert.Equal(t, ',', detectSeparator([]byte("abc\nd;e")))
	assert.Equal(t, ',', detectSeparator([]byte("user.id,name")))
	assert.Equal(t, ';', detectSeparator([]byte("e-mail;name")))
	assert.Equal(t, '\t', detectSeparator([]byte("id:1\tname")))
	assert.Equal(t, ':', detectSeparator([]byte("id:name")))
}
