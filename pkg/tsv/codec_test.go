package tsv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fluxo/tsv-export/pkg/tsv"
)

func strp(s string) *string { return &s }

func TestJoin(t *testing.T) {
	tests := []struct {
		name  string
		cells []string
		want  string
	}{
		{"nil", nil, ""},
		{"empty", []string{}, ""},
		{"single", []string{"a"}, "a"},
		{"single empty", []string{""}, ""},
		{"pair", []string{"id", "name"}, "id\tname"},
		{"empty middle", []string{"a", "", "c"}, "a\t\tc"},
		{"all empty", []string{"", "", ""}, "\t\t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tsv.Join(tt.cells))
		})
	}
}

func TestJoinNullable(t *testing.T) {
	assert.Equal(t, "a\t\tc", tsv.JoinNullable([]*string{strp("a"), nil, strp("c")}))
	assert.Equal(t, "", tsv.JoinNullable(nil))
	assert.Equal(t, "\t", tsv.JoinNullable([]*string{nil, nil}))
	assert.Equal(t, "x", tsv.JoinNullable([]*string{strp("x")}))
}

func TestSplit(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a\t\tb", []string{"a", "", "b"}},
		{"a\t", []string{"a", ""}},
		{"a\t\t", []string{"a", "", ""}},
		{"\ta", []string{"", "a"}},
		{"\t", []string{"", ""}},
		{"id\tname", []string{"id", "name"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := tsv.Split(tt.line)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), tsv.FieldCount(tt.line))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for _, cells := range [][]string{
		{"a"},
		{"1", "alice", "alice@example.com"},
		{"", "x", ""},
		{"", ""},
		{"with space", "ünïcödé", "末尾"},
	} {
		assert.Equal(t, cells, tsv.Split(tsv.Join(cells)))
	}
}

func TestEmptyLineAmbiguity(t *testing.T) {
	// A single empty cell cannot be told apart from no cells at all.
	assert.Equal(t, tsv.Join(nil), tsv.Join([]string{""}))
	assert.Empty(t, tsv.Split(tsv.Join([]string{""})))
}
