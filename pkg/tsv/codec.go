// Package tsv joins and splits single lines of tab-separated values.
//
// The format has no quoting or escaping: a cell that itself contains a tab or
// a line separator cannot be represented. An empty line and a line holding a
// single empty cell are indistinguishable; Split treats both as zero fields.
package tsv

import "strings"

// Delimiter separates the cells of a line.
const Delimiter = '\t'

const delimiter = string(Delimiter)

// Join concatenates cells with a single tab between each adjacent pair.
func Join(cells []string) string {
	return strings.Join(cells, delimiter)
}

// JoinNullable is Join for cells that may be absent. A nil cell is written as
// the empty string.
func JoinNullable(cells []*string) string {
	var b strings.Builder
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(Delimiter)
		}
		if c != nil {
			b.WriteString(*c)
		}
	}
	return b.String()
}

// Split breaks line on every tab, keeping empty fields wherever they occur,
// including leading and trailing ones. The empty line yields no fields.
func Split(line string) []string {
	if line == "" {
		return nil
	}
	return strings.Split(line, delimiter)
}

// FieldCount returns len(Split(line)) without allocating.
func FieldCount(line string) int {
	if line == "" {
		return 0
	}
	return strings.Count(line, delimiter) + 1
}
