package sink

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// LookupEncoding resolves a charset name such as "windows-1252" or
// "iso-8859-2". UTF-8 and the empty name return a nil Encoding, meaning no
// transcoding.
func LookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return enc, nil
}

// ParseLineSeparator maps a configured separator to its bytes. It accepts
// the literal separator or its name; the empty name selects the platform
// separator.
func ParseLineSeparator(name string) (string, error) {
	switch name {
	case "\n", "\r\n", "\r":
		return name, nil
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "native", "platform":
		return LineSeparator, nil
	case "lf":
		return "\n", nil
	case "crlf":
		return "\r\n", nil
	case "cr":
		return "\r", nil
	default:
		return "", fmt.Errorf("unknown line separator %q", name)
	}
}
