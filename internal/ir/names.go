package ir

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName is the form list names are compared in: NFC normalized
// with surrounding whitespace trimmed. Upstream names typed on different
// platforms may differ only in Unicode composition.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
