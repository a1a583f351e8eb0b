package event

import (
	"regexp"
	"strconv"

	"github.com/roach88/flowledger/internal/ir"
)

var sizePattern = regexp.MustCompile(`^\s*\((\d+)\)`)

// ParseSize extracts the story point annotation from a card name.
// "(3) Ship it" has size 3; "Ship it" has an unknown size, which is not the
// same as "(0) Ship it".
func ParseSize(name string) ir.Size {
	m := sizePattern.FindStringSubmatch(name)
	if m == nil {
		return ir.Size{}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		// Overflowing digit runs are not a usable annotation.
		return ir.Size{}
	}
	return ir.Size{Points: n, Known: true}
}
