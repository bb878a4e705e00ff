package textedit

import (
	"slices"
	"strings"
)

// Returns the index of the last line containing marker, or -1.
func LastIndex(lines []string, marker string) int {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.Contains(lines[i], marker) {
			return i
		}
	}
	return -1
}

// Inserts payload immediately before the last line containing marker.
//
// The result is a new slice; lines is never modified. When no line contains
// marker, lines is returned as is. At most one line is inserted per call, and
// payload is inserted verbatim, so it should carry its own terminator.
func InsertBeforeLast(lines []string, marker, payload string) []string {
	k := LastIndex(lines, marker)
	if k < 0 {
		return lines
	}
	return slices.Insert(slices.Clone(lines), k, payload)
}
