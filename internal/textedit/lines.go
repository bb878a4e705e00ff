package textedit

import "strings"

// Splits s into lines, keeping each line's terminator.
//
// A trailing fragment without a newline becomes the last line. An empty
// string yields no lines.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}

	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Concatenates lines back into a single document.
func Join(lines []string) string {
	return strings.Join(lines, "")
}

// Returns the terminator of line: "\r\n", "\n", or "" when unterminated.
func Terminator(line string) string {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return "\r\n"
	case strings.HasSuffix(line, "\n"):
		return "\n"
	default:
		return ""
	}
}
