// Package textedit performs line-oriented edits on text documents.
//
// A document is handled as a slice of lines where every line keeps its own
// terminator ("\n", "\r\n", or none for an unterminated final line), so
// joining the lines back together reproduces the original bytes exactly.
// Edits never parse the content; anchors are located by plain substring
// search.
//
// Example usage:
//
//	lines := textedit.SplitLines(doc)
//	lines = textedit.InsertBeforeLast(lines, "</Host>", "  <Valve/>\n")
//	out := textedit.Join(lines)
package textedit
