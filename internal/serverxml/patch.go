package serverxml

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/hardyoyo/pad-dspace-infra/internal/textedit"
)

const (

	// Closing tag of a Tomcat virtual host.
	DefaultMarker = "</Host>"

	// Valve answering /health with 200 while the engine is running.
	DefaultClassName = "org.apache.catalina.valves.HealthCheckValve"

	// Indentation of the inserted element.
	DefaultIndent = "    "
)

// Controls how [Patch] edits the document.
//
// Zero values fall back to the package defaults.
type Options struct {
	Marker       string  // Substring identifying the anchor line.
	ClassName    string  // Valve className attribute.
	Indent       *string // Leading whitespace of the inserted line; nil means DefaultIndent.
	Strict       bool    // Fail with ErrMarkerNotFound when no anchor exists.
	SkipExisting bool    // Leave the document alone if the valve is already present.
}

// Outcome of a [Patch] call.
type Result struct {
	Content  []byte // Patched document (the input when nothing was inserted).
	Inserted bool   // Whether the valve line was added.
	Existing bool   // Whether SkipExisting found the valve already present.
	Line     int    // 1-based line number of the inserted valve, 0 if none.
}

// Renders the valve element without a line terminator.
//
// The class name is escaped as XML attribute text.
func Valve(indent, className string) string {
	var b strings.Builder
	b.WriteString(indent)
	b.WriteString(`<Valve className="`)
	xml.EscapeText(&b, []byte(className)) // strings.Builder never fails
	b.WriteString(`"/>`)
	return b.String()
}

// Inserts the valve line before the last line containing the marker.
func Patch(doc []byte, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	lines := textedit.SplitLines(string(doc))
	element := Valve(*opts.Indent, opts.ClassName)

	if opts.SkipExisting && containsElement(lines, element) {
		return &Result{Content: doc, Existing: true}, nil
	}

	k := textedit.LastIndex(lines, opts.Marker)
	if k < 0 {
		if opts.Strict {
			return nil, fmt.Errorf("%w: %q", ErrMarkerNotFound, opts.Marker)
		}
		return &Result{Content: doc}, nil
	}

	payload := element + terminatorAt(lines, k)
	patched := textedit.InsertBeforeLast(lines, opts.Marker, payload)

	return &Result{
		Content:  []byte(textedit.Join(patched)),
		Inserted: true,
		Line:     k + 1,
	}, nil
}

// Fills unset fields with the package defaults.
func (o Options) withDefaults() Options {
	if o.Marker == "" {
		o.Marker = DefaultMarker
	}
	if o.ClassName == "" {
		o.ClassName = DefaultClassName
	}
	if o.Indent == nil {
		indent := DefaultIndent
		o.Indent = &indent
	}
	return o
}

// Picks the terminator for a line inserted at index k.
//
// The anchor line's terminator is used. An unterminated anchor (the last line
// of a file without a trailing newline) borrows from the line before it, and
// "\n" is used when neither has one.
func terminatorAt(lines []string, k int) string {
	if t := textedit.Terminator(lines[k]); t != "" {
		return t
	}
	if k > 0 {
		if t := textedit.Terminator(lines[k-1]); t != "" {
			return t
		}
	}
	return "\n"
}

// Whether any line already carries the rendered element, ignoring indentation.
func containsElement(lines []string, element string) bool {
	element = strings.TrimSpace(element)
	for _, line := range lines {
		if strings.Contains(line, element) {
			return true
		}
	}
	return false
}
