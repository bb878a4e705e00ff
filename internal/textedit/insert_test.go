package textedit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const valve = "  <Valve/>\n"

func TestInsertBeforeLast(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  []string
	}{
		{
			name:  "single host",
			lines: []string{"<Host>\n", "  <X/>\n", "</Host>\n"},
			want:  []string{"<Host>\n", "  <X/>\n", valve, "</Host>\n"},
		},
		{
			name: "only the last host is used",
			lines: []string{
				"<Host name=\"a\">\n", "</Host>\n",
				"<Host name=\"b\">\n", "</Host>\n",
				"</Engine>\n",
			},
			want: []string{
				"<Host name=\"a\">\n", "</Host>\n",
				"<Host name=\"b\">\n", valve, "</Host>\n",
				"</Engine>\n",
			},
		},
		{
			name:  "marker inside a longer line",
			lines: []string{"<Host>\n", "  <X/></Host></Engine>\n"},
			want:  []string{"<Host>\n", valve, "  <X/></Host></Engine>\n"},
		},
		{
			name:  "marker on the first line",
			lines: []string{"</Host>\n", "tail\n"},
			want:  []string{valve, "</Host>\n", "tail\n"},
		},
		{
			name:  "unterminated last line",
			lines: []string{"<Host>\n", "</Host>"},
			want:  []string{"<Host>\n", valve, "</Host>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InsertBeforeLast(tt.lines, "</Host>", valve)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, len(tt.lines)+1)
		})
	}
}

func TestInsertBeforeLastNoMarker(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{name: "nil", lines: nil},
		{name: "empty", lines: []string{}},
		{name: "no host", lines: []string{"<Server>\n", "  <Engine/>\n", "</Server>\n"}},
		{name: "opening tag only", lines: []string{"<Host>\n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InsertBeforeLast(tt.lines, "</Host>", valve)
			assert.Equal(t, tt.lines, got)
		})
	}
}

func TestInsertBeforeLastDoesNotMutateInput(t *testing.T) {
	lines := make([]string, 3, 10)
	copy(lines, []string{"<Host>\n", "</Host>\n", "end\n"})
	orig := append([]string(nil), lines...)

	got := InsertBeforeLast(lines, "</Host>", valve)

	require.Len(t, got, 4)
	assert.Equal(t, orig, lines)
	assert.Empty(t, lines[:cap(lines)][3], "spare capacity was written")
}

func TestLastIndex(t *testing.T) {
	lines := []string{"a\n", "</Host>\n", "b\n", "</Host>\n", "c\n"}

	assert.Equal(t, 3, LastIndex(lines, "</Host>"))
	assert.Equal(t, 4, LastIndex(lines, "c"))
	assert.Equal(t, -1, LastIndex(lines, "</Engine>"))
	assert.Equal(t, -1, LastIndex(nil, "</Host>"))
}
