package docgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTitleStripsMarkdownDecoration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "heading marker",
			content: "# Research Outline\n\nbody",
			want:    "Research Outline",
		},
		{
			name:    "bold and emphasis",
			content: "**Project** _Charter_ Draft\nmore",
			want:    "Project Charter Draft",
		},
		{
			name:    "inline html",
			content: "<h1>Quarterly Report</h1>",
			want:    "Quarterly Report",
		},
		{
			name:    "nested html tags",
			content: "<p>Weekly <b>Summary</b></p>\nbody",
			want:    "Weekly Summary",
		},
		{
			name:    "html inside markdown",
			content: "Release <em>Notes</em> Q3",
			want:    "Release Notes Q3",
		},
		{
			name:    "leading blank lines",
			content: "\n\n## Findings\n",
			want:    "Findings",
		},
		{
			name:    "plain text",
			content: "Just a title line",
			want:    "Just a title line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.content))
		})
	}
}

func TestDeriveTitleTruncates(t *testing.T) {
	long := strings.Repeat("a", 100)
	title := DeriveTitle(long)
	assert.Len(t, []rune(title), maxTitleLen)
}

func TestDeriveTitleFallsBackWhenEmpty(t *testing.T) {
	assert.Equal(t, "Untitled Document", DeriveTitle(""))
	assert.Equal(t, "Untitled Document", DeriveTitle("\n\n  \n"))
}
