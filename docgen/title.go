package docgen

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Max title length in runes, matching the generate prompts' instruction.
const maxTitleLen = 48

// DeriveTitle extracts a document title from the first non-empty content
// line: markdown decoration is stripped via the goldmark AST, then the plain
// text is truncated.
func DeriveTitle(content string) string {
	line := ""
	for _, candidate := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			line = trimmed
			break
		}
	}
	if line == "" {
		return "Untitled Document"
	}

	title := strings.TrimSpace(plainText(line))
	if title == "" {
		return "Untitled Document"
	}

	runes := []rune(title)
	if len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen])
	}
	return title
}

// plainText renders a markdown fragment as its text content only. HTML
// nodes keep their inner text: goldmark parses a tag-decorated line as an
// HTMLBlock or RawHTML whose raw segments are not Text nodes, so those are
// harvested separately with the tags stripped.
func plainText(source string) string {
	src := []byte(source)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
		case *ast.HTMLBlock:
			for i := 0; i < t.Lines().Len(); i++ {
				segment := t.Lines().At(i)
				b.WriteString(stripTags(string(segment.Value(src))))
			}
		case *ast.RawHTML:
			for i := 0; i < t.Segments.Len(); i++ {
				segment := t.Segments.At(i)
				b.WriteString(stripTags(string(segment.Value(src))))
			}
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// stripTags drops anything between < and >, keeping the text in between.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
