// Package parser splits front matter from Markdown sources and derives a title.
package parser

import (
	"bytes"
	"strings"

	"github.com/adrg/frontmatter"
)

// Result holds the output of parsing a Markdown source.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Title       string
}

// Parse extracts front matter, body and title from raw Markdown. It never
// fails: unreadable front matter leaves the whole input as body.
func Parse(data []byte) *Result {
	fm, body := splitFrontmatter(data)
	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
	}
}

// splitFrontmatter separates YAML (---), TOML (+++) or JSON (;;;) front matter
// from the body. Without front matter, or when it does not parse, the whole
// content is body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	var fm map[string]any
	body, err := frontmatter.Parse(bytes.NewReader(data), &fm)
	if err != nil || len(fm) == 0 {
		return nil, string(data)
	}
	return fm, strings.TrimLeft(string(body), "\r\n")
}

// deriveTitle returns the front matter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if !inFence && strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
