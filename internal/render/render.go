// Package render turns Markdown into a complete, self-contained HTML page.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// ErrRender is wrapped by every error returned from this package. Malformed
// Markdown is not an error; it degrades per CommonMark rules.
var ErrRender = errors.New("render failed")

// Locale selects the date format shown in the page header.
type Locale string

const (
	LocaleZhCN Locale = "zh-CN"
	LocaleEnUS Locale = "en-US"
)

var dateLayouts = map[Locale]string{
	LocaleZhCN: "2006年1月2日 15:04",
	LocaleEnUS: "January 2, 2006 at 03:04 PM",
}

// escaper covers the five characters that can break out of text or attribute
// context in the page shell.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// EscapeHTML escapes & < > " and ' for insertion into the page shell.
func EscapeHTML(s string) string {
	return escaper.Replace(s)
}

const pageTemplate = `<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}}</title>
  <style>{{.Style}}</style>
</head>
<body>
  <div class="container">
    <article class="article">
      <header class="article-header">
        <h1 class="article-title">{{.Title}}</h1>
        <div class="article-meta">
          <span class="meta-item">
            <svg width="16" height="16" viewBox="0 0 24 24" fill="none" stroke="currentColor" stroke-width="2">
              <rect x="3" y="4" width="18" height="18" rx="2" ry="2"></rect>
              <line x1="16" y1="2" x2="16" y2="6"></line>
              <line x1="8" y1="2" x2="8" y2="6"></line>
              <line x1="3" y1="10" x2="21" y2="10"></line>
            </svg>
            {{.Date}}
          </span>
        </div>
      </header>
      <div class="article-content">
        {{.Content}}
      </div>
      <footer class="footer">
        <p>Powered by <a href="https://ipfs.io" target="_blank">IPFS</a> · Published via IPFS Publisher</p>
      </footer>
    </article>
  </div>
</body>
</html>`

// page fields are inserted as-is; Title and Date are escaped before they get here.
type page struct {
	Lang    string
	Title   string
	Style   string
	Date    string
	Content string
}

// Renderer converts Markdown to a styled HTML document. A Renderer holds no
// mutable state after construction and is safe for concurrent use.
type Renderer struct {
	md       goldmark.Markdown
	shell    *template.Template
	locale   Locale
	location *time.Location
	now      func() time.Time
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLocale sets the header date format. Unknown locales fall back to zh-CN.
func WithLocale(l Locale) Option {
	return func(r *Renderer) {
		if _, ok := dateLayouts[l]; ok {
			r.locale = l
		}
	}
}

// WithLocation sets the time zone used for the header date.
func WithLocation(loc *time.Location) Option {
	return func(r *Renderer) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithClock overrides the clock used when no creation time is supplied.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// New builds a Renderer with GFM tables, strikethrough, autolinks, task lists
// and hard line breaks.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.TaskList),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithUnsafe(),
			),
		),
		shell:    template.Must(template.New("page").Parse(pageTemplate)),
		locale:   LocaleZhCN,
		location: time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fragment renders Markdown to the HTML that goes inside the content region.
func (r *Renderer) Fragment(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("%w: markdown: %w", ErrRender, err)
	}
	return buf.String(), nil
}

// Render returns the full HTML page for title and markdown. A zero createdAt
// means the page is dated with the current time.
func (r *Renderer) Render(title, markdown string, createdAt time.Time) (string, error) {
	content, err := r.Fragment(markdown)
	if err != nil {
		return "", err
	}
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	var buf bytes.Buffer
	err = r.shell.Execute(&buf, page{
		Lang:    string(r.locale),
		Title:   EscapeHTML(title),
		Style:   articleCSS,
		Date:    EscapeHTML(r.FormatDate(createdAt)),
		Content: content,
	})
	if err != nil {
		return "", fmt.Errorf("%w: page: %w", ErrRender, err)
	}
	return buf.String(), nil
}

// FormatDate formats t for the page header in the renderer's locale and zone.
func (r *Renderer) FormatDate(t time.Time) string {
	return t.In(r.location).Format(dateLayouts[r.locale])
}
