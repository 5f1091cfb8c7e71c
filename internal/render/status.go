package render

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/alecthomas/chroma/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/util"
	alertcallouts "github.com/zmtcreative/gm-alert-callouts"

	"go-dxf-viewer/internal/viewer"
)

const (
	statusPlaceholder = "{{STATUS}}"
	cssPlaceholder    = "{{CHROMA_CSS}}"
	codeStyle         = "github"
)

//go:embed page.html
var pageTemplate string

//go:embed worker.js
var workerScript []byte

// StatusRenderer turns presentation snapshots into the HTML status panel
// shown next to the drawing.
type StatusRenderer struct {
	md      goldmark.Markdown
	options string
}

// NewStatusRenderer returns a renderer whose panel also lists opts.
func NewStatusRenderer(opts viewer.EngineOptions) (*StatusRenderer, error) {
	raw, err := json.MarshalIndent(opts, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode engine options: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			alertcallouts.AlertCallouts,
			extension.Table,
			highlighting.NewHighlighting(
				highlighting.WithStyle(codeStyle),
				highlighting.WithWrapperRenderer(renderCodeWrapper),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
	)
	return &StatusRenderer{md: md, options: string(raw)}, nil
}

// RenderStatus converts a snapshot into an HTML fragment.
func (r *StatusRenderer) RenderStatus(p viewer.Presentation) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(r.statusMarkdown(p)), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderShell returns the page with an initial status panel and the
// highlighting stylesheet in place.
func (r *StatusRenderer) RenderShell(p viewer.Presentation) (string, error) {
	status, err := r.RenderStatus(p)
	if err != nil {
		return "", err
	}
	css, err := highlightCSS()
	if err != nil {
		return "", err
	}
	page := strings.Replace(pageTemplate, cssPlaceholder, css, 1)
	return strings.Replace(page, statusPlaceholder, status, 1), nil
}

// Assets returns the static files the page loads from /static/.
func Assets() map[string][]byte {
	return map[string][]byte{"dxf-viewer-worker.js": workerScript}
}

func (r *StatusRenderer) statusMarkdown(p viewer.Presentation) string {
	var b strings.Builder
	s := p.Load

	switch {
	case s.IsLoading:
		b.WriteString("> [!NOTE]\n> ")
		label := s.ProgressLabel
		if label == "" {
			label = "Loading..."
		}
		b.WriteString(escape(label))
		if s.Progress != nil && !s.Indeterminate() {
			fmt.Fprintf(&b, " %.0f%%", *s.Progress*100)
		}
		b.WriteString("\n\n")
	case s.Failed():
		b.WriteString("> [!CAUTION]\n> ")
		b.WriteString(escape(strings.ReplaceAll(s.Error, "\n", " ")))
		b.WriteString("\n\n")
	}

	b.WriteString("| | |\n|---|---|\n")
	document := "none"
	if p.URL != "" {
		document = escape(p.URL)
	}
	fmt.Fprintf(&b, "| Document | %s |\n", document)
	if c := p.Coordinate; c != nil {
		fmt.Fprintf(&b, "| Cursor | %.3f, %.3f, %.3f |\n", c.X, c.Y, c.Z)
	}

	b.WriteString("\n```json\n")
	b.WriteString(r.options)
	b.WriteString("\n```\n")
	return b.String()
}

// escape backslash-escapes markdown punctuation so engine text renders
// literally.
func escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x80 && strings.ContainsRune("\\`*_{}[]()#+-.!|<>&~", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func highlightCSS() (string, error) {
	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.WriteCSS(&buf, styles.Get(codeStyle)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderCodeWrapper wraps highlighted blocks so the page can collapse them.
func renderCodeWrapper(w util.BufWriter, context highlighting.CodeBlockContext, entering bool) {
	if entering {
		_, _ = w.WriteString(`<div class="status-code">`)
		return
	}
	_, _ = w.WriteString("</div>")
}
