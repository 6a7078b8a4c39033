package mail

import (
	"bytes"
	"embed"
	"html"
	"io/fs"
	"net/http"
	"regexp"
	"strings"

	fiberhtml "github.com/gofiber/template/html/v2"
)

//go:embed templates/*.html
var templatesFS embed.FS

var (
	reTags   = regexp.MustCompile(`(?s)<(style|script)[^>]*>.*?</(style|script)>|<[^>]+>`)
	reBlanks = regexp.MustCompile(`[ \t]+`)
	reLines  = regexp.MustCompile(`\n{3,}`)
)

// Renderer turns the embedded email templates into Messages.
type Renderer struct {
	engine *fiberhtml.Engine
}

func NewRenderer() (*Renderer, error) {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, err
	}
	engine := fiberhtml.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, err
	}
	return &Renderer{engine: engine}, nil
}

// Render executes template name inside the shared layout.
func (r *Renderer) Render(to, subject, name string, data map[string]any) (Message, error) {
	if data == nil {
		data = map[string]any{}
	}
	data["Subject"] = subject
	var buf bytes.Buffer
	if err := r.engine.Render(&buf, name, data, "layout"); err != nil {
		return Message{}, err
	}
	out := buf.String()
	return Message{To: to, Subject: subject, HTML: out, Text: PlainText(out)}, nil
}

// PlainText derives a text body from rendered HTML.
func PlainText(s string) string {
	s = strings.ReplaceAll(s, "<br>", "\n")
	s = strings.ReplaceAll(s, "</p>", "\n\n")
	s = reTags.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(reBlanks.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(reLines.ReplaceAllString(s, "\n\n"))
}
