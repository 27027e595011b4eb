package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/habitkit/habits/internal/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

type layoutData struct {
	Title   string
	User    *User
	Content template.HTML
}

func parseTemplates() (*template.Template, error) {
	t := template.New("").Funcs(template.FuncMap{
		"pct": func(n, total int) int {
			if total <= 0 {
				return 0
			}
			return n * 100 / total
		},
	})
	return t.ParseFS(templateFS, "templates/*.html")
}

// render executes the named page and wraps it in the layout. The page is
// rendered to a buffer first so a template error never leaves a half page.
func (s *Server) render(w http.ResponseWriter, code int, name string, data any) {
	var content bytes.Buffer
	if err := s.templates.ExecuteTemplate(&content, name, data); err != nil {
		logger.Error("Failed to render template", "template", name, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	page := layoutData{Title: name, Content: template.HTML(content.String())}
	switch d := data.(type) {
	case indexData:
		page.User = d.User
	case statsData:
		page.User = d.User
	}

	var out bytes.Buffer
	if err := s.templates.ExecuteTemplate(&out, "layout", page); err != nil {
		logger.Error("Failed to render layout", "template", name, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = out.WriteTo(w)
}
