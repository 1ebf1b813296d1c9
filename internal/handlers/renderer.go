package handlers

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

//go:embed templates/*
var templatesFS embed.FS

// standalone pages are rendered without the layout
var standalone = map[string]bool{
	"login.html":    true,
	"register.html": true,
}

// Renderer handles template rendering
type Renderer struct {
	pages  map[string]*template.Template
	logger zerolog.Logger
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
		"toJSON": func(v interface{}) template.JS {
			b, _ := json.Marshal(v)
			return template.JS(b)
		},
		"deref": func(p interface{}) interface{} {
			switch v := p.(type) {
			case *string:
				if v != nil {
					return *v
				}
			case *int:
				if v != nil {
					return *v
				}
			case *float64:
				if v != nil {
					return *v
				}
			}
			return ""
		},
		"date": func(t time.Time) string { return t.Format("2006-01-02 15:04") },
		"rating": func(r *float64) string {
			if r == nil {
				return "n/a"
			}
			return fmt.Sprintf("%.1f", *r)
		},
		"minutes": func(sec float64) int { return int(sec / 60) },
	}
}

// NewRenderer parses every page once with the layout it needs
func NewRenderer(logger zerolog.Logger) (*Renderer, error) {
	funcs := templateFuncs()

	names, err := fsPages()
	if err != nil {
		return nil, err
	}

	pages := make(map[string]*template.Template, len(names))
	for _, name := range names {
		// Parse each page with the layout separately so pages can define the same blocks
		files := []string{"templates/layout.html", "templates/" + name}
		if standalone[name] {
			files = []string{"templates/" + name}
		}
		tmpl, err := template.New("").Funcs(funcs).ParseFS(templatesFS, files...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &Renderer{
		pages:  pages,
		logger: logger,
	}, nil
}

func fsPages() ([]string, error) {
	entries, err := templatesFS.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == "layout.html" {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Render renders a template with data
func (r *Renderer) Render(w io.Writer, name string, data interface{}) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown template %s", name)
	}
	return tmpl.ExecuteTemplate(w, name, data)
}

// RenderPage renders a page template and handles errors
func (r *Renderer) RenderPage(w http.ResponseWriter, name string, data interface{}) {
	r.RenderPageStatus(w, http.StatusOK, name, data)
}

// RenderPageStatus renders a page with the given status code
func (r *Renderer) RenderPageStatus(w http.ResponseWriter, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := r.Render(&buf, name, data); err != nil {
		r.logger.Error().Err(err).Str("template", name).Msg("failed to render template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
