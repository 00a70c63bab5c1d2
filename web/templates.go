package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

type Templates struct {
	templates *template.Template
}

func NewTemplates() *Templates {
	t := template.New("").Funcs(TemplateFuncs())
	return &Templates{
		templates: template.Must(t.ParseFS(templateFS, "templates/*.html")),
	}
}

func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"clock": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Local().Format("15:04:05")
		},
		"price": func(p float64) string {
			return fmt.Sprintf("%.2f", p)
		},
		"pct": func(p float64) string {
			return fmt.Sprintf("%+.2f%%", p)
		},
		"jsonPretty": func(v any) string {
			pretty, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err.Error()
			}
			return string(pretty)
		},
	}
}

func (t *Templates) Execute(w io.Writer, name string, data any) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

func (t *Templates) Render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.templates.ExecuteTemplate(w, name, data); err != nil {
		http.Error(w, "Template rendering error: "+err.Error(), http.StatusInternalServerError)
	}
}
