package web

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TemplateEngine handles HTML template rendering
type TemplateEngine struct {
	templatesDir string
	reload       bool // dev mode: reload on each request

	mu        sync.RWMutex
	templates *template.Template
}

// NewTemplateEngine creates a new template engine
func NewTemplateEngine(templatesDir string, reload bool) *TemplateEngine {
	return &TemplateEngine{
		templatesDir: templatesDir,
		reload:       reload,
	}
}

var funcs = template.FuncMap{
	"dict": func(values ...interface{}) (map[string]interface{}, error) {
		if len(values)%2 != 0 {
			return nil, errors.New("dict needs key/value pairs")
		}
		dict := make(map[string]interface{}, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				return nil, fmt.Errorf("dict key %v is not a string", values[i])
			}
			dict[key] = values[i+1]
		}
		return dict, nil
	},
	"lower": strings.ToLower,
	"coord": func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"pct":   func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
}

// Load parses all templates from the templates directory
func (te *TemplateEngine) Load() error {
	// Parse all HTML files recursively, except pages directory
	tmpl := template.New("").Funcs(funcs)

	err := filepath.Walk(te.templatesDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip pages directory - these are loaded on-demand
		if info.IsDir() && info.Name() == "pages" {
			return filepath.SkipDir
		}

		if !info.IsDir() && filepath.Ext(path) == ".html" {
			_, err = tmpl.ParseFiles(path)
			return err
		}
		return nil
	})

	if err != nil {
		return err
	}

	te.mu.Lock()
	te.templates = tmpl
	te.mu.Unlock()
	return nil
}

func (te *TemplateEngine) base() (*template.Template, error) {
	if te.reload {
		if err := te.Load(); err != nil {
			return nil, err
		}
	}
	te.mu.RLock()
	defer te.mu.RUnlock()
	if te.templates == nil {
		return nil, errors.New("templates not loaded")
	}
	return te.templates, nil
}

func (te *TemplateEngine) page(name string) (*template.Template, error) {
	base, err := te.base()
	if err != nil {
		return nil, err
	}

	// Clone base templates and parse page-specific template
	tmpl, err := base.Clone()
	if err != nil {
		return nil, err
	}

	pageFile := filepath.Join(te.templatesDir, "pages", name+".html")
	return tmpl.ParseFiles(pageFile)
}

// Render renders a template with the given data
func (te *TemplateEngine) Render(w io.Writer, name string, data interface{}) error {
	tmpl, err := te.page(name)
	if err != nil {
		return err
	}

	// Execute layout with content
	return tmpl.ExecuteTemplate(w, "layout", data)
}

// RenderContent renders only the content template without layout (for HTMX)
func (te *TemplateEngine) RenderContent(w io.Writer, name string, data interface{}) error {
	tmpl, err := te.page(name)
	if err != nil {
		return err
	}

	// Execute only the content template
	return tmpl.ExecuteTemplate(w, "content", data)
}

// RenderPartial renders a named template (partial)
func (te *TemplateEngine) RenderPartial(w io.Writer, name string, data interface{}) error {
	base, err := te.base()
	if err != nil {
		return err
	}
	// an executed html/template can no longer be cloned
	tmpl, err := base.Clone()
	if err != nil {
		return err
	}
	return tmpl.ExecuteTemplate(w, name, data)
}
