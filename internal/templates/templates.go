// Package templates holds the embedded text templates for the product
// report and the matching prompt.
package templates

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"text/template"

	"github.com/matthewgall/shelfscrape/internal/models"
)

const (
	Prompt = "prompt.tmpl"
	Report = "report.tmpl"
)

//go:embed text/*.tmpl
var templateFS embed.FS

// Set is a parsed collection of named templates.
type Set struct {
	templates map[string]*template.Template
}

func Load() (*Set, error) {
	return LoadFS(templateFS, "text")
}

func LoadFS(source fs.FS, dir string) (*Set, error) {
	entries, err := fs.ReadDir(source, dir)
	if err != nil {
		return nil, err
	}

	set := &Set{templates: make(map[string]*template.Template)}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".tmpl") {
			continue
		}
		data, err := fs.ReadFile(source, dir+"/"+name)
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		set.templates[name] = tmpl
	}

	return set, nil
}

// MustLoad panics if the embedded templates fail to parse.
func MustLoad() *Set {
	set, err := Load()
	if err != nil {
		panic(err)
	}
	return set
}

func (s *Set) Execute(w io.Writer, name string, data interface{}) error {
	tmpl, ok := s.templates[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}
	return tmpl.Execute(w, data)
}

func (s *Set) String(name string, data interface{}) (string, error) {
	var b strings.Builder
	if err := s.Execute(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"amount": formatAmount,
		"add":    func(a, b int) int { return a + b },
		"join":   strings.Join,
	}
}

// formatAmount renders an optional price the way the page reported it.
func formatAmount(value interface{}) string {
	switch typed := value.(type) {
	case nil:
		return models.NotAvailable
	case *float64:
		if typed == nil {
			return models.NotAvailable
		}
		return strconv.FormatFloat(*typed, 'f', -1, 64)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case string:
		if typed == "" {
			return models.NotAvailable
		}
		return typed
	default:
		return fmt.Sprintf("%v", value)
	}
}
