package stage

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Renderer expands template text against a property map.
type Renderer interface {
	Render(text string, props map[string]any) (string, error)
}

// TemplateRenderer renders with text/template. Referencing a property
// that is not set is an error.
type TemplateRenderer struct {
	Funcs template.FuncMap
}

var defaultFuncs = template.FuncMap{
	"lower":   strings.ToLower,
	"upper":   strings.ToUpper,
	"trim":    strings.TrimSpace,
	"replace": strings.ReplaceAll,
	"join":    strings.Join,
	"default": func(fallback, value any) any {
		if s, ok := value.(string); ok && s == "" {
			return fallback
		}
		if value == nil {
			return fallback
		}
		return value
	},
}

func (r TemplateRenderer) Render(text string, props map[string]any) (string, error) {
	tmpl := template.New("").Option("missingkey=error").Funcs(defaultFuncs)
	if r.Funcs != nil {
		tmpl = tmpl.Funcs(r.Funcs)
	}
	tmpl, err := tmpl.Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, props); err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return buf.String(), nil
}

// RenderFunc adapts a Renderer to the plain function used for declared
// paths.
func RenderFunc(r Renderer) func(string, map[string]any) (string, error) {
	return r.Render
}
