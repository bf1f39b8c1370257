package templates

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// Renderer renders small text templates for outbound messaging.
type Renderer struct{}

// Render compiles the provided template text with strict missing-key semantics.
func (Renderer) Render(name, tmpl string, data any) (string, error) {
	if tmpl == "" {
		return "", fmt.Errorf("templates: template text required")
	}
	t, err := template.New(name).Option("missingkey=error").Funcs(funcs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("templates: parse: %w", err)
	}
	return execute(t, data)
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

// Set is a catalog of named templates parsed once at startup.
type Set struct {
	root  *template.Template
	names []string
}

// NewSet parses every source. A parse failure in any template fails the set.
func NewSet(sources map[string]string) (*Set, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	root := template.New("").Option("missingkey=error").Funcs(funcs)
	for _, name := range names {
		if strings.TrimSpace(sources[name]) == "" {
			return nil, fmt.Errorf("templates: %s: template text required", name)
		}
		if _, err := root.New(name).Parse(sources[name]); err != nil {
			return nil, fmt.Errorf("templates: parse %s: %w", name, err)
		}
	}
	return &Set{root: root, names: names}, nil
}

// Has reports whether name was parsed into the set.
func (s *Set) Has(name string) bool {
	if s == nil {
		return false
	}
	return s.root.Lookup(name) != nil
}

// Names lists the templates in the set, sorted.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

// Render executes the named template.
func (s *Set) Render(name string, data any) (string, error) {
	if s == nil {
		return "", fmt.Errorf("templates: empty set")
	}
	t := s.root.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("templates: unknown template %q", name)
	}
	return execute(t, data)
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("templates: execute: %w", err)
	}
	return buf.String(), nil
}
