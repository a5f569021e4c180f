// Package prompts renders the instruction text sent to the generation
// service for each stage. Built-in templates can be overridden per file from
// a directory and hot-reloaded with a Watcher.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"
)

//go:embed templates/*.tmpl
var builtin embed.FS

// Name identifies a prompt template.
type Name string

const (
	System       Name = "system"
	Planning     Name = "planning"
	Single       Name = "single"
	Modify       Name = "modify"
	MultiPage    Name = "multi_page"
	Section      Name = "section"
	Layer        Name = "layer"
	Needs        Name = "needs"
	Architecture Name = "architecture"
	Component    Name = "component"
	Assembly     Name = "assembly"
)

// All lists every template name.
var All = []Name{System, Planning, Single, Modify, MultiPage, Section, Layer, Needs, Architecture, Component, Assembly}

// Unit describes the page, section or layer being generated.
type Unit struct {
	Name        string
	Title       string
	Description string
}

// NavLink is one canonical navigation entry.
type NavLink struct {
	Name   string
	Title  string
	URL    string
	Active bool
}

// ComponentSpec is one architecture component and, once generated, its markup.
type ComponentSpec struct {
	Name    string `json:"name"`
	Purpose string `json:"purpose"`
	Markup  string `json:"-"`
}

// Data is the template input. Each template reads the fields it needs.
type Data struct {
	Prompt      string
	Unit        Unit
	Nav         []NavLink
	Reference   string
	Index       int
	Total       int
	Accumulated string
	Previous    string
	Needs       string
	Component   ComponentSpec
	Components  []ComponentSpec
}

// Set holds parsed templates. It is safe for concurrent use.
type Set struct {
	mu        sync.RWMutex
	templates map[Name]*template.Template
	dir       string
}

// NewSet parses the built-in templates and then applies overrides from dir,
// if dir is non-empty.
func NewSet(dir string) (*Set, error) {
	s := &Set{dir: dir}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the override directory.
func (s *Set) Dir() string { return s.dir }

// Reload re-parses all templates. On error the previous set is kept.
func (s *Set) Reload() error {
	parsed := make(map[Name]*template.Template, len(All))
	for _, name := range All {
		src, err := s.source(name)
		if err != nil {
			return err
		}
		tmpl, err := template.New(string(name)).Option("missingkey=zero").Parse(string(src))
		if err != nil {
			return fmt.Errorf("parse prompt template %s: %w", name, err)
		}
		parsed[name] = tmpl
	}
	s.mu.Lock()
	s.templates = parsed
	s.mu.Unlock()
	return nil
}

func (s *Set) source(name Name) ([]byte, error) {
	file := string(name) + ".tmpl"
	if s.dir != "" {
		data, err := os.ReadFile(filepath.Join(s.dir, file))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read prompt override %s: %w", file, err)
		}
	}
	data, err := builtin.ReadFile("templates/" + file)
	if err != nil {
		return nil, fmt.Errorf("missing built-in prompt %s: %w", name, err)
	}
	return data, nil
}

// Render executes the named template.
func (s *Set) Render(name Name, data Data) (string, error) {
	s.mu.RLock()
	tmpl, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown prompt template: %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

// MustRender is Render for templates whose inputs are fully controlled by
// the caller; it panics on failure.
func (s *Set) MustRender(name Name, data Data) string {
	out, err := s.Render(name, data)
	if err != nil {
		panic(err)
	}
	return out
}
