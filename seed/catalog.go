// Package seed supplies the templates that populate an empty registry: a
// predefined catalog embedded in the binary and a procedural generator for
// warming up larger populations.
package seed

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/specialists/specialist"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Templates []*specialist.Template `yaml:"templates"`
}

// Catalog is an immutable set of predefined templates.
type Catalog struct {
	templates []*specialist.Template
	byID      map[string]*specialist.Template
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("seed: embedded catalog: %v", err))
	}
	return c
}

// Parse decodes a YAML catalog. Every template must validate and ids must
// be unique.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{byID: make(map[string]*specialist.Template, len(file.Templates))}
	for _, t := range file.Templates {
		t.Instructions = strings.TrimSpace(t.Instructions)
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate template %s", t.ID)
		}
		c.byID[t.ID] = t
		c.templates = append(c.templates, t)
	}
	slices.SortStableFunc(c.templates, func(a, b *specialist.Template) int {
		return b.Priority - a.Priority
	})
	return c, nil
}

// Lookup returns a copy of the template with id.
func (c *Catalog) Lookup(id string) (*specialist.Template, bool) {
	t, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Templates returns copies of every template, highest priority first.
func (c *Catalog) Templates() []*specialist.Template {
	out := make([]*specialist.Template, len(c.templates))
	for i, t := range c.templates {
		out[i] = t.Clone()
	}
	return out
}

// Pillar returns copies of the templates attached to p.
func (c *Catalog) Pillar(p specialist.Pillar) []*specialist.Template {
	var out []*specialist.Template
	for _, t := range c.templates {
		if t.Pillar == p {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (c *Catalog) Len() int {
	return len(c.templates)
}
