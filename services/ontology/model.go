package ontology

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Class is a node of the class hierarchy. An empty Parent marks a root.
type Class struct {
	Name    string `yaml:"name" json:"name"`
	Label   string `yaml:"label,omitempty" json:"label,omitempty"`
	Parent  string `yaml:"parent,omitempty" json:"parent,omitempty"`
	Comment string `yaml:"comment,omitempty" json:"comment,omitempty"`
}

// Individual is a named member of a class.
type Individual struct {
	Name       string            `yaml:"name" json:"name"`
	Label      string            `yaml:"label,omitempty" json:"label,omitempty"`
	Class      string            `yaml:"class" json:"class"`
	Properties map[string]string `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// Document is the on-disk form of an ontology.
type Document struct {
	Classes     []Class      `yaml:"classes" json:"classes"`
	Individuals []Individual `yaml:"individuals" json:"individuals"`
}

// Option is one selectable value of a form field.
type Option struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// FormField is an input generated from a class.
type FormField struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Comment string   `json:"comment,omitempty"`
	Options []Option `json:"options"`
}

// Model is a validated, indexed ontology. It is immutable once built.
type Model struct {
	doc         Document
	classes     map[string]Class
	children    map[string][]string
	individuals map[string]Individual
	members     map[string][]string // class -> direct individuals
}

// LoadFile reads and validates a YAML ontology.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ontology: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML ontology.
func Parse(data []byte) (*Model, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse ontology: %w", err)
	}
	return NewModel(doc)
}

// NewModel validates doc: class and individual names are unique, parents and
// individual classes exist and the hierarchy has no cycles.
func NewModel(doc Document) (*Model, error) {
	m := &Model{
		doc:         doc,
		classes:     make(map[string]Class, len(doc.Classes)),
		children:    make(map[string][]string),
		individuals: make(map[string]Individual, len(doc.Individuals)),
		members:     make(map[string][]string),
	}

	for _, c := range doc.Classes {
		if c.Name == "" {
			return nil, fmt.Errorf("class without a name")
		}
		if _, dup := m.classes[c.Name]; dup {
			return nil, fmt.Errorf("duplicate class %q", c.Name)
		}
		m.classes[c.Name] = c
	}
	for _, c := range doc.Classes {
		if c.Parent == "" {
			continue
		}
		if _, ok := m.classes[c.Parent]; !ok {
			return nil, fmt.Errorf("class %q: unknown parent %q", c.Name, c.Parent)
		}
		m.children[c.Parent] = append(m.children[c.Parent], c.Name)
	}
	for _, c := range doc.Classes {
		if err := m.checkAncestry(c.Name); err != nil {
			return nil, err
		}
	}

	for _, ind := range doc.Individuals {
		if ind.Name == "" {
			return nil, fmt.Errorf("individual without a name")
		}
		if _, dup := m.individuals[ind.Name]; dup {
			return nil, fmt.Errorf("duplicate individual %q", ind.Name)
		}
		if _, ok := m.classes[ind.Class]; !ok {
			return nil, fmt.Errorf("individual %q: unknown class %q", ind.Name, ind.Class)
		}
		m.individuals[ind.Name] = ind
		m.members[ind.Class] = append(m.members[ind.Class], ind.Name)
	}
	return m, nil
}

func (m *Model) checkAncestry(name string) error {
	seen := map[string]bool{name: true}
	for cur := m.classes[name].Parent; cur != ""; cur = m.classes[cur].Parent {
		if seen[cur] {
			return fmt.Errorf("class %q: parent cycle through %q", name, cur)
		}
		seen[cur] = true
	}
	return nil
}

// Document returns the ontology as loaded.
func (m *Model) Document() Document {
	return m.doc
}

// Classes returns every class, in file order.
func (m *Model) Classes() []Class {
	return append([]Class(nil), m.doc.Classes...)
}

// Class looks up a class by name.
func (m *Model) Class(name string) (Class, bool) {
	c, ok := m.classes[name]
	return c, ok
}

// Subclasses returns the direct subclasses of name, in file order.
func (m *Model) Subclasses(name string) []Class {
	out := make([]Class, 0, len(m.children[name]))
	for _, child := range m.children[name] {
		out = append(out, m.classes[child])
	}
	return out
}

// Descendants returns name and every class below it.
func (m *Model) Descendants(name string) []string {
	out := []string{name}
	for i := 0; i < len(out); i++ {
		out = append(out, m.children[out[i]]...)
	}
	return out
}

// Individuals returns the members of name and of all its subclasses,
// sorted by name.
func (m *Model) Individuals(name string) []Individual {
	var out []Individual
	for _, class := range m.Descendants(name) {
		for _, ind := range m.members[class] {
			out = append(out, m.individuals[ind])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Individual looks up an individual by name.
func (m *Model) Individual(name string) (Individual, bool) {
	ind, ok := m.individuals[name]
	return ind, ok
}

// FormFields returns one field per direct subclass of name, or a single
// field for name itself when it has none. Each field offers the
// individuals of its class as options.
func (m *Model) FormFields(name string) []FormField {
	classes := m.Subclasses(name)
	if len(classes) == 0 {
		classes = []Class{m.classes[name]}
	}
	fields := make([]FormField, 0, len(classes))
	for _, c := range classes {
		field := FormField{Name: c.Name, Label: labelOf(c.Label, c.Name), Comment: c.Comment, Options: []Option{}}
		for _, ind := range m.Individuals(c.Name) {
			field.Options = append(field.Options, Option{Name: ind.Name, Label: labelOf(ind.Label, ind.Name)})
		}
		fields = append(fields, field)
	}
	return fields
}

func labelOf(label, name string) string {
	if label != "" {
		return label
	}
	return name
}
