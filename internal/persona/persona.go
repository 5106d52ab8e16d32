// Package persona holds the simulated visitor profiles, navigation objectives
// and the prompt templates built from them.
package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var ErrUnknownPersona = errors.New("unknown persona")

const customID = "custom"

type Persona struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Icon        string `yaml:"icon" json:"icon"`
	Color       string `yaml:"color" json:"color"`
	Profile     string `yaml:"profile" json:"full_profile"`
}

// FirstName is the part of Name before " - ", used when the persona speaks.
func (p Persona) FirstName() string {
	name, _, _ := strings.Cut(p.Name, " - ")
	return strings.TrimSpace(name)
}

type Objective struct {
	ID     string `yaml:"id" json:"id"`
	Label  string `yaml:"label" json:"label"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// Registry is read-only after load and safe for concurrent use.
type Registry struct {
	personas    []Persona
	byID        map[string]Persona
	objectives  []Objective
	suggestions map[string][]string
}

type document struct {
	Personas    []Persona           `yaml:"personas"`
	Objectives  []Objective         `yaml:"objectives"`
	Suggestions map[string][]string `yaml:"suggestions"`
}

// Load parses a registry document.
func Load(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse personas: %w", err)
	}
	if len(doc.Personas) == 0 {
		return nil, errors.New("parse personas: no personas defined")
	}
	if len(doc.Objectives) == 0 {
		return nil, errors.New("parse personas: no objectives defined")
	}
	r := &Registry{
		byID:        make(map[string]Persona, len(doc.Personas)),
		objectives:  doc.Objectives,
		suggestions: doc.Suggestions,
	}
	for _, p := range doc.Personas {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("parse personas: persona %q has no id", p.Name)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("parse personas: duplicate id %q", p.ID)
		}
		p.Profile = strings.TrimSpace(p.Profile)
		r.byID[p.ID] = p
		r.personas = append(r.personas, p)
	}
	return r, nil
}

// LoadFile reads a registry from path. Empty path returns the built-in registry.
func LoadFile(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personas: %w", err)
	}
	return Load(data)
}

// Default returns the built-in registry.
func Default() *Registry {
	r, err := Load(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("persona: embedded defaults: %v", err))
	}
	return r
}

func (r *Registry) Get(id string) (Persona, error) {
	p, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %q", ErrUnknownPersona, id)
	}
	return p, nil
}

func (r *Registry) All() []Persona {
	out := make([]Persona, len(r.personas))
	copy(out, r.personas)
	return out
}

func (r *Registry) Objectives() []Objective {
	out := make([]Objective, len(r.objectives))
	copy(out, r.objectives)
	return out
}

// Objective returns the objective with id, or the first one when id is unknown.
func (r *Registry) Objective(id string) Objective {
	for _, o := range r.objectives {
		if o.ID == id {
			return o
		}
	}
	return r.objectives[0]
}

// Suggestions returns the operator questions for a page category.
func (r *Registry) Suggestions(category string) []string {
	s, ok := r.suggestions[category]
	if !ok {
		s = r.suggestions["default"]
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// Customize derives a persona from base with extra operator-supplied traits.
func Customize(base Persona, extra string) Persona {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return base
	}
	p := base
	p.ID = customID
	p.Profile = base.Profile + "\n\nADDITIONAL TRAITS (set by the facilitator):\n" + extra
	return p
}
