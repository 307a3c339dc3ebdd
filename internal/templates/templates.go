// Package templates stores named agenda presets that a master can load into
// a room in one step.
package templates

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/DoyleJ11/meeting-timer-backend/internal/agenda"
)

var ErrNotFound = errors.New("template not found")
var ErrInvalidName = errors.New("invalid template name")

const maxNameLen = 64

type Template struct {
	Name   string         `json:"name"`
	Phases []agenda.Phase `json:"phases"`
}

type Store interface {
	List(ctx context.Context) ([]Template, error)
	Get(ctx context.Context, name string) (Template, error)
	Put(ctx context.Context, t Template) error
}

// Presets are the built-in meeting formats every store starts with.
func Presets() []Template {
	return []Template{
		{Name: "critique", Phases: []agenda.Phase{
			{Name: "Context & Goals", Duration: 180},
			{Name: "Presentation", Duration: 300},
			{Name: "Clarifying Questions", Duration: 120},
			{Name: "Constructive Feedback", Duration: 480},
			{Name: "Presenter's Wrap-up", Duration: 120},
		}},
		{Name: "design", Phases: []agenda.Phase{
			{Name: "Intro / Context", Duration: 60},
			{Name: "Showcase", Duration: 240},
			{Name: "Wrap-up", Duration: 120},
			{Name: "Q&A", Duration: 120},
		}},
	}
}

// Validate normalizes t.Name and checks the phases against rules.
func Validate(t *Template, rules agenda.Rules) error {
	t.Name = strings.ToLower(strings.TrimSpace(t.Name))
	if t.Name == "" || len(t.Name) > maxNameLen {
		return ErrInvalidName
	}
	if t.Phases == nil {
		t.Phases = []agenda.Phase{}
	}
	return agenda.ValidatePhases(t.Phases, rules)
}

type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{templates: make(map[string]Template)}
	for _, t := range Presets() {
		s.templates[t.Name] = t
	}
	return s
}

func (s *MemoryStore) List(_ context.Context) ([]Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, clone(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, name string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Template{}, ErrNotFound
	}
	return clone(t), nil
}

func (s *MemoryStore) Put(_ context.Context, t Template) error {
	if err := Validate(&t, agenda.Rules{}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.Name] = clone(t)
	return nil
}

func clone(t Template) Template {
	t.Phases = slices.Clone(t.Phases)
	if t.Phases == nil {
		t.Phases = []agenda.Phase{}
	}
	return t
}
