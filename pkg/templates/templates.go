// Package templates provides the system-prompt templates that branch contexts
// are seeded with.
package templates

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var ErrTemplateNotFound = errors.New("template not found")

type TemplateNotFoundError struct {
	ID string
}

func (e *TemplateNotFoundError) Error() string {
	if e == nil || e.ID == "" {
		return ErrTemplateNotFound.Error()
	}
	return fmt.Sprintf("%s: %s", ErrTemplateNotFound, e.ID)
}

func (e *TemplateNotFoundError) Is(target error) bool { return target == ErrTemplateNotFound }

type Template struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Text        string `json:"text" yaml:"text"`
}

func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	ret := *t
	return &ret
}

type Provider interface {
	GetTemplate(ctx context.Context, id string) (*Template, bool, error)
	ListTemplates(ctx context.Context) ([]*Template, error)
}

// Lookup returns the template id, or a *TemplateNotFoundError.
func Lookup(ctx context.Context, p Provider, id string) (*Template, error) {
	if p == nil {
		return nil, &TemplateNotFoundError{ID: id}
	}
	t, ok, err := p.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok || t == nil {
		return nil, &TemplateNotFoundError{ID: id}
	}
	return t, nil
}

type MemoryProvider struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

var _ Provider = (*MemoryProvider)(nil)

func NewMemoryProvider(templates ...*Template) *MemoryProvider {
	ret := &MemoryProvider{templates: map[string]*Template{}}
	for _, t := range templates {
		_ = ret.Put(t)
	}
	return ret
}

// Put adds or replaces a template. The id is required.
func (m *MemoryProvider) Put(t *Template) error {
	if t == nil {
		return errors.New("template is nil")
	}
	id := strings.TrimSpace(t.ID)
	if id == "" {
		return errors.New("template id is empty")
	}
	c := t.Clone()
	c.ID = id
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[id] = c
	return nil
}

func (m *MemoryProvider) GetTemplate(_ context.Context, id string) (*Template, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[strings.TrimSpace(id)]
	if !ok {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}

func (m *MemoryProvider) ListTemplates(_ context.Context) ([]*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]*Template, 0, len(m.templates))
	for _, t := range m.templates {
		ret = append(ret, t.Clone())
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret, nil
}
