package qllm

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory TemplateStore. Useful for testing and for
// engines that register templates programmatically. Safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]*TemplateDefinition
	closed    bool
}

// MemoryStoreDriver creates MemoryStore instances.
type MemoryStoreDriver struct{}

func init() {
	RegisterStoreDriver(StoreDriverNameMemory, &MemoryStoreDriver{})
}

// Open creates a new MemoryStore. The connection string is ignored.
func (d *MemoryStoreDriver) Open(_ string) (TemplateStore, error) {
	return NewMemoryStore(), nil
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[string]*TemplateDefinition),
	}
}

// Get retrieves a template by name.
func (s *MemoryStore) Get(ctx context.Context, name string) (*TemplateDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStoreClosedError()
	}

	tmpl, ok := s.templates[name]
	if !ok {
		return nil, NewTemplateNotFoundError(name)
	}
	return tmpl.Clone(), nil
}

// Save stores a template, replacing any existing one of the same name.
func (s *MemoryStore) Save(ctx context.Context, tmpl *TemplateDefinition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tmpl == nil || tmpl.Name == "" {
		return NewDefinitionError(ErrMsgDefinitionNameEmpty, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStoreClosedError()
	}

	s.templates[tmpl.Name] = tmpl.Clone()
	return nil
}

// Delete removes a template by name.
func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStoreClosedError()
	}

	if _, ok := s.templates[name]; !ok {
		return NewTemplateNotFoundError(name)
	}
	delete(s.templates, name)
	return nil
}

// List returns all stored templates sorted by name.
func (s *MemoryStore) List(ctx context.Context) ([]*TemplateDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStoreClosedError()
	}

	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]*TemplateDefinition, 0, len(names))
	for _, name := range names {
		result = append(result, s.templates[name].Clone())
	}
	return result, nil
}

// Exists checks if a template with the given name exists.
func (s *MemoryStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, NewStoreClosedError()
	}

	_, ok := s.templates[name]
	return ok, nil
}

// Names returns all stored template names in sorted order.
func (s *MemoryStore) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStoreClosedError()
	}

	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close marks the store closed and releases its contents.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.templates = nil
	return nil
}
