package qllm

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FilesystemStore is a TemplateStore backed by a directory of YAML/JSON
// template documents, one file per template. The file's base name (minus
// extension) is the lookup name. Safe for concurrent use.
type FilesystemStore struct {
	dir    string
	logger *zap.Logger

	mu        sync.RWMutex
	templates map[string]*TemplateDefinition
	closed    bool

	watcher   *fsnotify.Watcher
	watchDone chan struct{}
}

// FilesystemStoreDriver creates FilesystemStore instances.
type FilesystemStoreDriver struct{}

func init() {
	RegisterStoreDriver(StoreDriverNameFilesystem, &FilesystemStoreDriver{})
}

// Open creates a FilesystemStore rooted at the connection string path.
func (d *FilesystemStoreDriver) Open(connectionString string) (TemplateStore, error) {
	return NewFilesystemStore(connectionString, nil)
}

// NewFilesystemStore creates a store rooted at dir, creating the directory
// if needed and loading all existing template files.
func NewFilesystemStore(dir string, logger *zap.Logger) (*FilesystemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, NewStorageError(ErrMsgLoadFailed, dir, err)
	}

	s := &FilesystemStore{
		dir:       dir,
		logger:    logger,
		templates: make(map[string]*TemplateDefinition),
	}

	if err := s.loadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

// loadAll scans the directory and parses every recognized template file.
// Unparseable files are skipped with a warning so one bad file does not
// take the whole store down.
func (s *FilesystemStore) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return NewStorageError(ErrMsgLoadFailed, s.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isTemplateFile(entry.Name()) {
			continue
		}
		s.loadFile(filepath.Join(s.dir, entry.Name()))
	}
	return nil
}

// loadFile parses one template file into the index. A no-op once the
// store is closed; the watcher goroutine may still be draining buffered
// events when Close runs.
func (s *FilesystemStore) loadFile(path string) {
	tmpl, err := ParseTemplateDefinitionFile(path)
	if err != nil {
		s.logger.Warn(LogMsgTemplateWatchError,
			zap.String(LogFieldPath, path),
			zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.templates[templateNameFromPath(path)] = tmpl
}

// Watch starts hot-reloading template files on filesystem changes.
// Stops when the store is closed.
func (s *FilesystemStore) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return NewStorageError(ErrMsgLoadFailed, s.dir, err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return NewStorageError(ErrMsgLoadFailed, s.dir, err)
	}

	s.mu.Lock()
	s.watcher = watcher
	s.watchDone = make(chan struct{})
	s.mu.Unlock()

	go s.watchLoop(watcher)
	return nil
}

// watchLoop applies filesystem events to the in-memory index.
func (s *FilesystemStore) watchLoop(watcher *fsnotify.Watcher) {
	defer close(s.watchDone)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isTemplateFile(filepath.Base(event.Name)) {
				continue
			}

			switch {
			case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
				s.mu.Lock()
				delete(s.templates, templateNameFromPath(event.Name))
				s.mu.Unlock()
			case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
				s.loadFile(event.Name)
				s.logger.Debug(LogMsgTemplateReloaded,
					zap.String(LogFieldPath, event.Name))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn(LogMsgTemplateWatchError, zap.Error(err))
		}
	}
}

// Get retrieves a template by name.
func (s *FilesystemStore) Get(ctx context.Context, name string) (*TemplateDefinition, error) {
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

// Save writes the template document to disk and updates the index. The
// file name is the template name with a .yaml extension.
func (s *FilesystemStore) Save(ctx context.Context, tmpl *TemplateDefinition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tmpl == nil || tmpl.Name == "" {
		return NewDefinitionError(ErrMsgDefinitionNameEmpty, nil)
	}
	if !isValidStoreFileName(tmpl.Name) {
		return NewStorageError(ErrMsgInvalidTemplateName, tmpl.Name, nil)
	}

	data, err := tmpl.Serialize()
	if err != nil {
		return NewStorageError(ErrMsgLoadFailed, tmpl.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStoreClosedError()
	}

	path := filepath.Join(s.dir, tmpl.Name+TemplateExtYAML)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return NewStorageError(ErrMsgLoadFailed, tmpl.Name, err)
	}

	s.templates[tmpl.Name] = tmpl.Clone()
	return nil
}

// Delete removes the template file and index entry.
func (s *FilesystemStore) Delete(ctx context.Context, name string) error {
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

	for _, ext := range []string{TemplateExtYAML, TemplateExtYML, TemplateExtJSON} {
		path := filepath.Join(s.dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return os.Remove(path)
		}
	}
	return nil
}

// List returns all stored templates sorted by name.
func (s *FilesystemStore) List(ctx context.Context) ([]*TemplateDefinition, error) {
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
func (s *FilesystemStore) Exists(ctx context.Context, name string) (bool, error) {
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
func (s *FilesystemStore) Names(ctx context.Context) ([]string, error) {
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

// Close stops watching and marks the store closed.
func (s *FilesystemStore) Close() error {
	s.mu.Lock()
	watcher := s.watcher
	done := s.watchDone
	s.watcher = nil
	s.closed = true
	s.templates = nil
	s.mu.Unlock()

	if watcher != nil {
		err := watcher.Close()
		<-done
		return err
	}
	return nil
}

// isTemplateFile reports whether a file name has a recognized extension.
func isTemplateFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case TemplateExtYAML, TemplateExtYML, TemplateExtJSON:
		return true
	default:
		return false
	}
}

// templateNameFromPath derives the lookup name from a file path.
func templateNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// isValidStoreFileName rejects names that would escape the store directory
// when used as a file name.
func isValidStoreFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
