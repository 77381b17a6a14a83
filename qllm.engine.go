package qllm

import (
	"context"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Engine is the main entry point for the qllm templating system. It ties
// together template construction, the execution pipeline, the content
// loader and an optional template store.
type Engine struct {
	config   *engineConfig
	logger   *zap.Logger
	loader   ContentLoader
	includes *IncludeResolver
	executor *Executor
	store    TemplateStore
}

// New creates a new Engine with the given options.
func New(opts ...Option) (*Engine, error) {
	config := defaultEngineConfig()
	for _, opt := range opts {
		opt(config)
	}

	logger := config.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	loader := config.loader
	if loader == nil {
		loader = NewResourceLoader(config.loaderConfig, logger)
	}

	includes := NewIncludeResolver(loader, logger, config.maxIncludeDepth)
	executor := NewExecutor(loader, includes, logger)

	store := config.store
	if store == nil {
		store = NewMemoryStore()
	}

	return &Engine{
		config:   config,
		logger:   logger,
		loader:   loader,
		includes: includes,
		executor: executor,
		store:    store,
	}, nil
}

// MustNew creates a new Engine and panics if there's an error.
func MustNew(opts ...Option) *Engine {
	engine, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return engine
}

// Subscribe registers a lifecycle event listener for all executions.
func (e *Engine) Subscribe(listener EventListener) {
	e.executor.Subscribe(listener)
}

// BuildTemplate validates a definition with the engine's extraction options.
func (e *Engine) BuildTemplate(def *TemplateDefinition) (*TemplateDefinition, error) {
	return NewTemplateDefinitionWithOptions(def, e.config.extractOpts)
}

// ParseTemplate parses a YAML or JSON template document with the engine's
// extraction options.
func (e *Engine) ParseTemplate(data []byte) (*TemplateDefinition, error) {
	if len(data) == 0 {
		return nil, NewDefinitionError(ErrMsgDefinitionParseFailed, nil)
	}

	var def TemplateDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, NewDefinitionError(ErrMsgDefinitionParseFailed, err)
	}
	return NewTemplateDefinitionWithOptions(&def, e.config.extractOpts)
}

// RegisterTemplate saves a template definition in the engine's store.
func (e *Engine) RegisterTemplate(ctx context.Context, def *TemplateDefinition) error {
	built, err := e.BuildTemplate(def)
	if err != nil {
		return err
	}
	return e.store.Save(ctx, built)
}

// GetTemplate retrieves a stored template by name.
func (e *Engine) GetTemplate(ctx context.Context, name string) (*TemplateDefinition, error) {
	return e.store.Get(ctx, name)
}

// Execute runs one template execution.
func (e *Engine) Execute(ctx context.Context, ec *ExecutionContext) (*ExecutionResult, error) {
	return e.executor.Execute(ctx, ec)
}

// ExecuteNamed loads a template from the store and executes it.
func (e *Engine) ExecuteNamed(ctx context.Context, name string, variables map[string]any, provider Provider) (*ExecutionResult, error) {
	tmpl, err := e.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	return e.executor.Execute(ctx, &ExecutionContext{
		Template:  tmpl,
		Variables: variables,
		Provider:  provider,
	})
}

// ResolveIncludes expands inclusion directives in a definition's content
// and stores the result in ResolvedContent on a copy of the definition.
func (e *Engine) ResolveIncludes(ctx context.Context, def *TemplateDefinition, basePath string) (*TemplateDefinition, error) {
	resolved, err := e.includes.Resolve(ctx, def.Content, basePath)
	if err != nil {
		return nil, err
	}

	clone := def.Clone()
	clone.ResolvedContent = resolved
	return clone, nil
}

// Close releases the engine's store resources.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}
