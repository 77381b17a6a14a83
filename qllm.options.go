package qllm

import (
	"go.uber.org/zap"
)

// Option is a functional option for configuring the Engine.
type Option func(*engineConfig)

// engineConfig holds the internal configuration for an Engine.
type engineConfig struct {
	logger          *zap.Logger
	loader          ContentLoader
	store           TemplateStore
	maxIncludeDepth int
	extractOpts     ExtractOptions
	loaderConfig    ResourceLoaderConfig
}

// defaultEngineConfig returns the default engine configuration.
func defaultEngineConfig() *engineConfig {
	return &engineConfig{
		maxIncludeDepth: DefaultMaxIncludeDepth,
		extractOpts:     DefaultExtractOptions(),
		loaderConfig:    DefaultResourceLoaderConfig(),
	}
}

// WithLogger sets the logger for the engine.
// Default: nil (no logging)
func WithLogger(logger *zap.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithLoader sets a custom content loader for inclusions and file-backed
// variables. Default: a ResourceLoader with default configuration.
func WithLoader(loader ContentLoader) Option {
	return func(c *engineConfig) {
		c.loader = loader
	}
}

// WithLoaderConfig configures the default ResourceLoader. Ignored when a
// custom loader is set via WithLoader.
func WithLoaderConfig(config ResourceLoaderConfig) Option {
	return func(c *engineConfig) {
		c.loaderConfig = config
	}
}

// WithStore sets the template store backing ExecuteNamed and the template
// registry methods. Default: an in-memory store.
func WithStore(store TemplateStore) Option {
	return func(c *engineConfig) {
		c.store = store
	}
}

// WithMaxIncludeDepth sets the maximum inclusion nesting depth.
// Default: 10
func WithMaxIncludeDepth(depth int) Option {
	return func(c *engineConfig) {
		if depth > 0 {
			c.maxIncludeDepth = depth
		}
	}
}

// WithExtractOptions sets the variable extraction options used when the
// engine builds template definitions.
// Default: all extension forms enabled.
func WithExtractOptions(opts ExtractOptions) Option {
	return func(c *engineConfig) {
		c.extractOpts = opts
	}
}
