// =============================================================================
// Package quick — One-Line Engine Construction
// =============================================================================
// Provides a convenience entry point for assembling a RAG engine with minimal
// boilerplate. Delegates to engine.New internally.
//
// The package lives under quick/ (not root) so the root package can stay a
// thin re-export surface with the short import path.
//
// Usage:
//
//	import "github.com/BaSui01/ragflow/quick"
//
//	e, err := quick.New(quick.WithOpenAI("gpt-4o-mini"))
//	e, err := quick.New(quick.WithConfigFile("ragflow.yaml"))
//	e, err := quick.New(quick.WithProvider(p), quick.WithEmbedder(emb))
//
// =============================================================================
package quick

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/engine"
	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/store"
)

// Option configures the engine created by New.
type Option func(*options)

type options struct {
	cfg        *config.Config
	configPath string

	provider  llm.Provider
	embedder  llm.Embedder
	extractor llm.RelationExtractor
	web       llm.WebSearcher
	logger    *zap.Logger

	persist bool

	// OpenAI shortcut fields — used when provider is nil.
	useOpenAI bool
	model     string
	apiKey    string
	baseURL   string
}

// WithConfig sets a fully built configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = &cfg }
}

// WithConfigFile loads configuration from a YAML file, with RAGFLOW_*
// environment overrides applied on top.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithProvider sets a pre-built generation provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithEmbedder sets a pre-built embedder.
func WithEmbedder(e llm.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithExtractor sets a relation extractor for knowledge-graph retrieval.
func WithExtractor(x llm.RelationExtractor) Option {
	return func(o *options) { o.extractor = x }
}

// WithWebSearcher sets an optional web-search capability.
func WithWebSearcher(w llm.WebSearcher) Option {
	return func(o *options) { o.web = w }
}

// WithOpenAI binds both generation and embedding to OpenAI using the given
// completion model. API key is read from OPENAI_API_KEY unless overridden
// via WithAPIKey.
func WithOpenAI(model string) Option {
	return func(o *options) {
		o.useOpenAI = true
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// WithAPIKey overrides the API key for the WithOpenAI shortcut.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points the WithOpenAI shortcut at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithPersistence enables the sqlite document store at the configured path,
// so ingested documents survive restarts.
func WithPersistence() Option {
	return func(o *options) { o.persist = true }
}

// WithLogger sets a custom zap logger. Defaults to the configured log settings.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New assembles a RAG engine with minimal configuration.
func New(opts ...Option) (*engine.Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// Resolve configuration.
	var cfg config.Config
	switch {
	case o.cfg != nil:
		cfg = *o.cfg
	case o.configPath != "":
		loaded, err := config.NewLoader().
			WithConfigPath(o.configPath).
			WithValidator(config.Validate).
			Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = *loaded
	default:
		cfg = *config.DefaultConfig()
	}
	if o.model != "" {
		cfg.LLM.Model = o.model
	}

	logger := o.logger
	if logger == nil {
		logger = config.BuildLogger(cfg.Log)
	}

	// Resolve capabilities.
	provider := o.provider
	embedder := o.embedder
	if (provider == nil || embedder == nil) && o.useOpenAI {
		if o.apiKey == "" {
			return nil, fmt.Errorf("API key is required for openai: set OPENAI_API_KEY or use WithAPIKey")
		}
		client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:         o.apiKey,
			BaseURL:        o.baseURL,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		if provider == nil {
			provider = client
			if rps := cfg.LLM.RequestsPerSecond; rps > 0 {
				provider = llm.NewRateLimitedProvider(provider, rps, 1)
			}
		}
		if embedder == nil {
			embedder = client
			if rps := cfg.LLM.RequestsPerSecond; rps > 0 {
				embedder = llm.NewRateLimitedEmbedder(embedder, rps, 1)
			}
		}
	}
	if provider == nil {
		return nil, fmt.Errorf("generation provider is required: use WithProvider or WithOpenAI")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required: use WithEmbedder or WithOpenAI")
	}

	extractor := o.extractor
	if extractor == nil {
		extractor = llm.NewPromptRelationExtractor(provider, cfg.LLM.Model, logger)
	}

	var docStore *store.DocumentStore
	if o.persist {
		if cfg.Store.Path == "" {
			return nil, fmt.Errorf("persistence requested but store.path is empty")
		}
		st, err := store.Open(store.Config{DSN: cfg.Store.Path}, logger)
		if err != nil {
			return nil, fmt.Errorf("open document store: %w", err)
		}
		docStore = st
	}

	return engine.New(engine.Options{
		Config:    cfg,
		Provider:  provider,
		Embedder:  embedder,
		Extractor: extractor,
		Web:       o.web,
		Store:     docStore,
		Logger:    logger,
	})
}
