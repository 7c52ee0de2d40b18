// Package ragflow provides a top-level convenience entry point for assembling
// a RAG engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/ragflow"
//
//	e, err := ragflow.New(ragflow.WithOpenAI("gpt-4o-mini"))
//	e, err := ragflow.New(ragflow.WithConfigFile("ragflow.yaml"), ragflow.WithOpenAI("gpt-4o-mini"))
//	e, err := ragflow.New(ragflow.WithProvider(myProvider), ragflow.WithEmbedder(myEmbedder))
//
// This is a thin wrapper around [quick.New]; both produce identical results.
// Use this package when you prefer the shorter import path.
package ragflow

import (
	"github.com/BaSui01/ragflow/engine"
	"github.com/BaSui01/ragflow/quick"
)

// Option configures the engine created by [New].
type Option = quick.Option

// New assembles an [engine.Engine] with minimal configuration.
// At minimum, generation and embedding capabilities must be available,
// either via [WithOpenAI] or via [WithProvider] plus [WithEmbedder].
func New(opts ...Option) (*engine.Engine, error) {
	return quick.New(opts...)
}

// Re-export option shortcuts so callers never need to import quick/.

// WithConfig sets a fully built configuration.
var WithConfig = quick.WithConfig

// WithConfigFile loads configuration from a YAML file with env overrides.
var WithConfigFile = quick.WithConfigFile

// WithProvider sets a pre-built generation provider.
var WithProvider = quick.WithProvider

// WithEmbedder sets a pre-built embedder.
var WithEmbedder = quick.WithEmbedder

// WithExtractor sets a relation extractor for knowledge-graph retrieval.
var WithExtractor = quick.WithExtractor

// WithWebSearcher sets an optional web-search capability.
var WithWebSearcher = quick.WithWebSearcher

// WithOpenAI binds generation and embedding to OpenAI. API key from OPENAI_API_KEY env.
var WithOpenAI = quick.WithOpenAI

// WithAPIKey overrides the API key for the WithOpenAI shortcut.
var WithAPIKey = quick.WithAPIKey

// WithBaseURL points the WithOpenAI shortcut at a compatible endpoint.
var WithBaseURL = quick.WithBaseURL

// WithPersistence enables the sqlite document store.
var WithPersistence = quick.WithPersistence

// WithLogger sets a custom zap logger.
var WithLogger = quick.WithLogger
