package config

import (
	"fmt"
	"time"
)

// DefaultConfig 返回 RagFlow 的默认配置。
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
		LLM: LLMConfig{
			Model:               "gpt-4o-mini",
			EmbeddingModel:      "text-embedding-3-small",
			Temperature:         0.2,
			MaxCompletionTokens: 1024,
			MaxRetries:          3,
			RequestsPerSecond:   5,
			Timeout:             60 * time.Second,
		},
		Ingest: IngestConfig{
			ChunkTokens:   512,
			OverlapTokens: 77, // ~15% of chunk_tokens
			MaxTextBytes:  50 * 1024 * 1024,
			SupportedMediaTypes: []string{
				"pdf", "txt", "docx", "image", "pptx", "xlsx",
			},
		},
		Retrieval: RetrievalConfig{
			DefaultStrategy:     "basic",
			EvidenceTokenBudget: 2048,
			MinScore:            0.1,
			Metric:              "cosine",
			VectorWeight:        0.5,
			GraphWeight:         0.5,
			MaxHops:             2,
			MaxGraphResults:     10,
			EnableWebSearch:     false,
		},
		Memory: MemoryConfig{
			Backend:       "memory",
			TokenBudget:   2048,
			IdleExpiry:    30 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  time.Hour,
		},
		Store: StoreConfig{
			Path: "ragflow.db",
		},
		Guardrails: GuardrailsConfig{
			MaxInputChars:       8000,
			MaxOutputChars:      32000,
			RequireCitations:    true,
			EnableRelevanceRule: true,
		},
	}
}

// Validate 校验配置的结构性约束。
func Validate(cfg *Config) error {
	if cfg.Ingest.ChunkTokens <= 0 {
		return fmt.Errorf("ingest.chunk_tokens must be positive, got %d", cfg.Ingest.ChunkTokens)
	}
	if cfg.Ingest.OverlapTokens < 0 || cfg.Ingest.OverlapTokens >= cfg.Ingest.ChunkTokens {
		return fmt.Errorf("ingest.overlap_tokens must satisfy 0 <= overlap < chunk_tokens, got %d", cfg.Ingest.OverlapTokens)
	}
	switch cfg.Retrieval.Metric {
	case "cosine", "dot":
	default:
		return fmt.Errorf("retrieval.metric must be cosine or dot, got %q", cfg.Retrieval.Metric)
	}
	switch cfg.Retrieval.DefaultStrategy {
	case "basic", "knowledge_graph", "hybrid":
	default:
		return fmt.Errorf("retrieval.default_strategy unknown: %q", cfg.Retrieval.DefaultStrategy)
	}
	if cfg.Retrieval.EvidenceTokenBudget <= 0 {
		return fmt.Errorf("retrieval.evidence_token_budget must be positive")
	}
	if cfg.Retrieval.MaxHops <= 0 {
		return fmt.Errorf("retrieval.max_hops must be positive")
	}
	if cfg.Memory.TokenBudget <= 0 {
		return fmt.Errorf("memory.token_budget must be positive")
	}
	switch cfg.Memory.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("memory.backend must be memory or redis, got %q", cfg.Memory.Backend)
	}
	return nil
}
