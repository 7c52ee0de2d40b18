package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/compose"
	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/guardrails"
	"github.com/BaSui01/ragflow/internal/metrics"
	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/llm/retry"
	"github.com/BaSui01/ragflow/llm/tokenizer"
	"github.com/BaSui01/ragflow/memory"
	"github.com/BaSui01/ragflow/rag"
	"github.com/BaSui01/ragflow/store"
	"github.com/BaSui01/ragflow/types"
)

// Options 引擎装配参数。Provider 与 Embedder 必填，其余为可选
// 能力或后端：Extractor 缺失时 knowledge_graph/hybrid 永远降级，
// Web 缺失时网络证据源静默关闭，Store 缺失时不做持久化。
type Options struct {
	Config config.Config

	Provider  llm.Provider
	Embedder  llm.Embedder
	Extractor llm.RelationExtractor
	Web       llm.WebSearcher

	// Tokenizer 缺省时按配置的补全模型选择，失败退回估算器。
	Tokenizer tokenizer.Tokenizer

	// MemoryStore 缺省时按配置的 backend 构建。
	MemoryStore memory.Store

	Store   *store.DocumentStore
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// Engine RAG 编排引擎。
type Engine struct {
	cfg config.Config

	chunker      *rag.Chunker
	index        *rag.VectorIndex
	graph        *rag.KnowledgeGraph
	orchestrator *rag.Orchestrator

	memory     *memory.Manager
	guardrails *guardrails.Engine
	composer   *compose.Composer

	provider  llm.Provider
	embedder  llm.Embedder
	extractor llm.RelationExtractor
	retryer   retry.Retryer
	tokenizer tokenizer.Tokenizer

	docStore *store.DocumentStore
	metrics  *metrics.Collector
	logger   *zap.Logger

	sessionLocks *keyedMutex

	// chunkMu 保护 ready 文档的分块缓存，图谱重建的输入。
	chunkMu sync.RWMutex
	chunks  map[string][]types.Chunk

	rebuildMu sync.Mutex
}

// New 装配引擎。
func New(opts Options) (*Engine, error) {
	if opts.Provider == nil {
		return nil, errors.New("engine: generation provider is required")
	}
	if opts.Embedder == nil {
		return nil, errors.New("engine: embedder is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config

	tok := opts.Tokenizer
	if tok == nil {
		tok = tokenizer.GetTokenizerOrEstimator(cfg.LLM.Model)
	}

	memStore := opts.MemoryStore
	if memStore == nil {
		switch cfg.Memory.Backend {
		case "redis":
			rs, err := memory.NewRedisStore(memory.RedisStoreConfig{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				TTL:      cfg.Redis.TTL,
			}, logger)
			if err != nil {
				return nil, fmt.Errorf("engine: redis memory backend: %w", err)
			}
			memStore = rs
		default:
			memStore = memory.NewInMemoryStore(logger)
		}
	}

	index := rag.NewVectorIndex(rag.Metric(cfg.Retrieval.Metric), logger)
	graph := rag.NewKnowledgeGraph(logger)

	var relevanceTopics []string
	if cfg.Guardrails.EnableRelevanceRule {
		relevanceTopics = cfg.Guardrails.RelevanceTopics
	}

	e := &Engine{
		cfg:     cfg,
		chunker: rag.NewChunker(rag.ChunkingConfig{
			MaxTokens:     cfg.Ingest.ChunkTokens,
			OverlapTokens: cfg.Ingest.OverlapTokens,
		}, tok, logger),
		index: index,
		graph: graph,
		orchestrator: rag.NewOrchestrator(index, graph, opts.Embedder, opts.Extractor, opts.Web, tok,
			rag.OrchestratorConfig{
				TokenBudget:     cfg.Retrieval.EvidenceTokenBudget,
				MinScore:        cfg.Retrieval.MinScore,
				VectorWeight:    cfg.Retrieval.VectorWeight,
				GraphWeight:     cfg.Retrieval.GraphWeight,
				MaxHops:         cfg.Retrieval.MaxHops,
				MaxGraphResults: cfg.Retrieval.MaxGraphResults,
				EnableWebSearch: cfg.Retrieval.EnableWebSearch,
			}, logger),
		memory: memory.NewManager(memStore, tok, memory.Config{
			TokenBudget:      cfg.Memory.TokenBudget,
			IdleExpiry:       cfg.Memory.IdleExpiry,
			SweepInterval:    cfg.Memory.SweepInterval,
			DefaultStrategy:  types.Strategy(cfg.Retrieval.DefaultStrategy),
			DefaultWebSearch: cfg.Retrieval.EnableWebSearch,
		}, logger),
		guardrails: guardrails.NewDefaultEngine(guardrails.Config{
			MaxInputChars:    cfg.Guardrails.MaxInputChars,
			MaxOutputChars:   cfg.Guardrails.MaxOutputChars,
			RequireCitations: cfg.Guardrails.RequireCitations,
			BlockedKeywords:  cfg.Guardrails.BlockedKeywords,
			RelevanceTopics:  relevanceTopics,
		}, logger),
		composer:     compose.NewComposer(logger),
		provider:     opts.Provider,
		embedder:     opts.Embedder,
		extractor:    opts.Extractor,
		tokenizer:    tok,
		docStore:     opts.Store,
		metrics:      opts.Metrics,
		logger:       logger.With(zap.String("component", "engine")),
		sessionLocks: newKeyedMutex(),
		chunks:       make(map[string][]types.Chunk),
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.LLM.MaxRetries
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		e.logger.Warn("retrying generation",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if e.metrics != nil {
			e.metrics.RecordCapabilityRetry("generate")
		}
	}
	e.retryer = retry.NewBackoffRetryer(policy, logger)

	if e.docStore != nil {
		if err := e.restoreFromStore(context.Background()); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// restoreFromStore 进程启动时从持久层重建索引与分块缓存。
func (e *Engine) restoreFromStore(ctx context.Context) error {
	docs, err := e.docStore.ListReady(ctx)
	if err != nil {
		return fmt.Errorf("engine: restore: %w", err)
	}
	restored := 0
	for _, doc := range docs {
		chunks, err := e.docStore.LoadChunks(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("engine: restore %s: %w", doc.ID, err)
		}
		embeddings, err := e.docStore.LoadEmbeddings(ctx, doc.ID, e.embedder.Model())
		if err != nil {
			return fmt.Errorf("engine: restore %s: %w", doc.ID, err)
		}
		vectors := make(map[string][]float64, len(embeddings))
		for _, emb := range embeddings {
			vectors[emb.ChunkID] = emb.Vector
		}
		for _, chunk := range chunks {
			vec, ok := vectors[chunk.ID]
			if !ok {
				// 嵌入模型换了：该文档需要重新摄取。
				e.logger.Warn("chunk has no embedding under the active model, skipping document",
					zap.String("document_id", doc.ID),
					zap.String("model", e.embedder.Model()))
				e.index.Remove(doc.ID)
				break
			}
			if err := e.index.Upsert(chunk, vec); err != nil {
				return fmt.Errorf("engine: restore %s: %w", doc.ID, err)
			}
		}
		if e.index.HasDocument(doc.ID) {
			e.chunkMu.Lock()
			e.chunks[doc.ID] = chunks
			e.chunkMu.Unlock()
			restored++
		}
	}
	if restored > 0 {
		e.logger.Info("restored documents from store", zap.Int("documents", restored))
		e.scheduleGraphRebuild()
	}
	return nil
}

// Session 返回（必要时创建）会话状态。
func (e *Engine) Session(ctx context.Context, sessionID string) (*memory.Session, error) {
	return e.memory.Session(ctx, sessionID)
}

// SessionUpdate 单轮可覆盖的会话配置；nil 字段表示不变。
type SessionUpdate struct {
	Strategy  *types.Strategy
	Scope     []string
	WebSearch *bool
}

// ConfigureSession 更新会话的检索策略、文档范围与网络搜索开关。
func (e *Engine) ConfigureSession(ctx context.Context, sessionID string, update SessionUpdate) (*memory.Session, error) {
	unlock := e.sessionLocks.Lock(sessionID)
	defer unlock()

	if _, err := e.memory.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	if update.Strategy != nil && !update.Strategy.Valid() {
		return nil, fmt.Errorf("engine: invalid strategy %q", *update.Strategy)
	}
	e.memory.Update(sessionID, func(s *memory.Session) {
		if update.Strategy != nil {
			s.Strategy = *update.Strategy
		}
		if update.Scope != nil {
			s.Scope = append([]string(nil), update.Scope...)
		}
		if update.WebSearch != nil {
			s.WebSearch = *update.WebSearch
		}
	})
	return e.memory.Session(ctx, sessionID)
}

// ResetSession 清空会话历史与状态。
func (e *Engine) ResetSession(ctx context.Context, sessionID string) error {
	unlock := e.sessionLocks.Lock(sessionID)
	defer unlock()
	if err := e.memory.Reset(ctx, sessionID); err != nil {
		return err
	}
	return nil
}

// GraphSnapshot 返回当前图谱快照；尚未构建时为 nil。
func (e *Engine) GraphSnapshot() *rag.Snapshot { return e.graph.Current() }

// Documents 返回分块缓存中就绪文档的 ID 列表。
func (e *Engine) Documents() []string {
	e.chunkMu.RLock()
	defer e.chunkMu.RUnlock()
	ids := make([]string, 0, len(e.chunks))
	for id := range e.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StartSweeper 启动记忆过期清扫。
func (e *Engine) StartSweeper(ctx context.Context) { e.memory.StartSweeper(ctx) }

// Close 释放记忆与持久层资源。
func (e *Engine) Close() error {
	var errs []error
	if err := e.memory.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.docStore != nil {
		if err := e.docStore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
