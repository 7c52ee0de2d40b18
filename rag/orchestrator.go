package rag

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/llm/tokenizer"
	"github.com/BaSui01/ragflow/types"
)

// OrchestratorConfig 检索编排配置。
type OrchestratorConfig struct {
	// TokenBudget 证据 token 预算的默认值，可被单次调用覆盖。
	TokenBudget int `json:"token_budget"`
	// MinScore 向量检索相似度下限。
	MinScore float64 `json:"min_score"`
	// VectorWeight / GraphWeight 混合融合权重，默认等权。
	VectorWeight float64 `json:"vector_weight"`
	GraphWeight  float64 `json:"graph_weight"`
	// MaxHops 图遍历最大跳数。
	MaxHops int `json:"max_hops"`
	// MaxGraphResults 图遍历结果上限。
	MaxGraphResults int `json:"max_graph_results"`
	// EnableWebSearch 是否把网络搜索作为附加证据源。
	EnableWebSearch bool `json:"enable_web_search"`
}

// DefaultOrchestratorConfig 返回默认编排配置。
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		TokenBudget:     2048,
		MinScore:        0.1,
		VectorWeight:    0.5,
		GraphWeight:     0.5,
		MaxHops:         2,
		MaxGraphResults: 10,
	}
}

// RetrievalResult 是一次检索的产出。
// Strategy 为实际使用的策略；降级时与 Requested 不同并带原因。
type RetrievalResult struct {
	Items          []types.EvidenceItem `json:"items"`
	Requested      types.Strategy       `json:"requested"`
	Strategy       types.Strategy       `json:"strategy"`
	Degraded       bool                 `json:"degraded"`
	DegradedReason string               `json:"degraded_reason,omitempty"`
	// ScopeWarning 表示 scope 内没有任何就绪文档。
	ScopeWarning bool `json:"scope_warning,omitempty"`
}

// Orchestrator 按策略编排向量索引与知识图谱，产出预算内的证据集。
//
// 策略是封闭枚举：basic 直达向量检索；knowledge_graph 走图遍历并在
// 图不可用时显式降级到 basic；hybrid 并发跑两路再加权融合，图路
// 失败时同样降级为纯 basic 结果。
type Orchestrator struct {
	index     *VectorIndex
	graph     *KnowledgeGraph
	embedder  llm.Embedder
	extractor llm.RelationExtractor
	web       llm.WebSearcher
	tokenizer tokenizer.Tokenizer
	config    OrchestratorConfig
	logger    *zap.Logger
}

// NewOrchestrator 创建检索编排器。web 可以为 nil（能力未配置）。
func NewOrchestrator(
	index *VectorIndex,
	graph *KnowledgeGraph,
	embedder llm.Embedder,
	extractor llm.RelationExtractor,
	web llm.WebSearcher,
	tok tokenizer.Tokenizer,
	config OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TokenBudget <= 0 {
		config.TokenBudget = DefaultOrchestratorConfig().TokenBudget
	}
	if config.VectorWeight <= 0 && config.GraphWeight <= 0 {
		config.VectorWeight = 0.5
		config.GraphWeight = 0.5
	}
	if config.MaxHops <= 0 {
		config.MaxHops = 2
	}
	if config.MaxGraphResults <= 0 {
		config.MaxGraphResults = 10
	}
	return &Orchestrator{
		index:     index,
		graph:     graph,
		embedder:  embedder,
		extractor: extractor,
		web:       web,
		tokenizer: tok,
		config:    config,
		logger:    logger,
	}
}

// RetrieveOption 单次检索的可选覆盖。
type RetrieveOption func(*retrieveOptions)

type retrieveOptions struct {
	webSearch *bool
}

// WithWebSearch 覆盖本次检索的网络搜索开关（会话级状态下发）。
func WithWebSearch(enabled bool) RetrieveOption {
	return func(o *retrieveOptions) { o.webSearch = &enabled }
}

// Retrieve 为一次查询产出排序、预算受限的证据集。
// 空查询返回空证据集；scope 内没有就绪文档时返回空集并置警告标志。
func (o *Orchestrator) Retrieve(ctx context.Context, query string, strategy types.Strategy, scope []string, tokenBudget int, opts ...RetrieveOption) (*RetrievalResult, error) {
	var ro retrieveOptions
	for _, opt := range opts {
		opt(&ro)
	}
	if !strategy.Valid() {
		strategy = types.StrategyBasic
	}
	if tokenBudget <= 0 {
		tokenBudget = o.config.TokenBudget
	}

	result := &RetrievalResult{Requested: strategy, Strategy: strategy}

	if strings.TrimSpace(query) == "" {
		return result, nil
	}
	if len(scope) > 0 && !o.anyDocumentReady(scope) {
		result.ScopeWarning = true
		o.logger.Warn("retrieval scope has no ready documents", zap.Strings("scope", scope))
		return result, nil
	}

	switch strategy {
	case types.StrategyBasic:
		items, err := o.retrieveBasic(ctx, query, scope, tokenBudget)
		if err != nil {
			return nil, err
		}
		result.Items = items

	case types.StrategyKnowledgeGraph:
		items, err := o.retrieveGraph(ctx, query, scope, tokenBudget)
		if err != nil {
			if !recoverableGraphError(err) {
				return nil, err
			}
			// 图不可用：显式降级到 basic，结果打上降级标志。
			o.logger.Info("knowledge_graph degraded to basic",
				zap.String("reason", string(types.CodeOf(err))))
			basic, berr := o.retrieveBasic(ctx, query, scope, tokenBudget)
			if berr != nil {
				return nil, berr
			}
			result.Items = basic
			result.Strategy = types.StrategyBasic
			result.Degraded = true
			result.DegradedReason = string(types.CodeOf(err))
			return result, nil
		}
		result.Items = items

	case types.StrategyHybrid:
		webEnabled := o.config.EnableWebSearch
		if ro.webSearch != nil {
			webEnabled = *ro.webSearch
		}
		return o.retrieveHybrid(ctx, query, scope, tokenBudget, webEnabled, result)
	}

	return result, nil
}

// anyDocumentReady 报告 scope 中是否有至少一个已索引文档。
func (o *Orchestrator) anyDocumentReady(scope []string) bool {
	for _, id := range scope {
		if o.index.HasDocument(id) {
			return true
		}
	}
	return false
}

// retrieveBasic 向量检索：k 逐步倍增直到候选吃满预算或索引耗尽，
// 预算裁剪贪心、不回溯。
func (o *Orchestrator) retrieveBasic(ctx context.Context, query string, scope []string, tokenBudget int) ([]types.EvidenceItem, error) {
	queryVector, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, types.NewError(types.ErrCodeEmbeddingUnavailable, "embed query", err)
	}

	const initialK = 8
	k := initialK
	for {
		candidates := o.index.Search(queryVector, scope, k, o.config.MinScore)
		kept, exhaustedBudget := truncateToBudget(candidates, tokenBudget)

		// 预算已经给出裁剪点，或者索引已经没有更多候选。
		if exhaustedBudget || len(candidates) < k {
			return kept, nil
		}
		k *= 2
	}
}

// retrieveGraph 用与摄取相同的抽取能力从查询文本解析实体作为种子。
func (o *Orchestrator) retrieveGraph(ctx context.Context, query string, scope []string, tokenBudget int) ([]types.EvidenceItem, error) {
	if o.extractor == nil {
		return nil, types.NewError(types.ErrCodeExtractionUnavailable, "no relation extractor configured", nil)
	}
	triples, err := o.extractor.ExtractRelations(ctx, query)
	if err != nil {
		return nil, types.NewError(types.ErrCodeExtractionUnavailable, "extract query entities", err)
	}

	seeds := make([]string, 0, len(triples)*2)
	for _, t := range triples {
		seeds = append(seeds, t.Subject, t.Object)
	}
	if len(seeds) == 0 {
		// 抽取没有产出实体时退化为查询词本身做名字匹配。
		seeds = strings.Fields(query)
	}

	items, err := o.graph.Query(seeds, scope, o.config.MaxHops, o.config.MaxGraphResults)
	if err != nil {
		return nil, err
	}

	for i := range items {
		items[i].TokenCount = tokenizer.MustCount(o.tokenizer, items[i].Text)
	}
	kept, _ := truncateToBudget(items, tokenBudget)
	return kept, nil
}

// retrieveHybrid 并发执行两路检索后融合。
// 图路失败时整体降级为纯 basic 结果（与 knowledge_graph 同一契约）。
func (o *Orchestrator) retrieveHybrid(ctx context.Context, query string, scope []string, tokenBudget int, webEnabled bool, result *RetrievalResult) (*RetrievalResult, error) {
	var (
		vectorItems []types.EvidenceItem
		graphItems  []types.EvidenceItem
		graphErr    error
		webItems    []types.EvidenceItem
	)

	// 两路各自拿到整份预算，融合后统一裁剪。
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := o.retrieveBasic(gctx, query, scope, tokenBudget)
		if err != nil {
			return err
		}
		vectorItems = items
		return nil
	})
	g.Go(func() error {
		items, err := o.retrieveGraph(gctx, query, scope, tokenBudget)
		if err != nil {
			if recoverableGraphError(err) {
				graphErr = err
				return nil
			}
			return err
		}
		graphItems = items
		return nil
	})
	if webEnabled && o.web != nil {
		g.Go(func() error {
			results, err := o.web.SearchWeb(gctx, query)
			if err != nil {
				// 网络搜索是可选证据源，失败不降级也不报错。
				o.logger.Warn("web search failed", zap.Error(err))
				return nil
			}
			for _, r := range results {
				text := r.Title + ": " + r.Snippet
				webItems = append(webItems, types.EvidenceItem{
					Text:       text,
					URL:        r.URL,
					Source:     types.EvidenceWeb,
					TokenCount: tokenizer.MustCount(o.tokenizer, text),
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if graphErr != nil {
		o.logger.Info("hybrid degraded to basic",
			zap.String("reason", string(types.CodeOf(graphErr))))
		kept, _ := truncateToBudget(vectorItems, tokenBudget)
		result.Items = kept
		result.Strategy = types.StrategyBasic
		result.Degraded = true
		result.DegradedReason = string(types.CodeOf(graphErr))
		return result, nil
	}

	fused := o.fuse(vectorItems, graphItems)
	fused = append(fused, webItems...)
	kept, _ := truncateToBudget(fused, tokenBudget)
	result.Items = kept
	return result, nil
}

// fuse 按 provenance chunk 去重后加权合并两路得分并重排。
// 只出现在一路的项按缺失侧得分为零处理。
func (o *Orchestrator) fuse(vectorItems, graphItems []types.EvidenceItem) []types.EvidenceItem {
	type fusion struct {
		item        types.EvidenceItem
		vectorScore float64
		graphScore  float64
	}

	byKey := make(map[string]*fusion)
	order := make([]string, 0, len(vectorItems)+len(graphItems))

	for _, it := range vectorItems {
		key := it.Key()
		if _, ok := byKey[key]; !ok {
			byKey[key] = &fusion{item: it}
			order = append(order, key)
		}
		byKey[key].vectorScore = it.Score
	}
	for _, it := range graphItems {
		key := it.Key()
		f, ok := byKey[key]
		if !ok {
			byKey[key] = &fusion{item: it}
			order = append(order, key)
			f = byKey[key]
		}
		if it.Score > f.graphScore {
			f.graphScore = it.Score
		}
	}

	out := make([]types.EvidenceItem, 0, len(order))
	for _, key := range order {
		f := byKey[key]
		f.item.Score = o.config.VectorWeight*f.vectorScore + o.config.GraphWeight*f.graphScore
		out = append(out, f.item)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// truncateToBudget 贪心裁剪：按序累加 token，遇到第一个会超出预算的
// 项即丢弃并停止，不回溯。返回是否因预算停止。
func truncateToBudget(items []types.EvidenceItem, budget int) ([]types.EvidenceItem, bool) {
	if budget <= 0 {
		return nil, true
	}
	total := 0
	for i, it := range items {
		tc := it.TokenCount
		if tc <= 0 {
			tc = 1
		}
		if total+tc > budget {
			return items[:i], true
		}
		total += tc
	}
	return items, false
}

// recoverableGraphError 报告错误是否允许降级到 basic。
func recoverableGraphError(err error) bool {
	switch types.CodeOf(err) {
	case types.ErrCodeGraphUnavailable, types.ErrCodeExtractionUnavailable:
		return true
	}
	return false
}
