package llm

import "context"

// GenerateRequest 是一次补全调用的输入。
type GenerateRequest struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// GenerateResponse 是一次补全调用的输出。
type GenerateResponse struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// Provider 是唯一的 LLM 补全能力。
// 对固定模型标识，实现不保证确定性；失败语义由调用方映射为
// types.ErrCodeGenerationUnavailable 并做有界重试。
type Provider interface {
	// Name 返回供应商标识。
	Name() string
	// Generate 根据提示词生成补全文本。
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Embedder 将文本映射为固定维度向量。
// 对固定模型标识，结果是确定的；失败语义映射为
// types.ErrCodeEmbeddingUnavailable。
type Embedder interface {
	// Model 返回嵌入模型标识，用于 EmbeddingRecord 绑定。
	Model() string
	// Embed 返回单条文本的向量。
	Embed(ctx context.Context, text string) ([]float64, error)
	// EmbedBatch 返回一批文本的向量，顺序与输入一致。
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// RelationTriple 是关系抽取能力返回的一条 (实体, 关系, 实体) 三元组。
type RelationTriple struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

// RelationExtractor 从文本中抽取关系三元组。
// 允许返回空序列；失败语义映射为 types.ErrCodeExtractionUnavailable。
// 上游 LLM 的非确定性被隔离在此边界之内，图构建的合并、去重与发布
// 逻辑对固定三元组输入保持确定。
type RelationExtractor interface {
	ExtractRelations(ctx context.Context, text string) ([]RelationTriple, error)
}

// WebResult 是网络搜索能力返回的一条结果。
type WebResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// WebSearcher 是可选的网络搜索能力；未配置不是错误。
type WebSearcher interface {
	SearchWeb(ctx context.Context, query string) ([]WebResult, error)
}
