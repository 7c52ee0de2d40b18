package rag

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/llm/tokenizer"
	"github.com/BaSui01/ragflow/types"
)

// ChunkingConfig 分块配置。
type ChunkingConfig struct {
	// MaxTokens 单块 token 上限。
	MaxTokens int `json:"max_tokens"`
	// OverlapTokens 相邻块共享的 token 数，须满足 0 <= overlap < max。
	OverlapTokens int `json:"overlap_tokens"`
}

// DefaultChunkingConfig 默认分块配置，重叠约为块大小的 15%。
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		MaxTokens:     512,
		OverlapTokens: 77,
	}
}

// Chunker 将文档文本切分为带重叠的定长块。
// 对固定的 (MaxTokens, OverlapTokens) 与相同输入，输出完全确定。
type Chunker struct {
	config    ChunkingConfig
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewChunker 创建分块器。配置越界时回退到默认值。
func NewChunker(config ChunkingConfig, tok tokenizer.Tokenizer, logger *zap.Logger) *Chunker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultChunkingConfig().MaxTokens
	}
	if config.OverlapTokens < 0 || config.OverlapTokens >= config.MaxTokens {
		config.OverlapTokens = config.MaxTokens * 15 / 100
	}
	return &Chunker{config: config, tokenizer: tok, logger: logger}
}

// Chunk 切分一个文档，位置索引保持原文顺序。
// 空白或非法 UTF-8 输入返回 ErrCodeIngest——只针对该文档，
// 不影响批量摄取中的其他文档。
func (c *Chunker) Chunk(doc types.Document) ([]types.Chunk, error) {
	text := doc.Text()
	if strings.TrimSpace(text) == "" {
		return nil, types.NewError(types.ErrCodeIngest, "document has no text: "+doc.ID, nil)
	}
	if !utf8.ValidString(text) {
		return nil, types.NewError(types.ErrCodeIngest, "document text is not valid UTF-8: "+doc.ID, nil)
	}

	pieces := c.splitTokenWindows(text)
	if len(pieces) == 0 {
		return nil, types.NewError(types.ErrCodeIngest, "chunking produced no chunks: "+doc.ID, nil)
	}

	chunks := make([]types.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, types.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Text:       piece,
			TokenCount: tokenizer.MustCount(c.tokenizer, piece),
			Position:   i,
		})
	}

	c.logger.Debug("document chunked",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(chunks)),
		zap.Int("max_tokens", c.config.MaxTokens),
		zap.Int("overlap", c.config.OverlapTokens))

	return chunks, nil
}

// splitTokenWindows 优先在 token 序列上开窗；分词器不支持往返
// 编码时退化为按词开窗，token 数由计数器给出。
func (c *Chunker) splitTokenWindows(text string) []string {
	if c.tokenizer != nil {
		ids, err := c.tokenizer.Encode(text)
		if err == nil {
			if probe, derr := c.tokenizer.Decode(ids[:min(len(ids), 1)]); derr == nil && probe != "" {
				return c.windowsFromTokens(ids)
			}
		}
	}
	return c.windowsFromWords(text)
}

// windowsFromTokens 在 token ID 序列上滑动开窗。
func (c *Chunker) windowsFromTokens(ids []int) []string {
	step := c.config.MaxTokens - c.config.OverlapTokens
	var out []string
	for start := 0; start < len(ids); start += step {
		end := min(start+c.config.MaxTokens, len(ids))
		piece, err := c.tokenizer.Decode(ids[start:end])
		if err != nil {
			return c.windowsFromWords("")
		}
		piece = strings.TrimSpace(piece)
		if piece != "" {
			out = append(out, piece)
		}
		if end == len(ids) {
			break
		}
	}
	return out
}

// windowsFromWords 按空白切词后贪心填充到 token 上限，
// 重叠部分取窗口尾部若干词直到达到 OverlapTokens。
func (c *Chunker) windowsFromWords(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var out []string
	start := 0
	for start < len(words) {
		total := 0
		end := start
		for end < len(words) {
			wt := tokenizer.MustCount(c.tokenizer, words[end])
			if total+wt > c.config.MaxTokens && end > start {
				break
			}
			total += wt
			end++
		}

		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}

		// 回退若干词作为下一窗口的重叠前缀。
		overlap := 0
		back := end
		for back > start+1 && overlap < c.config.OverlapTokens {
			back--
			overlap += tokenizer.MustCount(c.tokenizer, words[back])
		}
		start = back
	}
	return out
}
