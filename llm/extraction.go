package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// extractionPrompt 要求模型只输出 JSON 数组，便于确定性解析。
const extractionPrompt = `Extract entity relations from the text below.
Respond with a JSON array only, no prose. Each element:
{"subject": "...", "predicate": "...", "object": "...", "confidence": 0.0-1.0}
Use short canonical entity names and snake_case predicates.
Return [] if the text contains no clear relations.

Text:
%s`

// PromptRelationExtractor 通过补全能力抽取关系三元组。
// 模型输出经过严格的 JSON 解析与清洗：主客体为空、置信度越界的
// 三元组直接丢弃，保证下游图构建输入干净。
type PromptRelationExtractor struct {
	provider Provider
	model    string
	maxChars int
	logger   *zap.Logger
}

// NewPromptRelationExtractor 创建基于 LLM 的关系抽取器。
func NewPromptRelationExtractor(provider Provider, model string, logger *zap.Logger) *PromptRelationExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromptRelationExtractor{
		provider: provider,
		model:    model,
		maxChars: 6000,
		logger:   logger,
	}
}

// ExtractRelations 实现 RelationExtractor。
func (e *PromptRelationExtractor) ExtractRelations(ctx context.Context, text string) ([]RelationTriple, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if len(text) > e.maxChars {
		text = text[:e.maxChars]
	}

	resp, err := e.provider.Generate(ctx, GenerateRequest{
		Prompt:      fmt.Sprintf(extractionPrompt, text),
		Model:       e.model,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("relation extraction: %w", err)
	}

	triples, err := ParseRelationTriples(resp.Text)
	if err != nil {
		// 模型没有遵守输出契约；按空结果处理而不是让图构建失败。
		e.logger.Warn("unparseable extraction output",
			zap.Error(err),
			zap.Int("output_len", len(resp.Text)))
		return nil, nil
	}
	return triples, nil
}

// ParseRelationTriples 从模型输出中解析三元组数组。
// 容忍 JSON 数组前后的噪声文本（如 markdown 代码块围栏）。
func ParseRelationTriples(raw string) ([]RelationTriple, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in output")
	}

	var parsed []RelationTriple
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("decode triples: %w", err)
	}

	out := parsed[:0]
	for _, t := range parsed {
		t.Subject = strings.TrimSpace(t.Subject)
		t.Predicate = strings.TrimSpace(t.Predicate)
		t.Object = strings.TrimSpace(t.Object)
		if t.Subject == "" || t.Object == "" {
			continue
		}
		if t.Predicate == "" {
			t.Predicate = "related_to"
		}
		if t.Confidence <= 0 || t.Confidence > 1 {
			t.Confidence = 0.5
		}
		out = append(out, t)
	}
	return out, nil
}
