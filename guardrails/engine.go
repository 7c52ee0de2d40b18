package guardrails

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// Direction 规则作用方向。
type Direction string

const (
	// DirectionInput 检查进入检索与生成前的用户输入。
	DirectionInput Direction = "input"
	// DirectionOutput 检查生成后、落入记忆前的助手输出。
	DirectionOutput Direction = "output"
)

// Decision 裁决动作。
type Decision string

const (
	DecisionAllow   Decision = "allow"
	DecisionBlock   Decision = "block"
	DecisionRewrite Decision = "rewrite"
)

// Input 是一次检查的完整上下文。
// 输出侧的规则（如引用存在性）需要知道本轮是否使用了证据。
type Input struct {
	Text      string
	Direction Direction
	// Evidence 本轮附加的证据；仅输出方向的规则关心。
	Evidence []types.EvidenceItem
}

// Verdict 裁决结果。
type Verdict struct {
	Decision Decision `json:"decision"`
	// RuleIDs 命中的规则 ID，按求值顺序排列。
	RuleIDs []string `json:"rule_ids,omitempty"`
	// Text 最终文本：无改写时为原文，有改写时为最后一次改写结果。
	Text string `json:"text"`
	// Reason block 时面向用户的拒绝原因。
	Reason string `json:"reason,omitempty"`
	// Warnings 不改变裁决的提示信息（如文档相关性提醒）。
	Warnings []string `json:"warnings,omitempty"`
}

// Blocked 报告裁决是否为 block。
func (v *Verdict) Blocked() bool { return v.Decision == DecisionBlock }

// Outcome 是单条规则的求值结果。
type Outcome struct {
	Decision Decision
	// Rewritten 仅 DecisionRewrite 时有效。
	Rewritten string
	Reason    string
	Warning   string
}

// Allow 表示规则未命中。
func Allow() Outcome { return Outcome{Decision: DecisionAllow} }

// Block 表示规则命中并拒绝。
func Block(reason string) Outcome {
	return Outcome{Decision: DecisionBlock, Reason: reason}
}

// Rewrite 表示规则命中并改写文本。
func Rewrite(text string) Outcome {
	return Outcome{Decision: DecisionRewrite, Rewritten: text}
}

// Rule 策略规则。实现必须是确定性的纯函数。
type Rule interface {
	// ID 稳定的规则标识，同时决定求值顺序（升序）。
	ID() string
	// Applies 报告规则是否作用于该方向。
	Applies(direction Direction) bool
	// Evaluate 对当前文本求值。rewrite 链上后续规则收到的
	// 是前序规则改写后的文本。
	Evaluate(in Input) Outcome
}

// Config 引擎的内置规则配置。
type Config struct {
	// MaxInputChars / MaxOutputChars 长度上限（字符数，按 rune 计）。
	MaxInputChars  int `json:"max_input_chars"`
	MaxOutputChars int `json:"max_output_chars"`
	// BlockedKeywords 关键词黑名单，大小写不敏感。
	BlockedKeywords []string `json:"blocked_keywords"`
	// RequireCitations 使用了证据的输出必须带引用标记，否则补写来源。
	RequireCitations bool `json:"require_citations"`
	// RelevanceTopics 文档主题词；非空时启用输入相关性提醒。
	RelevanceTopics []string `json:"relevance_topics"`
}

// DefaultConfig 返回默认引擎配置。
func DefaultConfig() Config {
	return Config{
		MaxInputChars:    8000,
		MaxOutputChars:   32000,
		BlockedKeywords:  nil,
		RequireCitations: true,
	}
}

// Engine 按固定顺序对文本执行全部规则。
type Engine struct {
	rules  []Rule
	logger *zap.Logger
}

// NewEngine 用给定规则集创建引擎。规则按 ID 升序排序一次，
// 之后所有检查共享同一顺序。
func NewEngine(rules []Rule, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })
	return &Engine{
		rules:  sorted,
		logger: logger.With(zap.String("component", "guardrail_engine")),
	}
}

// NewDefaultEngine 按配置装配内置规则集。
func NewDefaultEngine(cfg Config, logger *zap.Logger) *Engine {
	rules := []Rule{
		NewLengthRule(cfg.MaxInputChars, cfg.MaxOutputChars),
		NewInjectionRule(),
		NewSecretRule(),
		NewPIIMaskRule(),
		NewCitationRule(cfg.RequireCitations),
	}
	if len(cfg.BlockedKeywords) > 0 {
		rules = append(rules, NewKeywordRule(cfg.BlockedKeywords))
	}
	if len(cfg.RelevanceTopics) > 0 {
		rules = append(rules, NewRelevanceRule(cfg.RelevanceTopics))
	}
	return NewEngine(rules, logger)
}

// Rules 返回求值顺序下的规则 ID 列表。
func (e *Engine) Rules() []string {
	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID()
	}
	return ids
}

// Check 对文本执行方向匹配的全部规则并返回裁决。
// 第一条 block 短路；rewrite 串联；无命中 allow 原文。
func (e *Engine) Check(ctx context.Context, in Input) *Verdict {
	verdict := &Verdict{Decision: DecisionAllow, Text: in.Text}

	// 规则求值是同步纯计算，不响应取消：部分求值可能漏掉
	// block 规则，比多跑几条正则的代价更不可接受。
	current := in
	for _, rule := range e.rules {
		if !rule.Applies(in.Direction) {
			continue
		}

		outcome := rule.Evaluate(current)
		switch outcome.Decision {
		case DecisionBlock:
			verdict.Decision = DecisionBlock
			verdict.RuleIDs = append(verdict.RuleIDs, rule.ID())
			verdict.Reason = outcome.Reason
			verdict.Text = in.Text
			e.logger.Info("guardrail blocked",
				zap.String("direction", string(in.Direction)),
				zap.String("rule_id", rule.ID()))
			return verdict
		case DecisionRewrite:
			verdict.Decision = DecisionRewrite
			verdict.RuleIDs = append(verdict.RuleIDs, rule.ID())
			verdict.Text = outcome.Rewritten
			current.Text = outcome.Rewritten
		case DecisionAllow:
			if outcome.Warning != "" {
				verdict.Warnings = append(verdict.Warnings, outcome.Warning)
				verdict.RuleIDs = append(verdict.RuleIDs, rule.ID())
			}
		}
	}
	return verdict
}
