package guardrails

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// 内置规则 ID。数字前缀决定求值顺序：长度与注入检查最先，
// 改写类规则靠后，输出补引用最后。
const (
	RuleIDLength    = "010_length_bounds"
	RuleIDInjection = "020_prompt_injection"
	RuleIDSecret    = "030_secret_pattern"
	RuleIDKeyword   = "040_keyword_blocklist"
	RuleIDPIIMask   = "200_pii_mask"
	RuleIDRelevance = "300_topic_relevance"
	RuleIDCitation  = "900_citation_presence"
)

// LengthRule 双向长度上限，按 rune 计数。
type LengthRule struct {
	maxInput  int
	maxOutput int
}

// NewLengthRule 创建长度规则；非正上限表示该方向不限制。
func NewLengthRule(maxInput, maxOutput int) *LengthRule {
	return &LengthRule{maxInput: maxInput, maxOutput: maxOutput}
}

func (r *LengthRule) ID() string             { return RuleIDLength }
func (r *LengthRule) Applies(Direction) bool { return true }

func (r *LengthRule) Evaluate(in Input) Outcome {
	limit := r.maxInput
	if in.Direction == DirectionOutput {
		limit = r.maxOutput
	}
	if limit <= 0 {
		return Allow()
	}
	if n := len([]rune(in.Text)); n > limit {
		return Block(fmt.Sprintf("text length %d exceeds limit %d", n, limit))
	}
	return Allow()
}

// InjectionRule 提示注入检测，输入方向 block。
type InjectionRule struct {
	patterns []*regexp.Regexp
}

// 指令覆盖、角色操纵与系统标记注入的常见形态。
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(you\s+)?(know|learned|were\s+told)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\s`),
	regexp.MustCompile(`(?i)^\s*system\s*:`),
	regexp.MustCompile(`(?i)reveal\s+(your\s+)?(system\s+)?prompt`),
	regexp.MustCompile(`忽略(之前|以上|上面)的(所有)?(指令|提示|规则)`),
}

func NewInjectionRule() *InjectionRule {
	return &InjectionRule{patterns: injectionPatterns}
}

func (r *InjectionRule) ID() string { return RuleIDInjection }

func (r *InjectionRule) Applies(d Direction) bool { return d == DirectionInput }

func (r *InjectionRule) Evaluate(in Input) Outcome {
	for _, p := range r.patterns {
		if p.MatchString(in.Text) {
			return Block("input resembles a prompt injection attempt")
		}
	}
	return Allow()
}

// SecretRule 凭据样式字符串检测，双向 block：输入侧防止凭据进入
// 历史与提示词，输出侧防止检索到的凭据被转述。
type SecretRule struct {
	patterns []*regexp.Regexp
}

var secretPatterns = []*regexp.Regexp{
	// AWS access key id
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	// OpenAI 风格 API key
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`),
	// GitHub token
	regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
	// PEM 私钥头
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
	// 显式赋值形式的口令/密钥
	regexp.MustCompile(`(?i)\b(password|passwd|api[_-]?key|secret[_-]?key|access[_-]?token)\s*[:=]\s*\S{8,}`),
}

func NewSecretRule() *SecretRule {
	return &SecretRule{patterns: secretPatterns}
}

func (r *SecretRule) ID() string             { return RuleIDSecret }
func (r *SecretRule) Applies(Direction) bool { return true }

func (r *SecretRule) Evaluate(in Input) Outcome {
	for _, p := range r.patterns {
		if p.MatchString(in.Text) {
			return Block("text contains a credential-looking string")
		}
	}
	return Allow()
}

// KeywordRule 关键词黑名单，大小写不敏感，输入方向 block。
type KeywordRule struct {
	keywords []string
}

// NewKeywordRule 创建关键词规则；关键词排序后保存，匹配顺序稳定。
func NewKeywordRule(keywords []string) *KeywordRule {
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			normalized = append(normalized, kw)
		}
	}
	sort.Strings(normalized)
	return &KeywordRule{keywords: normalized}
}

func (r *KeywordRule) ID() string { return RuleIDKeyword }

func (r *KeywordRule) Applies(d Direction) bool { return d == DirectionInput }

func (r *KeywordRule) Evaluate(in Input) Outcome {
	lower := strings.ToLower(in.Text)
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) {
			return Block(fmt.Sprintf("input contains blocked keyword %q", kw))
		}
	}
	return Allow()
}

// PIIMaskRule 对邮箱与电话号码做脱敏改写，双向生效。
// 脱敏而非拒绝：问题本身通常是合法的，泄露的只是附带信息。
type PIIMaskRule struct{}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\b(?:\+?\d{1,3}[-\s]?)?1[3-9]\d{9}\b|\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`)
)

func NewPIIMaskRule() *PIIMaskRule { return &PIIMaskRule{} }

func (r *PIIMaskRule) ID() string             { return RuleIDPIIMask }
func (r *PIIMaskRule) Applies(Direction) bool { return true }

func (r *PIIMaskRule) Evaluate(in Input) Outcome {
	masked := emailPattern.ReplaceAllStringFunc(in.Text, maskEmail)
	masked = phonePattern.ReplaceAllStringFunc(masked, maskDigits)
	if masked == in.Text {
		return Allow()
	}
	return Rewrite(masked)
}

func maskEmail(value string) string {
	at := strings.Index(value, "@")
	if at <= 0 {
		return strings.Repeat("*", len(value))
	}
	return value[:1] + "***" + value[at:]
}

func maskDigits(value string) string {
	runes := []rune(value)
	if len(runes) <= 7 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:3]) + "****" + string(runes[len(runes)-4:])
}

// RelevanceRule 输入与文档主题词的粗粒度匹配。完全不相关时
// 不拦截，只附带提醒：拦截与否应由上层对话策略决定。
type RelevanceRule struct {
	topics []string
}

func NewRelevanceRule(topics []string) *RelevanceRule {
	normalized := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			normalized = append(normalized, t)
		}
	}
	sort.Strings(normalized)
	return &RelevanceRule{topics: normalized}
}

func (r *RelevanceRule) ID() string { return RuleIDRelevance }

func (r *RelevanceRule) Applies(d Direction) bool { return d == DirectionInput }

func (r *RelevanceRule) Evaluate(in Input) Outcome {
	if len(r.topics) == 0 {
		return Allow()
	}
	lower := strings.ToLower(in.Text)
	for _, topic := range r.topics {
		if strings.Contains(lower, topic) {
			return Allow()
		}
	}
	return Outcome{
		Decision: DecisionAllow,
		Warning:  "question does not mention any known document topic",
	}
}
