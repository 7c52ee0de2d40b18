package compose

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// DefaultPreamble 默认系统前导。回答必须基于证据并标注 [E#]。
const DefaultPreamble = `You are a helpful assistant answering questions about the user's documents.
Base your answer on the numbered evidence below. Cite evidence you rely on
with its marker, e.g. [E1]. If the evidence does not cover the question, say so.`

// citationRef 匹配回答中的 [E3] 形式引用标记。
var citationRef = regexp.MustCompile(`\[E(\d+)\]`)

// Composer 确定性提示词装配器。
type Composer struct {
	preamble string
	logger   *zap.Logger
}

// Option 配置 Composer。
type Option func(*Composer)

// WithPreamble 替换系统前导。
func WithPreamble(preamble string) Option {
	return func(c *Composer) { c.preamble = preamble }
}

// NewComposer 创建装配器。
func NewComposer(logger *zap.Logger, opts ...Option) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Composer{
		preamble: DefaultPreamble,
		logger:   logger.With(zap.String("component", "response_composer")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose 装配最终提示词：前导 + 记忆窗口 + 编号证据 + 问题。
// query 应传入护栏改写后的最终文本。
func (c *Composer) Compose(window []types.Message, evidence []types.EvidenceItem, query string) string {
	var b strings.Builder
	b.WriteString(c.preamble)
	b.WriteString("\n")

	if len(window) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, msg := range window {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Text)
		}
	}

	if len(evidence) > 0 {
		b.WriteString("\nEvidence:\n")
		for i, item := range evidence {
			fmt.Fprintf(&b, "[E%d] %s\n", i+1, item.Text)
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", query)
	return b.String()
}

// ExtractCitations 从回答里提取被引用的证据。
// 找到 [E#] 标记时只返回被引用的条目（按编号升序、去重）；
// 回答没有任何标记信号时，整个证据集视为"可用"全部附上。
func (c *Composer) ExtractCitations(answer string, evidence []types.EvidenceItem) []types.EvidenceItem {
	if len(evidence) == 0 {
		return nil
	}

	matches := citationRef.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		cited := make([]types.EvidenceItem, len(evidence))
		copy(cited, evidence)
		return cited
	}

	seen := make(map[int]bool)
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(evidence) {
			c.logger.Debug("ignoring out-of-range citation marker", zap.String("marker", m[0]))
			continue
		}
		seen[n-1] = true
	}

	var cited []types.EvidenceItem
	for i, item := range evidence {
		if seen[i] {
			cited = append(cited, item)
		}
	}
	return cited
}
