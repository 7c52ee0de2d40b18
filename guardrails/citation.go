package guardrails

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/ragflow/types"
)

// citationMarker 匹配提示词里编号证据的引用标记，如 [E1]。
var citationMarker = regexp.MustCompile(`\[E\d+\]`)

// CitationRule 输出引用存在性规则：本轮使用了证据、而输出
// 没有任何引用标记时，补写来源清单而不是拒绝输出。
type CitationRule struct {
	enabled bool
}

func NewCitationRule(enabled bool) *CitationRule {
	return &CitationRule{enabled: enabled}
}

func (r *CitationRule) ID() string { return RuleIDCitation }

func (r *CitationRule) Applies(d Direction) bool { return d == DirectionOutput }

func (r *CitationRule) Evaluate(in Input) Outcome {
	if !r.enabled || len(in.Evidence) == 0 {
		return Allow()
	}
	if citationMarker.MatchString(in.Text) {
		return Allow()
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(in.Text, "\n"))
	b.WriteString("\n\nSources:\n")
	for i, item := range in.Evidence {
		fmt.Fprintf(&b, "- [E%d] %s\n", i+1, evidenceLabel(item))
	}
	return Rewrite(b.String())
}

// evidenceLabel 给一条证据一个人类可读的来源标签。
func evidenceLabel(item types.EvidenceItem) string {
	switch item.Source {
	case types.EvidenceGraph:
		if len(item.Path) > 0 {
			return strings.Join(item.Path, " > ")
		}
	case types.EvidenceWeb:
		if item.URL != "" {
			return item.URL
		}
	}
	if item.DocumentID != "" {
		return fmt.Sprintf("document %s", item.DocumentID)
	}
	return item.ChunkID
}
