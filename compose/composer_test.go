package compose

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragflow/types"
)

func testEvidence() []types.EvidenceItem {
	return []types.EvidenceItem{
		{ChunkID: "c1", DocumentID: "d1", Text: "Paris is the capital of France.", Source: types.EvidenceVector},
		{ChunkID: "c2", DocumentID: "d1", Text: "France is in western Europe.", Source: types.EvidenceVector},
		{Source: types.EvidenceGraph, Path: []string{"france", "capital", "paris"}, Text: "france -[capital]-> paris"},
	}
}

func TestComposeLayout(t *testing.T) {
	t.Parallel()

	c := NewComposer(nil)
	window := []types.Message{
		{Role: types.RoleUser, Text: "hello", Timestamp: time.Now()},
		{Role: types.RoleAssistant, Text: "hi, ask me about your documents", Timestamp: time.Now()},
	}

	prompt := c.Compose(window, testEvidence(), "what is the capital of france")

	assert.Contains(t, prompt, DefaultPreamble)
	assert.Contains(t, prompt, "user: hello")
	assert.Contains(t, prompt, "assistant: hi, ask me about your documents")
	assert.Contains(t, prompt, "[E1] Paris is the capital of France.")
	assert.Contains(t, prompt, "[E3] france -[capital]-> paris")
	assert.Contains(t, prompt, "Question: what is the capital of france")

	// 顺序固定：前导 < 对话 < 证据 < 问题。
	preambleAt := strings.Index(prompt, "You are a helpful assistant")
	historyAt := strings.Index(prompt, "Conversation so far:")
	evidenceAt := strings.Index(prompt, "Evidence:")
	questionAt := strings.Index(prompt, "Question:")
	assert.True(t, preambleAt < historyAt && historyAt < evidenceAt && evidenceAt < questionAt)
}

func TestComposeIsDeterministic(t *testing.T) {
	t.Parallel()

	c := NewComposer(nil)
	window := []types.Message{{Role: types.RoleUser, Text: "q1"}}
	evidence := testEvidence()

	first := c.Compose(window, evidence, "same question")
	second := c.Compose(window, evidence, "same question")
	assert.Equal(t, first, second)
}

func TestComposeWithoutMemoryOrEvidence(t *testing.T) {
	t.Parallel()

	c := NewComposer(nil)
	prompt := c.Compose(nil, nil, "standalone question")

	assert.NotContains(t, prompt, "Conversation so far:")
	assert.NotContains(t, prompt, "Evidence:")
	assert.Contains(t, prompt, "Question: standalone question")
}

func TestComposeCustomPreamble(t *testing.T) {
	t.Parallel()

	c := NewComposer(nil, WithPreamble("Answer in French."))
	prompt := c.Compose(nil, nil, "q")
	assert.True(t, strings.HasPrefix(prompt, "Answer in French."))
}

func TestExtractCitationsByMarker(t *testing.T) {
	t.Parallel()

	c := NewComposer(nil)
	evidence := testEvidence()

	cited := c.ExtractCitations("Paris [E1] is the capital, see also [E3]. Again: [E1].", evidence)

	require.Len(t, cited, 2)
	assert.Equal(t, "c1", cited[0].ChunkID)
	assert.Equal(t, types.EvidenceGraph, cited[1].Source)
}

func TestExtractCitationsNoMarkersAttachesAll(t *testing.T) {
	t.Parallel()

	c := NewComposer(nil)
	evidence := testEvidence()

	cited := c.ExtractCitations("Paris is the capital of France.", evidence)
	assert.Len(t, cited, len(evidence))
}

func TestExtractCitationsIgnoresOutOfRangeMarkers(t *testing.T) {
	t.Parallel()

	c := NewComposer(nil)
	evidence := testEvidence()

	cited := c.ExtractCitations("See [E2] and the bogus [E9].", evidence)
	require.Len(t, cited, 1)
	assert.Equal(t, "c2", cited[0].ChunkID)
}

func TestExtractCitationsEmptyEvidence(t *testing.T) {
	t.Parallel()

	c := NewComposer(nil)
	assert.Nil(t, c.ExtractCitations("anything [E1]", nil))
}
