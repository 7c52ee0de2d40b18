package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/ragflow/llm/tokenizer"
	"github.com/BaSui01/ragflow/types"
)

func testDoc(id string, blocks ...string) types.Document {
	return types.Document{ID: id, Name: id, MediaType: types.MediaTypeText, Blocks: blocks}
}

func newTestChunker(maxTokens, overlap int) *Chunker {
	return NewChunker(
		ChunkingConfig{MaxTokens: maxTokens, OverlapTokens: overlap},
		tokenizer.NewEstimatorTokenizer("test", 0),
		zap.NewNop(),
	)
}

func TestChunkEmptyDocumentFails(t *testing.T) {
	t.Parallel()

	c := newTestChunker(64, 8)

	_, err := c.Chunk(testDoc("d1"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeIngest))

	_, err = c.Chunk(testDoc("d2", "   ", "\n"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeIngest))
}

func TestChunkInvalidUTF8Fails(t *testing.T) {
	t.Parallel()

	c := newTestChunker(64, 8)
	_, err := c.Chunk(testDoc("d1", "ok \xff\xfe broken"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeIngest))
}

func TestChunkPositionsAreOrdered(t *testing.T) {
	t.Parallel()

	c := newTestChunker(16, 4)
	doc := testDoc("d1", strings.Repeat("alpha beta gamma delta epsilon ", 40))

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Position)
		assert.Equal(t, "d1", ch.DocumentID)
		assert.NotEmpty(t, ch.ID)
		assert.Positive(t, ch.TokenCount)
		// 单块不超过 token 上限（估算器下允许最后一个词的进位）。
		assert.LessOrEqual(t, ch.TokenCount, 16+4)
	}
}

func TestChunkOverlapSharesText(t *testing.T) {
	t.Parallel()

	c := newTestChunker(12, 6)
	doc := testDoc("d1", strings.Repeat("one two three four five six seven eight ", 20))

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// 相邻块之间必须有共享词。
	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	require.NotEmpty(t, first)
	assert.Equal(t, first[len(first)-1], secondContains(second, first[len(first)-1]))
}

func secondContains(words []string, want string) string {
	for _, w := range words {
		if w == want {
			return w
		}
	}
	return ""
}

func TestChunkZeroOverlapCoversAllWords(t *testing.T) {
	t.Parallel()

	c := newTestChunker(10, 0)
	text := "w1 w2 w3 w4 w5 w6 w7 w8 w9 w10 w11 w12 w13 w14 w15 w16 w17 w18 w19 w20"
	chunks, err := c.Chunk(testDoc("d1", text))
	require.NoError(t, err)

	joined := strings.Fields(strings.Join(chunkTexts(chunks), " "))
	assert.Equal(t, strings.Fields(text), joined)
}

func chunkTexts(chunks []types.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

// 对固定 (max_tokens, overlap_tokens)，同一文档重复分块产出完全相同的块序列。
func TestChunkingDeterministicProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		maxTokens := rapid.IntRange(4, 64).Draw(rt, "max_tokens")
		overlap := rapid.IntRange(0, maxTokens-1).Draw(rt, "overlap")
		wordCount := rapid.IntRange(1, 300).Draw(rt, "words")

		words := make([]string, wordCount)
		for i := range words {
			words[i] = rapid.StringMatching(`[a-z]{1,12}`).Draw(rt, "word")
		}
		doc := testDoc("d", strings.Join(words, " "))

		c1 := newTestChunker(maxTokens, overlap)
		c2 := newTestChunker(maxTokens, overlap)

		a, err1 := c1.Chunk(doc)
		b, err2 := c2.Chunk(doc)
		if err1 != nil || err2 != nil {
			if (err1 == nil) != (err2 == nil) {
				rt.Fatalf("determinism broken: %v vs %v", err1, err2)
			}
			return
		}

		if len(a) != len(b) {
			rt.Fatalf("chunk count differs: %d vs %d", len(a), len(b))
		}
		for i := range a {
			if a[i].Text != b[i].Text || a[i].Position != b[i].Position {
				rt.Fatalf("chunk %d differs", i)
			}
		}
	})
}
