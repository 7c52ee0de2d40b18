package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/types"
)

// fixtureExtractor 返回固定三元组，把上游的非确定性隔离在测试之外。
type fixtureExtractor struct {
	byText map[string][]llm.RelationTriple
	err    error
}

func (f *fixtureExtractor) ExtractRelations(_ context.Context, text string) ([]llm.RelationTriple, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byText[text], nil
}

func graphChunk(id, docID, text string) types.Chunk {
	return types.Chunk{ID: id, DocumentID: docID, Text: text, TokenCount: 10}
}

func buildFixtureGraph(t *testing.T) *KnowledgeGraph {
	t.Helper()

	extractor := &fixtureExtractor{byText: map[string][]llm.RelationTriple{
		"t1": {
			{Subject: "Alice", Predicate: "works_at", Object: "Acme", Confidence: 0.9},
		},
		"t2": {
			{Subject: "Acme", Predicate: "located_in", Object: "Berlin", Confidence: 0.8},
		},
	}}

	g := NewKnowledgeGraph(zap.NewNop())
	_, err := g.Build(context.Background(),
		[]types.Chunk{graphChunk("c1", "d1", "t1"), graphChunk("c2", "d1", "t2")},
		extractor)
	require.NoError(t, err)
	return g
}

func TestQueryBeforeAnyBuildIsGraphUnavailable(t *testing.T) {
	t.Parallel()

	g := NewKnowledgeGraph(zap.NewNop())
	_, err := g.Query([]string{"Alice"}, nil, 2, 10)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeGraphUnavailable))
}

func TestTwoHopTraversalReachesTerminal(t *testing.T) {
	t.Parallel()

	g := buildFixtureGraph(t)

	// max_hops=2 能从 Alice 走到 Berlin。
	items, err := g.Query([]string{"Alice"}, nil, 2, 10)
	require.NoError(t, err)
	require.NotEmpty(t, items)

	var reached bool
	for _, it := range items {
		if len(it.Path) > 0 && it.Path[len(it.Path)-1] == "Berlin" {
			reached = true
			assert.Equal(t, "c2", it.ChunkID) // 终端关系的来源 chunk
			assert.Equal(t, types.EvidenceGraph, it.Source)
		}
	}
	assert.True(t, reached, "expected a path terminating at Berlin")

	// max_hops=1 到不了 Berlin。
	items, err = g.Query([]string{"Alice"}, nil, 1, 10)
	require.NoError(t, err)
	for _, it := range items {
		assert.NotEqual(t, "Berlin", it.Path[len(it.Path)-1])
	}
}

func TestPathScorePrefersFewerHops(t *testing.T) {
	t.Parallel()

	g := buildFixtureGraph(t)
	items, err := g.Query([]string{"Alice"}, nil, 2, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// 一跳 (Acme, 0.9/2) 高于两跳 (Berlin, 0.72/3)。
	assert.Equal(t, "Acme", items[0].Path[len(items[0].Path)-1])
	assert.Greater(t, items[0].Score, items[1].Score)
}

func TestEntityMergeIsCaseAndWhitespaceInsensitive(t *testing.T) {
	t.Parallel()

	extractor := &fixtureExtractor{byText: map[string][]llm.RelationTriple{
		"t1": {{Subject: "  alice  SMITH ", Predicate: "knows", Object: "Bob", Confidence: 0.5}},
		"t2": {{Subject: "Alice Smith", Predicate: "manages", Object: "Carol", Confidence: 0.6}},
	}}

	g := NewKnowledgeGraph(zap.NewNop())
	snap, err := g.Build(context.Background(),
		[]types.Chunk{graphChunk("c1", "d1", "t1"), graphChunk("c2", "d1", "t2")},
		extractor)
	require.NoError(t, err)

	// alice smith 两次出现合并为一个实体：alice, bob, carol。
	assert.Equal(t, 3, snap.EntityCount())

	items, err := g.Query([]string{"ALICE smith"}, nil, 1, 10)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestDuplicateRelationsKeepMaxConfidence(t *testing.T) {
	t.Parallel()

	extractor := &fixtureExtractor{byText: map[string][]llm.RelationTriple{
		"t1": {{Subject: "A", Predicate: "rel", Object: "B", Confidence: 0.3}},
		"t2": {{Subject: "A", Predicate: "rel", Object: "B", Confidence: 0.9}},
	}}

	g := NewKnowledgeGraph(zap.NewNop())
	snap, err := g.Build(context.Background(),
		[]types.Chunk{graphChunk("c1", "d1", "t1"), graphChunk("c2", "d1", "t2")},
		extractor)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.RelationCount())

	items, err := g.Query([]string{"A"}, nil, 1, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	// 0.9 / (1+1 hop)
	assert.InDelta(t, 0.45, items[0].Score, 1e-9)
	assert.Equal(t, "c2", items[0].ChunkID)
}

func TestRebuildPublishesNewVersionOldSnapshotUsable(t *testing.T) {
	t.Parallel()

	g := buildFixtureGraph(t)
	old := g.Current()
	require.NotNil(t, old)

	extractor := &fixtureExtractor{byText: map[string][]llm.RelationTriple{
		"t3": {{Subject: "X", Predicate: "p", Object: "Y", Confidence: 1}},
	}}
	snap, err := g.Build(context.Background(), []types.Chunk{graphChunk("c9", "d2", "t3")}, extractor)
	require.NoError(t, err)
	assert.Greater(t, snap.Version, old.Version)

	// 旧快照仍可独立遍历，不受重建影响。
	items, err := old.Query([]string{"Alice"}, nil, 2, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, items)

	// 新快照没有 Alice。
	items, err = g.Current().Query([]string{"Alice"}, nil, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestScopeFiltersRelationProvenance(t *testing.T) {
	t.Parallel()

	extractor := &fixtureExtractor{byText: map[string][]llm.RelationTriple{
		"t1": {{Subject: "A", Predicate: "p", Object: "B", Confidence: 1}},
		"t2": {{Subject: "A", Predicate: "q", Object: "C", Confidence: 1}},
	}}
	g := NewKnowledgeGraph(zap.NewNop())
	_, err := g.Build(context.Background(),
		[]types.Chunk{graphChunk("c1", "docX", "t1"), graphChunk("c2", "docY", "t2")},
		extractor)
	require.NoError(t, err)

	items, err := g.Query([]string{"A"}, []string{"docX"}, 2, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "docX", items[0].DocumentID)
}

func TestBuildAllChunksFailingSurfacesExtractionUnavailable(t *testing.T) {
	t.Parallel()

	g := NewKnowledgeGraph(zap.NewNop())
	_, err := g.Build(context.Background(),
		[]types.Chunk{graphChunk("c1", "d1", "t1")},
		&fixtureExtractor{err: errors.New("model down")})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeExtractionUnavailable))
	assert.Nil(t, g.Current())
}
