package rag

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

func mustUpsert(t *testing.T, x *VectorIndex, docID, chunkID string, position int, vec []float64) {
	t.Helper()
	require.NoError(t, x.Upsert(types.Chunk{
		ID:         chunkID,
		DocumentID: docID,
		Text:       "text of " + chunkID,
		TokenCount: 10,
		Position:   position,
	}, vec))
}

func TestSearchRanksByCosine(t *testing.T) {
	t.Parallel()

	x := NewVectorIndex(MetricCosine, zap.NewNop())
	mustUpsert(t, x, "d1", "c1", 0, []float64{1, 0})
	mustUpsert(t, x, "d1", "c2", 1, []float64{0.9, 0.1})
	mustUpsert(t, x, "d1", "c3", 2, []float64{0, 1})

	items := x.Search([]float64{1, 0}, nil, 3, 0)
	require.Len(t, items, 3)
	assert.Equal(t, "c1", items[0].ChunkID)
	assert.Equal(t, "c2", items[1].ChunkID)
	assert.Equal(t, "c3", items[2].ChunkID)
	assert.Equal(t, types.EvidenceVector, items[0].Source)
}

func TestSearchTieBreaksByPosition(t *testing.T) {
	t.Parallel()

	x := NewVectorIndex(MetricCosine, zap.NewNop())
	// 同向向量得分相同，位置靠前的 chunk 赢。
	mustUpsert(t, x, "d1", "later", 5, []float64{2, 0})
	mustUpsert(t, x, "d1", "earlier", 1, []float64{3, 0})

	items := x.Search([]float64{1, 0}, nil, 2, 0)
	require.Len(t, items, 2)
	assert.Equal(t, "earlier", items[0].ChunkID)
	assert.Equal(t, "later", items[1].ChunkID)
}

func TestSearchScopeRestrictsDocuments(t *testing.T) {
	t.Parallel()

	x := NewVectorIndex(MetricCosine, zap.NewNop())
	mustUpsert(t, x, "d1", "c1", 0, []float64{1, 0})
	mustUpsert(t, x, "d2", "c2", 0, []float64{1, 0})

	items := x.Search([]float64{1, 0}, []string{"d2"}, 10, 0)
	require.Len(t, items, 1)
	assert.Equal(t, "c2", items[0].ChunkID)

	// 空 scope 表示检索全部文档。
	items = x.Search([]float64{1, 0}, nil, 10, 0)
	assert.Len(t, items, 2)
}

func TestSearchMinScoreFilters(t *testing.T) {
	t.Parallel()

	x := NewVectorIndex(MetricCosine, zap.NewNop())
	mustUpsert(t, x, "d1", "aligned", 0, []float64{1, 0})
	mustUpsert(t, x, "d1", "orthogonal", 1, []float64{0, 1})

	items := x.Search([]float64{1, 0}, nil, 10, 0.5)
	require.Len(t, items, 1)
	assert.Equal(t, "aligned", items[0].ChunkID)
}

func TestUpsertReplacesAndRemoveDropsDocument(t *testing.T) {
	t.Parallel()

	x := NewVectorIndex(MetricCosine, zap.NewNop())
	mustUpsert(t, x, "d1", "c1", 0, []float64{0, 1})
	mustUpsert(t, x, "d1", "c1", 0, []float64{1, 0})
	assert.Equal(t, 1, x.Count())

	items := x.Search([]float64{1, 0}, nil, 1, 0.9)
	require.Len(t, items, 1)

	x.Remove("d1")
	assert.False(t, x.HasDocument("d1"))
	assert.Empty(t, x.Search([]float64{1, 0}, nil, 10, 0))
}

func TestUpsertDimensionMismatch(t *testing.T) {
	t.Parallel()

	x := NewVectorIndex(MetricCosine, zap.NewNop())
	mustUpsert(t, x, "d1", "c1", 0, []float64{1, 0, 0})
	err := x.Upsert(types.Chunk{ID: "c2", DocumentID: "d1"}, []float64{1, 0})
	assert.Error(t, err)
}

func TestDotMetricSkipsNormalization(t *testing.T) {
	t.Parallel()

	x := NewVectorIndex(MetricDot, zap.NewNop())
	mustUpsert(t, x, "d1", "long", 0, []float64{10, 0})
	mustUpsert(t, x, "d1", "short", 1, []float64{1, 0})

	items := x.Search([]float64{1, 0}, nil, 2, 0)
	require.Len(t, items, 2)
	// 内积下长向量得分更高。
	assert.Equal(t, "long", items[0].ChunkID)
	assert.Equal(t, float64(10), items[0].Score)
}

func TestConcurrentSearchAndUpsert(t *testing.T) {
	t.Parallel()

	x := NewVectorIndex(MetricCosine, zap.NewNop())
	for i := 0; i < 8; i++ {
		mustUpsert(t, x, "base", fmt.Sprintf("c%d", i), i, []float64{1, float64(i)})
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = x.Upsert(types.Chunk{
					ID:         fmt.Sprintf("w%d-%d", w, i),
					DocumentID: fmt.Sprintf("doc-%d", w),
					Position:   i,
				}, []float64{1, 1})
			}
		}(w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				items := x.Search([]float64{1, 0}, []string{"base"}, 4, 0)
				// base 文档的快照要么完整可见，结果数稳定。
				if len(items) != 4 {
					t.Errorf("expected 4 items from stable doc, got %d", len(items))
					return
				}
			}
		}()
	}
	wg.Wait()
}
