package rag

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// Metric 相似度度量。构建索引时固定，中途更换会使既有向量失效。
type Metric string

const (
	// MetricCosine 余弦相似度。
	MetricCosine Metric = "cosine"
	// MetricDot 内积。
	MetricDot Metric = "dot"
)

// posting 是索引里一条不可变的 (chunk, vector) 记录。
type posting struct {
	chunkID    string
	documentID string
	text       string
	vector     []float64
	norm       float64
	position   int
	tokenCount int
}

// docPostings 是某文档全部 posting 的不可变快照。
// 写入方整体替换，读取方拿到引用后无锁评分。
type docPostings struct {
	postings []posting
}

// VectorIndex 按文档分片的内存向量索引。
//
// 并发模型：Search 之间完全并行；对同一文档的 Upsert/Remove 与
// 覆盖该文档的 Search 通过读写锁互斥，读取方看到的要么是更新前、
// 要么是更新后的完整状态，绝不会是部分更新。
type VectorIndex struct {
	metric Metric
	dim    int

	mu   sync.RWMutex
	docs map[string]*docPostings

	logger *zap.Logger
}

// NewVectorIndex 创建索引。metric 非法时回退到 cosine。
func NewVectorIndex(metric Metric, logger *zap.Logger) *VectorIndex {
	if metric != MetricCosine && metric != MetricDot {
		metric = MetricCosine
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorIndex{
		metric: metric,
		docs:   make(map[string]*docPostings),
		logger: logger,
	}
}

// Metric 返回索引固定的相似度度量。
func (x *VectorIndex) Metric() Metric { return x.metric }

// Upsert 写入或替换一个 chunk 的向量。
// 同一 chunkID 重复写入以最后一次为准。
func (x *VectorIndex) Upsert(chunk types.Chunk, vector []float64) error {
	if len(vector) == 0 {
		return fmt.Errorf("vector index: empty vector for chunk %s", chunk.ID)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dim == 0 {
		x.dim = len(vector)
	} else if len(vector) != x.dim {
		return fmt.Errorf("vector index: dimension mismatch: got %d want %d", len(vector), x.dim)
	}

	old := x.docs[chunk.DocumentID]
	var next []posting
	if old != nil {
		next = make([]posting, 0, len(old.postings)+1)
		for _, p := range old.postings {
			if p.chunkID != chunk.ID {
				next = append(next, p)
			}
		}
	}
	next = append(next, posting{
		chunkID:    chunk.ID,
		documentID: chunk.DocumentID,
		text:       chunk.Text,
		vector:     vector,
		norm:       vectorNorm(vector),
		position:   chunk.Position,
		tokenCount: chunk.TokenCount,
	})

	// 整体替换该文档的快照，保证原子发布。
	x.docs[chunk.DocumentID] = &docPostings{postings: next}
	return nil
}

// Remove 删除一个文档的全部向量。
func (x *VectorIndex) Remove(documentID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.docs, documentID)
}

// HasDocument 报告文档是否已有向量入索引。
func (x *VectorIndex) HasDocument(documentID string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	dp, ok := x.docs[documentID]
	return ok && len(dp.postings) > 0
}

// Count 返回索引内 chunk 总数。
func (x *VectorIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := 0
	for _, dp := range x.docs {
		n += len(dp.postings)
	}
	return n
}

// Search 在 scope 限定的文档内检索最相似的 k 个 chunk。
// scope 为空表示检索全部已索引文档。返回至多 k 条得分不低于
// minScore 的证据，按得分降序；同分时块位置靠前者优先，保证确定性。
func (x *VectorIndex) Search(queryVector []float64, scope []string, k int, minScore float64) []types.EvidenceItem {
	if len(queryVector) == 0 || k <= 0 {
		return nil
	}

	// 在读锁内只收集文档快照引用，评分在锁外进行。
	x.mu.RLock()
	snapshots := make([]*docPostings, 0, len(x.docs))
	if len(scope) == 0 {
		for _, dp := range x.docs {
			snapshots = append(snapshots, dp)
		}
	} else {
		for _, id := range scope {
			if dp, ok := x.docs[id]; ok {
				snapshots = append(snapshots, dp)
			}
		}
	}
	x.mu.RUnlock()

	queryNorm := vectorNorm(queryVector)
	var items []types.EvidenceItem
	for _, dp := range snapshots {
		for _, p := range dp.postings {
			score := x.similarity(queryVector, queryNorm, p)
			if score < minScore {
				continue
			}
			items = append(items, types.EvidenceItem{
				ChunkID:    p.chunkID,
				DocumentID: p.documentID,
				Text:       p.text,
				Score:      score,
				Source:     types.EvidenceVector,
				TokenCount: p.tokenCount,
				Position:   p.position,
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Position < items[j].Position
	})

	if len(items) > k {
		items = items[:k]
	}
	return items
}

func (x *VectorIndex) similarity(query []float64, queryNorm float64, p posting) float64 {
	dot := 0.0
	n := len(query)
	if len(p.vector) < n {
		n = len(p.vector)
	}
	for i := 0; i < n; i++ {
		dot += query[i] * p.vector[i]
	}
	if x.metric == MetricDot {
		return dot
	}
	if queryNorm == 0 || p.norm == 0 {
		return 0
	}
	return dot / (queryNorm * p.norm)
}

func vectorNorm(v []float64) float64 {
	sum := 0.0
	for _, f := range v {
		sum += f * f
	}
	return math.Sqrt(sum)
}
