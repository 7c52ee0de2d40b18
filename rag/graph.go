package rag

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/types"
)

// Entity 是知识图谱中的节点，Provenance 记录它被抽取自哪些 chunk。
type Entity struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type,omitempty"`
	ChunkIDs []string `json:"chunk_ids"`
}

// Relation 是有向边。(Source, Target, Label) 相同的边在构建时合并，
// 保留最高置信度及其来源 chunk。
type Relation struct {
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	Label      string  `json:"label"`
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Confidence float64 `json:"confidence"`
}

// Snapshot 是一次构建产出的不可变图谱视图。
// 发布后绝不修改；重建产生新版本并原子替换 current 指针，
// 进行中的遍历始终绑定遍历开始时的快照。
type Snapshot struct {
	Version  uint64
	entities map[string]Entity
	byName   map[string]string
	out      map[string][]Relation
}

// EntityCount 返回快照中的实体数。
func (s *Snapshot) EntityCount() int { return len(s.entities) }

// RelationCount 返回快照中的关系数。
func (s *Snapshot) RelationCount() int {
	n := 0
	for _, rels := range s.out {
		n += len(rels)
	}
	return n
}

// KnowledgeGraph 持有当前快照指针并负责构建与遍历。
// 重建从不阻塞读者。
type KnowledgeGraph struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	buildMu sync.Mutex
	logger  *zap.Logger
}

// NewKnowledgeGraph 创建空图谱；在首次 Build 发布快照之前，
// Query 返回 ErrCodeGraphUnavailable。
func NewKnowledgeGraph(logger *zap.Logger) *KnowledgeGraph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeGraph{logger: logger}
}

// Current 返回当前快照，未发布过时为 nil。
func (g *KnowledgeGraph) Current() *Snapshot { return g.current.Load() }

// normalizeName 规范化实体名：小写 + 压缩空白。
// 同名实体（规范化后相同）在一次构建内合并。
func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Build 对一批 chunk 调用抽取能力并发布新快照。
// 同一时间只有一个构建在进行；抽取对单个 chunk 失败按
// 尽力而为处理，全部失败才返回 ErrCodeExtractionUnavailable。
func (g *KnowledgeGraph) Build(ctx context.Context, chunks []types.Chunk, extractor llm.RelationExtractor) (*Snapshot, error) {
	g.buildMu.Lock()
	defer g.buildMu.Unlock()

	type sourced struct {
		triple llm.RelationTriple
		chunk  types.Chunk
	}

	var collected []sourced
	failures := 0
	var lastErr error
	for _, chunk := range chunks {
		triples, err := extractor.ExtractRelations(ctx, chunk.Text)
		if err != nil {
			failures++
			lastErr = err
			g.logger.Warn("relation extraction failed for chunk",
				zap.String("chunk_id", chunk.ID),
				zap.Error(err))
			continue
		}
		for _, t := range triples {
			collected = append(collected, sourced{triple: t, chunk: chunk})
		}
	}
	if len(chunks) > 0 && failures == len(chunks) {
		return nil, types.NewError(types.ErrCodeExtractionUnavailable, "extraction failed for all chunks", lastErr)
	}

	entities := make(map[string]Entity)
	byName := make(map[string]string)

	addEntity := func(name string, chunkID string) string {
		norm := normalizeName(name)
		id, ok := byName[norm]
		if !ok {
			id = "ent:" + norm
			byName[norm] = id
			entities[id] = Entity{ID: id, Name: strings.TrimSpace(name), ChunkIDs: []string{chunkID}}
			return id
		}
		e := entities[id]
		found := false
		for _, c := range e.ChunkIDs {
			if c == chunkID {
				found = true
				break
			}
		}
		if !found {
			e.ChunkIDs = append(e.ChunkIDs, chunkID)
			entities[id] = e
		}
		return id
	}

	// (source, target, label) 相同的关系合并，保留最高置信度。
	type relKey struct{ src, dst, label string }
	merged := make(map[relKey]Relation)
	for _, s := range collected {
		srcID := addEntity(s.triple.Subject, s.chunk.ID)
		dstID := addEntity(s.triple.Object, s.chunk.ID)
		if srcID == dstID {
			continue
		}
		key := relKey{src: srcID, dst: dstID, label: s.triple.Predicate}
		rel := Relation{
			SourceID:   srcID,
			TargetID:   dstID,
			Label:      s.triple.Predicate,
			ChunkID:    s.chunk.ID,
			DocumentID: s.chunk.DocumentID,
			Confidence: s.triple.Confidence,
		}
		if prev, ok := merged[key]; !ok || rel.Confidence > prev.Confidence {
			merged[key] = rel
		}
	}

	out := make(map[string][]Relation)
	for _, rel := range merged {
		out[rel.SourceID] = append(out[rel.SourceID], rel)
	}
	// 邻接表排序，保证遍历顺序确定。
	for id := range out {
		rels := out[id]
		sort.Slice(rels, func(i, j int) bool {
			if rels[i].TargetID != rels[j].TargetID {
				return rels[i].TargetID < rels[j].TargetID
			}
			return rels[i].Label < rels[j].Label
		})
		out[id] = rels
	}

	snap := &Snapshot{
		Version:  g.version.Add(1),
		entities: entities,
		byName:   byName,
		out:      out,
	}
	g.current.Store(snap)

	g.logger.Info("knowledge graph snapshot published",
		zap.Uint64("version", snap.Version),
		zap.Int("entities", len(entities)),
		zap.Int("relations", len(merged)),
		zap.Int("chunks", len(chunks)),
		zap.Int("extraction_failures", failures))

	return snap, nil
}

// graphPath 是遍历过程中的一条路径。
type graphPath struct {
	terminal string
	rels     []Relation
	score    float64
}

// Query 从种子词出发做广度优先遍历，返回按路径评分排序的证据。
// 评分 = 置信度乘积 / (1 + 跳数)；结果按终点实体去重，
// 上限 maxResults。从未发布过快照时返回 ErrCodeGraphUnavailable。
func (g *KnowledgeGraph) Query(seedTerms []string, scope []string, maxHops, maxResults int) ([]types.EvidenceItem, error) {
	snap := g.current.Load()
	if snap == nil {
		return nil, types.NewError(types.ErrCodeGraphUnavailable, "no knowledge graph snapshot published", nil)
	}
	return snap.Query(seedTerms, scope, maxHops, maxResults)
}

// Query 在单个快照上遍历，对并发重建完全免疫。
func (s *Snapshot) Query(seedTerms []string, scope []string, maxHops, maxResults int) ([]types.EvidenceItem, error) {
	if maxHops <= 0 {
		maxHops = 2
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	scopeSet := make(map[string]struct{}, len(scope))
	for _, id := range scope {
		scopeSet[id] = struct{}{}
	}
	inScope := func(rel Relation) bool {
		if len(scopeSet) == 0 {
			return true
		}
		_, ok := scopeSet[rel.DocumentID]
		return ok
	}

	seeds := s.resolveSeeds(seedTerms)
	if len(seeds) == 0 {
		return nil, nil
	}

	// BFS：逐跳扩展，路径上不允许回到已访问实体。
	frontier := make([]graphPath, 0, len(seeds))
	for _, id := range seeds {
		frontier = append(frontier, graphPath{terminal: id, score: 1.0})
	}

	best := make(map[string]graphPath)
	for hop := 1; hop <= maxHops; hop++ {
		var next []graphPath
		for _, p := range frontier {
			for _, rel := range s.out[p.terminal] {
				if !inScope(rel) {
					continue
				}
				if pathVisits(p, rel.TargetID) {
					continue
				}
				np := graphPath{
					terminal: rel.TargetID,
					rels:     append(append([]Relation(nil), p.rels...), rel),
				}
				np.score = pathScore(np.rels)
				next = append(next, np)

				// 按终点实体去重，保留最高分路径。
				if prev, ok := best[np.terminal]; !ok || np.score > prev.score {
					best[np.terminal] = np
				}
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}

	results := make([]graphPath, 0, len(best))
	for _, p := range best {
		results = append(results, p)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].terminal < results[j].terminal
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	items := make([]types.EvidenceItem, 0, len(results))
	for _, p := range results {
		items = append(items, s.pathEvidence(p))
	}
	return items, nil
}

// resolveSeeds 先精确匹配规范化名，再退化为子串模糊匹配。
// 模糊匹配的候选按名字排序，保证确定性。
func (s *Snapshot) resolveSeeds(terms []string) []string {
	seen := make(map[string]struct{})
	var ids []string

	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	var names []string
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, term := range terms {
		norm := normalizeName(term)
		if norm == "" {
			continue
		}
		if id, ok := s.byName[norm]; ok {
			add(id)
			continue
		}
		for _, name := range names {
			if strings.Contains(name, norm) || strings.Contains(norm, name) {
				add(s.byName[name])
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// pathVisits 报告路径是否已经经过某实体（含起点）。
func pathVisits(p graphPath, id string) bool {
	if len(p.rels) == 0 {
		return p.terminal == id
	}
	if p.rels[0].SourceID == id {
		return true
	}
	for _, rel := range p.rels {
		if rel.TargetID == id {
			return true
		}
	}
	return false
}

// pathScore 路径评分：跳数越多越低，关系置信度乘积越高越高。
func pathScore(rels []Relation) float64 {
	product := 1.0
	for _, rel := range rels {
		product *= rel.Confidence
	}
	return product / float64(1+len(rels))
}

// pathEvidence 把一条路径渲染为证据项。
// Provenance 取终端关系的来源 chunk。
func (s *Snapshot) pathEvidence(p graphPath) types.EvidenceItem {
	var parts []string
	var b strings.Builder
	for i, rel := range p.rels {
		if i == 0 {
			src := s.entities[rel.SourceID]
			parts = append(parts, src.Name)
			b.WriteString(src.Name)
		}
		dst := s.entities[rel.TargetID]
		parts = append(parts, rel.Label, dst.Name)
		b.WriteString(" -[")
		b.WriteString(rel.Label)
		b.WriteString("]-> ")
		b.WriteString(dst.Name)
	}

	last := p.rels[len(p.rels)-1]
	return types.EvidenceItem{
		ChunkID:    last.ChunkID,
		DocumentID: last.DocumentID,
		Path:       parts,
		Text:       b.String(),
		Score:      p.score,
		Source:     types.EvidenceGraph,
	}
}
