package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// IngestResult 单文档摄取结果。批次内各文档互不影响：
// 一个文档失败只会让自己进入 failed 状态，不会终止批次。
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Err        error  `json:"-"`
}

// Ingest 批量摄取文档：校验 -> 分块 -> 嵌入 -> 索引 -> 持久化。
// 至少一个文档成功且配置了关系抽取器时，后台异步重建知识图谱。
func (e *Engine) Ingest(ctx context.Context, docs []types.Document) []IngestResult {
	results := make([]IngestResult, 0, len(docs))
	indexed := 0
	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now()
		}
		res := IngestResult{DocumentID: doc.ID}
		res.Chunks, res.Err = e.ingestOne(ctx, doc)
		if res.Err != nil {
			e.logger.Warn("document ingestion failed",
				zap.String("document_id", doc.ID),
				zap.String("name", doc.Name),
				zap.Error(res.Err))
			if e.metrics != nil {
				e.metrics.RecordIngestion("failed")
			}
		} else {
			indexed++
			e.logger.Info("document ingested",
				zap.String("document_id", doc.ID),
				zap.String("name", doc.Name),
				zap.Int("chunks", res.Chunks))
			if e.metrics != nil {
				e.metrics.RecordIngestion("ok")
			}
		}
		results = append(results, res)
	}
	if indexed > 0 {
		e.scheduleGraphRebuild()
	}
	return results
}

func (e *Engine) ingestOne(ctx context.Context, doc types.Document) (int, error) {
	if err := e.validateDocument(doc); err != nil {
		return 0, err
	}

	doc.Status = types.DocumentPending
	if e.docStore != nil {
		if err := e.docStore.SaveDocument(ctx, doc); err != nil {
			return 0, types.NewError(types.ErrCodeIngest, "persist document", err)
		}
	}

	chunks, err := e.chunker.Chunk(doc)
	if err != nil {
		return 0, e.failDocument(ctx, doc.ID, types.NewError(types.ErrCodeIngest, "chunk document", err))
	}
	if len(chunks) == 0 {
		return 0, e.failDocument(ctx, doc.ID, types.NewError(types.ErrCodeIngest, "document has no extractable text", nil))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if e.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.RecordCapability("embed", status)
	}
	if err != nil {
		return 0, e.failDocument(ctx, doc.ID, types.NewError(types.ErrCodeEmbeddingUnavailable, "embed chunks", err))
	}
	if len(vectors) != len(chunks) {
		return 0, e.failDocument(ctx, doc.ID, types.NewError(types.ErrCodeEmbeddingUnavailable,
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)), nil))
	}

	// 重新摄取同一文档时先清掉旧分块，避免索引里残留陈旧向量。
	e.index.Remove(doc.ID)
	for i, c := range chunks {
		if err := e.index.Upsert(c, vectors[i]); err != nil {
			e.index.Remove(doc.ID)
			return 0, e.failDocument(ctx, doc.ID, types.NewError(types.ErrCodeIngest, "index chunk", err))
		}
	}

	if e.docStore != nil {
		embeddings := make([]types.EmbeddingRecord, len(chunks))
		for i, c := range chunks {
			embeddings[i] = types.EmbeddingRecord{
				ChunkID: c.ID,
				Vector:  vectors[i],
				Model:   e.embedder.Model(),
			}
		}
		if err := e.docStore.SaveChunks(ctx, doc.ID, chunks, embeddings); err != nil {
			e.index.Remove(doc.ID)
			return 0, e.failDocument(ctx, doc.ID, types.NewError(types.ErrCodeIngest, "persist chunks", err))
		}
		if err := e.docStore.UpdateStatus(ctx, doc.ID, types.DocumentReady); err != nil {
			e.index.Remove(doc.ID)
			return 0, types.NewError(types.ErrCodeIngest, "mark document ready", err)
		}
	}

	e.chunkMu.Lock()
	e.chunks[doc.ID] = chunks
	e.chunkMu.Unlock()
	return len(chunks), nil
}

func (e *Engine) validateDocument(doc types.Document) error {
	if supported := e.cfg.Ingest.SupportedMediaTypes; len(supported) > 0 {
		ok := false
		for _, mt := range supported {
			if types.MediaType(mt) == doc.MediaType {
				ok = true
				break
			}
		}
		if !ok {
			return types.NewError(types.ErrCodeIngest, fmt.Sprintf("unsupported media type %q", doc.MediaType), nil)
		}
	}
	if limit := e.cfg.Ingest.MaxTextBytes; limit > 0 && len(doc.Text()) > limit {
		return types.NewError(types.ErrCodeIngest, fmt.Sprintf("document text exceeds %d bytes", limit), nil)
	}
	return nil
}

// failDocument 将文档标记为 failed 并原样返回 cause。
// 标记失败只记日志：摄取错误本身的优先级更高。
func (e *Engine) failDocument(ctx context.Context, documentID string, cause error) error {
	if e.docStore != nil {
		if err := e.docStore.UpdateStatus(ctx, documentID, types.DocumentFailed); err != nil {
			e.logger.Warn("failed to mark document as failed",
				zap.String("document_id", documentID),
				zap.Error(err))
		}
	}
	return cause
}

// DeleteDocument 从索引、分块缓存与持久层移除文档，随后后台重建图谱。
func (e *Engine) DeleteDocument(ctx context.Context, documentID string) error {
	e.index.Remove(documentID)

	e.chunkMu.Lock()
	_, existed := e.chunks[documentID]
	delete(e.chunks, documentID)
	e.chunkMu.Unlock()

	if e.docStore != nil {
		if err := e.docStore.DeleteDocument(ctx, documentID); err != nil {
			return err
		}
	}
	if existed {
		e.scheduleGraphRebuild()
	}
	return nil
}

// scheduleGraphRebuild 后台异步重建图谱。检索在重建期间继续使用旧快照。
func (e *Engine) scheduleGraphRebuild() {
	if e.extractor == nil {
		return
	}
	go func() {
		if err := e.RebuildGraph(context.Background()); err != nil {
			e.logger.Warn("background graph rebuild failed", zap.Error(err))
		}
	}()
}

// RebuildGraph 用当前全部就绪文档的分块同步重建知识图谱。
// 新快照原子替换旧快照，进行中的查询不受影响。
func (e *Engine) RebuildGraph(ctx context.Context) error {
	if e.extractor == nil {
		return types.NewError(types.ErrCodeExtractionUnavailable, "no relation extractor configured", nil)
	}
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()

	chunks := e.allChunks()
	start := time.Now()
	snap, err := e.graph.Build(ctx, chunks, e.extractor)
	if err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.RecordGraphBuild(snap.EntityCount(), time.Since(start))
	}
	e.logger.Info("knowledge graph rebuilt",
		zap.Int("chunks", len(chunks)),
		zap.Int("entities", snap.EntityCount()),
		zap.Duration("took", time.Since(start)))
	return nil
}

// allChunks 按文档 ID、块位置的稳定顺序收集全部就绪分块。
func (e *Engine) allChunks() []types.Chunk {
	e.chunkMu.RLock()
	defer e.chunkMu.RUnlock()
	ids := make([]string, 0, len(e.chunks))
	for id := range e.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []types.Chunk
	for _, id := range ids {
		out = append(out, e.chunks[id]...)
	}
	return out
}
