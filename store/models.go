package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/ragflow/types"
)

// DocumentRecord 文档行。Blocks 以 JSON 编码保存，保持上游
// 抽取器给出的块顺序。
type DocumentRecord struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	MediaType string    `gorm:"size:20;not null" json:"media_type"`
	Blocks    string    `gorm:"type:text" json:"blocks"`
	Status    string    `gorm:"size:16;not null;index:idx_doc_status" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名。
func (DocumentRecord) TableName() string { return "documents" }

// ChunkRecord 分块行，文档删除时级联清理。
type ChunkRecord struct {
	ID         string `gorm:"primaryKey;size:64" json:"id"`
	DocumentID string `gorm:"size:64;not null;index:idx_chunk_doc" json:"document_id"`
	Text       string `gorm:"type:text;not null" json:"text"`
	TokenCount int    `gorm:"not null" json:"token_count"`
	Position   int    `gorm:"not null" json:"position"`
	Page       int    `json:"page"`
	Section    string `gorm:"size:255" json:"section"`
}

func (ChunkRecord) TableName() string { return "chunks" }

// EmbeddingRow 向量行，(chunk_id, model) 唯一。
// 向量 JSON 编码：sqlite 没有原生向量类型，检索在内存索引进行。
type EmbeddingRow struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	ChunkID string `gorm:"size:64;not null;uniqueIndex:idx_embedding_chunk_model" json:"chunk_id"`
	Model   string `gorm:"size:100;not null;uniqueIndex:idx_embedding_chunk_model" json:"model"`
	Vector  string `gorm:"type:text;not null" json:"vector"`
}

func (EmbeddingRow) TableName() string { return "embeddings" }

func toDocumentRecord(doc types.Document) (DocumentRecord, error) {
	blocks, err := json.Marshal(doc.Blocks)
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("encode document blocks: %w", err)
	}
	return DocumentRecord{
		ID:        doc.ID,
		Name:      doc.Name,
		MediaType: string(doc.MediaType),
		Blocks:    string(blocks),
		Status:    string(doc.Status),
		CreatedAt: doc.CreatedAt,
	}, nil
}

func (r DocumentRecord) toDocument() (types.Document, error) {
	var blocks []string
	if r.Blocks != "" {
		if err := json.Unmarshal([]byte(r.Blocks), &blocks); err != nil {
			return types.Document{}, fmt.Errorf("decode document %s blocks: %w", r.ID, err)
		}
	}
	return types.Document{
		ID:        r.ID,
		Name:      r.Name,
		MediaType: types.MediaType(r.MediaType),
		Blocks:    blocks,
		Status:    types.DocumentStatus(r.Status),
		CreatedAt: r.CreatedAt,
	}, nil
}

func toChunkRecord(chunk types.Chunk) ChunkRecord {
	return ChunkRecord{
		ID:         chunk.ID,
		DocumentID: chunk.DocumentID,
		Text:       chunk.Text,
		TokenCount: chunk.TokenCount,
		Position:   chunk.Position,
		Page:       chunk.Page,
		Section:    chunk.Section,
	}
}

func (r ChunkRecord) toChunk() types.Chunk {
	return types.Chunk{
		ID:         r.ID,
		DocumentID: r.DocumentID,
		Text:       r.Text,
		TokenCount: r.TokenCount,
		Position:   r.Position,
		Page:       r.Page,
		Section:    r.Section,
	}
}

func toEmbeddingRow(rec types.EmbeddingRecord) (EmbeddingRow, error) {
	vector, err := json.Marshal(rec.Vector)
	if err != nil {
		return EmbeddingRow{}, fmt.Errorf("encode embedding vector: %w", err)
	}
	return EmbeddingRow{
		ChunkID: rec.ChunkID,
		Model:   rec.Model,
		Vector:  string(vector),
	}, nil
}

func (r EmbeddingRow) toEmbeddingRecord() (types.EmbeddingRecord, error) {
	var vector []float64
	if err := json.Unmarshal([]byte(r.Vector), &vector); err != nil {
		return types.EmbeddingRecord{}, fmt.Errorf("decode embedding for chunk %s: %w", r.ChunkID, err)
	}
	return types.EmbeddingRecord{
		ChunkID: r.ChunkID,
		Model:   r.Model,
		Vector:  vector,
	}, nil
}
