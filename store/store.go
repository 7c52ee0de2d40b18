package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/ragflow/types"
)

// ErrDocumentNotFound 文档不存在。
var ErrDocumentNotFound = errors.New("document not found")

// Config 持久化层配置。
type Config struct {
	// DSN sqlite 数据源，如 "ragflow.db" 或 "file::memory:?cache=shared"。
	DSN string `yaml:"dsn" json:"dsn"`
}

// DocumentStore 文档/分块/向量的 sqlite 持久化。
type DocumentStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open 打开数据库并迁移表结构。
func Open(cfg Config, logger *zap.Logger) (*DocumentStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.DSN, err)
	}
	if err := db.AutoMigrate(&DocumentRecord{}, &ChunkRecord{}, &EmbeddingRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &DocumentStore{
		db:     db,
		logger: logger.With(zap.String("component", "document_store")),
	}, nil
}

// SaveDocument 写入或更新文档行。
func (s *DocumentStore) SaveDocument(ctx context.Context, doc types.Document) error {
	record, err := toDocumentRecord(doc)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

// UpdateStatus 更新文档的摄取状态。
func (s *DocumentStore) UpdateStatus(ctx context.Context, documentID string, status types.DocumentStatus) error {
	result := s.db.WithContext(ctx).
		Model(&DocumentRecord{}).
		Where("id = ?", documentID).
		Update("status", string(status))
	if result.Error != nil {
		return fmt.Errorf("update status of document %s: %w", documentID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("update status of document %s: %w", documentID, ErrDocumentNotFound)
	}
	return nil
}

// GetDocument 读取一个文档。
func (s *DocumentStore) GetDocument(ctx context.Context, documentID string) (types.Document, error) {
	var record DocumentRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", documentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Document{}, fmt.Errorf("document %s: %w", documentID, ErrDocumentNotFound)
	}
	if err != nil {
		return types.Document{}, fmt.Errorf("get document %s: %w", documentID, err)
	}
	return record.toDocument()
}

// ListDocuments 按创建时间返回全部文档。
func (s *DocumentStore) ListDocuments(ctx context.Context) ([]types.Document, error) {
	var records []DocumentRecord
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs := make([]types.Document, 0, len(records))
	for _, r := range records {
		doc, err := r.toDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ListReady 返回全部 ready 状态的文档。
func (s *DocumentStore) ListReady(ctx context.Context) ([]types.Document, error) {
	var records []DocumentRecord
	err := s.db.WithContext(ctx).
		Where("status = ?", string(types.DocumentReady)).
		Order("created_at, id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list ready documents: %w", err)
	}
	docs := make([]types.Document, 0, len(records))
	for _, r := range records {
		doc, err := r.toDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// SaveChunks 原子写入一个文档的全部分块与向量。
// 重复摄取同一文档时旧的分块与向量先被清掉。
func (s *DocumentStore) SaveChunks(ctx context.Context, documentID string, chunks []types.Chunk, embeddings []types.EmbeddingRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var oldChunkIDs []string
		if err := tx.Model(&ChunkRecord{}).
			Where("document_id = ?", documentID).
			Pluck("id", &oldChunkIDs).Error; err != nil {
			return fmt.Errorf("collect old chunks of %s: %w", documentID, err)
		}
		if len(oldChunkIDs) > 0 {
			if err := tx.Where("chunk_id IN ?", oldChunkIDs).Delete(&EmbeddingRow{}).Error; err != nil {
				return fmt.Errorf("delete old embeddings of %s: %w", documentID, err)
			}
			if err := tx.Where("document_id = ?", documentID).Delete(&ChunkRecord{}).Error; err != nil {
				return fmt.Errorf("delete old chunks of %s: %w", documentID, err)
			}
		}

		for _, chunk := range chunks {
			record := toChunkRecord(chunk)
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("save chunk %s: %w", chunk.ID, err)
			}
		}
		for _, emb := range embeddings {
			row, err := toEmbeddingRow(emb)
			if err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("save embedding for chunk %s: %w", emb.ChunkID, err)
			}
		}
		return nil
	})
}

// LoadChunks 按位置顺序读取文档的分块。
func (s *DocumentStore) LoadChunks(ctx context.Context, documentID string) ([]types.Chunk, error) {
	var records []ChunkRecord
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("position").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load chunks of %s: %w", documentID, err)
	}
	chunks := make([]types.Chunk, 0, len(records))
	for _, r := range records {
		chunks = append(chunks, r.toChunk())
	}
	return chunks, nil
}

// LoadEmbeddings 读取文档在指定模型下的全部向量。
func (s *DocumentStore) LoadEmbeddings(ctx context.Context, documentID, model string) ([]types.EmbeddingRecord, error) {
	var rows []EmbeddingRow
	err := s.db.WithContext(ctx).
		Joins("JOIN chunks ON chunks.id = embeddings.chunk_id").
		Where("chunks.document_id = ? AND embeddings.model = ?", documentID, model).
		Order("chunks.position").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load embeddings of %s: %w", documentID, err)
	}
	records := make([]types.EmbeddingRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toEmbeddingRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// DeleteDocument 删除文档及其分块与向量。
func (s *DocumentStore) DeleteDocument(ctx context.Context, documentID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chunkIDs []string
		if err := tx.Model(&ChunkRecord{}).
			Where("document_id = ?", documentID).
			Pluck("id", &chunkIDs).Error; err != nil {
			return fmt.Errorf("collect chunks of %s: %w", documentID, err)
		}
		if len(chunkIDs) > 0 {
			if err := tx.Where("chunk_id IN ?", chunkIDs).Delete(&EmbeddingRow{}).Error; err != nil {
				return fmt.Errorf("delete embeddings of %s: %w", documentID, err)
			}
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&ChunkRecord{}).Error; err != nil {
			return fmt.Errorf("delete chunks of %s: %w", documentID, err)
		}
		result := tx.Where("id = ?", documentID).Delete(&DocumentRecord{})
		if result.Error != nil {
			return fmt.Errorf("delete document %s: %w", documentID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("delete document %s: %w", documentID, ErrDocumentNotFound)
		}
		return nil
	})
}

// Close 关闭底层连接。
func (s *DocumentStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
