package types

import "time"

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus string

const (
	// DocumentPending means the document is accepted but not yet chunked/indexed.
	DocumentPending DocumentStatus = "pending"
	// DocumentReady means the document is chunked, embedded and searchable.
	DocumentReady DocumentStatus = "ready"
	// DocumentFailed means ingestion failed for this document only.
	DocumentFailed DocumentStatus = "failed"
)

// MediaType identifies the origin format of an ingested document.
// Format-specific extraction happens upstream; the engine only ever sees
// raw text blocks plus this tag.
type MediaType string

const (
	MediaTypePDF   MediaType = "pdf"
	MediaTypeText  MediaType = "txt"
	MediaTypeDocx  MediaType = "docx"
	MediaTypeImage MediaType = "image"
	MediaTypePPTX  MediaType = "pptx"
	MediaTypeXLSX  MediaType = "xlsx"
)

// Document is an ingested source document.
// Blocks preserve the upstream extractor's ordering (pages, sections).
type Document struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	MediaType MediaType      `json:"media_type"`
	Blocks    []string       `json:"blocks"`
	Status    DocumentStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// Text joins the document's raw blocks in order.
func (d Document) Text() string {
	switch len(d.Blocks) {
	case 0:
		return ""
	case 1:
		return d.Blocks[0]
	}
	n := 0
	for _, b := range d.Blocks {
		n += len(b) + 1
	}
	buf := make([]byte, 0, n)
	for i, b := range d.Blocks {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, b...)
	}
	return string(buf)
}

// Chunk is the retrieval unit: a bounded-size span of a document's text.
// Chunks are immutable once created.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	// Position is the zero-based index of the chunk within its document.
	Position int    `json:"position"`
	Page     int    `json:"page,omitempty"`
	Section  string `json:"section,omitempty"`
}

// EmbeddingRecord binds a chunk to its vector under a specific embedding
// model. One record per (chunk, model) pair; a model change recomputes.
type EmbeddingRecord struct {
	ChunkID string    `json:"chunk_id"`
	Vector  []float64 `json:"vector"`
	Model   string    `json:"model"`
}
