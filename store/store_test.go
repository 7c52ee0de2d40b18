package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragflow/types"
)

func newTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	s, err := Open(Config{DSN: filepath.Join(t.TempDir(), "ragflow_test.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDocument(id string) types.Document {
	return types.Document{
		ID:        id,
		Name:      id + ".txt",
		MediaType: types.MediaTypeText,
		Blocks:    []string{"first block", "second block"},
		Status:    types.DocumentPending,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func testChunks(documentID string, n int) ([]types.Chunk, []types.EmbeddingRecord) {
	chunks := make([]types.Chunk, 0, n)
	embeddings := make([]types.EmbeddingRecord, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-c%d", documentID, i)
		chunks = append(chunks, types.Chunk{
			ID:         id,
			DocumentID: documentID,
			Text:       fmt.Sprintf("chunk %d text", i),
			TokenCount: 3,
			Position:   i,
		})
		embeddings = append(embeddings, types.EmbeddingRecord{
			ChunkID: id,
			Model:   "test-embed",
			Vector:  []float64{float64(i), 1, 0},
		})
	}
	return chunks, embeddings
}

func TestDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	doc := testDocument("d1")

	require.NoError(t, s.SaveDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, doc.Name, got.Name)
	assert.Equal(t, doc.Blocks, got.Blocks)
	assert.Equal(t, types.DocumentPending, got.Status)
}

func TestGetDocumentNotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.GetDocument(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveDocument(ctx, testDocument("d1")))

	require.NoError(t, s.UpdateStatus(ctx, "d1", types.DocumentReady))

	doc, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, types.DocumentReady, doc.Status)

	assert.ErrorIs(t, s.UpdateStatus(ctx, "ghost", types.DocumentFailed), ErrDocumentNotFound)
}

func TestListReadyFiltersByStatus(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"d1", "d2", "d3"} {
		require.NoError(t, s.SaveDocument(ctx, testDocument(id)))
	}
	require.NoError(t, s.UpdateStatus(ctx, "d1", types.DocumentReady))
	require.NoError(t, s.UpdateStatus(ctx, "d2", types.DocumentFailed))

	ready, err := s.ListReady(ctx)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "d1", ready[0].ID)

	all, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSaveAndLoadChunksWithEmbeddings(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveDocument(ctx, testDocument("d1")))

	chunks, embeddings := testChunks("d1", 3)
	require.NoError(t, s.SaveChunks(ctx, "d1", chunks, embeddings))

	loaded, err := s.LoadChunks(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for i, c := range loaded {
		assert.Equal(t, i, c.Position)
	}

	vectors, err := s.LoadEmbeddings(ctx, "d1", "test-embed")
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float64{0, 1, 0}, vectors[0].Vector)
	assert.Equal(t, "test-embed", vectors[0].Model)

	other, err := s.LoadEmbeddings(ctx, "d1", "another-model")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSaveChunksReplacesOldRows(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveDocument(ctx, testDocument("d1")))

	first, firstEmb := testChunks("d1", 4)
	require.NoError(t, s.SaveChunks(ctx, "d1", first, firstEmb))

	second := []types.Chunk{{
		ID: "d1-v2-c0", DocumentID: "d1", Text: "replacement", TokenCount: 1, Position: 0,
	}}
	secondEmb := []types.EmbeddingRecord{{
		ChunkID: "d1-v2-c0", Model: "test-embed", Vector: []float64{1, 0, 0},
	}}
	require.NoError(t, s.SaveChunks(ctx, "d1", second, secondEmb))

	loaded, err := s.LoadChunks(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "d1-v2-c0", loaded[0].ID)

	vectors, err := s.LoadEmbeddings(ctx, "d1", "test-embed")
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
}

func TestDeleteDocumentCascades(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveDocument(ctx, testDocument("d1")))
	chunks, embeddings := testChunks("d1", 2)
	require.NoError(t, s.SaveChunks(ctx, "d1", chunks, embeddings))

	require.NoError(t, s.DeleteDocument(ctx, "d1"))

	_, err := s.GetDocument(ctx, "d1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	loaded, err := s.LoadChunks(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, loaded)

	assert.ErrorIs(t, s.DeleteDocument(ctx, "d1"), ErrDocumentNotFound)
}
