package types

import "strings"

// EvidenceSource tags where a piece of evidence came from.
type EvidenceSource string

const (
	// EvidenceVector marks evidence produced by vector similarity search.
	EvidenceVector EvidenceSource = "vector"
	// EvidenceGraph marks evidence produced by knowledge-graph traversal.
	EvidenceGraph EvidenceSource = "graph"
	// EvidenceWeb marks evidence produced by an external web search capability.
	EvidenceWeb EvidenceSource = "web"
)

// Strategy selects how evidence is retrieved for a turn.
type Strategy string

const (
	StrategyBasic          Strategy = "basic"
	StrategyKnowledgeGraph Strategy = "knowledge_graph"
	StrategyHybrid         Strategy = "hybrid"
)

// Valid reports whether s is one of the known strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyBasic, StrategyKnowledgeGraph, StrategyHybrid:
		return true
	}
	return false
}

// EvidenceItem is one ranked piece of supporting material, used both for
// prompt assembly and for citations. For vector evidence ChunkID is the
// retrieved chunk; for graph evidence ChunkID is the provenance chunk of
// the terminal relation and Path holds the traversed entities/labels; for
// web evidence URL identifies the source.
type EvidenceItem struct {
	ChunkID    string         `json:"chunk_id,omitempty"`
	DocumentID string         `json:"document_id,omitempty"`
	// Path is a human-readable relation path, e.g.
	// ["Alice", "works_at", "Acme", "located_in", "Berlin"].
	Path       []string       `json:"path,omitempty"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	Source     EvidenceSource `json:"source"`
	TokenCount int            `json:"token_count"`
	// Position carries the chunk's in-document position for deterministic
	// tie-breaking; zero for graph and web evidence.
	Position int    `json:"position,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Key returns a stable identity for deduplication: the provenance chunk id
// when present, otherwise the path or URL.
func (e EvidenceItem) Key() string {
	if e.ChunkID != "" {
		return e.ChunkID
	}
	if len(e.Path) > 0 {
		return "path:" + strings.Join(e.Path, ">")
	}
	return "url:" + e.URL
}
