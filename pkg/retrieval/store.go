// Package retrieval defines the retrieval collaborator interface and an
// in-memory embedding-backed implementation.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Result is one retrieved fragment with its similarity to the query.
type Result struct {
	Content        string
	Source         string
	RelevanceScore float64 // 0..1
}

// Store is the retrieval collaborator: ordered best-first search.
type Store interface {
	Search(ctx context.Context, query string, topK int) ([]Result, error)
}

// Embedder produces embedding vectors. The resilience wrapper satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type document struct {
	content string
	source  string
	vector  []float32
}

// MemoryStore is an in-memory cosine-similarity store over an embedder.
type MemoryStore struct {
	embedder Embedder

	mu   sync.RWMutex
	docs []document
}

// NewMemoryStore builds an empty store.
func NewMemoryStore(embedder Embedder) *MemoryStore {
	return &MemoryStore{embedder: embedder}
}

// Add embeds and stores one document.
func (s *MemoryStore) Add(ctx context.Context, content, source string) error {
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embedding document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, document{content: content, source: source, vector: vec})
	return nil
}

// Len reports the stored document count.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Search embeds the query and returns the topK most similar documents,
// best first.
func (s *MemoryStore) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}

	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	s.mu.RLock()
	results := make([]Result, 0, len(s.docs))
	for _, doc := range s.docs {
		results = append(results, Result{
			Content:        doc.content,
			Source:         doc.source,
			RelevanceScore: cosine(qvec, doc.vector),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// cosine returns similarity mapped to [0,1]; mismatched or zero vectors
// score zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (sim + 1) / 2
}
