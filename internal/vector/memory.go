package vector

import (
	"context"
	"sort"
	"sync"
)

type indexedDoc struct {
	doc Document
	vec []float32
}

// MemoryIndex is an in-process brute-force cosine index. Collections are
// independent; reads and writes are safe for concurrent use.
type MemoryIndex struct {
	embedder Embedder

	mu          sync.RWMutex
	collections map[string][]indexedDoc
}

func NewMemoryIndex(e Embedder) *MemoryIndex {
	return &MemoryIndex{
		embedder:    e,
		collections: map[string][]indexedDoc{},
	}
}

func (m *MemoryIndex) Index(ctx context.Context, collection string, docs ...Document) error {
	for _, d := range docs {
		vec, err := m.embedder.Embed(ctx, d.Text)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.collections[collection] = append(m.collections[collection], indexedDoc{doc: d, vec: vec})
		m.mu.Unlock()
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, collection, query string, filter Filter, topK int) ([]Hit, error) {
	qv, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}

	m.mu.RLock()
	docs := m.collections[collection]
	m.mu.RUnlock()

	hits := make([]Hit, 0, len(docs))
	for _, d := range docs {
		if !filter.Matches(d.doc.Metadata) {
			continue
		}
		hits = append(hits, Hit{
			ID:       d.doc.ID,
			Text:     d.doc.Text,
			Score:    dot(qv, d.vec),
			Metadata: d.doc.Metadata,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Vectors are normalised at embed time, so the dot product is the cosine.
func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
