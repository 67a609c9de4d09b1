// Package vector provides semantic search over embedded documents with
// tenant-scoped filtering.
package vector

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Hit is one search result.
type Hit struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Filter restricts a search by exact metadata match. All entries must hold.
type Filter map[string]string

// TenantFilter scopes a search to a single user's documents.
func TenantFilter(userID string) Filter {
	return Filter{"user_id": userID}
}

// Expr renders the filter as a boolean expression, keys sorted for a stable
// output. Useful for logging and for backends that take string predicates.
func (f Filter) Expr() string {
	if len(f) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s == '%s'", k, f[k]))
	}
	return strings.Join(parts, " && ")
}

// Matches reports whether metadata satisfies every filter entry.
func (f Filter) Matches(metadata map[string]any) bool {
	for k, want := range f {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

// Searcher runs semantic search over a named collection.
type Searcher interface {
	Search(ctx context.Context, collection, query string, filter Filter, topK int) ([]Hit, error)
}

// Document is an entry to index.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Indexer accepts documents into a collection.
type Indexer interface {
	Index(ctx context.Context, collection string, docs ...Document) error
}
