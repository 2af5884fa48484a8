package port

import "context"

// VectorIndex hands out namespace-scoped handles on a remote or local index.
type VectorIndex interface {
	Namespace(index, namespace string) VectorNamespace
}

// VectorNamespace stores and queries product vectors inside one namespace.
type VectorNamespace interface {
	// Upsert adds or replaces records by id.
	Upsert(ctx context.Context, records []VectorRecord) error

	// Update replaces the metadata of an existing record. A nil values slice
	// keeps the stored vector.
	Update(ctx context.Context, id string, values []float32, metadata map[string]string) error

	// Delete removes records. Unknown ids are not an error.
	Delete(ctx context.Context, ids []string) error

	// Query returns up to topK nearest records, highest score first.
	Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]VectorMatch, error)
}

// IndexAdmin provisions indexes.
type IndexAdmin interface {
	// EnsureIndex creates the index when it does not exist yet. An existing
	// index with a different dimension is an error.
	EnsureIndex(ctx context.Context, name string, dimension int) error
}

// VectorRecord is a vector to be stored.
type VectorRecord struct {
	ID       string            // Product id as decimal string
	Values   []float32         // Embedding vector
	Metadata map[string]string // Display copy, never authoritative
}

// VectorMatch is one query hit.
type VectorMatch struct {
	ID       string
	Score    float64 // Similarity score (higher is better)
	Metadata map[string]string
}
