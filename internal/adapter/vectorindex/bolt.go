package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.etcd.io/bbolt"
	"storefront/internal/port"
)

var (
	bucketIndexes = []byte("indexes")
	keyIndexMeta  = []byte("_meta")
)

// BoltIndex implements the vector index on a local BoltDB file. Each index is
// a bucket holding its metadata and one nested bucket per namespace. Search is
// brute-force cosine over an in-memory copy of the namespace.
type BoltIndex struct {
	db *bbolt.DB
	mu sync.RWMutex
	// Loaded namespaces, keyed by index then namespace.
	cache map[string]map[string]map[string]vectorEntry
}

type vectorEntry struct {
	vector   []float32
	metadata map[string]string
}

type storedVector struct {
	Vector   []float32         `json:"v"`
	Metadata map[string]string `json:"m,omitempty"`
}

type indexMeta struct {
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
}

// OpenBolt opens (or creates) a BoltDB-backed vector index file.
func OpenBolt(path string) (*BoltIndex, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIndexes)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create indexes bucket: %w", err)
	}

	return &BoltIndex{
		db:    db,
		cache: make(map[string]map[string]map[string]vectorEntry),
	}, nil
}

func (s *BoltIndex) Close() error {
	return s.db.Close()
}

func (s *BoltIndex) Namespace(index, namespace string) port.VectorNamespace {
	return &boltNamespace{store: s, index: index, namespace: namespace}
}

// EnsureIndex records the index dimension. An existing index must match it.
func (s *BoltIndex) EnsureIndex(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("index %s: dimension must be positive", name)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketIndexes).CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return err
		}
		if data := b.Get(keyIndexMeta); data != nil {
			var meta indexMeta
			if err := json.Unmarshal(data, &meta); err != nil {
				return fmt.Errorf("index %s: corrupt metadata: %w", name, err)
			}
			if meta.Dimension != dimension {
				return fmt.Errorf("index %s has dimension %d, model needs %d", name, meta.Dimension, dimension)
			}
			return nil
		}
		data, err := json.Marshal(indexMeta{Dimension: dimension, Metric: "cosine"})
		if err != nil {
			return err
		}
		return b.Put(keyIndexMeta, data)
	})
}

// Count returns the number of vectors in a namespace.
func (s *BoltIndex) Count(index, namespace string) (int, error) {
	vectors, err := s.loaded(index, namespace)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(vectors), nil
}

// loaded returns the in-memory copy of a namespace, reading it from disk on
// first use.
func (s *BoltIndex) loaded(index, namespace string) (map[string]vectorEntry, error) {
	s.mu.RLock()
	vectors, ok := s.cache[index][namespace]
	s.mu.RUnlock()
	if ok {
		return vectors, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if vectors, ok := s.cache[index][namespace]; ok {
		return vectors, nil
	}

	vectors = make(map[string]vectorEntry)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := namespaceBucket(tx, index, namespace)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // Skip corrupted entries
			}
			vectors[string(k)] = vectorEntry{
				vector:   stored.Vector,
				metadata: stored.Metadata,
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}

	if s.cache[index] == nil {
		s.cache[index] = make(map[string]map[string]vectorEntry)
	}
	s.cache[index][namespace] = vectors
	return vectors, nil
}

func namespaceBucket(tx *bbolt.Tx, index, namespace string) *bbolt.Bucket {
	idx := tx.Bucket(bucketIndexes).Bucket([]byte(index))
	if idx == nil {
		return nil
	}
	return idx.Bucket([]byte(namespace))
}

func dimensionOf(idx *bbolt.Bucket) int {
	data := idx.Get(keyIndexMeta)
	if data == nil {
		return 0
	}
	var meta indexMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return 0
	}
	return meta.Dimension
}

type boltNamespace struct {
	store     *BoltIndex
	index     string
	namespace string
}

// Upsert adds or replaces vectors. An index that was never ensured takes the
// dimension of its first vector.
func (n *boltNamespace) Upsert(ctx context.Context, records []port.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	vectors, err := n.store.loaded(n.index, n.namespace)
	if err != nil {
		return err
	}

	n.store.mu.Lock()
	defer n.store.mu.Unlock()

	err = n.store.db.Update(func(tx *bbolt.Tx) error {
		idx, err := tx.Bucket(bucketIndexes).CreateBucketIfNotExists([]byte(n.index))
		if err != nil {
			return err
		}
		dimension := dimensionOf(idx)
		if dimension == 0 {
			dimension = len(records[0].Values)
			data, err := json.Marshal(indexMeta{Dimension: dimension, Metric: "cosine"})
			if err != nil {
				return err
			}
			if err := idx.Put(keyIndexMeta, data); err != nil {
				return err
			}
		}

		b, err := idx.CreateBucketIfNotExists([]byte(n.namespace))
		if err != nil {
			return err
		}

		for _, item := range records {
			if len(item.Values) != dimension {
				return fmt.Errorf("vector dimension mismatch: expected %d, got %d", dimension, len(item.Values))
			}

			data, err := json.Marshal(storedVector{Vector: item.Values, Metadata: item.Metadata})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(item.ID), data); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	// The in-memory copy only changes once the transaction has committed.
	for _, item := range records {
		vectors[item.ID] = vectorEntry{
			vector:   item.Values,
			metadata: item.Metadata,
		}
	}
	return nil
}

// Update replaces the metadata of a stored vector, and its values when given.
func (n *boltNamespace) Update(ctx context.Context, id string, values []float32, metadata map[string]string) error {
	vectors, err := n.store.loaded(n.index, n.namespace)
	if err != nil {
		return err
	}

	n.store.mu.Lock()
	defer n.store.mu.Unlock()

	var stored storedVector
	err = n.store.db.Update(func(tx *bbolt.Tx) error {
		b := namespaceBucket(tx, n.index, n.namespace)
		if b == nil {
			return fmt.Errorf("vector %s not found", id)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("vector %s not found", id)
		}

		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("vector %s: %w", id, err)
		}
		if values != nil {
			if len(values) != len(stored.Vector) {
				return fmt.Errorf("vector dimension mismatch: expected %d, got %d", len(stored.Vector), len(values))
			}
			stored.Vector = values
		}
		stored.Metadata = metadata

		out, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), out)
	})
	if err != nil {
		return err
	}

	vectors[id] = vectorEntry{vector: stored.Vector, metadata: stored.Metadata}
	return nil
}

// Delete removes vectors by id. Unknown ids are ignored.
func (n *boltNamespace) Delete(ctx context.Context, ids []string) error {
	vectors, err := n.store.loaded(n.index, n.namespace)
	if err != nil {
		return err
	}

	n.store.mu.Lock()
	defer n.store.mu.Unlock()

	err = n.store.db.Update(func(tx *bbolt.Tx) error {
		b := namespaceBucket(tx, n.index, n.namespace)
		if b == nil {
			return nil
		}

		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range ids {
		delete(vectors, id)
	}
	return nil
}

// Query finds the topK nearest vectors by cosine similarity.
func (n *boltNamespace) Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]port.VectorMatch, error) {
	vectors, err := n.store.loaded(n.index, n.namespace)
	if err != nil {
		return nil, err
	}

	n.store.mu.RLock()
	defer n.store.mu.RUnlock()

	if len(vectors) == 0 || topK <= 0 {
		return nil, nil
	}

	scores := make([]port.VectorMatch, 0, len(vectors))
	for id, entry := range vectors {
		if len(entry.vector) != len(vector) {
			return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", len(entry.vector), len(vector))
		}
		m := port.VectorMatch{ID: id, Score: cosineSimilarity(vector, entry.vector)}
		if includeMetadata {
			m.Metadata = entry.metadata
		}
		scores = append(scores, m)
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].ID < scores[j].ID
	})

	if topK > len(scores) {
		topK = len(scores)
	}
	return scores[:topK], nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
