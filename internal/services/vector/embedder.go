package vector

import (
	"fmt"
	"math"
)

// Embedder turns a business record's attributes into a fixed-dimension
// vector. It is a pluggable strategy: the default FeatureEmbedder projects
// named numeric fields, but an external model can be substituted without
// touching the index.
type Embedder interface {
	Embed(attributes map[string]interface{}) ([]float32, error)
	Dimension() int
}

// FeatureEmbedder builds vectors from named numeric attributes, one
// dimension per field, L2-normalized so cosine distance compares the shape
// of a record rather than its magnitude. Missing fields embed as zero.
type FeatureEmbedder struct {
	fields []string
}

// NewFeatureEmbedder creates an embedder over the given attribute names.
func NewFeatureEmbedder(fields ...string) (*FeatureEmbedder, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("at least one feature field is required")
	}
	return &FeatureEmbedder{fields: append([]string(nil), fields...)}, nil
}

// Dimension returns the number of feature fields.
func (e *FeatureEmbedder) Dimension() int { return len(e.fields) }

// Embed projects the record onto the feature fields.
func (e *FeatureEmbedder) Embed(attributes map[string]interface{}) ([]float32, error) {
	vec := make([]float32, len(e.fields))
	var norm float64
	for i, f := range e.fields {
		v, err := numeric(attributes[f])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f, err)
		}
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func numeric(v interface{}) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}

// Indexer keeps the embedding index in sync with business record changes:
// upsert on create/update, drop on delete. One embedding per record version.
type Indexer struct {
	index    *Index
	embedder Embedder
}

// NewIndexer creates an indexer. The embedder's dimension must match the
// index's.
func NewIndexer(index *Index, embedder Embedder) (*Indexer, error) {
	if embedder.Dimension() != index.Dimension() {
		return nil, &DimensionMismatchError{Want: index.Dimension(), Got: embedder.Dimension()}
	}
	return &Indexer{index: index, embedder: embedder}, nil
}

// Sync embeds the record's attributes and upserts the result.
func (ix *Indexer) Sync(recordID string, attributes map[string]interface{}) error {
	vec, err := ix.embedder.Embed(attributes)
	if err != nil {
		return fmt.Errorf("failed to embed record %s: %w", recordID, err)
	}
	return ix.index.Upsert(recordID, vec, attributes)
}

// Drop removes the record's embedding.
func (ix *Indexer) Drop(recordID string) {
	ix.index.Remove(recordID)
}
