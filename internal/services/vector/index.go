// Package vector maintains fixed-dimension embeddings of business records
// and answers nearest-neighbor queries.
//
// The index is exact: every query scans all records under a read lock, so
// recall is 1.0 and latency is O(n*d) in the record count and dimension.
// That tradeoff suits the expected scale (thousands of business records);
// the Index type is small enough to swap for an approximate structure
// behind the same interface if that ever changes.
package vector

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Metric selects the distance function. Fixed per index instance.
type Metric string

const (
	// Cosine distance: 1 - cos(a,b), in [0,2].
	Cosine Metric = "cosine"
	// Euclidean (L2) distance, in [0,inf).
	Euclidean Metric = "euclidean"
)

// DimensionMismatchError reports a vector whose dimension differs from the
// index's fixed dimension.
type DimensionMismatchError struct {
	Want, Got int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: index dimension is %d, got vector of dimension %d", e.Want, e.Got)
}

// Match is a single nearest-neighbor result.
type Match struct {
	RecordID string
	Distance float64
	Metadata map[string]interface{}
}

// Filter narrows a query to records it returns true for. A nil filter
// accepts every record.
type Filter func(recordID string, metadata map[string]interface{}) bool

type record struct {
	vector   []float32
	metadata map[string]interface{}
}

// Index is a concurrency-safe in-memory embedding index. Upserts and
// removals take the write lock; queries take the read lock, so a query sees
// either the pre- or post-mutation state of any single mutation, never a
// torn one.
type Index struct {
	mu      sync.RWMutex
	dim     int
	metric  Metric
	records map[string]*record
}

// NewIndex creates an index with a fixed dimension and metric.
func NewIndex(dimension int, metric Metric) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	switch metric {
	case Cosine, Euclidean:
	default:
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	return &Index{
		dim:     dimension,
		metric:  metric,
		records: make(map[string]*record),
	}, nil
}

// Dimension returns the index's fixed vector dimension.
func (ix *Index) Dimension() int { return ix.dim }

// Metric returns the index's distance metric.
func (ix *Index) Metric() Metric { return ix.metric }

// Len returns the number of indexed records.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

// Upsert inserts or replaces the embedding for a record. The vector is
// copied; later caller mutations do not leak into the index.
func (ix *Index) Upsert(recordID string, vec []float32, metadata map[string]interface{}) error {
	if recordID == "" {
		return fmt.Errorf("record ID is required")
	}
	if len(vec) != ix.dim {
		return &DimensionMismatchError{Want: ix.dim, Got: len(vec)}
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.records[recordID] = &record{vector: stored, metadata: metadata}
	return nil
}

// Remove deletes a record from the index. Removing an absent record is a
// no-op.
func (ix *Index) Remove(recordID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.records, recordID)
}

// Query returns up to k records nearest to vec, ascending by distance, ties
// broken by record ID so results are reproducible. An empty index yields an
// empty result, not an error.
func (ix *Index) Query(vec []float32, k int, filter Filter) ([]Match, error) {
	if len(vec) != ix.dim {
		return nil, &DimensionMismatchError{Want: ix.dim, Got: len(vec)}
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	matches := make([]Match, 0, len(ix.records))
	for id, rec := range ix.records {
		if filter != nil && !filter(id, rec.metadata) {
			continue
		}
		matches = append(matches, Match{
			RecordID: id,
			Distance: ix.distance(vec, rec.vector),
			Metadata: rec.metadata,
		})
	}
	ix.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].RecordID < matches[j].RecordID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (ix *Index) distance(a, b []float32) float64 {
	switch ix.metric {
	case Euclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	default: // Cosine
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			// A zero vector has no direction; treat it as maximally distant
			// from everything.
			return 1
		}
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	}
}
