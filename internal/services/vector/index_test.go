package vector

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
)

func TestIndex_Query_CosineOrdering(t *testing.T) {
	ix, err := NewIndex(3, Cosine)
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	if err := ix.Upsert("a", []float32{1, 0, 0}, nil); err != nil {
		t.Fatalf("Upsert(a) error = %v", err)
	}
	if err := ix.Upsert("b", []float32{0, 1, 0}, nil); err != nil {
		t.Fatalf("Upsert(b) error = %v", err)
	}
	if err := ix.Upsert("c", []float32{0.9, 0.1, 0}, nil); err != nil {
		t.Fatalf("Upsert(c) error = %v", err)
	}

	matches, err := ix.Query([]float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Query() returned %d matches, want 2", len(matches))
	}
	if matches[0].RecordID != "a" {
		t.Errorf("nearest = %s, want a", matches[0].RecordID)
	}
	if matches[0].Distance != 0 {
		t.Errorf("distance to identical vector = %f, want 0", matches[0].Distance)
	}
	if matches[1].RecordID != "c" {
		t.Errorf("second nearest = %s, want c", matches[1].RecordID)
	}
	if matches[1].Distance <= 0 || matches[1].Distance >= 0.1 {
		t.Errorf("distance to near vector = %f, want small positive", matches[1].Distance)
	}
}

func TestIndex_Query_KLargerThanIndex(t *testing.T) {
	ix, _ := NewIndex(2, Euclidean)
	_ = ix.Upsert("a", []float32{0, 0}, nil)
	_ = ix.Upsert("b", []float32{3, 4}, nil)

	matches, err := ix.Query([]float32{0, 0}, 10, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("Query(k=10) returned %d matches, want all 2", len(matches))
	}
	if matches[1].Distance != 5 {
		t.Errorf("euclidean distance = %f, want 5", matches[1].Distance)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Distance < matches[i-1].Distance {
			t.Errorf("matches not sorted ascending by distance")
		}
	}
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ix, _ := NewIndex(3, Cosine)

	if err := ix.Upsert("a", []float32{1, 0}, nil); err == nil {
		t.Fatalf("Upsert() with wrong dimension should fail")
	} else {
		var dm *DimensionMismatchError
		if !errors.As(err, &dm) {
			t.Errorf("Upsert() error = %T, want *DimensionMismatchError", err)
		}
	}

	if _, err := ix.Query([]float32{1, 0, 0, 0}, 1, nil); err == nil {
		t.Errorf("Query() with wrong dimension should fail")
	}
}

func TestIndex_EmptyAndRemoved(t *testing.T) {
	ix, _ := NewIndex(2, Cosine)

	matches, err := ix.Query([]float32{1, 0}, 5, nil)
	if err != nil {
		t.Fatalf("Query() on empty index error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Query() on empty index returned %d matches, want 0", len(matches))
	}

	_ = ix.Upsert("a", []float32{1, 0}, nil)
	ix.Remove("a")
	ix.Remove("a") // absent removal is a no-op

	if n := ix.Len(); n != 0 {
		t.Errorf("Len() after removal = %d, want 0", n)
	}
}

func TestIndex_QueryFilter(t *testing.T) {
	ix, _ := NewIndex(2, Cosine)
	_ = ix.Upsert("a", []float32{1, 0}, map[string]interface{}{"department": "SALES"})
	_ = ix.Upsert("b", []float32{1, 0}, map[string]interface{}{"department": "OPS"})

	matches, err := ix.Query([]float32{1, 0}, 5, func(id string, meta map[string]interface{}) bool {
		return meta["department"] == "SALES"
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 || matches[0].RecordID != "a" {
		t.Errorf("filtered query = %v, want only record a", matches)
	}
}

func TestIndex_TieBreakByRecordID(t *testing.T) {
	ix, _ := NewIndex(2, Euclidean)
	_ = ix.Upsert("z", []float32{1, 1}, nil)
	_ = ix.Upsert("a", []float32{1, 1}, nil)
	_ = ix.Upsert("m", []float32{1, 1}, nil)

	matches, _ := ix.Query([]float32{0, 0}, 3, nil)
	got := []string{matches[0].RecordID, matches[1].RecordID, matches[2].RecordID}
	want := []string{"a", "m", "z"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tie-break order = %v, want %v", got, want)
		}
	}
}

func TestIndex_ConcurrentMutationAndQuery(t *testing.T) {
	ix, _ := NewIndex(4, Cosine)
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := fmt.Sprintf("rec-%d-%d", w, i)
				_ = ix.Upsert(id, []float32{float32(i), 1, 0, 0}, nil)
				if i%3 == 0 {
					ix.Remove(id)
				}
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				matches, err := ix.Query([]float32{1, 0, 0, 0}, 5, nil)
				if err != nil {
					t.Errorf("Query() error = %v", err)
					return
				}
				if len(matches) > 5 {
					t.Errorf("Query() returned %d matches, want <= 5", len(matches))
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestFeatureEmbedder(t *testing.T) {
	e, err := NewFeatureEmbedder("amount", "quantity")
	if err != nil {
		t.Fatalf("NewFeatureEmbedder() error = %v", err)
	}

	vec, err := e.Embed(map[string]interface{}{"amount": 3.0, "quantity": 4})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	// L2-normalized: (3,4)/5.
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("Embed() = %v, want [0.6 0.8]", vec)
	}

	// Missing fields embed as zero.
	vec, err = e.Embed(map[string]interface{}{"amount": 2.0})
	if err != nil {
		t.Fatalf("Embed() with missing field error = %v", err)
	}
	if vec[1] != 0 {
		t.Errorf("missing field dimension = %f, want 0", vec[1])
	}

	if _, err := e.Embed(map[string]interface{}{"amount": "lots"}); err == nil {
		t.Errorf("Embed() with non-numeric value should fail")
	}
}

func TestIndexer_SyncAndDrop(t *testing.T) {
	ix, _ := NewIndex(2, Cosine)
	e, _ := NewFeatureEmbedder("amount", "quantity")
	indexer, err := NewIndexer(ix, e)
	if err != nil {
		t.Fatalf("NewIndexer() error = %v", err)
	}

	if err := indexer.Sync("expense:1", map[string]interface{}{"amount": 100.0, "quantity": 1}); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if ix.Len() != 1 {
		t.Errorf("index size after Sync = %d, want 1", ix.Len())
	}

	indexer.Drop("expense:1")
	if ix.Len() != 0 {
		t.Errorf("index size after Drop = %d, want 0", ix.Len())
	}

	three, _ := NewFeatureEmbedder("a", "b", "c")
	if _, err := NewIndexer(ix, three); err == nil {
		t.Errorf("NewIndexer() with mismatched dimensions should fail")
	}
}
