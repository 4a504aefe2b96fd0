package insight

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bluerp/bluecore/internal/entities"
	"github.com/bluerp/bluecore/internal/services/authorization"
	"github.com/bluerp/bluecore/internal/services/forecast"
	"github.com/bluerp/bluecore/internal/services/policy"
	"github.com/bluerp/bluecore/internal/services/vector"
)

type stubForecaster struct {
	results   map[string]*forecast.Result
	anomalies map[string][]forecast.Anomaly
	errs      map[string]error
	block     bool
}

func (s *stubForecaster) Forecast(ctx context.Context, seriesID string, horizon int) (*forecast.Result, error) {
	if s.block {
		<-ctx.Done()
		return nil, fmt.Errorf("loading series %s: %w", seriesID, ctx.Err())
	}
	if err, ok := s.errs[seriesID]; ok {
		return nil, err
	}
	if r, ok := s.results[seriesID]; ok {
		return r, nil
	}
	return nil, forecast.ErrInsufficientHistory
}

func (s *stubForecaster) DetectAnomalies(ctx context.Context, seriesID string) ([]forecast.Anomaly, error) {
	if err, ok := s.errs[seriesID]; ok {
		return nil, err
	}
	return s.anomalies[seriesID], nil
}

// stubEvaluator denies the resource IDs in its deny set and allows the rest.
type stubEvaluator struct {
	deny map[string]bool
}

func (s *stubEvaluator) Evaluate(principal *entities.Principal, action string, resource *entities.Resource, snapshot *policy.Snapshot) (authorization.Decision, error) {
	if s.deny[resource.ID] {
		return authorization.Deny(authorization.ReasonNoMatchingGrant), nil
	}
	return authorization.Allow(authorization.ReasonRoleGrant), nil
}

func testIndex(t *testing.T) *vector.Index {
	t.Helper()
	ix, err := vector.NewIndex(3, vector.Cosine)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	ix.Upsert("inv-1", []float32{1, 0, 0}, nil)
	ix.Upsert("inv-2", []float32{0, 1, 0}, nil)
	ix.Upsert("inv-3", []float32{0.9, 0.1, 0}, nil)
	return ix
}

func testPrincipal() *entities.Principal {
	return &entities.Principal{ID: "alice", Roles: []string{"Manager"}, Active: true}
}

func newTestAggregator(t *testing.T, fc Forecaster, ev Evaluator, cfg Config) *Aggregator {
	t.Helper()
	return NewAggregator(testIndex(t), fc, ev, policy.NewStore(nil), cfg, nil)
}

func TestProduceSimilarityOrdering(t *testing.T) {
	agg := newTestAggregator(t, &stubForecaster{}, &stubEvaluator{}, Config{})

	got, err := agg.Produce(context.Background(), testPrincipal(), &Query{
		Similarity: &SimilarityQuery{
			Vector:       []float32{1, 0, 0},
			K:            3,
			ResourceType: "inventory_item",
		},
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 insights, got %d", len(got))
	}
	// inv-1 matches the probe exactly, inv-3 is close, inv-2 is orthogonal.
	wantOrder := []string{"inv-1", "inv-3", "inv-2"}
	for i, want := range wantOrder {
		if got[i].SubjectResourceID != want {
			t.Errorf("position %d: got %s, want %s", i, got[i].SubjectResourceID, want)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("scores not descending at %d: %f > %f", i, got[i].Score, got[i-1].Score)
		}
	}
	if got[0].Score < 0.99 {
		t.Errorf("exact match score = %f, want ~1", got[0].Score)
	}
	if got[0].Kind != entities.InsightSimilarity {
		t.Errorf("kind = %s, want similarity", got[0].Kind)
	}
	if got[0].Visibility.Action != "view" {
		t.Errorf("default visibility action = %q, want view", got[0].Visibility.Action)
	}
}

func TestProducePermissionFiltering(t *testing.T) {
	agg := newTestAggregator(t, &stubForecaster{}, &stubEvaluator{deny: map[string]bool{"inv-1": true}}, Config{})

	got, err := agg.Produce(context.Background(), testPrincipal(), &Query{
		Similarity: &SimilarityQuery{Vector: []float32{1, 0, 0}, K: 3, ResourceType: "inventory_item"},
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	for _, ins := range got {
		if ins.SubjectResourceID == "inv-1" {
			t.Fatal("denied insight leaked through the permission filter")
		}
	}
	if len(got) != 2 {
		t.Errorf("expected 2 insights after filtering, got %d", len(got))
	}
}

func TestProducePartialFailureDropsSource(t *testing.T) {
	fc := &stubForecaster{
		results: map[string]*forecast.Result{
			"sales": {
				SeriesID: "sales",
				Model:    "holt",
				Points:   []forecast.Point{{Value: 100, Lower: 95, Upper: 105}},
			},
		},
		errs: map[string]error{"broken": errors.New("storage offline")},
	}
	agg := newTestAggregator(t, fc, &stubEvaluator{}, Config{})

	got, err := agg.Produce(context.Background(), testPrincipal(), &Query{
		Forecasts: []ForecastQuery{
			{SeriesID: "sales", Horizon: 1, ResourceType: "forecast_series"},
			{SeriesID: "broken", Horizon: 1, ResourceType: "forecast_series"},
		},
	})
	if err != nil {
		t.Fatalf("partial failure must not fail the query: %v", err)
	}
	if len(got) != 1 || got[0].SubjectResourceID != "sales" {
		t.Fatalf("expected only the sales forecast, got %+v", got)
	}
	if got[0].Kind != entities.InsightForecast {
		t.Errorf("kind = %s, want forecast", got[0].Kind)
	}
}

func TestProduceAllSourcesFailed(t *testing.T) {
	fc := &stubForecaster{errs: map[string]error{
		"a": errors.New("storage offline"),
		"b": errors.New("storage offline"),
	}}
	agg := newTestAggregator(t, fc, &stubEvaluator{}, Config{})

	_, err := agg.Produce(context.Background(), testPrincipal(), &Query{
		Forecasts: []ForecastQuery{
			{SeriesID: "a", Horizon: 1, ResourceType: "forecast_series"},
			{SeriesID: "b", Horizon: 1, ResourceType: "forecast_series"},
		},
	})
	if !errors.Is(err, ErrAllSourcesFailed) {
		t.Fatalf("expected ErrAllSourcesFailed, got %v", err)
	}
}

func TestProduceTimeout(t *testing.T) {
	agg := newTestAggregator(t, &stubForecaster{block: true}, &stubEvaluator{}, Config{Timeout: 20 * time.Millisecond})

	_, err := agg.Produce(context.Background(), testPrincipal(), &Query{
		Forecasts: []ForecastQuery{{SeriesID: "slow", Horizon: 1, ResourceType: "forecast_series"}},
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestProduceLimitAndTieBreak(t *testing.T) {
	// All three index records are equidistant from the probe, so ordering
	// must fall back to the subject resource ID.
	ix, err := vector.NewIndex(3, vector.Cosine)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	ix.Upsert("c", []float32{1, 0, 0}, nil)
	ix.Upsert("a", []float32{1, 0, 0}, nil)
	ix.Upsert("b", []float32{1, 0, 0}, nil)
	agg := NewAggregator(ix, &stubForecaster{}, &stubEvaluator{}, policy.NewStore(nil), Config{}, nil)

	got, err := agg.Produce(context.Background(), testPrincipal(), &Query{
		Similarity: &SimilarityQuery{Vector: []float32{1, 0, 0}, K: 3, ResourceType: "inventory_item"},
		Limit:      2,
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("limit not applied: got %d insights", len(got))
	}
	if got[0].SubjectResourceID != "a" || got[1].SubjectResourceID != "b" {
		t.Errorf("tie-break order = [%s %s], want [a b]", got[0].SubjectResourceID, got[1].SubjectResourceID)
	}
}

func TestProduceAnomalyInsight(t *testing.T) {
	fc := &stubForecaster{
		anomalies: map[string][]forecast.Anomaly{
			"expenses": {{Timestamp: time.Now(), Value: 500, Score: 3.2}},
		},
	}
	agg := newTestAggregator(t, fc, &stubEvaluator{}, Config{})

	got, err := agg.Produce(context.Background(), testPrincipal(), &Query{
		Anomalies: []AnomalyQuery{
			{SeriesID: "expenses", ResourceType: "forecast_series"},
			{SeriesID: "quiet", ResourceType: "forecast_series"},
		},
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	// The quiet series has no outliers and yields no insight at all.
	if len(got) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(got))
	}
	if got[0].Kind != entities.InsightAnomaly {
		t.Errorf("kind = %s, want anomaly", got[0].Kind)
	}
	if got[0].Score != 0.8 {
		t.Errorf("anomaly score = %f, want 0.8 (z=3.2 over saturation 4)", got[0].Score)
	}
}

func TestProduceDeterministic(t *testing.T) {
	fc := &stubForecaster{
		results: map[string]*forecast.Result{
			"sales": {SeriesID: "sales", Model: "holt", Points: []forecast.Point{{Value: 100, Lower: 90, Upper: 110}}},
		},
	}
	agg := newTestAggregator(t, fc, &stubEvaluator{}, Config{})
	q := &Query{
		Similarity: &SimilarityQuery{Vector: []float32{0.9, 0.1, 0}, K: 3, ResourceType: "inventory_item"},
		Forecasts:  []ForecastQuery{{SeriesID: "sales", Horizon: 1, ResourceType: "forecast_series"}},
	}

	first, err := agg.Produce(context.Background(), testPrincipal(), q)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := agg.Produce(context.Background(), testPrincipal(), q)
		if err != nil {
			t.Fatalf("Produce run %d: %v", i, err)
		}
		if len(again) != len(first) {
			t.Fatalf("run %d: length %d != %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j].SubjectResourceID != first[j].SubjectResourceID || again[j].Score != first[j].Score {
				t.Fatalf("run %d diverged at position %d", i, j)
			}
		}
	}
}

type recordingMetrics struct {
	mu        sync.Mutex
	durations map[string]int
	degraded  int
}

func (m *recordingMetrics) RecordInsightDuration(kind string, durationSeconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.durations == nil {
		m.durations = make(map[string]int)
	}
	m.durations[kind]++
}

func (m *recordingMetrics) RecordDegradedForecast() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degraded++
}

func TestProduceRecordsMetrics(t *testing.T) {
	fc := &stubForecaster{
		results: map[string]*forecast.Result{
			"sales": {
				SeriesID: "sales",
				Model:    "ses",
				Degraded: true,
				Points:   []forecast.Point{{Value: 100, Lower: 90, Upper: 110}},
			},
		},
		anomalies: map[string][]forecast.Anomaly{
			"expenses": {{Timestamp: time.Now(), Value: 500, Score: 3.2}},
		},
	}
	rec := &recordingMetrics{}
	agg := newTestAggregator(t, fc, &stubEvaluator{}, Config{Metrics: rec})

	_, err := agg.Produce(context.Background(), testPrincipal(), &Query{
		Similarity: &SimilarityQuery{Vector: []float32{1, 0, 0}, K: 2, ResourceType: "inventory_item"},
		Forecasts:  []ForecastQuery{{SeriesID: "sales", Horizon: 1, ResourceType: "forecast_series"}},
		Anomalies:  []AnomalyQuery{{SeriesID: "expenses", ResourceType: "forecast_series"}},
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, kind := range []entities.InsightKind{entities.InsightSimilarity, entities.InsightForecast, entities.InsightAnomaly} {
		if rec.durations[string(kind)] != 1 {
			t.Errorf("duration observations for %s = %d, want 1", kind, rec.durations[string(kind)])
		}
	}
	if rec.degraded != 1 {
		t.Errorf("degraded forecast count = %d, want 1", rec.degraded)
	}
}

func TestProduceEmptyQuery(t *testing.T) {
	agg := newTestAggregator(t, &stubForecaster{}, &stubEvaluator{}, Config{})
	got, err := agg.Produce(context.Background(), testPrincipal(), &Query{})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if got != nil {
		t.Errorf("expected no insights for an empty query, got %d", len(got))
	}
}
