// Package insight orchestrates the AI pipeline: it fans a query out to the
// embedding index and the forecasting service, normalizes the heterogeneous
// scores, filters every candidate through the permission engine, and returns
// one deterministically ordered feed.
package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bluerp/bluecore/internal/entities"
	"github.com/bluerp/bluecore/internal/services/authorization"
	"github.com/bluerp/bluecore/internal/services/forecast"
	"github.com/bluerp/bluecore/internal/services/policy"
	"github.com/bluerp/bluecore/internal/services/vector"
	"golang.org/x/sync/errgroup"
)

// ErrTimeout means the fan-out did not complete within the deadline.
var ErrTimeout = errors.New("insight query timed out")

// ErrAllSourcesFailed wraps the constituent failures when every sub-query
// failed. A partial failure is not an error: the failing source is dropped.
var ErrAllSourcesFailed = errors.New("all insight sources failed")

const defaultAction = "view"

// SimilarityQuery asks for the records nearest to a probe vector.
type SimilarityQuery struct {
	Vector       []float32
	K            int
	ResourceType string // resource type of the indexed records
	Action       string // visibility action, default "view"
}

// ForecastQuery asks for a forecast over one series.
type ForecastQuery struct {
	SeriesID     string
	Horizon      int
	ResourceType string
	Action       string
}

// AnomalyQuery asks for an outlier scan over one series.
type AnomalyQuery struct {
	SeriesID     string
	ResourceType string
	Action       string
}

// Query is the resolved insight request: zero or more lookups per source.
type Query struct {
	Similarity *SimilarityQuery
	Forecasts  []ForecastQuery
	Anomalies  []AnomalyQuery
	Limit      int // maximum insights returned; 0 = aggregator default
}

// Forecaster is the forecasting surface the aggregator consumes.
type Forecaster interface {
	Forecast(ctx context.Context, seriesID string, horizon int) (*forecast.Result, error)
	DetectAnomalies(ctx context.Context, seriesID string) ([]forecast.Anomaly, error)
}

// Evaluator decides insight visibility against a pinned snapshot.
type Evaluator interface {
	Evaluate(principal *entities.Principal, action string, resource *entities.Resource, snapshot *policy.Snapshot) (authorization.Decision, error)
}

// MetricsRecorder receives per-sub-query observations. Implementations must
// be safe for concurrent use; a nil recorder disables recording.
type MetricsRecorder interface {
	RecordInsightDuration(kind string, durationSeconds float64)
	RecordDegradedForecast()
}

// Config tunes the aggregator.
type Config struct {
	Timeout      time.Duration   // fan-out deadline; 0 = 10s
	DefaultLimit int             // result size when the query sets none; 0 = 20
	Metrics      MetricsRecorder // optional
}

// Aggregator produces permission-filtered, ranked insight feeds.
type Aggregator struct {
	index      *vector.Index
	forecaster Forecaster
	evaluator  Evaluator
	store      *policy.Store
	timeout    time.Duration
	limit      int
	metrics    MetricsRecorder
	logger     *slog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(index *vector.Index, forecaster Forecaster, evaluator Evaluator, store *policy.Store, cfg Config, logger *slog.Logger) *Aggregator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		index:      index,
		forecaster: forecaster,
		evaluator:  evaluator,
		store:      store,
		timeout:    cfg.Timeout,
		limit:      cfg.DefaultLimit,
		metrics:    cfg.Metrics,
		logger:     logger,
	}
}

// Produce runs the query and returns insights ordered by descending score,
// ties broken by subject resource ID. Every returned insight passed the
// permission engine for the caller; denied candidates are dropped silently.
//
// The policy snapshot is pinned once for the whole call, so the feed is
// consistent even if an administrator mutates policy mid-request.
func (a *Aggregator) Produce(ctx context.Context, principal *entities.Principal, q *Query) ([]*entities.Insight, error) {
	if principal == nil || q == nil {
		return nil, fmt.Errorf("principal and query are required")
	}

	total := len(q.Forecasts) + len(q.Anomalies)
	if q.Similarity != nil {
		total++
	}
	if total == 0 {
		return nil, nil
	}

	snapshot := a.store.Current()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		mu         sync.Mutex
		candidates []*entities.Insight
		failures   []error
	)
	collect := func(ins []*entities.Insight, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures = append(failures, err)
			return
		}
		candidates = append(candidates, ins...)
	}

	g, gctx := errgroup.WithContext(ctx)
	if q.Similarity != nil {
		sq := *q.Similarity
		g.Go(func() error {
			defer a.observe(entities.InsightSimilarity, time.Now())
			collect(a.similarityInsights(sq))
			return nil
		})
	}
	for _, fq := range q.Forecasts {
		fq := fq
		g.Go(func() error {
			defer a.observe(entities.InsightForecast, time.Now())
			collect(a.forecastInsights(gctx, fq))
			return nil
		})
	}
	for _, aq := range q.Anomalies {
		aq := aq
		g.Go(func() error {
			defer a.observe(entities.InsightAnomaly, time.Now())
			collect(a.anomalyInsights(gctx, aq))
			return nil
		})
	}
	_ = g.Wait() // sub-tasks report through collect, never through errgroup

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v", ErrTimeout, a.timeout)
		}
		return nil, err // caller cancelled
	}

	if len(failures) == total {
		return nil, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(failures...))
	}
	for _, err := range failures {
		a.logger.Warn("insight source dropped", "error", err)
	}

	visible := candidates[:0]
	for _, ins := range candidates {
		decision, err := a.evaluator.Evaluate(principal, ins.Visibility.Action, &ins.Visibility.Resource, snapshot)
		if err != nil {
			a.logger.Warn("insight visibility evaluation failed, dropping",
				"resource", ins.SubjectResourceID, "error", err)
			continue
		}
		if decision.Allowed {
			visible = append(visible, ins)
		}
	}

	sort.Slice(visible, func(i, j int) bool {
		if visible[i].Score != visible[j].Score {
			return visible[i].Score > visible[j].Score
		}
		return visible[i].SubjectResourceID < visible[j].SubjectResourceID
	})

	limit := q.Limit
	if limit <= 0 {
		limit = a.limit
	}
	if len(visible) > limit {
		visible = visible[:limit]
	}
	return visible, nil
}

// observe records how long one sub-query held its goroutine.
func (a *Aggregator) observe(kind entities.InsightKind, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordInsightDuration(string(kind), time.Since(start).Seconds())
	}
}

func (a *Aggregator) similarityInsights(q SimilarityQuery) ([]*entities.Insight, error) {
	matches, err := a.index.Query(q.Vector, q.K, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity lookup failed: %w", err)
	}
	insights := make([]*entities.Insight, 0, len(matches))
	for _, m := range matches {
		insights = append(insights, &entities.Insight{
			SubjectResourceID: m.RecordID,
			Kind:              entities.InsightSimilarity,
			Score:             similarityScore(a.index.Metric(), m.Distance),
			Payload: map[string]interface{}{
				"distance": m.Distance,
				"metric":   string(a.index.Metric()),
			},
			Visibility: entities.VisibilityScope{
				Action: actionOf(q.Action),
				Resource: entities.Resource{
					Type:       q.ResourceType,
					ID:         m.RecordID,
					Attributes: m.Metadata,
				},
			},
		})
	}
	return insights, nil
}

func (a *Aggregator) forecastInsights(ctx context.Context, q ForecastQuery) ([]*entities.Insight, error) {
	result, err := a.forecaster.Forecast(ctx, q.SeriesID, q.Horizon)
	if err != nil {
		return nil, fmt.Errorf("forecast for series %s failed: %w", q.SeriesID, err)
	}
	if result.Degraded && a.metrics != nil {
		a.metrics.RecordDegradedForecast()
	}

	points := make([]map[string]interface{}, len(result.Points))
	for i, p := range result.Points {
		points[i] = map[string]interface{}{
			"timestamp": p.Timestamp,
			"value":     p.Value,
			"lower":     p.Lower,
			"upper":     p.Upper,
		}
	}
	return []*entities.Insight{{
		SubjectResourceID: q.SeriesID,
		Kind:              entities.InsightForecast,
		Score:             confidenceScore(result.Points),
		Degraded:          result.Degraded,
		Payload: map[string]interface{}{
			"model":  result.Model,
			"points": points,
		},
		Visibility: entities.VisibilityScope{
			Action:   actionOf(q.Action),
			Resource: entities.Resource{Type: q.ResourceType, ID: q.SeriesID},
		},
	}}, nil
}

func (a *Aggregator) anomalyInsights(ctx context.Context, q AnomalyQuery) ([]*entities.Insight, error) {
	anomalies, err := a.forecaster.DetectAnomalies(ctx, q.SeriesID)
	if err != nil {
		return nil, fmt.Errorf("anomaly scan for series %s failed: %w", q.SeriesID, err)
	}
	if len(anomalies) == 0 {
		return nil, nil
	}

	outliers := make([]map[string]interface{}, len(anomalies))
	for i, an := range anomalies {
		outliers[i] = map[string]interface{}{
			"timestamp": an.Timestamp,
			"value":     an.Value,
			"z_score":   an.Score,
		}
	}
	return []*entities.Insight{{
		SubjectResourceID: q.SeriesID,
		Kind:              entities.InsightAnomaly,
		Score:             anomalyScore(anomalies),
		Payload: map[string]interface{}{
			"anomalies": outliers,
		},
		Visibility: entities.VisibilityScope{
			Action:   actionOf(q.Action),
			Resource: entities.Resource{Type: q.ResourceType, ID: q.SeriesID},
		},
	}}, nil
}

func actionOf(action string) string {
	if action == "" {
		return defaultAction
	}
	return action
}
