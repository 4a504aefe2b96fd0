package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bluerp/bluecore/internal/handlers"
	"github.com/bluerp/bluecore/internal/infrastructure/config"
	"github.com/bluerp/bluecore/internal/infrastructure/database"
	"github.com/bluerp/bluecore/internal/infrastructure/metrics"
	"github.com/bluerp/bluecore/internal/repositories"
	"github.com/bluerp/bluecore/internal/repositories/postgres"
	"github.com/bluerp/bluecore/internal/services/authorization"
	"github.com/bluerp/bluecore/internal/services/forecast"
	"github.com/bluerp/bluecore/internal/services/insight"
	"github.com/bluerp/bluecore/internal/services/policy"
	"github.com/bluerp/bluecore/internal/services/vector"
	"github.com/bluerp/bluecore/pkg/cache/memorycache"
	"github.com/gin-gonic/gin"
)

// E2ETestServer wires the full HTTP stack against a live test database.
type E2ETestServer struct {
	Server     *httptest.Server
	Client     *http.Client
	Store      *policy.Store
	SeriesRepo repositories.SeriesRepository
	DB         *sql.DB
	cache      *memorycache.Cache
}

// SetupE2ETest sets up an E2E test environment. Tests are skipped when the
// test database is unreachable.
func SetupE2ETest(t *testing.T) *E2ETestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if err := config.InitConfig("test"); err != nil {
		t.Skipf("test config unavailable: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Skipf("test config unavailable: %v", err)
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}

	projectRoot, err := findProjectRoot()
	if err != nil {
		t.Fatalf("failed to find project root: %v", err)
	}
	migrationsPath := projectRoot + "/internal/infrastructure/database/migrations/postgres"
	if err := pg.RunMigrations(migrationsPath); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	cleanupDatabase(t, pg.DB)

	policyRepo := postgres.NewPostgresPolicyRepository(pg.DB)
	seriesRepo := postgres.NewPostgresSeriesRepository(pg.DB)
	recordRepo := postgres.NewPostgresRecordRepository(pg.DB)

	celEngine, err := authorization.NewCELEngine()
	if err != nil {
		t.Fatalf("failed to create CEL engine: %v", err)
	}
	store := policy.NewStoreWithRepository(celEngine, policyRepo)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}
	engine := authorization.NewEngine(celEngine)

	decisionCache := memorycache.New(memorycache.Config{
		MaxEntries: 1000,
		DefaultTTL: time.Minute,
	})
	checker := authorization.NewCheckerWithCache(engine, store, decisionCache, time.Minute)

	embedder, err := vector.NewFeatureEmbedder("unit_price", "stock_level", "monthly_sales")
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}
	index, err := vector.NewIndex(embedder.Dimension(), vector.Cosine)
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	indexer, err := vector.NewIndexer(index, embedder)
	if err != nil {
		t.Fatalf("failed to create indexer: %v", err)
	}
	forecaster := forecast.NewService(seriesRepo, forecast.Config{MinHistory: 5}, nil)
	aggregator := insight.NewAggregator(index, forecaster, checker, store, insight.Config{}, nil)

	collector := metrics.NewCollector()
	collector.SetCache(decisionCache)

	router := handlers.NewRouter(
		handlers.NewCheckHandler(checker, collector, nil),
		handlers.NewInsightHandler(aggregator, nil),
		handlers.NewPolicyHandler(store),
		handlers.NewRecordHandler(recordRepo, indexer),
		collector,
		nil,
		map[string]handlers.HealthChecker{"database": pg},
	)

	server := httptest.NewServer(router)

	return &E2ETestServer{
		Server:     server,
		Client:     server.Client(),
		Store:      store,
		SeriesRepo: seriesRepo,
		DB:         pg.DB,
		cache:      decisionCache,
	}
}

// Teardown cleans up the E2E test environment.
func (e *E2ETestServer) Teardown(t *testing.T) {
	t.Helper()

	if e.Server != nil {
		e.Server.Close()
	}
	if e.cache != nil {
		e.cache.Close()
	}
	if e.DB != nil {
		cleanupDatabase(t, e.DB)
		e.DB.Close()
	}
}

// PostJSON posts a JSON body and decodes the JSON response into out.
// Returns the HTTP status code.
func (e *E2ETestServer) PostJSON(t *testing.T, path string, body interface{}, out interface{}) int {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	resp, err := e.Client.Post(e.Server.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

// PutJSON issues a PUT with a JSON body and decodes the JSON response into
// out. Returns the HTTP status code.
func (e *E2ETestServer) PutJSON(t *testing.T, path string, body interface{}, out interface{}) int {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPut, e.Server.URL+path, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.Client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

// GetJSON issues a GET and decodes the JSON response into out.
func (e *E2ETestServer) GetJSON(t *testing.T, path string, out interface{}) int {
	t.Helper()

	resp, err := e.Client.Get(e.Server.URL + path)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

// Check runs one permission check and returns the decision.
func (e *E2ETestServer) Check(t *testing.T, principal, action string, roles []string, attrs map[string]interface{}, resourceType, resourceID string, resourceAttrs map[string]interface{}) (bool, string) {
	t.Helper()

	var decision struct {
		Allowed bool   `json:"allowed"`
		Reason  string `json:"reason"`
	}
	status := e.PostJSON(t, "/v1/permissions/check", map[string]interface{}{
		"principal": map[string]interface{}{
			"id":         principal,
			"roles":      roles,
			"attributes": attrs,
		},
		"action": action,
		"resource": map[string]interface{}{
			"type":       resourceType,
			"id":         resourceID,
			"attributes": resourceAttrs,
		},
	}, &decision)
	if status != http.StatusOK {
		t.Fatalf("check returned status %d", status)
	}
	return decision.Allowed, decision.Reason
}

// cleanupDatabase removes all data from the test database.
func cleanupDatabase(t *testing.T, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Delete in correct order due to foreign key constraints
	tables := []string{"business_records", "series_samples", "resource_overrides", "role_permissions", "role_parents", "roles"}
	for _, table := range tables {
		query := fmt.Sprintf("DELETE FROM %s", table)
		if _, err := db.ExecContext(ctx, query); err != nil {
			t.Logf("warning: failed to clean up table %s: %v", table, err)
		}
	}
}

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("project root not found")
		}
		dir = parent
	}
}
