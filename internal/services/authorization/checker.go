package authorization

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bluerp/bluecore/internal/entities"
	"github.com/bluerp/bluecore/internal/services/policy"
	"github.com/bluerp/bluecore/pkg/cache"
)

// CheckerInterface is what callers of permission checks depend on.
type CheckerInterface interface {
	Check(ctx context.Context, principal *entities.Principal, action string, resource *entities.Resource) (Decision, error)
}

// Checker answers permission checks against the store's current snapshot,
// optionally caching results. Cache keys include the snapshot version, so a
// policy mutation implicitly invalidates every cached decision.
type Checker struct {
	engine   *Engine
	store    *policy.Store
	cache    cache.Cache   // optional
	cacheTTL time.Duration // TTL for cached decisions
}

// NewChecker creates a Checker without caching.
func NewChecker(engine *Engine, store *policy.Store) *Checker {
	return &Checker{engine: engine, store: store}
}

// NewCheckerWithCache creates a Checker with decision caching enabled.
func NewCheckerWithCache(engine *Engine, store *policy.Store, c cache.Cache, ttl time.Duration) *Checker {
	return &Checker{engine: engine, store: store, cache: c, cacheTTL: ttl}
}

// Check evaluates the permission against the current policy snapshot.
func (c *Checker) Check(ctx context.Context, principal *entities.Principal, action string, resource *entities.Resource) (Decision, error) {
	if principal == nil || resource == nil {
		return Deny(ReasonNoMatchingGrant), fmt.Errorf("principal and resource are required")
	}
	if action == "" {
		return Deny(ReasonNoMatchingGrant), fmt.Errorf("action is required")
	}

	snapshot := c.store.Current()

	var key string
	if c.cache != nil {
		key = cacheKey(principal, action, resource, snapshot.Version())
		if cached, found := c.cache.Get(ctx, key); found {
			if decision, ok := cached.(Decision); ok {
				return decision, nil
			}
		}
	}

	decision, err := c.engine.Evaluate(principal, action, resource, snapshot)
	if err != nil {
		return decision, err
	}

	if c.cache != nil {
		_ = c.cache.Set(ctx, key, decision, c.cacheTTL)
	}
	return decision, nil
}

// Evaluate exposes a snapshot-pinned evaluation for callers that must hold
// one snapshot across many checks (e.g. filtering an insight feed).
func (c *Checker) Evaluate(principal *entities.Principal, action string, resource *entities.Resource, snapshot *policy.Snapshot) (Decision, error) {
	return c.engine.Evaluate(principal, action, resource, snapshot)
}

// Snapshot returns the current policy snapshot.
func (c *Checker) Snapshot() *policy.Snapshot {
	return c.store.Current()
}

// cacheKey builds a digest over everything that can influence the decision:
// the full principal (attributes feed scope predicates), the action, the
// resource with its attributes, and the snapshot version.
func cacheKey(principal *entities.Principal, action string, resource *entities.Resource, version string) string {
	var b strings.Builder
	b.WriteString(version)
	b.WriteByte('|')
	b.WriteString(principal.ID)
	b.WriteByte('|')
	roles := append([]string(nil), principal.Roles...)
	sort.Strings(roles)
	b.WriteString(strings.Join(roles, ","))
	b.WriteByte('|')
	fmt.Fprintf(&b, "%t|", principal.Active)
	writeAttrs(&b, principal.Attributes)
	b.WriteByte('|')
	b.WriteString(action)
	b.WriteByte('|')
	b.WriteString(resource.Type)
	b.WriteByte('|')
	b.WriteString(resource.ID)
	b.WriteByte('|')
	writeAttrs(&b, resource.Attributes)

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

func writeAttrs(b *strings.Builder, attrs map[string]interface{}) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s=%v;", k, attrs[k])
	}
}
