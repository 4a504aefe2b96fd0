package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Reloader replaces in-memory state with the persisted policy.
type Reloader interface {
	Load(ctx context.Context) error
}

// PolicyWatcher keeps this instance's in-memory policy in sync with writes
// made by other instances. It uses PostgreSQL LISTEN/NOTIFY for instant
// propagation and falls back to periodic reloads in case notifications are
// lost during a reconnect.
type PolicyWatcher struct {
	mu         sync.Mutex
	reloader   Reloader
	connStr    string
	refreshTTL time.Duration
	lastReload time.Time
	listener   *pq.Listener
	logger     *slog.Logger
	stopCh     chan struct{}
	stopped    bool
}

// NewPolicyWatcher creates a new PolicyWatcher.
// connStr is the PostgreSQL connection string for LISTEN/NOTIFY.
// refreshTTL is the fallback interval for reloading without a notification.
func NewPolicyWatcher(reloader Reloader, connStr string, refreshTTL time.Duration, logger *slog.Logger) *PolicyWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyWatcher{
		reloader:   reloader,
		connStr:    connStr,
		refreshTTL: refreshTTL,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Start begins listening for policy change notifications.
// The caller is expected to have loaded the initial policy already.
func (w *PolicyWatcher) Start() error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			// Don't fail - the TTL fallback covers missed notifications
			w.logger.Warn("policy watcher listener error", "error", err)
		}
	}

	w.listener = pq.NewListener(w.connStr, 10*time.Second, time.Minute, reportProblem)

	if err := w.listener.Listen("policy_changed"); err != nil {
		return fmt.Errorf("failed to listen on policy_changed: %w", err)
	}

	w.mu.Lock()
	w.lastReload = time.Now()
	w.mu.Unlock()

	go w.run()
	return nil
}

// Stop stops the watcher and cleans up resources.
func (w *PolicyWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()

	if w.listener != nil {
		return w.listener.Close()
	}
	return nil
}

func (w *PolicyWatcher) run() {
	for {
		select {
		case <-w.stopCh:
			return
		case notification := <-w.listener.Notify:
			if notification == nil {
				// Connection lost, listener will reconnect automatically
				continue
			}
			w.reload()
		case <-time.After(w.refreshTTL):
			// Periodic reload in case a notification was missed, and a
			// ping to keep the listener connection alive
			w.reload()
			go func() {
				if err := w.listener.Ping(); err != nil {
					w.logger.Warn("policy watcher ping error", "error", err)
				}
			}()
		}
	}
}

// reload replaces the in-memory policy with the persisted one.
func (w *PolicyWatcher) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.reloader.Load(ctx); err != nil {
		w.logger.Error("failed to reload policy", "error", err)
		return
	}

	w.mu.Lock()
	w.lastReload = time.Now()
	w.mu.Unlock()
}

// LastReload reports when the policy was last reloaded.
func (w *PolicyWatcher) LastReload() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastReload
}
