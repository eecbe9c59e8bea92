package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/orderdesk/orderdesk-backend/internal/config"
	"github.com/orderdesk/orderdesk-backend/internal/models"
	"github.com/orderdesk/orderdesk-backend/internal/pkg/metrics"
	"github.com/orderdesk/orderdesk-backend/internal/pkg/tracing"
	"github.com/orderdesk/orderdesk-backend/internal/repository"
)

// OrderPoller detects order state transitions that never passed through this
// process: other terminals writing to the shared shop database, or direct DB
// edits. It scans the orders table on a fixed interval, fingerprints each
// row's tracked fields, and publishes a status-change event for every order
// whose fingerprint differs from the cached one.
type OrderPoller struct {
	repo     repository.OrderRepository
	notifier *Notifier
	cfg      *config.Config
	log      *slog.Logger

	mu    sync.Mutex
	cache map[int64]string // order id -> last observed fingerprint

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewOrderPoller creates the change-detection poller. The fingerprint cache
// starts empty, so the first cycle after a restart announces every order once;
// that one-time burst is accepted and documented behavior.
func NewOrderPoller(repo repository.OrderRepository, notifier *Notifier, cfg *config.Config, log *slog.Logger) *OrderPoller {
	return &OrderPoller{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		cache:    make(map[int64]string),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the polling loop in a background goroutine.
func (p *OrderPoller) Start(ctx context.Context) {
	interval := time.Duration(p.cfg.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	p.log.Info("starting order poller", "interval", interval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				// A failed cycle is retried on the next tick; it never stops the loop.
				if err := p.RunCycle(ctx); err != nil {
					p.log.Error("order scan failed", "error", err)
				}
			case <-p.stopCh:
				p.log.Info("order poller stopped")
				return
			case <-ctx.Done():
				p.log.Info("order poller context cancelled")
				return
			}
		}
	}()
}

// Stop terminates the polling loop.
func (p *OrderPoller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// RunCycle performs one scan: fetch, fingerprint, diff, publish, prune.
// The cache is only touched after the fetch succeeds, so a failed query
// cannot partially commit state.
func (p *OrderPoller) RunCycle(ctx context.Context) error {
	ctx, span := tracing.StartSpanWithAttributes(ctx, "poller.RunCycle",
		attribute.Int("cache.size", p.CachedCount()))
	defer span.End()

	start := time.Now()

	states, err := p.repo.ListOrderStates(ctx)
	if err != nil {
		metrics.PollFailuresTotal.Inc()
		return err
	}

	changed := p.diffAndUpdate(states)

	for _, state := range changed {
		if _, err := p.notifier.PublishStatusChanged(state.ID, state.Number, state.Summary(), ""); err != nil {
			p.log.Error("failed to publish status change", "order_id", state.ID, "error", err)
		}
	}

	metrics.PollCyclesTotal.Inc()
	if len(changed) > 0 {
		metrics.OrderChangesDetectedTotal.Add(float64(len(changed)))
		p.log.Info("order changes detected", "changed", len(changed), "orders", len(states),
			"duration_ms", time.Since(start).Milliseconds())
	} else {
		p.log.Debug("order scan completed", "orders", len(states),
			"duration_ms", time.Since(start).Milliseconds())
	}
	return nil
}

// diffAndUpdate compares fetched states against the cache, replaces cache
// entries, prunes ids missing from the result set, and returns the changed
// states. An id absent from the cache counts as changed (first observation).
// Publishing happens outside this lock.
func (p *OrderPoller) diffAndUpdate(states []models.OrderState) []models.OrderState {
	p.mu.Lock()
	defer p.mu.Unlock()

	var changed []models.OrderState
	seen := make(map[int64]bool, len(states))

	for _, state := range states {
		seen[state.ID] = true
		fp := state.Fingerprint()
		if prev, ok := p.cache[state.ID]; !ok || prev != fp {
			changed = append(changed, state)
		}
		p.cache[state.ID] = fp
	}

	// Orders deleted since the last cycle drop out silently.
	for id := range p.cache {
		if !seen[id] {
			delete(p.cache, id)
		}
	}

	return changed
}

// CachedCount reports how many orders the fingerprint cache is tracking.
func (p *OrderPoller) CachedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cache)
}
