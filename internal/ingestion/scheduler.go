package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kealoha/emergency-alert-hub/internal/models"
	"github.com/kealoha/emergency-alert-hub/internal/observability"
	"github.com/kealoha/emergency-alert-hub/internal/repository"
)

const (
	stateIdle int32 = iota
	stateSyncing
)

// NewAlertFunc is invoked for every alert inserted for the first time.
// Updates to an existing external id do not re-trigger it.
type NewAlertFunc func(ctx context.Context, alert *models.Alert)

// Scheduler runs the periodic multi-source sync loop: one immediate pass on
// start, then a fixed-interval cycle where all sources sync concurrently,
// each bounded by its own timeout, followed by the expiry sweep.
type Scheduler struct {
	sources       []Source
	alerts        repository.AlertRepository
	interval      time.Duration
	sourceTimeout time.Duration
	onNew         NewAlertFunc
	clock         clockwork.Clock
	metrics       *observability.Metrics

	state atomic.Int32
	force chan struct{}
	wg    sync.WaitGroup
}

func NewScheduler(
	sources []Source,
	alerts repository.AlertRepository,
	interval, sourceTimeout time.Duration,
	onNew NewAlertFunc,
	metrics *observability.Metrics,
) *Scheduler {
	return &Scheduler{
		sources:       sources,
		alerts:        alerts,
		interval:      interval,
		sourceTimeout: sourceTimeout,
		onNew:         onNew,
		clock:         clockwork.NewRealClock(),
		metrics:       metrics,
		force:         make(chan struct{}, 1),
	}
}

// SetClock swaps the time source; tests inject a fake clock to step through
// cycles deterministically.
func (s *Scheduler) SetClock(c clockwork.Clock) {
	s.clock = c
}

// State reports "idle" or "syncing" for admin observability.
func (s *Scheduler) State() string {
	if s.state.Load() == stateSyncing {
		return "syncing"
	}
	return "idle"
}

func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop waits for the loop (and any in-flight cycle) to finish. Cancel the
// context passed to Start first.
func (s *Scheduler) Stop() {
	s.wg.Wait()
	slog.Info("sync scheduler stopped")
}

// ForceSync requests an out-of-band pass without disturbing the timer. A
// request made while a cycle is already pending coalesces with it.
func (s *Scheduler) ForceSync() {
	select {
	case s.force <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	slog.Info("sync scheduler starting", "interval", s.interval, "sources", len(s.sources))

	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync scheduler shutting down")
			return
		case <-s.clock.After(s.interval):
			s.runCycle(ctx)
		case <-s.force:
			slog.Info("manual sync requested")
			s.runCycle(ctx)
		}
	}
}

// runCycle executes one full pass: all sources concurrently, then the expiry
// sweep. The state flag always returns to idle, even when a source times out
// or the context is cancelled mid-cycle.
func (s *Scheduler) runCycle(ctx context.Context) {
	if !s.state.CompareAndSwap(stateIdle, stateSyncing) {
		return
	}
	defer s.state.Store(stateIdle)

	start := s.clock.Now()

	var wg sync.WaitGroup
	for _, src := range s.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			s.syncSource(ctx, src)
		}(src)
	}
	wg.Wait()

	if ctx.Err() == nil {
		s.sweepExpired(ctx)
	}

	if s.metrics != nil {
		s.metrics.SyncCycles.Inc()
		s.metrics.SyncDuration.Observe(s.clock.Since(start).Seconds())
	}
	slog.Debug("sync cycle complete", "duration", s.clock.Since(start))
}

// syncSource fetches and upserts one source's alerts. The fetch runs under a
// bounded timeout; a hung adapter is abandoned and logged as a failure so
// sibling sources and the next cycle are unaffected.
func (s *Scheduler) syncSource(ctx context.Context, src Source) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.sourceTimeout)
	defer cancel()

	type fetchResult struct {
		alerts []*models.Alert
		err    error
	}
	resultCh := make(chan fetchResult, 1)
	go func() {
		alerts, err := src.FetchAlerts(fetchCtx)
		resultCh <- fetchResult{alerts, err}
	}()

	var res fetchResult
	select {
	case res = <-resultCh:
	case <-fetchCtx.Done():
		slog.Error("source sync timed out", "source", src.Name(), "timeout", s.sourceTimeout)
		if s.metrics != nil {
			s.metrics.SyncErrors.WithLabelValues(src.Name()).Inc()
		}
		return
	}

	if res.err != nil {
		slog.Error("source sync failed", "source", src.Name(), "error", res.err)
		if s.metrics != nil {
			s.metrics.SyncErrors.WithLabelValues(src.Name()).Inc()
		}
		return
	}

	var created, updated int
	for _, alert := range res.alerts {
		isNew, err := s.alerts.UpsertByExternalID(ctx, alert)
		if err != nil {
			slog.Error("error upserting alert", "source", src.Name(), "external_id", alert.ExternalID, "error", err)
			continue
		}
		outcome := "updated"
		if isNew {
			outcome = "created"
			created++
			if s.onNew != nil {
				s.onNew(ctx, alert)
			}
		} else {
			updated++
		}
		if s.metrics != nil {
			s.metrics.AlertsIngested.WithLabelValues(src.Name(), outcome).Inc()
		}
	}

	slog.Info("source sync complete", "source", src.Name(), "fetched", len(res.alerts), "created", created, "updated", updated)
}

func (s *Scheduler) sweepExpired(ctx context.Context) {
	count, err := s.alerts.MarkExpired(ctx, s.clock.Now())
	if err != nil {
		slog.Error("expiry sweep failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("expired alerts marked inactive", "count", count)
		if s.metrics != nil {
			s.metrics.AlertsExpired.Add(float64(count))
		}
	}
}
