package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/caredesk/gatekit/internal/gate/store"
	"github.com/caredesk/gatekit/pkg/httpx"
	"github.com/caredesk/gatekit/pkg/ratelimit"
)

// HousekeepingService periodically drops expired revocation entries and
// elapsed rate windows so neither grows without bound.
type HousekeepingService struct {
	Store    store.Store
	Limiter  *ratelimit.Limiter
	Guard    *AuditGuard
	Flood    *httpx.FloodGuard
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 5 minutes.
func NewHousekeepingService(
	st store.Store,
	limiter *ratelimit.Limiter,
	guard *AuditGuard,
	flood *httpx.FloodGuard,
	logger *slog.Logger,
	interval time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &HousekeepingService{
		Store:    st,
		Limiter:  limiter,
		Guard:    guard,
		Flood:    flood,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop() to shut it
// down gracefully.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts down the worker, blocking until any in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run a sweep immediately on startup
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep clears each collection independently; a failure in one does not
// stop the others.
func (s *HousekeepingService) sweep() {
	ctx := context.Background()

	if n, err := s.Store.Revocations().DeleteExpired(ctx, time.Now()); err != nil {
		s.Logger.Error("revocation sweep failed", "err", err)
	} else if n > 0 {
		s.Logger.Info("swept expired revocations", "removed", n)
	}

	if n, err := s.Limiter.Sweep(ctx); err != nil {
		s.Logger.Error("rate window sweep failed", "err", err)
	} else if n > 0 {
		s.Logger.Info("swept elapsed rate windows", "removed", n)
	}

	if n, err := s.Guard.Sweep(ctx); err != nil {
		s.Logger.Error("operation counter sweep failed", "err", err)
	} else if n > 0 {
		s.Logger.Info("swept operation counters", "removed", n)
	}

	s.Flood.Sweep()
}
