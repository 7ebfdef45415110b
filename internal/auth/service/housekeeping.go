package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/walletgate/walletgate/internal/auth/store"
)

const (
	// DefaultCleanupInterval is how often housekeeping runs.
	DefaultCleanupInterval = time.Hour

	// DefaultAbandonedRetention is how long a placeholder account that never
	// completed a login is kept before being pruned.
	DefaultAbandonedRetention = 7 * 24 * time.Hour
)

// HousekeepingService periodically prunes accounts that were provisioned
// during sign-in but never activated. Transient state (nonces, pending
// attempts, links) expires via its cache TTLs and needs no sweeping here.
type HousekeepingService struct {
	store     store.Store
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewHousekeepingService(st store.Store, interval, retention time.Duration, logger *slog.Logger) *HousekeepingService {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if retention <= 0 {
		retention = DefaultAbandonedRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HousekeepingService{
		store:     st,
		interval:  interval,
		retention: retention,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the background cleanup loop. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
}

// Stop signals the loop to exit and waits for the in-flight pass to finish.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("housekeeping started", "interval", s.interval)

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			s.logger.Info("housekeeping stopped")
			return
		}
	}
}

func (s *HousekeepingService) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.retention)
	deleted, err := s.store.Identities().DeleteNeverActivated(ctx, cutoff, PlaceholderEmailDomain)
	if err != nil {
		s.logger.Error("prune abandoned accounts", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("pruned abandoned accounts", "count", deleted)
	}
}
