// Package retention enforces the data-retention policy for candidates in
// stricter jurisdictions: once the retention period passes without
// consent-backed contact, PII is cleared in place while sequence counters
// and role linkage survive for reporting.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reachforge/outreachd/internal/candidate"
	"github.com/reachforge/outreachd/internal/metrics"
)

// Config contains retention policy settings
type Config struct {
	// RetentionPeriod is how long PII may be held from enrollment.
	// Zero disables the sweeper.
	RetentionPeriod time.Duration
	SweepInterval   time.Duration
}

// Sweeper periodically anonymizes over-retained candidates
type Sweeper struct {
	store   candidate.Store
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	wg   sync.WaitGroup
	done chan struct{}
}

// NewSweeper creates a retention sweeper
func NewSweeper(store candidate.Store, cfg Config, logger *slog.Logger) *Sweeper {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 12 * time.Hour
	}
	return &Sweeper{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

// SetMetrics attaches a metrics collector
func (s *Sweeper) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Start starts the sweep loop. A zero retention period disables it.
func (s *Sweeper) Start(ctx context.Context) {
	if s.cfg.RetentionPeriod <= 0 {
		s.logger.Info("retention sweeper disabled")
		return
	}

	s.logger.Info("retention sweeper started",
		"retention_period", s.cfg.RetentionPeriod,
		"sweep_interval", s.cfg.SweepInterval,
	)

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop stops the sweeper and waits for the loop to finish
func (s *Sweeper) Stop() {
	close(s.done)
	s.wg.Wait()
	s.logger.Info("retention sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	// Run a sweep immediately on start
	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep anonymizes every GDPR-flagged candidate that crossed the retention
// boundary without contact consent. Returns how many candidates changed.
// Re-running over already-anonymized candidates is a no-op.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if s.cfg.RetentionPeriod <= 0 {
		return 0
	}

	now := s.now()
	cutoff := now.Add(-s.cfg.RetentionPeriod)
	anonymized := 0

	for _, status := range []candidate.Status{
		candidate.StatusActive,
		candidate.StatusLinkedInOnly,
		candidate.StatusInterested,
		candidate.StatusNotInterested,
		candidate.StatusResponded,
		candidate.StatusUnsubscribed,
		candidate.StatusBounced,
		candidate.StatusNoResponse,
	} {
		list, err := s.store.ListByStatus(ctx, status)
		if err != nil {
			s.logger.Error("retention sweep failed to list candidates", "status", status, "error", err)
			continue
		}

		for _, c := range list {
			if !c.GDPRFlagged || c.ContactConsent {
				continue
			}
			if c.EnrolledAt.After(cutoff) {
				continue
			}

			changed, err := s.store.Anonymize(ctx, c.ID, now)
			if err != nil {
				s.logger.Error("failed to anonymize candidate", "candidate_id", c.ID, "error", err)
				continue
			}
			if changed {
				anonymized++
				if s.metrics != nil {
					s.metrics.AnonymizationsTotal.Inc()
				}
			}
		}
	}

	if anonymized > 0 {
		s.logger.Info("retention sweep anonymized candidates", "count", anonymized)
	}
	return anonymized
}
