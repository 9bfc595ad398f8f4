package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/reachforge/outreachd/internal/candidate"
	"github.com/reachforge/outreachd/internal/classify"
	"github.com/reachforge/outreachd/internal/mailer"
	"github.com/reachforge/outreachd/internal/metrics"
	"github.com/reachforge/outreachd/internal/role"
	"github.com/reachforge/outreachd/internal/template"
)

// ExhaustedAction controls what happens when a candidate finishes all
// touches without a reply
type ExhaustedAction string

const (
	// ExhaustedHold leaves the candidate active indefinitely
	ExhaustedHold ExhaustedAction = "hold"
	// ExhaustedMarkNoResponse closes the candidate out after a waiting
	// period past the final touch
	ExhaustedMarkNoResponse ExhaustedAction = "mark_no_response"
)

// Config contains scheduler configuration
type Config struct {
	// TouchOffsets are the due offsets of each touch from enrollment time.
	// They are absolute, so a missed evaluation window never compresses the
	// remaining gaps.
	TouchOffsets    []time.Duration
	SweepInterval   time.Duration
	Workers         int
	SendTimeout     time.Duration
	ExhaustedAction ExhaustedAction
	NoResponseAfter time.Duration
}

// DefaultTouchOffsets is the stock 3-touch cadence: immediately, +2 days,
// +4 days from enrollment.
func DefaultTouchOffsets() []time.Duration {
	return []time.Duration{0, 48 * time.Hour, 96 * time.Hour}
}

// Scheduler drives active candidates through the timed touch sequence
type Scheduler struct {
	candidates candidate.Store
	roles      *role.Storage
	templates  *template.Storage
	engine     *template.Engine
	mailer     mailer.Mailer
	classifier classify.Classifier
	cfg        Config
	metrics    *metrics.Metrics
	logger     *slog.Logger

	now func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a new sequence scheduler
func NewScheduler(
	candidates candidate.Store,
	roles *role.Storage,
	templates *template.Storage,
	m mailer.Mailer,
	classifier classify.Classifier,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	if len(cfg.TouchOffsets) == 0 {
		cfg.TouchOffsets = DefaultTouchOffsets()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 2 * time.Minute
	}
	if cfg.ExhaustedAction == "" {
		cfg.ExhaustedAction = ExhaustedHold
	}
	if cfg.NoResponseAfter <= 0 {
		cfg.NoResponseAfter = 7 * 24 * time.Hour
	}

	return &Scheduler{
		candidates: candidates,
		roles:      roles,
		templates:  templates,
		engine:     template.NewEngine(),
		mailer:     m,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// SetMetrics attaches a metrics collector
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Start starts the periodic sweep loop
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting sequence scheduler",
		"sweep_interval", s.cfg.SweepInterval,
		"workers", s.cfg.Workers,
		"exhausted_action", s.cfg.ExhaustedAction,
	)

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop() {
	s.logger.Info("stopping sequence scheduler")
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("sequence scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	// Run a sweep immediately on start
	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// NextDue returns when the candidate's next touch is due. The second return
// is false when no further touch is scheduled (sequence halted, exhausted,
// or no email channel). The result is a pure function of touches_sent and
// the fixed offsets, so re-evaluating after a crash never re-sends.
func (s *Scheduler) NextDue(c *candidate.Candidate) (time.Time, bool) {
	if c.Status != candidate.StatusActive || !c.HasEmail() {
		return time.Time{}, false
	}
	if c.TouchesSent >= candidate.MaxTouches || c.TouchesSent >= len(s.cfg.TouchOffsets) {
		return time.Time{}, false
	}
	return c.EnrolledAt.Add(s.cfg.TouchOffsets[c.TouchesSent]), true
}

// Sweep evaluates every active candidate once, sending the touches that are
// due. Each candidate is independent; the work is spread across the worker
// pool and per-candidate mutations stay serialized in storage.
func (s *Scheduler) Sweep(ctx context.Context) {
	start := s.now()

	active, err := s.candidates.ListByStatus(ctx, candidate.StatusActive)
	if err != nil {
		s.logger.Error("sweep failed to list active candidates", "error", err)
		return
	}

	var due []*candidate.Candidate
	for _, c := range active {
		if at, ok := s.NextDue(c); ok && !at.After(start) {
			due = append(due, c)
		}
	}

	if len(due) > 0 {
		s.logger.Debug("sweep found due touches", "count", len(due))

		work := make(chan *candidate.Candidate)
		var wg sync.WaitGroup
		for i := 0; i < s.cfg.Workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for c := range work {
					s.processTouch(ctx, c)
				}
			}()
		}
		for _, c := range due {
			work <- c
		}
		close(work)
		wg.Wait()
	}

	if s.cfg.ExhaustedAction == ExhaustedMarkNoResponse {
		s.closeExhausted(ctx, active, start)
	}

	if s.metrics != nil {
		s.metrics.ActiveCandidates.Set(float64(len(active)))
		s.metrics.SweepDurationSecs.Set(s.now().Sub(start).Seconds())
		s.metrics.LastSweepTimestamp.Set(float64(s.now().Unix()))
	}
}

// processTouch sends one due touch for one candidate
func (s *Scheduler) processTouch(ctx context.Context, c *candidate.Candidate) {
	logger := s.logger.With("candidate_id", c.ID, "role_id", c.RoleID)
	step := c.TouchesSent + 1

	tmpl, err := s.templates.Get(ctx, c.RoleID, step)
	if errors.Is(err, template.ErrNotFound) {
		// Touch stays due until the sequence is authored
		logger.Warn("no template for due touch", "step", step)
		return
	}
	if err != nil {
		logger.Error("failed to load template", "step", step, "error", err)
		return
	}

	r, err := s.roles.Get(ctx, c.RoleID)
	if err != nil && !errors.Is(err, role.ErrNotFound) {
		logger.Error("failed to load role", "error", err)
		return
	}

	rendered, err := s.engine.Render(tmpl, template.Data(c, r))
	if err != nil {
		// Broken template text, nothing candidate-specific to do
		logger.Error("failed to render template", "step", step, "error", err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	err = s.mailer.Send(sendCtx, &mailer.Message{
		To:      c.Email,
		ToName:  fmt.Sprintf("%s %s", c.FirstName, c.LastName),
		Subject: rendered.Subject,
		Text:    rendered.Text,
		HTML:    rendered.HTML,
	})
	cancel()

	if err != nil {
		if mailer.IsTemporary(err) {
			// Retried on the next sweep; touches_sent stays put
			logger.Warn("transient delivery failure", "step", step, "error", err)
			if s.metrics != nil {
				s.metrics.SendTransientFailTotal.Inc()
			}
			return
		}

		logger.Error("permanent delivery failure", "step", step, "error", err)
		if s.metrics != nil {
			s.metrics.SendPermanentFailTotal.Inc()
		}
		_, terr := s.candidates.Transition(ctx, c.ID, candidate.StatusActive, func(c *candidate.Candidate) {
			c.Status = candidate.StatusBounced
		})
		if terr != nil && !errors.Is(terr, candidate.ErrConflict) {
			logger.Error("failed to mark candidate bounced", "error", terr)
		}
		return
	}

	if err := s.candidates.MarkTouchSent(ctx, c.ID, c.TouchesSent, s.now()); err != nil {
		if errors.Is(err, candidate.ErrConflict) {
			// A reply or unsubscribe landed while we were sending; it wins
			logger.Info("touch result discarded after concurrent transition", "step", step)
			if s.metrics != nil {
				s.metrics.TransitionConflictTotal.Inc()
			}
			return
		}
		logger.Error("failed to record sent touch", "step", step, "error", err)
		return
	}

	logger.Info("touch sent", "step", step, "to", c.Email)
	if s.metrics != nil {
		s.metrics.TouchesSentTotal.WithLabelValues(strconv.Itoa(step)).Inc()
	}
}

// closeExhausted moves candidates whose sequence finished with no reply to
// the no_response terminal once the waiting period has passed
func (s *Scheduler) closeExhausted(ctx context.Context, active []*candidate.Candidate, now time.Time) {
	cutoff := now.Add(-s.cfg.NoResponseAfter)

	for _, c := range active {
		if c.TouchesSent < candidate.MaxTouches {
			continue
		}
		if c.LastTouchAt.IsZero() || c.LastTouchAt.After(cutoff) {
			continue
		}
		_, err := s.candidates.Transition(ctx, c.ID, candidate.StatusActive, func(c *candidate.Candidate) {
			c.Status = candidate.StatusNoResponse
		})
		if err != nil && !errors.Is(err, candidate.ErrConflict) {
			s.logger.Error("failed to close exhausted candidate", "candidate_id", c.ID, "error", err)
			continue
		}
		if err == nil {
			s.logger.Info("sequence exhausted with no reply", "candidate_id", c.ID)
		}
	}
}
