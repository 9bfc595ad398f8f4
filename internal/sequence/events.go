package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/reachforge/outreachd/internal/candidate"
	"github.com/reachforge/outreachd/internal/classify"
)

// ErrCandidateUnresolved is returned when an inbound event cannot be matched
// to a candidate
var ErrCandidateUnresolved = errors.New("inbound event does not match a candidate")

// HandleInbound applies an inbound message event to the matching candidate.
// Unsubscribe has priority over sentiment classification. Whatever the
// outcome, the candidate never receives another touch: every transition here
// lands in a halted status, and a candidate already halted stays where it is.
func (s *Scheduler) HandleInbound(ctx context.Context, msg classify.InboundMessage) (*candidate.Candidate, error) {
	c, err := s.resolve(ctx, msg)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("candidate_id", c.ID, "role_id", c.RoleID)

	if c.Status == candidate.StatusAnonymized {
		// Irreversible; nothing left to transition or store
		logger.Info("inbound event for anonymized candidate ignored")
		return c, nil
	}

	if s.classifier.DetectUnsubscribe(msg) {
		updated, err := s.candidates.Update(ctx, c.ID, func(c *candidate.Candidate) {
			c.Status = candidate.StatusUnsubscribed
		})
		if err != nil {
			return nil, fmt.Errorf("failed to apply unsubscribe: %w", err)
		}
		logger.Info("candidate unsubscribed")
		if s.metrics != nil {
			s.metrics.UnsubscribesTotal.Inc()
		}
		return updated, nil
	}

	result, err := s.classifier.Classify(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to classify inbound message: %w", err)
	}

	var target candidate.Status
	switch result.Sentiment {
	case candidate.SentimentInterested:
		target = candidate.StatusInterested
	case candidate.SentimentNotInterested:
		target = candidate.StatusNotInterested
	default:
		target = candidate.StatusResponded
	}

	updated, err := s.candidates.Transition(ctx, c.ID, candidate.StatusActive, func(c *candidate.Candidate) {
		c.Status = target
		c.ReplySentiment = result.Sentiment
		c.ReplyText = result.Text
	})
	if errors.Is(err, candidate.ErrConflict) {
		// Already halted by an earlier event; keep the first outcome
		logger.Info("reply event ignored for halted candidate", "status", c.Status)
		if s.metrics != nil {
			s.metrics.TransitionConflictTotal.Inc()
		}
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply reply: %w", err)
	}

	logger.Info("reply classified", "sentiment", result.Sentiment, "status", target)
	if s.metrics != nil {
		s.metrics.RepliesTotal.WithLabelValues(string(result.Sentiment)).Inc()
	}
	return updated, nil
}

func (s *Scheduler) resolve(ctx context.Context, msg classify.InboundMessage) (*candidate.Candidate, error) {
	if msg.CandidateID != "" {
		c, err := s.candidates.Get(ctx, msg.CandidateID)
		if errors.Is(err, candidate.ErrNotFound) {
			return nil, ErrCandidateUnresolved
		}
		return c, err
	}
	if msg.RoleID != "" && msg.FromEmail != "" {
		c, err := s.candidates.GetByKey(ctx, msg.RoleID, normalizeEmail(msg.FromEmail))
		if errors.Is(err, candidate.ErrNotFound) {
			return nil, ErrCandidateUnresolved
		}
		return c, err
	}
	return nil, ErrCandidateUnresolved
}

func normalizeEmail(email string) string {
	c := candidate.Candidate{Email: email}
	return c.NormalizedKey()
}
