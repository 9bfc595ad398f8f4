package linkedinq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reachforge/outreachd/internal/candidate"
	"github.com/reachforge/outreachd/internal/metrics"
)

// Assigner batches email-less candidates into manual outreach queues
type Assigner struct {
	candidates candidate.Store
	storage    *Storage
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewAssigner creates a new queue assigner
func NewAssigner(candidates candidate.Store, storage *Storage, logger *slog.Logger) *Assigner {
	return &Assigner{candidates: candidates, storage: storage, logger: logger}
}

// SetMetrics attaches a metrics collector
func (a *Assigner) SetMetrics(m *metrics.Metrics) {
	a.metrics = m
}

// CreateQueue selects up to batchSize linkedin_only candidates of the role
// that hold no assignment, and creates a queue owning one pending assignment
// per selected candidate. The candidate snapshot is taken first; the claim
// itself runs in a single storage transaction, so a concurrent CreateQueue
// for the same role ends up with a disjoint set.
func (a *Assigner) CreateQueue(ctx context.Context, roleID, assigneeName string, batchSize int) (*Queue, []*Assignment, error) {
	eligible, err := a.candidates.ListByRole(ctx, roleID, candidate.StatusLinkedInOnly)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list eligible candidates: %w", err)
	}
	if len(eligible) == 0 {
		return nil, nil, ErrNoEligible
	}

	ids := make([]string, 0, len(eligible))
	for _, c := range eligible {
		ids = append(ids, c.ID)
	}

	q := &Queue{
		ID:           uuid.New().String(),
		RoleID:       roleID,
		AssigneeName: assigneeName,
		Token:        NewToken(),
		CreatedAt:    time.Now(),
	}

	assignments, err := a.storage.CreateQueueClaim(ctx, q, ids, batchSize)
	if err != nil {
		return nil, nil, err
	}

	a.logger.Info("linkedin queue created",
		"queue_id", q.ID,
		"role_id", roleID,
		"assignee", assigneeName,
		"assignments", len(assignments),
	)
	if a.metrics != nil {
		a.metrics.QueuesCreatedTotal.Inc()
		a.metrics.AssignmentsCreatedTotal.Add(float64(len(assignments)))
	}

	return q, assignments, nil
}

// UpdateAssignmentStatus mutates one assignment, authenticated by the queue
// token alone
func (a *Assigner) UpdateAssignmentStatus(ctx context.Context, token, assignmentID string, status AssignmentStatus) (*Assignment, error) {
	return a.storage.UpdateAssignmentStatus(ctx, token, assignmentID, status)
}

// DeleteQueue removes a queue, releasing its candidates back to the pool.
// Their status is untouched: they stay linkedin_only and become selectable
// by a future CreateQueue.
func (a *Assigner) DeleteQueue(ctx context.Context, queueID string) error {
	if err := a.storage.DeleteQueue(ctx, queueID); err != nil {
		return err
	}
	a.logger.Info("linkedin queue deleted", "queue_id", queueID)
	if a.metrics != nil {
		a.metrics.QueuesDeletedTotal.Inc()
	}
	return nil
}

func newID() string {
	return uuid.New().String()
}
