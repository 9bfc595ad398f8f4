package linkedinq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketQueues      = []byte("li_queues")
	bucketTokens      = []byte("li_queue_tokens")
	bucketAssignments = []byte("li_assignments")
	bucketQueueIndex  = []byte("li_queue_index")
	bucketAssigned    = []byte("li_assigned")
)

var (
	// ErrNotFound is returned when a queue or assignment does not exist
	ErrNotFound = errors.New("queue not found")
	// ErrUnauthorized is returned on token failures. It carries no detail
	// about what exists behind other tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoEligible is returned when a claim finds no assignable candidates
	ErrNoEligible = errors.New("no eligible candidates")
	// ErrInvalidStatus is returned for unknown assignment statuses
	ErrInvalidStatus = errors.New("invalid assignment status")
)

// Storage persists queues and assignments in BoltDB
type Storage struct {
	db *bolt.DB
}

// NewStorage creates queue storage over an existing database
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketQueues, bucketTokens, bucketAssignments, bucketQueueIndex, bucketAssigned} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

// CreateQueueClaim creates the queue and claims up to batchSize candidates
// from the eligible snapshot in a single transaction. Candidates already
// holding an assignment are skipped inside the transaction, so two
// concurrent claims can never overlap: bolt runs one writer at a time and
// the second claim sees the first one's marks.
func (s *Storage) CreateQueueClaim(ctx context.Context, q *Queue, eligibleIDs []string, batchSize int) ([]*Assignment, error) {
	var assignments []*Assignment

	err := s.db.Update(func(tx *bolt.Tx) error {
		assignedBucket := tx.Bucket(bucketAssigned)
		assignmentBucket := tx.Bucket(bucketAssignments)
		indexBucket := tx.Bucket(bucketQueueIndex)

		now := time.Now()
		for _, candidateID := range eligibleIDs {
			if batchSize > 0 && len(assignments) >= batchSize {
				break
			}
			if assignedBucket.Get([]byte(candidateID)) != nil {
				continue // claimed by another queue
			}

			a := &Assignment{
				ID:          newID(),
				QueueID:     q.ID,
				CandidateID: candidateID,
				Status:      StatusPending,
				CreatedAt:   now,
				UpdatedAt:   now,
			}

			data, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("failed to marshal assignment: %w", err)
			}
			if err := assignmentBucket.Put([]byte(a.ID), data); err != nil {
				return fmt.Errorf("failed to store assignment: %w", err)
			}
			if err := indexBucket.Put(indexKey(q.ID, a.ID), []byte(a.ID)); err != nil {
				return fmt.Errorf("failed to index assignment: %w", err)
			}
			if err := assignedBucket.Put([]byte(candidateID), []byte(a.ID)); err != nil {
				return fmt.Errorf("failed to claim candidate: %w", err)
			}
			assignments = append(assignments, a)
		}

		if len(assignments) == 0 {
			return ErrNoEligible
		}

		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("failed to marshal queue: %w", err)
		}
		if err := tx.Bucket(bucketQueues).Put([]byte(q.ID), data); err != nil {
			return fmt.Errorf("failed to store queue: %w", err)
		}
		if err := tx.Bucket(bucketTokens).Put([]byte(q.Token), []byte(q.ID)); err != nil {
			return fmt.Errorf("failed to index queue token: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return assignments, nil
}

// Get retrieves a queue by ID
func (s *Storage) Get(ctx context.Context, id string) (*Queue, error) {
	var q *Queue

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketQueues).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		q = &Queue{}
		return json.Unmarshal(data, q)
	})

	return q, err
}

// GetByToken resolves a queue from its access token. An unknown token is an
// authorization failure, indistinguishable from a deleted queue.
func (s *Storage) GetByToken(ctx context.Context, token string) (*Queue, error) {
	var q *Queue

	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketTokens).Get([]byte(token))
		if id == nil {
			return ErrUnauthorized
		}
		data := tx.Bucket(bucketQueues).Get(id)
		if data == nil {
			return ErrUnauthorized
		}
		q = &Queue{}
		return json.Unmarshal(data, q)
	})

	return q, err
}

// ListByRole returns all queues for a role
func (s *Storage) ListByRole(ctx context.Context, roleID string) ([]*Queue, error) {
	var out []*Queue

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketQueues).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var q Queue
			if err := json.Unmarshal(v, &q); err != nil {
				continue
			}
			if q.RoleID != roleID {
				continue
			}
			out = append(out, &q)
		}
		return nil
	})

	return out, err
}

// ListAssignments returns all assignments owned by a queue
func (s *Storage) ListAssignments(ctx context.Context, queueID string) ([]*Assignment, error) {
	var out []*Assignment

	err := s.db.View(func(tx *bolt.Tx) error {
		assignmentBucket := tx.Bucket(bucketAssignments)
		c := tx.Bucket(bucketQueueIndex).Cursor()

		prefix := []byte(queueID + "/")
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			data := assignmentBucket.Get(v)
			if data == nil {
				continue
			}
			var a Assignment
			if err := json.Unmarshal(data, &a); err != nil {
				continue
			}
			out = append(out, &a)
		}
		return nil
	})

	return out, err
}

// UpdateAssignmentStatus mutates an assignment, authenticating purely via
// the queue token. The assignment must belong to the token's queue; any
// mismatch is the same ErrUnauthorized as a bad token.
func (s *Storage) UpdateAssignmentStatus(ctx context.Context, token, assignmentID string, status AssignmentStatus) (*Assignment, error) {
	if !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	var out *Assignment

	err := s.db.Update(func(tx *bolt.Tx) error {
		queueID := tx.Bucket(bucketTokens).Get([]byte(token))
		if queueID == nil {
			return ErrUnauthorized
		}

		assignmentBucket := tx.Bucket(bucketAssignments)
		data := assignmentBucket.Get([]byte(assignmentID))
		if data == nil {
			return ErrUnauthorized
		}

		var a Assignment
		if err := json.Unmarshal(data, &a); err != nil {
			return fmt.Errorf("failed to unmarshal assignment: %w", err)
		}
		if a.QueueID != string(queueID) {
			return ErrUnauthorized
		}

		a.Status = status
		a.UpdatedAt = time.Now()

		newData, err := json.Marshal(&a)
		if err != nil {
			return fmt.Errorf("failed to marshal assignment: %w", err)
		}
		if err := assignmentBucket.Put([]byte(a.ID), newData); err != nil {
			return fmt.Errorf("failed to update assignment: %w", err)
		}

		out = &a
		return nil
	})

	return out, err
}

// DeleteQueue removes the queue, its token, and all its assignments,
// releasing the candidates back to the unassigned pool in one transaction
func (s *Storage) DeleteQueue(ctx context.Context, queueID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		queueBucket := tx.Bucket(bucketQueues)
		data := queueBucket.Get([]byte(queueID))
		if data == nil {
			return ErrNotFound
		}

		var q Queue
		if err := json.Unmarshal(data, &q); err != nil {
			return fmt.Errorf("failed to unmarshal queue: %w", err)
		}

		assignmentBucket := tx.Bucket(bucketAssignments)
		assignedBucket := tx.Bucket(bucketAssigned)
		indexBucket := tx.Bucket(bucketQueueIndex)

		c := indexBucket.Cursor()
		prefix := []byte(queueID + "/")
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if data := assignmentBucket.Get(v); data != nil {
				var a Assignment
				if err := json.Unmarshal(data, &a); err == nil {
					assignedBucket.Delete([]byte(a.CandidateID))
				}
				assignmentBucket.Delete(v)
			}
			if err := c.Delete(); err != nil {
				return err
			}
		}

		if err := tx.Bucket(bucketTokens).Delete([]byte(q.Token)); err != nil {
			return err
		}
		return queueBucket.Delete([]byte(queueID))
	})
}

// IsAssigned reports whether a candidate currently holds an assignment
func (s *Storage) IsAssigned(ctx context.Context, candidateID string) (bool, error) {
	assigned := false
	err := s.db.View(func(tx *bolt.Tx) error {
		assigned = tx.Bucket(bucketAssigned).Get([]byte(candidateID)) != nil
		return nil
	})
	return assigned, err
}

// Progress derives completion for a queue: assignments in a terminal status
// over total. Nothing is stored.
func (s *Storage) Progress(ctx context.Context, queueID string) (*Progress, error) {
	assignments, err := s.ListAssignments(ctx, queueID)
	if err != nil {
		return nil, err
	}

	p := &Progress{Total: len(assignments)}
	for _, a := range assignments {
		if a.Status.Terminal() {
			p.Completed++
		}
	}
	return p, nil
}

func indexKey(queueID, assignmentID string) []byte {
	return []byte(queueID + "/" + assignmentID)
}
