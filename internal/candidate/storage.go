package candidate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCandidates = []byte("candidates")
	bucketContactKey = []byte("candidate_keys")
)

var (
	// ErrNotFound is returned when a candidate does not exist
	ErrNotFound = errors.New("candidate not found")
	// ErrDuplicate is returned when the (role, contact key) pair is taken
	ErrDuplicate = errors.New("duplicate candidate")
	// ErrConflict is returned when a guarded transition sees a stale status;
	// the caller must re-read and retry
	ErrConflict = errors.New("candidate state conflict")
)

// Store defines candidate persistence operations
type Store interface {
	// Insert persists a new candidate, claiming its (role, contact key)
	// slot. Returns ErrDuplicate if the slot is taken.
	Insert(ctx context.Context, c *Candidate) error

	// Get retrieves a candidate by ID
	Get(ctx context.Context, id string) (*Candidate, error)

	// GetByKey looks up a candidate by (role, normalized contact key)
	GetByKey(ctx context.Context, roleID, normKey string) (*Candidate, error)

	// Transition applies mutate to the candidate if its stored status
	// matches expect. Returns ErrConflict on a stale expectation.
	Transition(ctx context.Context, id string, expect Status, mutate func(*Candidate)) (*Candidate, error)

	// Update applies mutate regardless of the current status
	Update(ctx context.Context, id string, mutate func(*Candidate)) (*Candidate, error)

	// Anonymize clears PII in place, idempotently
	Anonymize(ctx context.Context, id string, at time.Time) (bool, error)

	// MarkTouchSent records a sent touch if the candidate is still active
	// and no concurrent touch advanced the counter
	MarkTouchSent(ctx context.Context, id string, expectTouches int, at time.Time) error

	// ListByRole returns candidates for a role, optionally filtered by status
	ListByRole(ctx context.Context, roleID string, status Status) ([]*Candidate, error)

	// ListByStatus returns all candidates with the given status across roles
	ListByStatus(ctx context.Context, status Status) ([]*Candidate, error)

	// CountByStatus returns the per-status counts for a role
	CountByStatus(ctx context.Context, roleID string) (StatusCounts, error)

	// Delete removes a candidate and releases its contact key
	Delete(ctx context.Context, id string) error

	// Close closes the storage connection
	Close() error
}

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// Open opens (or creates) the database file and prepares the buckets
func Open(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store, err := NewBoltStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewBoltStore creates candidate storage over an existing database
func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCandidates, bucketContactKey} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Insert persists a new candidate. The contact-key claim and the row write
// happen in one transaction, so two concurrent inserts of the same person
// for the same role cannot both succeed.
func (s *BoltStore) Insert(ctx context.Context, c *Candidate) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		keyBucket := tx.Bucket(bucketContactKey)
		key := contactKey(c.RoleID, c.NormalizedKey())

		if keyBucket.Get(key) != nil {
			return ErrDuplicate
		}
		if err := keyBucket.Put(key, []byte(c.ID)); err != nil {
			return fmt.Errorf("failed to claim contact key: %w", err)
		}

		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal candidate: %w", err)
		}
		if err := tx.Bucket(bucketCandidates).Put([]byte(c.ID), data); err != nil {
			return fmt.Errorf("failed to store candidate: %w", err)
		}
		return nil
	})
}

// Get retrieves a candidate by ID
func (s *BoltStore) Get(ctx context.Context, id string) (*Candidate, error) {
	var c *Candidate

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCandidates).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		c = &Candidate{}
		return json.Unmarshal(data, c)
	})

	return c, err
}

// GetByKey looks up a candidate by its (role, normalized contact key) slot
func (s *BoltStore) GetByKey(ctx context.Context, roleID, normKey string) (*Candidate, error) {
	var c *Candidate

	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketContactKey).Get(contactKey(roleID, normKey))
		if id == nil {
			return ErrNotFound
		}
		data := tx.Bucket(bucketCandidates).Get(id)
		if data == nil {
			return ErrNotFound
		}
		c = &Candidate{}
		return json.Unmarshal(data, c)
	})

	return c, err
}

// Transition applies mutate to the candidate only if its stored status still
// matches expect. Bolt serializes writers, which makes this a compare-and-set
// against concurrent sweeps and inbound events.
func (s *BoltStore) Transition(ctx context.Context, id string, expect Status, mutate func(*Candidate)) (*Candidate, error) {
	var out *Candidate

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCandidates)
		data := bucket.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var c Candidate
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("failed to unmarshal candidate: %w", err)
		}
		if c.Status != expect {
			return fmt.Errorf("%w: have %s, expected %s", ErrConflict, c.Status, expect)
		}

		mutate(&c)
		c.UpdatedAt = time.Now()

		newData, err := json.Marshal(&c)
		if err != nil {
			return fmt.Errorf("failed to marshal candidate: %w", err)
		}
		if err := bucket.Put([]byte(id), newData); err != nil {
			return fmt.Errorf("failed to update candidate: %w", err)
		}

		out = &c
		return nil
	})

	return out, err
}

// Update applies mutate unconditionally. Used for transitions that hold
// regardless of the current state (unsubscribe, anonymization).
func (s *BoltStore) Update(ctx context.Context, id string, mutate func(*Candidate)) (*Candidate, error) {
	var out *Candidate

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCandidates)
		data := bucket.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var c Candidate
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("failed to unmarshal candidate: %w", err)
		}

		mutate(&c)
		c.UpdatedAt = time.Now()

		newData, err := json.Marshal(&c)
		if err != nil {
			return fmt.Errorf("failed to marshal candidate: %w", err)
		}
		if err := bucket.Put([]byte(id), newData); err != nil {
			return fmt.Errorf("failed to update candidate: %w", err)
		}

		out = &c
		return nil
	})

	return out, err
}

// MarkTouchSent advances touches_sent by one, guarded on the candidate still
// being active with the expected counter. A reply that landed between the
// send and this call wins and the touch result is discarded.
func (s *BoltStore) MarkTouchSent(ctx context.Context, id string, expectTouches int, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCandidates)
		data := bucket.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var c Candidate
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("failed to unmarshal candidate: %w", err)
		}
		if c.Status != StatusActive || c.TouchesSent != expectTouches {
			return fmt.Errorf("%w: status %s, touches %d", ErrConflict, c.Status, c.TouchesSent)
		}
		if c.TouchesSent >= MaxTouches {
			return fmt.Errorf("%w: touch budget exhausted", ErrConflict)
		}

		c.TouchesSent++
		c.LastTouchAt = at
		c.UpdatedAt = time.Now()

		newData, err := json.Marshal(&c)
		if err != nil {
			return fmt.Errorf("failed to marshal candidate: %w", err)
		}
		return bucket.Put([]byte(id), newData)
	})
}

// ListByRole returns candidates for a role. An empty status matches all.
func (s *BoltStore) ListByRole(ctx context.Context, roleID string, status Status) ([]*Candidate, error) {
	var out []*Candidate

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCandidates).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var cand Candidate
			if err := json.Unmarshal(v, &cand); err != nil {
				continue
			}
			if cand.RoleID != roleID {
				continue
			}
			if status != "" && cand.Status != status {
				continue
			}
			out = append(out, &cand)
		}
		return nil
	})

	return out, err
}

// ListByStatus returns all candidates with the given status
func (s *BoltStore) ListByStatus(ctx context.Context, status Status) ([]*Candidate, error) {
	var out []*Candidate

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCandidates).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var cand Candidate
			if err := json.Unmarshal(v, &cand); err != nil {
				continue
			}
			if cand.Status != status {
				continue
			}
			out = append(out, &cand)
		}
		return nil
	})

	return out, err
}

// CountByStatus returns the per-status counts for a role
func (s *BoltStore) CountByStatus(ctx context.Context, roleID string) (StatusCounts, error) {
	counts := StatusCounts{}

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCandidates).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var cand Candidate
			if err := json.Unmarshal(v, &cand); err != nil {
				continue
			}
			if cand.RoleID != roleID {
				continue
			}
			counts[cand.Status]++
		}
		return nil
	})

	return counts, err
}

// Anonymize clears the candidate's PII and removes its contact key from the
// index, which still holds the raw email or profile URL. Idempotent: an
// already-anonymized candidate is left untouched and reported as such.
func (s *BoltStore) Anonymize(ctx context.Context, id string, at time.Time) (bool, error) {
	changed := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCandidates)
		data := bucket.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var c Candidate
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("failed to unmarshal candidate: %w", err)
		}

		if key := c.NormalizedKey(); key != "" {
			tx.Bucket(bucketContactKey).Delete(contactKey(c.RoleID, key))
		}
		if !c.Anonymize(at) {
			return nil
		}
		changed = true

		newData, err := json.Marshal(&c)
		if err != nil {
			return fmt.Errorf("failed to marshal candidate: %w", err)
		}
		return bucket.Put([]byte(id), newData)
	})

	return changed, err
}

// Delete removes a candidate and releases its contact key slot
func (s *BoltStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCandidates)
		data := bucket.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var c Candidate
		if err := json.Unmarshal(data, &c); err == nil {
			if key := c.NormalizedKey(); key != "" {
				tx.Bucket(bucketContactKey).Delete(contactKey(c.RoleID, key))
			}
		}

		return bucket.Delete([]byte(id))
	})
}

// Close closes the database connection
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying bolt.DB instance so sibling packages can share it
func (s *BoltStore) DB() *bolt.DB {
	return s.db
}

func contactKey(roleID, normKey string) []byte {
	return []byte(roleID + "/" + normKey)
}
