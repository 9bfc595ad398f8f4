package role

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketRoles = []byte("roles")

// ErrNotFound is returned when a role does not exist
var ErrNotFound = errors.New("role not found")

// Storage persists roles in BoltDB
type Storage struct {
	db *bolt.DB
}

// NewStorage creates role storage over an existing database
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRoles)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create roles bucket: %w", err)
	}
	return &Storage{db: db}, nil
}

// Create persists a new role, assigning an ID if unset
func (s *Storage) Create(ctx context.Context, r *Role) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal role: %w", err)
		}
		return tx.Bucket(bucketRoles).Put([]byte(r.ID), data)
	})
}

// Get retrieves a role by ID
func (s *Storage) Get(ctx context.Context, id string) (*Role, error) {
	var r *Role

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRoles).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		r = &Role{}
		return json.Unmarshal(data, r)
	})

	return r, err
}

// List returns all roles
func (s *Storage) List(ctx context.Context) ([]*Role, error) {
	var out []*Role

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRoles).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r Role
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			out = append(out, &r)
		}
		return nil
	})

	return out, err
}

// Delete removes a role
func (s *Storage) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoles).Delete([]byte(id))
	})
}
