package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketTemplates = []byte("templates")

// ErrNotFound is returned when no template exists for a (role, step) pair
var ErrNotFound = errors.New("template not found")

// Storage persists outreach templates in BoltDB, keyed by (role, step)
type Storage struct {
	db *bolt.DB
}

// NewStorage creates template storage over an existing database
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTemplates)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create templates bucket: %w", err)
	}
	return &Storage{db: db}, nil
}

// Put stores a template, replacing any previous version for the same step.
// In-flight sequences pick up the new text on their next unsent touch.
func (s *Storage) Put(ctx context.Context, tmpl *Template) error {
	if tmpl.Step < 1 || tmpl.Step > Steps {
		return fmt.Errorf("invalid template step %d", tmpl.Step)
	}
	tmpl.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(tmpl)
		if err != nil {
			return fmt.Errorf("failed to marshal template: %w", err)
		}
		return tx.Bucket(bucketTemplates).Put(templateKey(tmpl.RoleID, tmpl.Step), data)
	})
}

// Get retrieves the template for a role and step
func (s *Storage) Get(ctx context.Context, roleID string, step int) (*Template, error) {
	var tmpl *Template

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTemplates).Get(templateKey(roleID, step))
		if data == nil {
			return ErrNotFound
		}
		tmpl = &Template{}
		return json.Unmarshal(data, tmpl)
	})

	return tmpl, err
}

// ListByRole returns the stored sequence for a role, ordered by step
func (s *Storage) ListByRole(ctx context.Context, roleID string) ([]*Template, error) {
	var out []*Template

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTemplates)
		for step := 1; step <= Steps; step++ {
			data := bucket.Get(templateKey(roleID, step))
			if data == nil {
				continue
			}
			var tmpl Template
			if err := json.Unmarshal(data, &tmpl); err != nil {
				continue
			}
			out = append(out, &tmpl)
		}
		return nil
	})

	return out, err
}

// DeleteByRole removes a role's whole sequence
func (s *Storage) DeleteByRole(ctx context.Context, roleID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTemplates)
		for step := 1; step <= Steps; step++ {
			if err := bucket.Delete(templateKey(roleID, step)); err != nil {
				return err
			}
		}
		return nil
	})
}

func templateKey(roleID string, step int) []byte {
	return []byte(fmt.Sprintf("%s/%d", roleID, step))
}
