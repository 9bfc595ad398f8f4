package candidate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "outreach.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testCandidate(id, roleID, email string) *Candidate {
	now := time.Now()
	return &Candidate{
		ID:          id,
		RoleID:      roleID,
		FirstName:   "Jane",
		LastName:    "Doe",
		Email:       email,
		Status:      StatusActive,
		EnrolledAt:  now,
		UpdatedAt:   now,
		TouchesSent: 0,
	}
}

func TestInsertDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, testCandidate("c1", "r1", "jane@example.com")); err != nil {
		t.Fatal(err)
	}

	// Same contact key, same role
	err := store.Insert(ctx, testCandidate("c2", "r1", "JANE@example.com"))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Same contact key, different role is fine
	if err := store.Insert(ctx, testCandidate("c3", "r2", "jane@example.com")); err != nil {
		t.Fatalf("insert for second role failed: %v", err)
	}
}

func TestGetByKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, testCandidate("c1", "r1", "jane@example.com")); err != nil {
		t.Fatal(err)
	}

	c, err := store.GetByKey(ctx, "r1", "jane@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != "c1" {
		t.Errorf("got candidate %s, want c1", c.ID)
	}

	if _, err := store.GetByKey(ctx, "r1", "other@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, testCandidate("c1", "r1", "jane@example.com")); err != nil {
		t.Fatal(err)
	}

	updated, err := store.Transition(ctx, "c1", StatusActive, func(c *Candidate) {
		c.Status = StatusInterested
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != StatusInterested {
		t.Errorf("status = %s, want interested", updated.Status)
	}

	// Stale expectation is rejected, not silently overwritten
	_, err = store.Transition(ctx, "c1", StatusActive, func(c *Candidate) {
		c.Status = StatusNotInterested
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	c, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != StatusInterested {
		t.Errorf("status = %s, first transition should stand", c.Status)
	}
}

func TestMarkTouchSent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, testCandidate("c1", "r1", "jane@example.com")); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	if err := store.MarkTouchSent(ctx, "c1", 0, now); err != nil {
		t.Fatal(err)
	}

	c, _ := store.Get(ctx, "c1")
	if c.TouchesSent != 1 {
		t.Fatalf("touches_sent = %d, want 1", c.TouchesSent)
	}

	// Re-running with the stale expectation must not double-count
	err := store.MarkTouchSent(ctx, "c1", 0, now)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on stale counter, got %v", err)
	}

	c, _ = store.Get(ctx, "c1")
	if c.TouchesSent != 1 {
		t.Errorf("touches_sent = %d after conflict, want 1", c.TouchesSent)
	}

	// A halted candidate never gets another touch recorded
	if _, err := store.Transition(ctx, "c1", StatusActive, func(c *Candidate) {
		c.Status = StatusUnsubscribed
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkTouchSent(ctx, "c1", 1, now); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for halted candidate, got %v", err)
	}
}

func TestMarkTouchSentBudget(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, testCandidate("c1", "r1", "jane@example.com")); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	for i := 0; i < MaxTouches; i++ {
		if err := store.MarkTouchSent(ctx, "c1", i, now); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.MarkTouchSent(ctx, "c1", MaxTouches, now); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict past the touch budget, got %v", err)
	}

	c, _ := store.Get(ctx, "c1")
	if c.TouchesSent != MaxTouches {
		t.Errorf("touches_sent = %d, want %d", c.TouchesSent, MaxTouches)
	}
}

func TestAnonymizeStorage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, testCandidate("c1", "r1", "jane@example.com")); err != nil {
		t.Fatal(err)
	}

	changed, err := store.Anonymize(ctx, "c1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("first anonymize should report a change")
	}

	c, _ := store.Get(ctx, "c1")
	if c.Email != "" || c.FirstName != "" {
		t.Error("PII should be cleared")
	}
	if c.Status != StatusAnonymized {
		t.Errorf("status = %s, want %s", c.Status, StatusAnonymized)
	}

	// Idempotent
	changed, err = store.Anonymize(ctx, "c1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("second anonymize should be a no-op")
	}

	// The contact key slot is released with the PII
	if _, err := store.GetByKey(ctx, "r1", "jane@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("contact key should be gone, got %v", err)
	}
}

func TestListAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c1 := testCandidate("c1", "r1", "a@example.com")
	c2 := testCandidate("c2", "r1", "")
	c2.LinkedInURL = "https://linkedin.com/in/b"
	c2.Status = StatusLinkedInOnly
	c3 := testCandidate("c3", "r2", "c@example.com")

	for _, c := range []*Candidate{c1, c2, c3} {
		if err := store.Insert(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	active, err := store.ListByRole(ctx, "r1", StatusActive)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != "c1" {
		t.Errorf("ListByRole(r1, active) = %d candidates, want just c1", len(active))
	}

	all, err := store.ListByRole(ctx, "r1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("ListByRole(r1) = %d candidates, want 2", len(all))
	}

	counts, err := store.CountByStatus(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if counts[StatusActive] != 1 || counts[StatusLinkedInOnly] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestDeleteReleasesKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, testCandidate("c1", "r1", "jane@example.com")); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	// Slot is free again
	if err := store.Insert(ctx, testCandidate("c2", "r1", "jane@example.com")); err != nil {
		t.Fatalf("re-insert after delete failed: %v", err)
	}
}
