package retention

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/reachforge/outreachd/internal/candidate"
)

func newTestSweeper(t *testing.T, cfg Config) (*Sweeper, *candidate.BoltStore) {
	t.Helper()

	store, err := candidate.Open(filepath.Join(t.TempDir(), "outreach.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSweeper(store, cfg, logger), store
}

func seed(t *testing.T, store *candidate.BoltStore, id string, enrolledAgo time.Duration, mutate func(*candidate.Candidate)) {
	t.Helper()
	c := &candidate.Candidate{
		ID:          id,
		RoleID:      "r1",
		FirstName:   "Jane",
		LastName:    "Doe",
		Email:       id + "@example.com",
		Country:     "Germany",
		GDPRFlagged: true,
		Status:      candidate.StatusActive,
		EnrolledAt:  time.Now().Add(-enrolledAgo),
	}
	if mutate != nil {
		mutate(c)
	}
	if err := store.Insert(context.Background(), c); err != nil {
		t.Fatal(err)
	}
}

func TestSweepAnonymizesOverRetained(t *testing.T) {
	sweeper, store := newTestSweeper(t, Config{RetentionPeriod: 180 * 24 * time.Hour})
	ctx := context.Background()

	seed(t, store, "old", 200*24*time.Hour, nil)
	seed(t, store, "fresh", 30*24*time.Hour, nil)

	if got := sweeper.Sweep(ctx); got != 1 {
		t.Fatalf("anonymized = %d, want 1", got)
	}

	old, err := store.Get(ctx, "old")
	if err != nil {
		t.Fatal(err)
	}
	if old.Status != candidate.StatusAnonymized {
		t.Errorf("status = %s, want gdpr_anonymized", old.Status)
	}
	if old.FirstName != "" || old.Email != "" {
		t.Errorf("PII survives: %+v", old)
	}

	fresh, err := store.Get(ctx, "fresh")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Status != candidate.StatusActive {
		t.Errorf("fresh candidate status = %s, want active", fresh.Status)
	}
}

func TestSweepExemptions(t *testing.T) {
	sweeper, store := newTestSweeper(t, Config{RetentionPeriod: 180 * 24 * time.Hour})
	ctx := context.Background()

	// Non-GDPR jurisdiction
	seed(t, store, "us", 400*24*time.Hour, func(c *candidate.Candidate) {
		c.Country = "United States"
		c.GDPRFlagged = false
	})
	// Consent on file
	seed(t, store, "consented", 400*24*time.Hour, func(c *candidate.Candidate) {
		c.ContactConsent = true
	})

	if got := sweeper.Sweep(ctx); got != 0 {
		t.Fatalf("anonymized = %d, want 0", got)
	}
	for _, id := range []string{"us", "consented"} {
		c, err := store.Get(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if c.Status == candidate.StatusAnonymized {
			t.Errorf("%s was anonymized", id)
		}
	}
}

func TestSweepCoversHaltedStatuses(t *testing.T) {
	sweeper, store := newTestSweeper(t, Config{RetentionPeriod: 180 * 24 * time.Hour})
	ctx := context.Background()

	seed(t, store, "replied", 200*24*time.Hour, func(c *candidate.Candidate) {
		c.Status = candidate.StatusInterested
		c.ReplyText = "call me"
	})
	seed(t, store, "unsub", 200*24*time.Hour, func(c *candidate.Candidate) {
		c.Status = candidate.StatusUnsubscribed
	})

	if got := sweeper.Sweep(ctx); got != 2 {
		t.Fatalf("anonymized = %d, want 2", got)
	}

	replied, err := store.Get(ctx, "replied")
	if err != nil {
		t.Fatal(err)
	}
	if replied.ReplyText != "" {
		t.Error("reply text survives anonymization")
	}
	// Counters and linkage survive for reporting
	if replied.RoleID != "r1" {
		t.Error("role linkage lost")
	}
}

func TestSweepIdempotent(t *testing.T) {
	sweeper, store := newTestSweeper(t, Config{RetentionPeriod: 180 * 24 * time.Hour})
	ctx := context.Background()

	seed(t, store, "old", 200*24*time.Hour, nil)

	if got := sweeper.Sweep(ctx); got != 1 {
		t.Fatalf("first sweep = %d, want 1", got)
	}
	if got := sweeper.Sweep(ctx); got != 0 {
		t.Errorf("second sweep = %d, want 0", got)
	}
}

func TestSweepDisabled(t *testing.T) {
	sweeper, store := newTestSweeper(t, Config{})
	ctx := context.Background()

	seed(t, store, "old", 10*365*24*time.Hour, nil)

	if got := sweeper.Sweep(ctx); got != 0 {
		t.Errorf("disabled sweeper anonymized %d", got)
	}
}
