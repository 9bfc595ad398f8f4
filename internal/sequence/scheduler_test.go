package sequence

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/reachforge/outreachd/internal/candidate"
	"github.com/reachforge/outreachd/internal/classify"
	"github.com/reachforge/outreachd/internal/mailer"
	"github.com/reachforge/outreachd/internal/role"
	"github.com/reachforge/outreachd/internal/template"
)

// mockMailer records sends and fails on demand
type mockMailer struct {
	mu   sync.Mutex
	sent []*mailer.Message
	err  error
}

func (m *mockMailer) Send(ctx context.Context, msg *mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fixture struct {
	scheduler *Scheduler
	store     *candidate.BoltStore
	mailer    *mockMailer
	enrolled  time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	store, err := candidate.Open(filepath.Join(t.TempDir(), "outreach.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	roles, err := role.NewStorage(store.DB())
	if err != nil {
		t.Fatal(err)
	}
	templates, err := template.NewStorage(store.DB())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := roles.Create(ctx, &role.Role{ID: "r1", JobTitle: "Engineer", CompanyName: "Reachforge"}); err != nil {
		t.Fatal(err)
	}
	for step := 1; step <= template.Steps; step++ {
		tmpl := &template.Template{
			RoleID:   "r1",
			Step:     step,
			Subject:  "Touch {{first_name}}",
			BodyText: "Hello {{first_name}}",
		}
		if err := templates.Put(ctx, tmpl); err != nil {
			t.Fatal(err)
		}
	}

	m := &mockMailer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scheduler := NewScheduler(store, roles, templates, m, classify.NewKeywordClassifier(), cfg, logger)

	return &fixture{
		scheduler: scheduler,
		store:     store,
		mailer:    m,
		enrolled:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

// setNow pins the scheduler clock to enrollment plus an offset
func (f *fixture) setNow(offset time.Duration) {
	at := f.enrolled.Add(offset)
	f.scheduler.now = func() time.Time { return at }
}

func (f *fixture) enroll(t *testing.T, id string) *candidate.Candidate {
	t.Helper()
	c := &candidate.Candidate{
		ID:         id,
		RoleID:     "r1",
		FirstName:  "Jane",
		LastName:   "Doe",
		Email:      id + "@example.com",
		Status:     candidate.StatusActive,
		EnrolledAt: f.enrolled,
		UpdatedAt:  f.enrolled,
	}
	if err := f.store.Insert(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	return c
}

func (f *fixture) get(t *testing.T, id string) *candidate.Candidate {
	t.Helper()
	c, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNextDue(t *testing.T) {
	f := newFixture(t, Config{})
	enrolled := f.enrolled

	tests := []struct {
		name   string
		c      candidate.Candidate
		wantAt time.Time
		wantOK bool
	}{
		{
			"first touch immediately",
			candidate.Candidate{Status: candidate.StatusActive, Email: "a@b.c", EnrolledAt: enrolled},
			enrolled, true,
		},
		{
			"second touch at +48h",
			candidate.Candidate{Status: candidate.StatusActive, Email: "a@b.c", EnrolledAt: enrolled, TouchesSent: 1},
			enrolled.Add(48 * time.Hour), true,
		},
		{
			"third touch at +96h",
			candidate.Candidate{Status: candidate.StatusActive, Email: "a@b.c", EnrolledAt: enrolled, TouchesSent: 2},
			enrolled.Add(96 * time.Hour), true,
		},
		{
			"exhausted",
			candidate.Candidate{Status: candidate.StatusActive, Email: "a@b.c", EnrolledAt: enrolled, TouchesSent: 3},
			time.Time{}, false,
		},
		{
			"halted",
			candidate.Candidate{Status: candidate.StatusInterested, Email: "a@b.c", EnrolledAt: enrolled},
			time.Time{}, false,
		},
		{
			"no email channel",
			candidate.Candidate{Status: candidate.StatusActive, EnrolledAt: enrolled},
			time.Time{}, false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at, ok := f.scheduler.NextDue(&tt.c)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !at.Equal(tt.wantAt) {
				t.Errorf("due = %v, want %v", at, tt.wantAt)
			}
		})
	}
}

func TestSweepSendsDueTouch(t *testing.T) {
	f := newFixture(t, Config{})
	f.enroll(t, "c1")
	f.setNow(time.Minute)

	f.scheduler.Sweep(context.Background())

	if f.mailer.count() != 1 {
		t.Fatalf("sent = %d, want 1", f.mailer.count())
	}
	msg := f.mailer.sent[0]
	if msg.Subject != "Touch Jane" {
		t.Errorf("subject = %q", msg.Subject)
	}

	c := f.get(t, "c1")
	if c.TouchesSent != 1 {
		t.Errorf("touches_sent = %d, want 1", c.TouchesSent)
	}
	if c.LastTouchAt.IsZero() {
		t.Error("last_touch_at not recorded")
	}
}

func TestSweepIdempotent(t *testing.T) {
	f := newFixture(t, Config{})
	f.enroll(t, "c1")
	f.setNow(time.Minute)

	// Repeated sweeps within the same window never re-send
	f.scheduler.Sweep(context.Background())
	f.scheduler.Sweep(context.Background())
	f.scheduler.Sweep(context.Background())

	if f.mailer.count() != 1 {
		t.Errorf("sent = %d, want 1", f.mailer.count())
	}
}

func TestSweepAbsoluteOffsets(t *testing.T) {
	f := newFixture(t, Config{})
	f.enroll(t, "c1")
	ctx := context.Background()

	// Touch 2 is not due at +47h even though touch 1 already went out
	f.setNow(time.Minute)
	f.scheduler.Sweep(ctx)
	f.setNow(47 * time.Hour)
	f.scheduler.Sweep(ctx)
	if f.mailer.count() != 1 {
		t.Fatalf("sent = %d, want 1 before the 48h mark", f.mailer.count())
	}

	// Downtime past both remaining offsets releases one touch per sweep,
	// never a burst with compressed gaps
	f.setNow(200 * time.Hour)
	f.scheduler.Sweep(ctx)
	if f.mailer.count() != 2 {
		t.Fatalf("sent = %d, want 2 after recovery sweep", f.mailer.count())
	}
	f.scheduler.Sweep(ctx)
	if f.mailer.count() != 3 {
		t.Fatalf("sent = %d, want 3 after second recovery sweep", f.mailer.count())
	}

	c := f.get(t, "c1")
	if c.TouchesSent != 3 {
		t.Errorf("touches_sent = %d, want 3", c.TouchesSent)
	}

	// Budget spent; nothing more goes out
	f.scheduler.Sweep(ctx)
	if f.mailer.count() != 3 {
		t.Errorf("sent = %d after exhaustion, want 3", f.mailer.count())
	}
}

func TestSweepSkipsHalted(t *testing.T) {
	f := newFixture(t, Config{})
	f.enroll(t, "c1")
	ctx := context.Background()

	// Unsubscribe lands before the first sweep
	if _, err := f.scheduler.HandleInbound(ctx, classify.InboundMessage{
		CandidateID: "c1",
		Body:        "Please unsubscribe me",
	}); err != nil {
		t.Fatal(err)
	}

	f.setNow(time.Minute)
	f.scheduler.Sweep(ctx)

	if f.mailer.count() != 0 {
		t.Errorf("sent = %d to unsubscribed candidate, want 0", f.mailer.count())
	}
	if c := f.get(t, "c1"); c.Status != candidate.StatusUnsubscribed {
		t.Errorf("status = %s, want unsubscribed", c.Status)
	}
}

func TestSweepTransientFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.enroll(t, "c1")
	f.setNow(time.Minute)
	ctx := context.Background()

	f.mailer.err = &mailer.DeliveryError{Temporary: true, Message: "greylisted"}
	f.scheduler.Sweep(ctx)

	c := f.get(t, "c1")
	if c.TouchesSent != 0 {
		t.Errorf("touches_sent = %d after transient failure, want 0", c.TouchesSent)
	}
	if c.Status != candidate.StatusActive {
		t.Errorf("status = %s, want active", c.Status)
	}

	// Relay recovers; the same touch goes out on the next sweep
	f.mailer.err = nil
	f.scheduler.Sweep(ctx)
	if f.mailer.count() != 1 {
		t.Errorf("sent = %d after recovery, want 1", f.mailer.count())
	}
	if c := f.get(t, "c1"); c.TouchesSent != 1 {
		t.Errorf("touches_sent = %d after recovery, want 1", c.TouchesSent)
	}
}

func TestSweepPermanentFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.enroll(t, "c1")
	f.setNow(time.Minute)

	f.mailer.err = &mailer.DeliveryError{Temporary: false, Message: "550 no such user"}
	f.scheduler.Sweep(context.Background())

	c := f.get(t, "c1")
	if c.Status != candidate.StatusBounced {
		t.Errorf("status = %s, want bounced", c.Status)
	}
	if c.TouchesSent != 0 {
		t.Errorf("touches_sent = %d, want 0", c.TouchesSent)
	}

	// Bounced is terminal
	f.mailer.err = nil
	f.scheduler.Sweep(context.Background())
	if f.mailer.count() != 0 {
		t.Errorf("sent = %d to bounced candidate, want 0", f.mailer.count())
	}
}

func TestSweepMissingTemplate(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	// A role with no authored sequence
	c := &candidate.Candidate{
		ID:         "c2",
		RoleID:     "r2",
		FirstName:  "Bob",
		LastName:   "Smith",
		Email:      "bob@example.com",
		Status:     candidate.StatusActive,
		EnrolledAt: f.enrolled,
	}
	if err := f.store.Insert(ctx, c); err != nil {
		t.Fatal(err)
	}

	f.setNow(time.Minute)
	f.scheduler.Sweep(ctx)

	if f.mailer.count() != 0 {
		t.Errorf("sent = %d without template, want 0", f.mailer.count())
	}
	// Touch stays due; authoring the template releases it
	if got := f.get(t, "c2"); got.TouchesSent != 0 {
		t.Errorf("touches_sent = %d, want 0", got.TouchesSent)
	}
}

func TestExhaustedHold(t *testing.T) {
	f := newFixture(t, Config{ExhaustedAction: ExhaustedHold})
	f.enroll(t, "c1")
	ctx := context.Background()

	for _, offset := range []time.Duration{time.Minute, 49 * time.Hour, 97 * time.Hour} {
		f.setNow(offset)
		f.scheduler.Sweep(ctx)
	}
	if f.mailer.count() != 3 {
		t.Fatalf("sent = %d, want 3", f.mailer.count())
	}

	// Weeks later the candidate is still active and reachable by a late reply
	f.setNow(30 * 24 * time.Hour)
	f.scheduler.Sweep(ctx)
	if c := f.get(t, "c1"); c.Status != candidate.StatusActive {
		t.Errorf("status = %s, want active under hold", c.Status)
	}

	updated, err := f.scheduler.HandleInbound(ctx, classify.InboundMessage{
		CandidateID: "c1",
		Body:        "Sorry for the delay, I'm interested!",
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != candidate.StatusInterested {
		t.Errorf("late reply status = %s, want interested", updated.Status)
	}
}

func TestExhaustedMarkNoResponse(t *testing.T) {
	f := newFixture(t, Config{
		ExhaustedAction: ExhaustedMarkNoResponse,
		NoResponseAfter: 7 * 24 * time.Hour,
	})
	f.enroll(t, "c1")
	ctx := context.Background()

	for _, offset := range []time.Duration{time.Minute, 49 * time.Hour, 97 * time.Hour} {
		f.setNow(offset)
		f.scheduler.Sweep(ctx)
	}

	// Waiting period not over yet
	f.setNow(97*time.Hour + 6*24*time.Hour)
	f.scheduler.Sweep(ctx)
	if c := f.get(t, "c1"); c.Status != candidate.StatusActive {
		t.Fatalf("status = %s before waiting period elapsed, want active", c.Status)
	}

	f.setNow(97*time.Hour + 8*24*time.Hour)
	f.scheduler.Sweep(ctx)
	if c := f.get(t, "c1"); c.Status != candidate.StatusNoResponse {
		t.Errorf("status = %s, want no_response", c.Status)
	}
}
