package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reachforge/outreachd/internal/candidate"
)

// Row is one raw candidate record from an upload
type Row struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email,omitempty"`
	LinkedInURL     string `json:"linkedin_url,omitempty"`
	Country         string `json:"country,omitempty"`
	CurrentJobTitle string `json:"current_job_title,omitempty"`
	CurrentEmployer string `json:"current_employer,omitempty"`
}

// RowError describes why a single row was rejected
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"error"`
}

// Summary is the result of an ingestion batch. Inserted + Duplicates +
// Errored always equals the batch size.
type Summary struct {
	Inserted   int        `json:"inserted"`
	Duplicates int        `json:"duplicates"`
	Errored    int        `json:"errors"`
	Errors     []RowError `json:"details,omitempty"`
}

// Ingestor validates and deduplicates candidate batches
type Ingestor struct {
	store  candidate.Store
	logger *slog.Logger
}

// NewIngestor creates a new ingestor
func NewIngestor(store candidate.Store, logger *slog.Logger) *Ingestor {
	return &Ingestor{store: store, logger: logger}
}

// Ingest processes a batch of rows for a role. Each row is handled
// independently: a bad row is reported and skipped, duplicates are counted
// and skipped, and a rejected row leaves no trace in storage. The batch
// itself never fails on row-level problems.
func (i *Ingestor) Ingest(ctx context.Context, roleID string, rows []Row) (*Summary, error) {
	summary := &Summary{}
	now := time.Now()

	for idx, row := range rows {
		if reason, ok := validate(row); !ok {
			summary.Errored++
			summary.Errors = append(summary.Errors, RowError{Row: idx + 1, Reason: reason})
			continue
		}

		c := newCandidate(roleID, row, now)

		err := i.store.Insert(ctx, c)
		switch {
		case errors.Is(err, candidate.ErrDuplicate):
			summary.Duplicates++
		case err != nil:
			// Storage trouble, not a row problem. Still local to the row.
			summary.Errored++
			summary.Errors = append(summary.Errors, RowError{Row: idx + 1, Reason: "storage error"})
			i.logger.Error("failed to insert candidate", "row", idx+1, "error", err)
		default:
			summary.Inserted++
		}
	}

	i.logger.Info("ingestion batch complete",
		"role_id", roleID,
		"rows", len(rows),
		"inserted", summary.Inserted,
		"duplicates", summary.Duplicates,
		"errors", summary.Errored,
	)

	return summary, nil
}

func validate(row Row) (string, bool) {
	if strings.TrimSpace(row.FirstName) == "" {
		return "missing first_name", false
	}
	if strings.TrimSpace(row.LastName) == "" {
		return "missing last_name", false
	}
	if strings.TrimSpace(row.Email) == "" && strings.TrimSpace(row.LinkedInURL) == "" {
		return "missing email and linkedin_url", false
	}
	if email := strings.TrimSpace(row.Email); email != "" {
		if !strings.Contains(email, "@") || strings.ContainsAny(email, " \t") {
			return "invalid email", false
		}
	}
	return "", true
}

func newCandidate(roleID string, row Row, now time.Time) *candidate.Candidate {
	c := &candidate.Candidate{
		ID:              uuid.New().String(),
		RoleID:          roleID,
		FirstName:       strings.TrimSpace(row.FirstName),
		LastName:        strings.TrimSpace(row.LastName),
		Email:           strings.TrimSpace(row.Email),
		LinkedInURL:     strings.TrimSpace(row.LinkedInURL),
		Country:         strings.TrimSpace(row.Country),
		CurrentJobTitle: strings.TrimSpace(row.CurrentJobTitle),
		CurrentEmployer: strings.TrimSpace(row.CurrentEmployer),
		TouchesSent:     0,
		EnrolledAt:      now,
		UpdatedAt:       now,
	}
	c.GDPRFlagged = candidate.IsGDPRCountry(c.Country)
	if c.HasEmail() {
		c.Status = candidate.StatusActive
	} else {
		c.Status = candidate.StatusLinkedInOnly
	}
	return c
}
