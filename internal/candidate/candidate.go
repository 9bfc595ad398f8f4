package candidate

import (
	"strings"
	"time"
)

// Status represents the outreach status of a candidate
type Status string

const (
	// StatusActive means the email sequence is in progress (or exhausted
	// without a reply, when the exhausted action is "hold")
	StatusActive Status = "active"
	// StatusLinkedInOnly means the candidate has no email channel and is
	// routed to manual outreach
	StatusLinkedInOnly Status = "linkedin_only"
	// StatusInterested means a positive reply was received
	StatusInterested Status = "interested"
	// StatusNotInterested means a negative reply was received
	StatusNotInterested Status = "not_interested"
	// StatusResponded means an ambiguous reply is held for human triage
	StatusResponded Status = "responded"
	// StatusUnsubscribed means the candidate opted out
	StatusUnsubscribed Status = "unsubscribed"
	// StatusBounced means delivery failed permanently
	StatusBounced Status = "bounced"
	// StatusNoResponse means the sequence was exhausted with no reply and
	// the scheduler is configured to close it out
	StatusNoResponse Status = "no_response"
	// StatusAnonymized means PII was cleared under the retention policy
	StatusAnonymized Status = "gdpr_anonymized"
)

// Sentiment is the classified outcome of an inbound reply
type Sentiment string

const (
	SentimentInterested    Sentiment = "interested"
	SentimentNotInterested Sentiment = "not_interested"
	SentimentAmbiguous     Sentiment = "ambiguous"
)

// MaxTouches is the length of the outreach sequence
const MaxTouches = 3

// Candidate represents one person in one role's outreach funnel
type Candidate struct {
	ID              string    `json:"id"`
	RoleID          string    `json:"role_id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email,omitempty"`
	LinkedInURL     string    `json:"linkedin_url,omitempty"`
	Country         string    `json:"country,omitempty"`
	GDPRFlagged     bool      `json:"is_gdpr_country"`
	ContactConsent  bool      `json:"contact_consent,omitempty"`
	CurrentJobTitle string    `json:"current_job_title,omitempty"`
	CurrentEmployer string    `json:"current_employer,omitempty"`
	Status          Status    `json:"status"`
	TouchesSent     int       `json:"touches_sent"`
	LastTouchAt     time.Time `json:"last_touch_at,omitempty"`
	ReplySentiment  Sentiment `json:"reply_sentiment,omitempty"`
	ReplyText       string    `json:"reply_text,omitempty"`
	EnrolledAt      time.Time `json:"enrolled_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NormalizedKey returns the dedup key for the candidate: the lower-cased
// email when present, otherwise the lower-cased LinkedIn URL.
func (c *Candidate) NormalizedKey() string {
	if c.Email != "" {
		return strings.ToLower(strings.TrimSpace(c.Email))
	}
	return strings.ToLower(strings.TrimSpace(c.LinkedInURL))
}

// HasEmail reports whether the candidate has a usable email channel
func (c *Candidate) HasEmail() bool {
	return c.Email != ""
}

// Halted reports whether the sequence is permanently stopped for the
// candidate. Halted candidates never receive another touch.
func (c *Candidate) Halted() bool {
	switch c.Status {
	case StatusInterested, StatusNotInterested, StatusResponded,
		StatusUnsubscribed, StatusBounced, StatusNoResponse, StatusAnonymized:
		return true
	}
	return false
}

// Anonymize clears PII in place. Sequence counters, role linkage and the
// aggregate status survive for reporting. Calling it again is a no-op.
func (c *Candidate) Anonymize(now time.Time) bool {
	if c.Status == StatusAnonymized {
		return false
	}
	c.FirstName = ""
	c.LastName = ""
	c.Email = ""
	c.LinkedInURL = ""
	c.CurrentJobTitle = ""
	c.CurrentEmployer = ""
	c.ReplyText = ""
	c.Status = StatusAnonymized
	c.UpdatedAt = now
	return true
}

// StatusCounts is the per-status projection used by analytics
type StatusCounts map[Status]int

// NotInterestedTotal folds bounced candidates into the not-interested bucket
// so funnel numbers line up with reply-based rejections.
func (s StatusCounts) NotInterestedTotal() int {
	return s[StatusNotInterested] + s[StatusBounced]
}
