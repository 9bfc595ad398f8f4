package linkedinq

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// AssignmentStatus tracks manual outreach progress for one candidate
type AssignmentStatus string

const (
	StatusPending       AssignmentStatus = "pending"
	StatusContacted     AssignmentStatus = "contacted"
	StatusInterested    AssignmentStatus = "interested"
	StatusNotInterested AssignmentStatus = "not_interested"
	StatusNoResponse    AssignmentStatus = "no_response"
)

// ValidStatus reports whether s is a known assignment status
func ValidStatus(s AssignmentStatus) bool {
	switch s {
	case StatusPending, StatusContacted, StatusInterested, StatusNotInterested, StatusNoResponse:
		return true
	}
	return false
}

// Terminal reports whether the status counts toward queue completion
func (s AssignmentStatus) Terminal() bool {
	switch s {
	case StatusInterested, StatusNotInterested, StatusNoResponse:
		return true
	}
	return false
}

// Queue is one manual-outreach batch handed to an assignee, addressable by
// an unguessable token instead of a login session
type Queue struct {
	ID           string    `json:"id"`
	RoleID       string    `json:"role_id"`
	AssigneeName string    `json:"assignee_name"`
	Token        string    `json:"token"`
	CreatedAt    time.Time `json:"created_at"`
}

// Assignment links one candidate to one queue
type Assignment struct {
	ID          string           `json:"id"`
	QueueID     string           `json:"queue_id"`
	CandidateID string           `json:"candidate_id"`
	Status      AssignmentStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Progress is the derived completion state of a queue
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// NewToken returns a fresh unguessable queue token
func NewToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
