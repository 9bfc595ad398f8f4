package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reachforge/outreachd/internal/linkedinq"
	"github.com/reachforge/outreachd/internal/role"
)

// CreateQueueRequest is the request body for POST /roles/{roleID}/queues
type CreateQueueRequest struct {
	AssigneeName string `json:"assignee_name"`
	BatchSize    int    `json:"batch_size"`
}

// QueueResponse is the admin view of a queue
type QueueResponse struct {
	*linkedinq.Queue
	Progress *linkedinq.Progress `json:"progress"`
}

// PublicQueueResponse is the token-keyed view handed to assignees. It
// exposes queue metadata and candidate snapshots, nothing else.
type PublicQueueResponse struct {
	AssigneeName string              `json:"assignee_name"`
	JobTitle     string              `json:"job_title"`
	CompanyName  string              `json:"company_name"`
	Candidates   []QueueCandidate    `json:"candidates"`
	Progress     *linkedinq.Progress `json:"progress"`
}

// QueueCandidate is one assignment with its candidate snapshot
type QueueCandidate struct {
	AssignmentID     string `json:"assignment_id"`
	AssignmentStatus string `json:"assignment_status"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	LinkedInURL      string `json:"linkedin_url,omitempty"`
	CurrentJobTitle  string `json:"current_job_title,omitempty"`
	CurrentEmployer  string `json:"current_employer,omitempty"`
}

// AssignmentUpdateRequest is the request body for the public status update
type AssignmentUpdateRequest struct {
	Status string `json:"status"`
}

// handleCreateQueue handles POST /api/v1/roles/{roleID}/queues
func (s *Server) handleCreateQueue(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")
	if _, err := s.roles.Get(r.Context(), roleID); errors.Is(err, role.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "Role not found")
		return
	}

	var req CreateQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AssigneeName == "" {
		s.sendError(w, http.StatusBadRequest, "assignee_name is required")
		return
	}

	q, assignments, err := s.assigner.CreateQueue(r.Context(), roleID, req.AssigneeName, req.BatchSize)
	if errors.Is(err, linkedinq.ErrNoEligible) {
		s.sendError(w, http.StatusConflict, "No unassigned linkedin-only candidates for this role")
		return
	}
	if err != nil {
		s.logger.Error("failed to create queue", "role_id", roleID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create queue")
		return
	}

	s.sendJSON(w, http.StatusCreated, QueueResponse{
		Queue:    q,
		Progress: &linkedinq.Progress{Total: len(assignments)},
	})
}

// handleListQueues handles GET /api/v1/roles/{roleID}/queues
func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")

	queues, err := s.queues.ListByRole(r.Context(), roleID)
	if err != nil {
		s.logger.Error("failed to list queues", "role_id", roleID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list queues")
		return
	}

	out := make([]QueueResponse, 0, len(queues))
	for _, q := range queues {
		progress, err := s.queues.Progress(r.Context(), q.ID)
		if err != nil {
			s.logger.Error("failed to derive queue progress", "queue_id", q.ID, "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to list queues")
			return
		}
		out = append(out, QueueResponse{Queue: q, Progress: progress})
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{"queues": out})
}

// handleDeleteQueue handles DELETE /api/v1/queues/{queueID}
func (s *Server) handleDeleteQueue(w http.ResponseWriter, r *http.Request) {
	queueID := chi.URLParam(r, "queueID")

	err := s.assigner.DeleteQueue(r.Context(), queueID)
	if errors.Is(err, linkedinq.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "Queue not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to delete queue", "queue_id", queueID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete queue")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleQueueByToken handles GET /api/v1/linkedin-queue/{token}
func (s *Server) handleQueueByToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	q, err := s.queues.GetByToken(r.Context(), token)
	if errors.Is(err, linkedinq.ErrUnauthorized) {
		s.sendError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err != nil {
		s.logger.Error("failed to resolve queue token", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load queue")
		return
	}

	resp := PublicQueueResponse{AssigneeName: q.AssigneeName}

	if rl, err := s.roles.Get(r.Context(), q.RoleID); err == nil {
		resp.JobTitle = rl.JobTitle
		resp.CompanyName = rl.CompanyName
	}

	assignments, err := s.queues.ListAssignments(r.Context(), q.ID)
	if err != nil {
		s.logger.Error("failed to list assignments", "queue_id", q.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load queue")
		return
	}

	progress := &linkedinq.Progress{Total: len(assignments)}
	for _, a := range assignments {
		qc := QueueCandidate{
			AssignmentID:     a.ID,
			AssignmentStatus: string(a.Status),
		}
		if c, err := s.candidates.Get(r.Context(), a.CandidateID); err == nil {
			qc.FirstName = c.FirstName
			qc.LastName = c.LastName
			qc.LinkedInURL = c.LinkedInURL
			qc.CurrentJobTitle = c.CurrentJobTitle
			qc.CurrentEmployer = c.CurrentEmployer
		}
		if a.Status.Terminal() {
			progress.Completed++
		}
		resp.Candidates = append(resp.Candidates, qc)
	}
	resp.Progress = progress

	s.sendJSON(w, http.StatusOK, resp)
}

// handleAssignmentUpdate handles
// PATCH /api/v1/linkedin-queue/{token}/assignments/{assignmentID}
func (s *Server) handleAssignmentUpdate(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	assignmentID := chi.URLParam(r, "assignmentID")

	var req AssignmentUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	a, err := s.assigner.UpdateAssignmentStatus(r.Context(), token, assignmentID, linkedinq.AssignmentStatus(req.Status))
	if errors.Is(err, linkedinq.ErrInvalidStatus) {
		s.sendError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	if errors.Is(err, linkedinq.ErrUnauthorized) {
		// Same response for a bad token and a foreign assignment
		s.sendError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err != nil {
		s.logger.Error("failed to update assignment", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update assignment")
		return
	}

	s.sendJSON(w, http.StatusOK, a)
}
