package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reachforge/outreachd/internal/candidate"
	"github.com/reachforge/outreachd/internal/classify"
	"github.com/reachforge/outreachd/internal/ingest"
	"github.com/reachforge/outreachd/internal/role"
	"github.com/reachforge/outreachd/internal/sequence"
	"github.com/reachforge/outreachd/internal/template"
)

// maxDisplayedRowErrors caps the per-row error list in upload responses.
// Display truncation only; the summary counts stay exact.
const maxDisplayedRowErrors = 5

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// CreateRoleRequest is the request body for POST /roles
type CreateRoleRequest struct {
	JobTitle    string `json:"job_title"`
	CompanyName string `json:"company_name"`
}

// IngestRequest is the request body for POST /roles/{roleID}/candidates
type IngestRequest struct {
	Rows []ingest.Row `json:"rows"`
}

// IngestResponse is the upload summary, with the error list truncated for
// display
type IngestResponse struct {
	Inserted    int               `json:"inserted"`
	Duplicates  int               `json:"duplicates"`
	Errors      int               `json:"errors"`
	Details     []ingest.RowError `json:"details,omitempty"`
	MoreDetails int               `json:"more_details,omitempty"`
}

// TemplatesRequest is the request body for PUT /roles/{roleID}/templates
type TemplatesRequest struct {
	Templates []TemplateBody `json:"templates"`
}

// TemplateBody is one sequence step in the templates payload
type TemplateBody struct {
	Step     int    `json:"step"`
	Subject  string `json:"subject"`
	BodyText string `json:"body_text"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleCreateRole handles POST /api/v1/roles
func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.JobTitle == "" {
		s.sendError(w, http.StatusBadRequest, "job_title is required")
		return
	}

	role := &role.Role{JobTitle: req.JobTitle, CompanyName: req.CompanyName}
	if err := s.roles.Create(r.Context(), role); err != nil {
		s.logger.Error("failed to create role", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create role")
		return
	}

	s.sendJSON(w, http.StatusCreated, role)
}

// handleListRoles handles GET /api/v1/roles
func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.roles.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list roles", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list roles")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

// handleGetRole handles GET /api/v1/roles/{roleID}
func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	rl, err := s.roles.Get(r.Context(), chi.URLParam(r, "roleID"))
	if errors.Is(err, role.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "Role not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get role", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get role")
		return
	}
	s.sendJSON(w, http.StatusOK, rl)
}

// handleIngest handles POST /api/v1/roles/{roleID}/candidates
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")
	if _, err := s.roles.Get(r.Context(), roleID); errors.Is(err, role.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "Role not found")
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Rows) == 0 {
		s.sendError(w, http.StatusBadRequest, "rows is required")
		return
	}

	summary, err := s.ingestor.Ingest(r.Context(), roleID, req.Rows)
	if err != nil {
		s.logger.Error("ingestion failed", "role_id", roleID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Ingestion failed")
		return
	}

	if s.metrics != nil {
		s.metrics.CandidatesIngestedTotal.WithLabelValues(roleID).Add(float64(summary.Inserted))
		s.metrics.CandidatesDuplicateTotal.WithLabelValues(roleID).Add(float64(summary.Duplicates))
		s.metrics.CandidatesErroredTotal.WithLabelValues(roleID).Add(float64(summary.Errored))
	}

	resp := IngestResponse{
		Inserted:   summary.Inserted,
		Duplicates: summary.Duplicates,
		Errors:     summary.Errored,
		Details:    summary.Errors,
	}
	if len(resp.Details) > maxDisplayedRowErrors {
		resp.MoreDetails = len(resp.Details) - maxDisplayedRowErrors
		resp.Details = resp.Details[:maxDisplayedRowErrors]
	}

	s.sendJSON(w, http.StatusOK, resp)
}

// handleListCandidates handles GET /api/v1/roles/{roleID}/candidates
func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")
	status := candidate.Status(r.URL.Query().Get("status"))

	candidates, err := s.candidates.ListByRole(r.Context(), roleID, status)
	if err != nil {
		s.logger.Error("failed to list candidates", "role_id", roleID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list candidates")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{"candidates": candidates})
}

// handleAnalytics handles GET /api/v1/roles/{roleID}/analytics
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")

	counts, err := s.candidates.CountByStatus(r.Context(), roleID)
	if err != nil {
		s.logger.Error("failed to count candidates", "role_id", roleID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to compute analytics")
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"total_candidates": total,
		"active":           counts[candidate.StatusActive],
		"interested":       counts[candidate.StatusInterested],
		"not_interested":   counts.NotInterestedTotal(),
		"responded":        counts[candidate.StatusResponded],
		"linkedin_only":    counts[candidate.StatusLinkedInOnly],
		"unsubscribed":     counts[candidate.StatusUnsubscribed],
		"no_response":      counts[candidate.StatusNoResponse],
		"gdpr_anonymized":  counts[candidate.StatusAnonymized],
	})
}

// handlePutTemplates handles PUT /api/v1/roles/{roleID}/templates
func (s *Server) handlePutTemplates(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")
	if _, err := s.roles.Get(r.Context(), roleID); errors.Is(err, role.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "Role not found")
		return
	}

	var req TemplatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	for _, body := range req.Templates {
		tmpl := &template.Template{
			RoleID:   roleID,
			Step:     body.Step,
			Subject:  body.Subject,
			BodyText: body.BodyText,
		}
		if err := s.engine.Validate(tmpl); err != nil {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.templates.Put(r.Context(), tmpl); err != nil {
			s.logger.Error("failed to store template", "role_id", roleID, "step", body.Step, "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to store template")
			return
		}
	}

	s.handleGetTemplates(w, r)
}

// handleGetTemplates handles GET /api/v1/roles/{roleID}/templates
func (s *Server) handleGetTemplates(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")

	templates, err := s.templates.ListByRole(r.Context(), roleID)
	if err != nil {
		s.logger.Error("failed to list templates", "role_id", roleID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{"templates": templates})
}

// handleInboundEvent handles POST /api/v1/events/inbound
func (s *Server) handleInboundEvent(w http.ResponseWriter, r *http.Request) {
	var msg classify.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	c, err := s.scheduler.HandleInbound(r.Context(), msg)
	if errors.Is(err, sequence.ErrCandidateUnresolved) {
		s.sendError(w, http.StatusNotFound, "Candidate not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to handle inbound event", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to handle event")
		return
	}

	s.sendJSON(w, http.StatusOK, c)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
