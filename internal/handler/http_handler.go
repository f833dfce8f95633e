package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Clanvaro/unigrc-m-production-sub010/internal/apperrors"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/service"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPHandler exposes the prioritization and approval services over REST.
type HTTPHandler struct {
	scoring   *service.ScoringService
	approvals *service.ApprovalService
	dashboard *service.DashboardService
	db        Pinger
}

// NewHTTPHandler creates a new HTTP handler. db may be nil, in which case
// the health check reports liveness only.
func NewHTTPHandler(scoring *service.ScoringService, approvals *service.ApprovalService, dashboard *service.DashboardService, db Pinger) *HTTPHandler {
	return &HTTPHandler{
		scoring:   scoring,
		approvals: approvals,
		dashboard: dashboard,
		db:        db,
	}
}

// Routes mounts every endpoint on r. Paths mirror the existing API and are
// preserved for compatibility testing.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/audit-plans/{planID}/prioritization", h.ListPrioritization)
		r.Post("/audit-plans/{planID}/calculate-all-priorities", h.CalculateAllPriorities)
		r.Put("/audit-prioritization/{id}", h.UpdatePrioritizationFactor)

		r.Route("/approval", func(r chi.Router) {
			r.Get("/dashboard", h.Dashboard)
			r.Get("/pending", h.ListPending)
			r.Get("/metrics", h.Metrics)
			r.Get("/escalations", h.ListEscalations)
			r.Get("/{id}", h.GetApprovalItem)
			r.Get("/{id}/history", h.History)

			r.Post("/submit", h.Submit)
			r.Post("/approve/{id}", h.Approve)
			r.Post("/reject/{id}", h.Reject)
			r.Post("/escalate/{id}", h.Escalate)
			r.Post("/bulk-approve", h.BulkApprove)
		})
	})
}

// Health reports liveness and, when a database is wired, its reachability.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("health check: database unreachable")
			respondJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
			return
		}
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}

// ── Prioritization ────────────────────────────────────────────────────────────

// ListPrioritization returns a plan's factors joined with entity details.
func (h *HTTPHandler) ListPrioritization(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")

	factors, err := h.scoring.ListPlanFactors(r.Context(), planID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, factors)
}

// UpdatePrioritizationFactor applies a partial edit to one factor and
// triggers full plan recalculation.
func (h *HTTPHandler) UpdatePrioritizationFactor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch service.FactorUpdate
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, r, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	factor, report, err := h.scoring.UpdateFactor(r.Context(), id, &patch)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"factor":        factor,
		"recalculation": report,
	})
}

// CalculateAllPriorities forces a full plan recalculation.
func (h *HTTPHandler) CalculateAllPriorities(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")

	report, err := h.scoring.RecalculateAll(r.Context(), planID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{"results": report})
}

// ── Approvals ─────────────────────────────────────────────────────────────────

// Submit registers a new item for approval.
func (h *HTTPHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	item, err := h.approvals.Submit(r.Context(), &req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, item)
}

type decisionRequest struct {
	ApproverID string  `json:"approverId"`
	Reasoning  *string `json:"reasoning,omitempty"`
}

// Approve records a positive decision.
func (h *HTTPHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	item, err := h.approvals.Approve(r.Context(), id, req.ApproverID, req.Reasoning)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, item)
}

// Reject records a negative decision; reasoning is mandatory.
func (h *HTTPHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	reasoning := ""
	if req.Reasoning != nil {
		reasoning = *req.Reasoning
	}

	item, err := h.approvals.Reject(r.Context(), id, req.ApproverID, reasoning)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, item)
}

// Escalate raises a pending item to a higher tier.
func (h *HTTPHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req service.EscalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	esc, err := h.approvals.Escalate(r.Context(), id, &req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, esc)
}

type bulkApproveRequest struct {
	IDs        []string `json:"ids"`
	ApproverID string   `json:"approverId"`
	Reasoning  *string  `json:"reasoning,omitempty"`
}

// BulkApprove approves many items, reporting per-item outcomes.
func (h *HTTPHandler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	var req bulkApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	results, err := h.approvals.BulkApprove(r.Context(), req.IDs, req.ApproverID, req.Reasoning)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{"results": results})
}

// GetApprovalItem returns one item together with its unresolved escalation,
// if any.
func (h *HTTPHandler) GetApprovalItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.approvals.GetItem(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	esc, err := h.dashboard.ItemEscalation(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"item":             item,
		"activeEscalation": esc,
	})
}

// ListPending returns all items awaiting a decision.
func (h *HTTPHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	items, err := h.approvals.ListPending(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, items)
}

// History returns the audit trail for one item.
func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entries, err := h.approvals.History(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, entries)
}

// ── Dashboard ─────────────────────────────────────────────────────────────────

// Dashboard returns the summary, trend and breakdown blocks.
func (h *HTTPHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	report, err := h.dashboard.Dashboard(r.Context(), time.Now())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, report)
}

// Metrics returns the performance block.
func (h *HTTPHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	perf, err := h.dashboard.Metrics(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, perf)
}

// ListEscalations returns escalations; ?status=active restricts to
// unresolved ones.
func (h *HTTPHandler) ListEscalations(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	switch status {
	case "", "active":
		escalations, err := h.dashboard.ActiveEscalations(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, escalations)
	case "all":
		escalations, err := h.dashboard.AllEscalations(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, escalations)
	default:
		respondError(w, r, apperrors.InvalidInput("status", "must be active or all"))
	}
}

// ── response helpers ──────────────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
	respondJSON(w, r, status, map[string]string{"error": err.Error()})
}
