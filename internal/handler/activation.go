package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/guildgate/internal/access"
	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/repository"
	"github.com/sakif/guildgate/internal/service"
)

// Review actions accepted by the admin endpoints.
const (
	actionApprove = "approve"
	actionReject  = "reject"
)

// ActivationHandler serves the activation form and the admin review queue.
type ActivationHandler struct {
	activation *service.ActivationService
	logger     *slog.Logger
}

func NewActivationHandler(activation *service.ActivationService, logger *slog.Logger) *ActivationHandler {
	return &ActivationHandler{activation: activation, logger: logger}
}

// HandleSubmit creates or overwrites the viewer's activation request.
//
// HTTP: POST /api/auth/activation/submit
func (h *ActivationHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var in service.SubmitInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.activation.Submit(r.Context(), access.ViewerFromContext(r.Context()), in)
	if err != nil {
		logFailure(h.logger, r, "activation submit failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleList returns pending, unrejected requests, oldest first.
//
// HTTP: GET /api/admin/activations?limit=
func (h *ActivationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}

	profiles, err := h.activation.ListPending(r.Context(), access.ViewerFromContext(r.Context()), repository.ListOptions{Limit: limit})
	if err != nil {
		logFailure(h.logger, r, "listing pending activations failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

type activationReviewRequest struct {
	SubjectID string `json:"subjectId"`
	Action    string `json:"action"`
	Reason    string `json:"reason"`
}

// HandleReview approves or rejects one request.
//
// HTTP: POST /api/admin/activations
// Body: {"subjectId": "...", "action": "approve"|"reject", "reason": "..."}
func (h *ActivationHandler) HandleReview(w http.ResponseWriter, r *http.Request) {
	var req activationReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	v := access.ViewerFromContext(r.Context())
	var err error
	switch req.Action {
	case actionApprove:
		_, err = h.activation.Approve(r.Context(), v, req.SubjectID)
	case actionReject:
		_, err = h.activation.Reject(r.Context(), v, req.SubjectID, req.Reason)
	default:
		err = apperror.ValidationFailed("action", "action must be approve or reject")
	}
	if err != nil {
		logFailure(h.logger, r, "activation review failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"subjectId": req.SubjectID,
		"action":    req.Action,
	})
}
