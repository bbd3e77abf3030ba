package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/guildgate/internal/access"
	"github.com/sakif/guildgate/internal/model"
	"github.com/sakif/guildgate/internal/repository"
	"github.com/sakif/guildgate/internal/service"
)

// adminPreviewLimit bounds the queues shown on the admin page.
const adminPreviewLimit = 50

// PageHandler answers the gated page routes with the JSON view state the UI
// renders. Every route here runs behind access.Gate.Pages, so by the time a
// handler runs the viewer is already allowed on the path.
type PageHandler struct {
	activation *service.ActivationService
	payments   *service.PaymentService
	logger     *slog.Logger
}

func NewPageHandler(activation *service.ActivationService, payments *service.PaymentService, logger *slog.Logger) *PageHandler {
	return &PageHandler{activation: activation, payments: payments, logger: logger}
}

type homeView struct {
	Tier    access.Tier    `json:"tier"`
	Profile *model.Profile `json:"profile,omitempty"`
}

// HandleHome serves GET /.
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	v := access.ViewerFromContext(r.Context())
	writeJSON(w, http.StatusOK, homeView{Tier: v.Tier, Profile: v.Profile})
}

type loginView struct {
	LoginURL string `json:"loginUrl"`
	Denied   bool   `json:"denied,omitempty"`
}

// HandleLogin serves GET /login.
func (h *PageHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, loginView{
		LoginURL: "/auth/discord/login",
		Denied:   r.URL.Query().Get("auth") == "denied",
	})
}

type activationView struct {
	Activation service.ActivationStatus `json:"activation"`
	SubmitURL  string                   `json:"submitUrl"`
}

// HandleActivation serves GET /activation, the form for subjects without a
// profile.
func (h *PageHandler) HandleActivation(w http.ResponseWriter, r *http.Request) {
	st, err := h.activation.Status(r.Context(), access.ViewerFromContext(r.Context()))
	if err != nil {
		logFailure(h.logger, r, "activation page failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activationView{Activation: st, SubmitURL: "/api/auth/activation/submit"})
}

// HandlePending serves GET /pending?status=pending|rejected. The status in
// the response comes from the store, not the query string.
func (h *PageHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	st, err := h.activation.Status(r.Context(), access.ViewerFromContext(r.Context()))
	if err != nil {
		logFailure(h.logger, r, "pending page failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type adminView struct {
	PendingActivations     int                 `json:"pendingActivations"`
	PendingPaymentRequests int                 `json:"pendingPaymentRequests"`
	Activations            []model.Profile     `json:"activations"`
	PaymentRequests        []model.LedgerEntry `json:"paymentRequests"`
}

// HandleAdmin serves GET /admin with the two review queues.
func (h *PageHandler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	v := access.ViewerFromContext(r.Context())

	activations, err := h.activation.ListPending(r.Context(), v, repository.ListOptions{Limit: adminPreviewLimit})
	if err != nil {
		logFailure(h.logger, r, "admin page failed", err)
		writeError(w, err)
		return
	}
	payments, err := h.payments.List(r.Context(), v, repository.LedgerFilter{
		Status: string(model.PaymentPending),
		Limit:  adminPreviewLimit,
	})
	if err != nil {
		logFailure(h.logger, r, "admin page failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, adminView{
		PendingActivations:     len(activations),
		PendingPaymentRequests: len(payments),
		Activations:            activations,
		PaymentRequests:        payments,
	})
}

// HandleHealth serves GET /healthz.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleNotFound answers paths with no route.
func HandleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{
		Error:   "not_found",
		Message: "no such page: " + r.URL.Path,
	})
}
