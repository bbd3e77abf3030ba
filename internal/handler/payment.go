package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/guildgate/internal/access"
	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/model"
	"github.com/sakif/guildgate/internal/repository"
	"github.com/sakif/guildgate/internal/service"
)

// PaymentHandler serves checkout and the admin payment ledger.
type PaymentHandler struct {
	payments *service.PaymentService
	logger   *slog.Logger
}

func NewPaymentHandler(payments *service.PaymentService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// HandleCheckout starts a purchase.
//
// HTTP: POST /api/payments/checkout
//
// Card checkouts answer 200 with a redirectUrl. Manual methods answer 201
// with the created payment request.
func (h *PaymentHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var in service.CheckoutInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.payments.Checkout(r.Context(), access.ViewerFromContext(r.Context()), in)
	if err != nil {
		logFailure(h.logger, r, "checkout failed", err)
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Method != model.MethodCard {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// HandleList returns the merged manual and automated ledger, newest first.
//
// HTTP: GET /api/admin/payment-requests?status=&limit=
func (h *PaymentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := h.payments.List(r.Context(), access.ViewerFromContext(r.Context()), repository.LedgerFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
	})
	if err != nil {
		logFailure(h.logger, r, "listing payments failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type paymentReviewRequest struct {
	PaymentRequestID string `json:"paymentRequestId"`
	Action           string `json:"action"`
	Reason           string `json:"reason"`
}

// HandleReview approves or rejects one manual payment request.
//
// HTTP: POST /api/admin/payment-requests
// Body: {"paymentRequestId": "...", "action": "approve"|"reject", "reason": "..."}
func (h *PaymentHandler) HandleReview(w http.ResponseWriter, r *http.Request) {
	var req paymentReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	v := access.ViewerFromContext(r.Context())
	var (
		pr  *model.PaymentRequest
		err error
	)
	switch req.Action {
	case actionApprove:
		pr, err = h.payments.Approve(r.Context(), v, req.PaymentRequestID)
	case actionReject:
		pr, err = h.payments.Reject(r.Context(), v, req.PaymentRequestID, req.Reason)
	default:
		err = apperror.ValidationFailed("action", "action must be approve or reject")
	}
	if err != nil {
		logFailure(h.logger, r, "payment review failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}
