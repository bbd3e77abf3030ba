package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/service"
)

// maxWebhookBytes caps provider payloads. Stripe events stay well below it.
const maxWebhookBytes = 512 << 10

// WebhookHandler receives payment provider deliveries. It sits outside the
// session gate; the provider signature is the only credential.
type WebhookHandler struct {
	webhooks *service.WebhookService
	logger   *slog.Logger
}

func NewWebhookHandler(webhooks *service.WebhookService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, logger: logger}
}

// HandleWebhook verifies and ingests one delivery.
//
// HTTP: POST /api/webhooks/{provider}
//
// The body is read raw: signatures are computed over the exact bytes, so it
// must not be decoded and re-encoded first. Any 2xx tells the provider to
// stop retrying, which is what duplicates and ignored events should get.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	header, err := h.webhooks.SignatureHeader(provider)
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, apperror.ValidationFailed("", "payload too large"))
			return
		}
		writeError(w, apperror.ValidationFailed("", "could not read payload"))
		return
	}

	res, err := h.webhooks.Ingest(r.Context(), provider, payload, r.Header.Get(header))
	if err != nil {
		logFailure(h.logger, r, "webhook ingest failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
