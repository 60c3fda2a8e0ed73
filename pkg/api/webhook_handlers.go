package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meridianhq/meridian/pkg/apperr"
	"github.com/meridianhq/meridian/pkg/billing"
	"github.com/meridianhq/meridian/pkg/httputil"
	"github.com/meridianhq/meridian/pkg/observability"
)

// SignatureHeader carries the hex HMAC of the raw request body
const SignatureHeader = "X-Webhook-Signature"

// maxWebhookBody caps the webhook payload size at 1 MiB
const maxWebhookBody = 1 << 20

// WebhookHandlers handles inbound billing provider webhooks
type WebhookHandlers struct {
	billing *billing.Service
	secrets map[string]string
	metrics *observability.Metrics
	log     *observability.Logger
}

// NewWebhookHandlers creates a new WebhookHandlers
func NewWebhookHandlers(svc *billing.Service, secrets map[string]string, metrics *observability.Metrics, log *observability.Logger) *WebhookHandlers {
	return &WebhookHandlers{billing: svc, secrets: secrets, metrics: metrics, log: log}
}

// RegisterRoutes registers webhook routes. Webhooks authenticate by
// signature, not bearer token, so they bypass the guard.
func (h *WebhookHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks/{provider}", h.HandleWebhook).Methods("POST")
}

// HandleWebhook verifies and applies one billing provider event
func (h *WebhookHandlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	secret, ok := h.secrets[provider]
	if !ok {
		h.count(provider, "unknown_provider")
		httputil.WriteErrorKind(w, apperr.KindNotFound, "unknown webhook provider")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.WriteErrorKind(w, apperr.KindValidation, "failed to read request body")
		return
	}

	if !billing.VerifySignature(body, r.Header.Get(SignatureHeader), secret) {
		h.count(provider, "bad_signature")
		httputil.WriteErrorKind(w, apperr.KindValidation, "invalid webhook signature")
		return
	}

	// Past this point only signature failures return non-2xx. Any
	// processing failure is logged and acknowledged with 200 so the
	// provider does not hammer us with retries for an event we will
	// never be able to apply.
	var event billing.Event
	if err := json.Unmarshal(body, &event); err != nil {
		h.count(provider, "bad_payload")
		if h.log != nil {
			h.log.WithError(err).WithFields(map[string]interface{}{
				"provider": provider,
			}).Warn("discarding undecodable webhook payload")
		}
		httputil.WriteSuccessMessage(w, "event acknowledged")
		return
	}

	applied, err := h.billing.ProcessEvent(r.Context(), provider, &event)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			h.count(provider, "bad_payload")
		} else {
			h.count(provider, "error")
		}
		if h.log != nil {
			h.log.WithError(err).WithFields(map[string]interface{}{
				"provider": provider,
				"eventId":  event.ID,
			}).Error("failed to process webhook event")
		}
		httputil.WriteSuccessMessage(w, "event acknowledged")
		return
	}

	if applied {
		h.count(provider, "applied")
		httputil.WriteSuccessMessage(w, "event applied")
		return
	}
	// Duplicate delivery or unknown event type: acknowledge so the
	// provider stops retrying.
	h.count(provider, "acknowledged")
	httputil.WriteSuccessMessage(w, "event acknowledged")
}

func (h *WebhookHandlers) count(provider, outcome string) {
	if h.metrics != nil {
		h.metrics.WebhookEventsTotal.WithLabelValues(provider, outcome).Inc()
	}
}
