package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/handlers/schemas"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"go.uber.org/zap"
)

const WebhookTokenHeader = "X-Webhook-Token"

type WebhookApplier interface {
	Apply(ctx context.Context, report models.ProviderReport) (*models.Order, error)
}

type WebhookHandler struct {
	Reconciler WebhookApplier
	token      string
}

func NewWebhookHandler(reconciler WebhookApplier, token string) *WebhookHandler {
	return &WebhookHandler{Reconciler: reconciler, token: token}
}

// Handle ingests one provider status report. The payload is validated by the reconciler,
// which rejects malformed reports before touching any order.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.token != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(WebhookTokenHeader)), []byte(h.token)) != 1 {
		writeJSON(w, http.StatusUnauthorized, schemas.WebhookResponse{Error: "invalid webhook token"})
		return
	}

	defer r.Body.Close()
	var report models.ProviderReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeJSON(w, http.StatusBadRequest, schemas.WebhookResponse{Error: "invalid payload: " + err.Error()})
		return
	}

	order, err := h.Reconciler.Apply(r.Context(), report)
	if err != nil {
		code := customerror.HTTPCode(err)
		logger.Log.Warn("webhook not applied",
			zap.String("request_id", report.RequestID), zap.Int("status", code), zap.Error(err))
		writeJSON(w, code, schemas.WebhookResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, schemas.WebhookResponse{Success: true, Order: order})
}
