package handlers

import (
	"context"
	"net/http"

	"github.com/Bessima/gift-fulfillment/internal/handlers/schemas"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Checkout interface {
	ConfirmPayment(ctx context.Context, in models.PaymentConfirmation) (*models.Order, error)
	RegisterContribution(ctx context.Context, hold models.ContributionHold) (*models.Contribution, error)
	CaptureGroupGift(ctx context.Context, in models.GroupGiftCapture) (*models.Order, error)
}

type PaymentsHandler struct {
	Checkout Checkout
}

func NewPaymentsHandler(checkout Checkout) *PaymentsHandler {
	return &PaymentsHandler{Checkout: checkout}
}

func (h *PaymentsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req schemas.ConfirmPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	order, err := h.Checkout.ConfirmPayment(r.Context(), req.ToModel())
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Log.Info("payment confirmed", zap.String("order_id", order.ID), zap.String("status", string(order.Status)))
	writeJSON(w, http.StatusOK, order)
}

func (h *PaymentsHandler) RegisterContribution(w http.ResponseWriter, r *http.Request) {
	var req schemas.ContributionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	contribution, err := h.Checkout.RegisterContribution(r.Context(), req.ToModel(chi.URLParam(r, "projectID")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contribution)
}

func (h *PaymentsHandler) CaptureGroupGift(w http.ResponseWriter, r *http.Request) {
	var req schemas.GroupGiftCaptureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	order, err := h.Checkout.CaptureGroupGift(r.Context(), req.ToModel(chi.URLParam(r, "projectID")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
