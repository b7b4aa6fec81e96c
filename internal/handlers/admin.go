package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/handlers/schemas"
	"github.com/Bessima/gift-fulfillment/internal/models"
)

const defaultAuditLimit = 50

type AdminOperator interface {
	Execute(ctx context.Context, actor *models.Operator, action models.AdminAction, orderID, paymentRef string) (any, error)
	RetryAwaitingFunds(ctx context.Context, actor *models.Operator, maxOrders int) (models.FundsRetrySummary, error)
	FundingAccount(ctx context.Context) (models.FundingAccount, error)
	RecentAudit(ctx context.Context, limit int) ([]models.AuditRecord, error)
}

type AdminHandler struct {
	Admin AdminOperator
}

func NewAdminHandler(admin AdminOperator) *AdminHandler {
	return &AdminHandler{Admin: admin}
}

// Execute runs an admin action. Malformed bodies and missing fields get 400 before the
// action runs; any failure inside the action, validation included, is 200 with success=false.
func (h *AdminHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req schemas.AdminRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, schemas.AdminResponse{Action: req.Action, Error: err.Error()})
		return
	}

	result, err := h.Admin.Execute(r.Context(), GetOperatorFromContext(r.Context()), req.Action, req.OrderID, req.PaymentIntentID)
	response := schemas.AdminResponse{Success: err == nil, Action: req.Action, Result: result}
	if err != nil {
		response.Error = err.Error()
	}

	switch {
	case customerror.IsAuthorization(err):
		writeJSON(w, http.StatusForbidden, response)
	default:
		writeJSON(w, http.StatusOK, response)
	}
}

func (h *AdminHandler) RetryFunds(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req schemas.FundsRetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, customerror.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, customerror.NewValidationError(err.Error()))
		return
	}

	summary, err := h.Admin.RetryAwaitingFunds(r.Context(), GetOperatorFromContext(r.Context()), req.MaxOrders)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *AdminHandler) GetFunds(w http.ResponseWriter, r *http.Request) {
	account, err := h.Admin.FundingAccount(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schemas.NewFundingAccountResponse(account))
}

func (h *AdminHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, customerror.NewValidationError("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	records, err := h.Admin.RecentAudit(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
