package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSON reads the body into dst and validates it. Errors are ValidationErrors.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return customerror.NewValidationError("invalid request body: " + err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		return customerror.NewValidationError(err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Error("Error encoding response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := customerror.HTTPCode(err)
	if code >= http.StatusInternalServerError {
		logger.Log.Error("request failed", zap.Int("status", code), zap.Error(err))
	} else {
		logger.Log.Warn("request rejected", zap.Int("status", code), zap.Error(err))
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
