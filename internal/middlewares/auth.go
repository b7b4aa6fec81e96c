package middleware

import (
	"net/http"
	"strings"

	"github.com/Bessima/gift-fulfillment/internal/handlers"
	"github.com/Bessima/gift-fulfillment/internal/models"
)

func AuthMiddleware(authHandler *handlers.AuthHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string

			cookie, err := r.Cookie("access_token")
			if err == nil {
				tokenString = cookie.Value
			} else {
				authHeader := r.Header.Get("Authorization")
				if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
					tokenString = strings.TrimPrefix(authHeader, "Bearer ")
				}
			}

			if tokenString == "" {
				http.Error(w, "Authorization token required", http.StatusUnauthorized)
				return
			}

			claims, err := authHandler.ValidateAccessToken(tokenString)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}
			operator, err := authHandler.OperatorStorage.GetByID(r.Context(), claims.OperatorID)
			if err != nil || operator == nil {
				http.Error(w, "Operator not found", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(handlers.WithOperator(r.Context(), operator)))
		})
	}
}

// RequireRole lets the request through only for operators holding one of roles.
// It must run after AuthMiddleware.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			operator := handlers.GetOperatorFromContext(r.Context())
			if operator == nil {
				http.Error(w, "Authorization token required", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if operator.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}
