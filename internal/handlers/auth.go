package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/handlers/schemas"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/Bessima/gift-fulfillment/internal/repository"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

type contextKey string

const (
	OperatorContextKey contextKey = "operator"
)

const (
	accessTokenType  = "access"
	refreshTokenType = "refresh"
)

type Claims struct {
	OperatorID int         `json:"operator_id"`
	Username   string      `json:"username"`
	Role       models.Role `json:"role"`
	TokenType  string      `json:"token_type"`
	jwt.RegisteredClaims
}

type JWTConfig struct {
	SecretKey       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type AuthHandler struct {
	jwtConfig       *JWTConfig
	OperatorStorage repository.OperatorStorageRepositoryI
}

func NewAuthHandler(jwtConfig *JWTConfig, storage repository.OperatorStorageRepositoryI) *AuthHandler {
	return &AuthHandler{
		jwtConfig:       jwtConfig,
		OperatorStorage: storage,
	}
}

// CreateOperatorHandler регистрирует нового оператора. Доступен только администратору.
func (h *AuthHandler) CreateOperatorHandler(w http.ResponseWriter, r *http.Request) {
	var req schemas.CreateOperatorRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	existing, _ := h.OperatorStorage.GetByUsername(r.Context(), req.Username)
	if existing != nil {
		http.Error(w, "Operator already exists", http.StatusConflict)
		return
	}

	operator := models.Operator{Username: req.Username, Role: req.Role}
	if err := operator.HashPassword(req.Password); err != nil {
		http.Error(w, "Error creating operator", http.StatusInternalServerError)
		logger.Log.Error("error generate password hash", zap.Error(err))
		return
	}

	created, err := h.OperatorStorage.Create(r.Context(), operator.Username, operator.PasswordHash, operator.Role)
	if err != nil {
		if customerror.IsConflict(err) {
			http.Error(w, "Operator already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Error creating operator", http.StatusInternalServerError)
		logger.Log.Error("error creating operator in DB", zap.Error(err))
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req schemas.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	operator, err := h.OperatorStorage.GetByUsername(r.Context(), req.Username)
	if err != nil || operator == nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if !operator.CheckPassword(req.Password) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	h.issueTokens(w, operator, http.StatusOK)
}

func (h *AuthHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	// Очистка cookies
	for _, name := range []string{"access_token", "refresh_token"} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *AuthHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var refreshToken string
	if cookie, err := r.Cookie("refresh_token"); err == nil {
		refreshToken = cookie.Value
	} else {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "Refresh token required", http.StatusUnauthorized)
			return
		}
		refreshToken = strings.TrimPrefix(authHeader, "Bearer ")
	}

	claims, err := h.ValidateToken(refreshToken)
	if err != nil || claims.TokenType != refreshTokenType {
		http.Error(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	operator, err := h.OperatorStorage.GetByID(r.Context(), claims.OperatorID)
	if err != nil {
		http.Error(w, "Operator not found", http.StatusUnauthorized)
		return
	}

	h.issueTokens(w, operator, http.StatusOK)
}

func (h *AuthHandler) issueTokens(w http.ResponseWriter, operator *models.Operator, status int) {
	accessToken, refreshToken, err := h.generateTokens(operator)
	if err != nil {
		http.Error(w, "Error generating tokens", http.StatusInternalServerError)
		logger.Log.Error("error generating tokens", zap.Error(err))
		return
	}

	// Установка токенов в cookies (можно также использовать Authorization header)
	h.setTokensInCookies(w, accessToken, refreshToken)

	writeJSON(w, status, schemas.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    time.Now().Add(h.jwtConfig.AccessTokenTTL).Unix(),
	})
}

func (h *AuthHandler) signToken(operator *models.Operator, tokenType string, ttl time.Duration) (string, error) {
	claims := Claims{
		OperatorID: operator.ID,
		Username:   operator.Username,
		Role:       operator.Role,
		TokenType:  tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   operator.Username,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.jwtConfig.SecretKey))
}

func (h *AuthHandler) generateTokens(operator *models.Operator) (string, string, error) {
	accessToken, err := h.signToken(operator, accessTokenType, h.jwtConfig.AccessTokenTTL)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := h.signToken(operator, refreshTokenType, h.jwtConfig.RefreshTokenTTL)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (h *AuthHandler) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(h.jwtConfig.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}

	return claims, nil
}

// ValidateAccessToken rejects refresh tokens presented as access tokens.
func (h *AuthHandler) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := h.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != accessTokenType {
		return nil, errors.New("not an access token")
	}
	return claims, nil
}

func (h *AuthHandler) setTokensInCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Path:     "/",
		Expires:  time.Now().Add(h.jwtConfig.AccessTokenTTL),
		HttpOnly: true,
		Secure:   false, // Только для HTTPS в production
		SameSite: http.SameSiteStrictMode,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Path:     "/",
		Expires:  time.Now().Add(h.jwtConfig.RefreshTokenTTL),
		HttpOnly: true,
		Secure:   false, // Только для HTTPS в production
		SameSite: http.SameSiteStrictMode,
	})
}

// GetOperatorFromContext извлекает оператора из контекста
func GetOperatorFromContext(ctx context.Context) *models.Operator {
	if operator, ok := ctx.Value(OperatorContextKey).(*models.Operator); ok {
		return operator
	}
	return nil
}

// WithOperator кладёт оператора в контекст
func WithOperator(ctx context.Context, operator *models.Operator) context.Context {
	return context.WithValue(ctx, OperatorContextKey, operator)
}
