package schemas

import "github.com/Bessima/gift-fulfillment/internal/models"

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type CreateOperatorRequest struct {
	Username string      `json:"username" validate:"required,min=3,max=50"`
	Password string      `json:"password" validate:"required,min=6,max=100"`
	Role     models.Role `json:"role" validate:"required,oneof=admin service"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
