package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tempora-hq/tempora/internal/authz"
)

// Account represents an authenticated user account.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         authz.Role
	ManagerID    *int64
	IsActive     bool
}

// Token types embedded in claims so a refresh token can never be replayed as
// an access token.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims are the JWT claims issued by the service.
type Claims struct {
	Username  string     `json:"username"`
	Role      authz.Role `json:"role"`
	ManagerID *int64     `json:"manager_id,omitempty"`
	TokenType string     `json:"token_type"`
	jwt.RegisteredClaims
}

// ErrInvalidToken indicates the token failed validation.
var ErrInvalidToken = errors.New("invalid token")

// ErrInvalidCredentials indicates login failure.
var ErrInvalidCredentials = errors.New("invalid credentials")
