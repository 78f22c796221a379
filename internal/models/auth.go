package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the roles understood by the RBAC middleware.
type UserRole string

// RolePresenter may open sessions and read reports.
const RolePresenter UserRole = "PRESENTER"

// LoginRequest holds the presenter password.
type LoginRequest struct {
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued access token.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	Role UserRole `json:"role"`
	jwt.RegisteredClaims
}
