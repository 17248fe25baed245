package models

import "github.com/golang-jwt/jwt/v5"

// UserRole distinguishes account types on protected routes.
type UserRole string

const (
	RoleTeacher UserRole = "TEACHER"
	RoleAdmin   UserRole = "ADMIN"
)

// JWTClaims carries the verified identity attached to each request.
// The identity provider lives outside this service; we only validate
// and trust the signed claims.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
