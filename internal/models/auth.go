package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the access token payload issued by the (external) token service.
type JWTClaims struct {
	UID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// CurrentUser is the authenticated caller with its derived role.
type CurrentUser struct {
	UserID int64
	Role   UserRole
}

// IsAdmin reports whether the caller is an administrator.
func (u *CurrentUser) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
