package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-course-api/internal/campus"
	"github.com/noah-isme/campus-course-api/internal/models"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

// AuthConfig defines the secrets used to authenticate callers and peers.
type AuthConfig struct {
	AccessTokenSecret string
	// PrivateSecret is the shared bearer secret peers present on the private API.
	PrivateSecret string
}

// AuthService verifies caller tokens and the peer secret.
type AuthService struct {
	logger *zap.Logger
	config AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{logger: logger, config: config}
}

// ValidateToken parses an HS256 access token and derives the caller's role
// from the id band of its uid.
func (s *AuthService) ValidateToken(tokenString string) (*models.CurrentUser, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.ErrExpiredToken
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "invalid token claims")
	}
	if !campus.ValidUserID(claims.UID) {
		return nil, appErrors.Clone(appErrors.ErrInvalidID, "token carries an invalid user id")
	}

	return &models.CurrentUser{UserID: claims.UID, Role: campus.RoleOf(claims.UID)}, nil
}

// IssueToken signs an access token for uid. Production tokens come from the
// campus login service; this backs the CLI and tests.
func (s *AuthService) IssueToken(uid int64, ttl time.Duration) (string, error) {
	if !campus.ValidUserID(uid) {
		return "", appErrors.Clone(appErrors.ErrInvalidID, "invalid user id")
	}
	issuedAt := time.Now().UTC()
	claims := &models.JWTClaims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", uid),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
}

// ValidatePeerSecret checks the bearer secret presented on the private API.
func (s *AuthService) ValidatePeerSecret(secret string) error {
	if s.config.PrivateSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.config.PrivateSecret)) != 1 {
		s.logger.Warn("rejected private api call with a bad secret")
		return appErrors.Clone(appErrors.ErrInvalidToken, "invalid private api secret")
	}
	return nil
}
