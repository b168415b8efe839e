package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"obligation-service/internal/reqctx"
)

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// UserClaims represents the JWT claims for an authenticated actor
type UserClaims struct {
	Email    string      `json:"email"`
	UserID   string      `json:"user_id"`
	TenantID string      `json:"tenant_id"`
	Role     reqctx.Role `json:"role"`
	PartyID  string      `json:"party_id,omitempty"` // Set for restricted actors only
	jwt.RegisteredClaims
}

// Identity converts the claims into the request identity.
func (c *UserClaims) Identity() reqctx.Identity {
	return reqctx.Identity{
		ActorID:  c.UserID,
		TenantID: c.TenantID,
		Role:     c.Role,
		PartyID:  c.PartyID,
	}
}

// JWTUtil is a utility for JWT token operations
type JWTUtil struct {
	config *JWTConfig
	now    func() time.Time
}

// NewJWTUtil creates a new JWT utility with the given configuration
func NewJWTUtil(config *JWTConfig) *JWTUtil {
	return &JWTUtil{
		config: config,
		now:    time.Now,
	}
}

// GenerateToken creates a signed token for the actor id belonging to email.
func (j *JWTUtil) GenerateToken(email string, id reqctx.Identity) (string, error) {
	if j.config == nil || j.config.SigningKey == "" {
		return "", errors.New("JWT configuration not provided")
	}

	now := j.now()
	claims := UserClaims{
		Email:    email,
		UserID:   id.ActorID,
		TenantID: id.TenantID,
		Role:     id.Role,
		PartyID:  id.PartyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ActorID,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(j.config.ExpirationHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.config.SigningKey))
}

// ValidateToken validates and parses the JWT token
func (j *JWTUtil) ValidateToken(tokenString string) (*UserClaims, error) {
	if j.config == nil || j.config.SigningKey == "" {
		return nil, errors.New("JWT configuration not provided")
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&UserClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return []byte(j.config.SigningKey), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UserID == "" || claims.TenantID == "" || !claims.Role.Valid() {
		return nil, fmt.Errorf("invalid token: %w", jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}
