package jwtutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obligation-service/internal/reqctx"
)

func TestGenerateAndValidate(t *testing.T) {
	j := NewJWTUtil(&JWTConfig{SigningKey: "secret", ExpirationHours: 1})
	id := reqctx.Identity{ActorID: "u1", TenantID: "t1", Role: reqctx.RoleRestricted, PartyID: "p1"}

	token, err := j.GenerateToken("a@example.com", id)
	require.NoError(t, err)

	claims, err := j.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Identity())
	assert.Equal(t, "a@example.com", claims.Email)
}

func TestValidateRejectsWrongKey(t *testing.T) {
	issuer := NewJWTUtil(&JWTConfig{SigningKey: "one", ExpirationHours: 1})
	verifier := NewJWTUtil(&JWTConfig{SigningKey: "two", ExpirationHours: 1})

	token, err := issuer.GenerateToken("a@example.com", reqctx.Identity{ActorID: "u", TenantID: "t", Role: reqctx.RolePrivileged})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestValidateRejectsExpired(t *testing.T) {
	j := NewJWTUtil(&JWTConfig{SigningKey: "secret", ExpirationHours: 1})
	j.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := j.GenerateToken("a@example.com", reqctx.Identity{ActorID: "u", TenantID: "t", Role: reqctx.RolePrivileged})
	require.NoError(t, err)

	j.now = time.Now
	_, err = j.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateRejectsIncompleteClaims(t *testing.T) {
	j := NewJWTUtil(&JWTConfig{SigningKey: "secret", ExpirationHours: 1})

	token, err := j.GenerateToken("a@example.com", reqctx.Identity{ActorID: "u", Role: reqctx.RolePrivileged})
	require.NoError(t, err)

	_, err = j.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidClaims)
}
