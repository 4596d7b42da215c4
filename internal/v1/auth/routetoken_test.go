package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

func TestRouteToken_MintAndConsume(t *testing.T) {
	s := NewRouteTokenService("route-secret")

	token, err := s.Mint("client-1", "OX-AAAAA")
	require.NoError(t, err)

	claims, err := s.Consume(token)
	require.NoError(t, err)
	assert.Equal(t, "OX-AAAAA", claims.RoomCode)
	assert.Equal(t, "client-1", claims.Subject)
}

func TestRouteToken_SingleUse(t *testing.T) {
	s := NewRouteTokenService("route-secret")
	token, err := s.Mint("client-1", "OX-AAAAA")
	require.NoError(t, err)

	_, err = s.Consume(token)
	require.NoError(t, err)

	_, err = s.Consume(token)
	assert.ErrorIs(t, err, ErrTokenReused)
	assert.Equal(t, "auth failed", err.Error())
}

func TestRouteToken_WrongSecret(t *testing.T) {
	minter := NewRouteTokenService("secret-one")
	verifier := NewRouteTokenService("secret-two")

	token, err := minter.Mint("client-1", "OX-AAAAA")
	require.NoError(t, err)

	_, err = verifier.Consume(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRouteToken_Garbage(t *testing.T) {
	s := NewRouteTokenService("route-secret")
	_, err := s.Consume("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRouteToken_Expired(t *testing.T) {
	secret := "route-secret"
	s := NewRouteTokenService(secret)

	past := time.Now().Add(-time.Minute)
	claims := RouteClaims{
		RoomCode: "OX-AAAAA",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "client-1",
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(past.Add(-RouteTokenTTL)),
			ExpiresAt: jwt.NewNumericDate(past),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = s.Consume(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRouteToken_RejectsUnsignedAlg(t *testing.T) {
	s := NewRouteTokenService("route-secret")

	claims := RouteClaims{
		RoomCode: "OX-AAAAA",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = s.Consume(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRouteToken_EmptySecret(t *testing.T) {
	s := NewRouteTokenService("")
	_, err := s.Mint(types.ClientIdType("c"), "OX-AAAAA")
	assert.Error(t, err)
	_, err = s.Consume("whatever")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
