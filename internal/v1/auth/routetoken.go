package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

// RouteTokenTTL bounds how long a gateway redirect stays valid. The client
// is expected to reconnect immediately.
const RouteTokenTTL = 15 * time.Second

var (
	ErrTokenInvalid = errors.New("auth failed")
	ErrTokenReused  = errors.New("auth failed")
)

// RouteClaims are the claims carried by a one-time routing token.
type RouteClaims struct {
	RoomCode string `json:"rc"`
	jwt.RegisteredClaims
}

// RouteTokenService mints and validates the one-time tokens a gateway hands
// to clients it redirects to a worker. Tokens are HS256-signed and single
// use: the worker consumes the jti on first validation.
type RouteTokenService struct {
	secret []byte

	mu   sync.Mutex
	used map[string]time.Time // jti -> expiry, pruned lazily
}

// NewRouteTokenService returns a service signing with the given secret.
func NewRouteTokenService(secret string) *RouteTokenService {
	return &RouteTokenService{
		secret: []byte(secret),
		used:   make(map[string]time.Time),
	}
}

// Mint issues a routing token for the given connection and room.
func (s *RouteTokenService) Mint(clientID types.ClientIdType, roomCode types.RoomCodeType) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("redirect build failed")
	}
	now := time.Now()
	claims := RouteClaims{
		RoomCode: string(roomCode),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(clientID),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(RouteTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Consume validates a token and marks its jti as used. A second Consume of
// the same token fails.
func (s *RouteTokenService) Consume(tokenString string) (*RouteClaims, error) {
	if len(s.secret) == 0 {
		return nil, ErrTokenInvalid
	}

	claims := &RouteClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil, ErrTokenInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(time.Now())
	if _, seen := s.used[claims.ID]; seen {
		return nil, ErrTokenReused
	}
	s.used[claims.ID] = claims.ExpiresAt.Time

	return claims, nil
}

// pruneLocked drops expired jti entries. Caller holds s.mu.
func (s *RouteTokenService) pruneLocked(now time.Time) {
	for jti, exp := range s.used {
		if now.After(exp) {
			delete(s.used, jti)
		}
	}
}
