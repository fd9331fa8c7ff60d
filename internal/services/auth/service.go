package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sessions are issued by the portal's login service; this core only
// checks that a presented token still maps to a live session, so a
// revoked session cannot keep verifying purchases.
type SessionStore interface {
	GetSession(ctx context.Context, sid string) (SessionRecord, error)
}

type Service struct {
	jwt      *JWTManager
	sessions SessionStore
	now      func() time.Time
}

func NewService(jwtManager *JWTManager, sessions SessionStore) *Service {
	return &Service{
		jwt:      jwtManager,
		sessions: sessions,
		now:      time.Now,
	}
}

func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (AccessClaims, error) {
	if s.jwt == nil || s.sessions == nil {
		return AccessClaims{}, fmt.Errorf("auth dependencies are not configured")
	}

	claims, err := s.jwt.ParseAccessToken(accessToken)
	if err != nil {
		return AccessClaims{}, ErrUnauthorized
	}

	session, err := s.sessions.GetSession(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return AccessClaims{}, ErrUnauthorized
		}
		return AccessClaims{}, fmt.Errorf("get session: %w", err)
	}

	if session.UserID != claims.UserID || session.Role != claims.Role {
		return AccessClaims{}, ErrUnauthorized
	}
	if s.now().After(session.ExpiresAt) {
		return AccessClaims{}, ErrUnauthorized
	}

	return claims, nil
}
