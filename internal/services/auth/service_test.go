package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubSessions struct {
	record SessionRecord
	err    error
}

func (s *stubSessions) GetSession(context.Context, string) (SessionRecord, error) {
	return s.record, s.err
}

func TestValidateAccessTokenHappyPath(t *testing.T) {
	manager := NewJWTManager("secret", 15*time.Minute)
	token, _, err := manager.GenerateAccessToken(7, "sid-7", "user")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	sessions := &stubSessions{record: SessionRecord{
		SID:       "sid-7",
		UserID:    7,
		Role:      "user",
		ExpiresAt: time.Now().Add(time.Hour),
	}}
	service := NewService(manager, sessions)

	claims, err := service.ValidateAccessToken(context.Background(), token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != 7 || claims.SID != "sid-7" || claims.Role != "user" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateAccessTokenRejectsRevokedSession(t *testing.T) {
	manager := NewJWTManager("secret", 15*time.Minute)
	token, _, err := manager.GenerateAccessToken(7, "sid-7", "user")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	service := NewService(manager, &stubSessions{err: ErrSessionNotFound})

	if _, err := service.ValidateAccessToken(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestValidateAccessTokenRejectsUserMismatch(t *testing.T) {
	manager := NewJWTManager("secret", 15*time.Minute)
	token, _, err := manager.GenerateAccessToken(7, "sid-7", "user")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	sessions := &stubSessions{record: SessionRecord{
		SID:       "sid-7",
		UserID:    8,
		Role:      "user",
		ExpiresAt: time.Now().Add(time.Hour),
	}}
	service := NewService(manager, sessions)

	if _, err := service.ValidateAccessToken(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestValidateAccessTokenRejectsExpiredSession(t *testing.T) {
	manager := NewJWTManager("secret", 15*time.Minute)
	token, _, err := manager.GenerateAccessToken(7, "sid-7", "user")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	sessions := &stubSessions{record: SessionRecord{
		SID:       "sid-7",
		UserID:    7,
		Role:      "user",
		ExpiresAt: time.Now().Add(-time.Minute),
	}}
	service := NewService(manager, sessions)

	if _, err := service.ValidateAccessToken(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestValidateAccessTokenRejectsWrongSecret(t *testing.T) {
	other := NewJWTManager("other-secret", 15*time.Minute)
	token, _, err := other.GenerateAccessToken(7, "sid-7", "user")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	manager := NewJWTManager("secret", 15*time.Minute)
	service := NewService(manager, &stubSessions{})

	if _, err := service.ValidateAccessToken(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
