package apiapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	authsvc "github.com/trusteero/getlost-portal-sub003/internal/services/auth"
)

type stubSessionStore struct {
	record authsvc.SessionRecord
	err    error
}

func (s *stubSessionStore) GetSession(context.Context, string) (authsvc.SessionRecord, error) {
	return s.record, s.err
}

func TestAuthMiddlewareRejectsMissingBearer(t *testing.T) {
	jwtManager := authsvc.NewJWTManager("test-secret", 15*time.Minute)
	service := authsvc.NewService(jwtManager, &stubSessionStore{})
	mw := AuthMiddleware(service, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/billing/purchases", nil)
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not be called without a bearer token")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddlewareRejectsRevokedSession(t *testing.T) {
	jwtManager := authsvc.NewJWTManager("test-secret", 15*time.Minute)
	service := authsvc.NewService(jwtManager, &stubSessionStore{err: authsvc.ErrSessionNotFound})
	mw := AuthMiddleware(service, zap.NewNop())

	token, _, err := jwtManager.GenerateAccessToken(7, "sid-7", "user")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/billing/purchases", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not be called for a revoked session")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddlewareSetsIdentity(t *testing.T) {
	jwtManager := authsvc.NewJWTManager("test-secret", 15*time.Minute)
	store := &stubSessionStore{record: authsvc.SessionRecord{
		SID:       "sid-7",
		UserID:    7,
		Role:      "user",
		ExpiresAt: time.Now().Add(time.Hour),
	}}
	service := authsvc.NewService(jwtManager, store)
	mw := AuthMiddleware(service, zap.NewNop())

	token, _, err := jwtManager.GenerateAccessToken(7, "sid-7", "user")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/billing/purchases", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := authsvc.IdentityFromContext(r.Context())
		if !ok || identity.UserID != 7 || identity.SID != "sid-7" {
			t.Fatalf("identity missing or wrong: %+v ok=%v", identity, ok)
		}
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNoContent)
	}
}

func TestExtractBearerToken(t *testing.T) {
	if _, ok := extractBearerToken(""); ok {
		t.Fatal("empty header must not yield a token")
	}
	if _, ok := extractBearerToken("Basic abc"); ok {
		t.Fatal("non-bearer scheme must not yield a token")
	}
	token, ok := extractBearerToken("bearer abc.def.ghi")
	if !ok || token != "abc.def.ghi" {
		t.Fatalf("unexpected token: %q ok=%v", token, ok)
	}
}
