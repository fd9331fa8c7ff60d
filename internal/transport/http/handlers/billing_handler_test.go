package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/trusteero/getlost-portal-sub003/internal/infra/provider"
	pgrepo "github.com/trusteero/getlost-portal-sub003/internal/repo/postgres"
	redisrepo "github.com/trusteero/getlost-portal-sub003/internal/repo/redis"
	authsvc "github.com/trusteero/getlost-portal-sub003/internal/services/auth"
	confsvc "github.com/trusteero/getlost-portal-sub003/internal/services/confirmations"
	paymentsvc "github.com/trusteero/getlost-portal-sub003/internal/services/payments"
	ratesvc "github.com/trusteero/getlost-portal-sub003/internal/services/rate"
)

const webhookSecret = "whsec_handlers"

type fixedPurchaseStore struct {
	record pgrepo.PurchaseRecord
	err    error
}

func (s *fixedPurchaseStore) CreatePending(context.Context, int64, *int64, string, int, string, string) (pgrepo.PurchaseRecord, error) {
	return s.record, s.err
}

func (s *fixedPurchaseStore) FindByID(context.Context, int64) (pgrepo.PurchaseRecord, error) {
	return s.record, s.err
}

func (s *fixedPurchaseStore) ListByOwner(context.Context, int64, string) ([]pgrepo.PurchaseRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []pgrepo.PurchaseRecord{s.record}, nil
}

func (s *fixedPurchaseStore) MarkCompleted(context.Context, pgx.Tx, int64, string, time.Time) (pgrepo.PurchaseRecord, bool, error) {
	return s.record, false, s.err
}

func (s *fixedPurchaseStore) MarkFailed(context.Context, pgx.Tx, int64, time.Time) (pgrepo.PurchaseRecord, bool, error) {
	return s.record, false, s.err
}

type fixedEntitlementStore struct{}

func (s *fixedEntitlementStore) Get(ctx context.Context, bookID int64, capability string) (pgrepo.EntitlementRecord, error) {
	return pgrepo.EntitlementRecord{BookID: bookID, Capability: capability, Status: "locked"}, nil
}

func (s *fixedEntitlementStore) UpsertPurchased(_ context.Context, _ pgx.Tx, bookID int64, capability string, _ time.Time, _ int) (pgrepo.EntitlementRecord, error) {
	return pgrepo.EntitlementRecord{BookID: bookID, Capability: capability, Status: "purchased"}, nil
}

type fixedChecker struct {
	status provider.SessionStatus
	err    error
}

func (c *fixedChecker) SessionStatus(context.Context, string) (provider.SessionStatus, error) {
	return c.status, c.err
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newBillingFixture(t *testing.T, store *fixedPurchaseStore, checker *fixedChecker, limiter *ratesvc.Limiter) *chi.Mux {
	t.Helper()

	payments := paymentsvc.NewService(paymentsvc.Dependencies{
		Purchases:    store,
		Entitlements: &fixedEntitlementStore{},
		Logger:       zap.NewNop(),
	}, paymentsvc.Config{DefaultCurrency: "USD"})

	confirmations := confsvc.NewService(confsvc.Dependencies{
		Reconciler: payments,
		Provider:   checker,
		Logger:     zap.NewNop(),
	}, webhookSecret)

	handler := NewBillingHandler(payments, confirmations, limiter)

	router := chi.NewRouter()
	router.Post("/billing/webhook", handler.Webhook)
	router.Post("/billing/purchases/{purchaseID}/verify", handler.Verify)
	router.Get("/billing/purchases/{purchaseID}", handler.Get)
	return router
}

func authed(r *http.Request, userID int64) *http.Request {
	return r.WithContext(authsvc.WithIdentity(r.Context(), authsvc.Identity{
		UserID: userID,
		SID:    "sid-1",
		Role:   "user",
	}))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	router := newBillingFixture(t, &fixedPurchaseStore{}, &fixedChecker{}, nil)

	body := []byte(`{"type":"payment.completed","purchase_id":7,"payment_id":"pay_abc"}`)
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(body))
	req.Header.Set("X-Provider-Signature", "sha256=deadbeef")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["code"] != "SIGNATURE_INVALID" {
		t.Fatalf("expected SIGNATURE_INVALID code, got %v", payload["code"])
	}
}

func TestWebhookAcknowledgesIgnoredEvents(t *testing.T) {
	router := newBillingFixture(t, &fixedPurchaseStore{}, &fixedChecker{}, nil)

	body := []byte(`{"type":"payment.created","purchase_id":7,"payment_id":"pay_abc"}`)
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(body))
	req.Header.Set("X-Provider-Signature", signBody(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for ignored event, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestVerifyRequiresAuth(t *testing.T) {
	router := newBillingFixture(t, &fixedPurchaseStore{}, &fixedChecker{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/billing/purchases/7/verify", bytes.NewReader([]byte(`{"session_token":"cs_1"}`)))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestVerifyPendingSession(t *testing.T) {
	store := &fixedPurchaseStore{record: pgrepo.PurchaseRecord{ID: 7, OwnerID: 3, Capability: "covers", Status: "pending"}}
	checker := &fixedChecker{status: provider.SessionStatus{SessionID: "cs_1", Status: "open"}}
	router := newBillingFixture(t, store, checker, nil)

	req := httptest.NewRequest(http.MethodPost, "/billing/purchases/7/verify", bytes.NewReader([]byte(`{"session_token":"cs_1"}`)))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authed(req, 3))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for pending payment, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["code"] != "PAYMENT_PENDING" {
		t.Fatalf("expected PAYMENT_PENDING code, got %v", payload["code"])
	}
}

func TestVerifyProviderUnavailable(t *testing.T) {
	store := &fixedPurchaseStore{record: pgrepo.PurchaseRecord{ID: 7, OwnerID: 3, Capability: "covers", Status: "pending"}}
	checker := &fixedChecker{err: provider.ErrUnavailable}
	router := newBillingFixture(t, store, checker, nil)

	req := httptest.NewRequest(http.MethodPost, "/billing/purchases/7/verify", bytes.NewReader([]byte(`{"session_token":"cs_1"}`)))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authed(req, 3))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestVerifyRateLimited(t *testing.T) {
	server := miniredis.RunT(t)
	client := redisrepo.NewClient(server.Addr(), "", 0)
	t.Cleanup(func() {
		_ = client.Close()
	})
	limiter := ratesvc.NewLimiter(redisrepo.NewRateRepo(client), 0, 1)

	store := &fixedPurchaseStore{record: pgrepo.PurchaseRecord{ID: 7, OwnerID: 3, Capability: "covers", Status: "pending"}}
	checker := &fixedChecker{status: provider.SessionStatus{SessionID: "cs_1", Status: "open"}}
	router := newBillingFixture(t, store, checker, limiter)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/billing/purchases/7/verify", bytes.NewReader([]byte(`{"session_token":"cs_1"}`)))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authed(req, 3))

		if i == 0 && rec.Code != http.StatusAccepted {
			t.Fatalf("first attempt should pass the limiter, got %d", rec.Code)
		}
		if i == 1 {
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("second attempt should be limited, got %d: %s", rec.Code, rec.Body.String())
			}
			var payload map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if payload["retry_after_sec"] == nil {
				t.Fatal("expected retry_after_sec in rate limit response")
			}
		}
	}
}

func TestGetHidesForeignPurchase(t *testing.T) {
	store := &fixedPurchaseStore{record: pgrepo.PurchaseRecord{ID: 7, OwnerID: 99, Status: "pending"}}
	router := newBillingFixture(t, store, &fixedChecker{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/billing/purchases/7", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authed(req, 3))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign purchase, got %d", rec.Code)
	}
}
