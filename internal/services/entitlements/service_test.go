package entitlements

import (
	"context"
	"errors"
	"testing"
	"time"

	pgrepo "github.com/trusteero/getlost-portal-sub003/internal/repo/postgres"
)

type stubStore struct {
	record pgrepo.EntitlementRecord
	err    error
	calls  int
}

func (s *stubStore) Get(context.Context, int64, string) (pgrepo.EntitlementRecord, error) {
	s.calls++
	return s.record, s.err
}

func TestGetReturnsPurchased(t *testing.T) {
	unlockedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &stubStore{record: pgrepo.EntitlementRecord{
		BookID:     42,
		Capability: "covers",
		Status:     "purchased",
		UnlockedAt: &unlockedAt,
		PriceMinor: 14999,
	}}
	svc := NewService(store)

	entitlement, err := svc.Get(context.Background(), 42, "covers")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(entitlement.Status) != "purchased" {
		t.Fatalf("expected purchased status, got %q", entitlement.Status)
	}
	if entitlement.UnlockedAt == nil || !entitlement.UnlockedAt.Equal(unlockedAt) {
		t.Fatalf("unexpected unlocked_at: %v", entitlement.UnlockedAt)
	}
}

func TestGetDefaultsToLocked(t *testing.T) {
	store := &stubStore{record: pgrepo.EntitlementRecord{
		BookID:     42,
		Capability: "report",
		Status:     "locked",
	}}
	svc := NewService(store)

	entitlement, err := svc.Get(context.Background(), 42, "report")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(entitlement.Status) != "locked" {
		t.Fatalf("expected locked status, got %q", entitlement.Status)
	}
}

func TestGetRejectsUserScopedCapability(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store)

	if _, err := svc.Get(context.Background(), 42, "book_upload"); !errors.Is(err, ErrUnsupportedCapability) {
		t.Fatalf("expected ErrUnsupportedCapability, got %v", err)
	}
	if store.calls != 0 {
		t.Fatal("invalid capability must not hit the store")
	}
}

func TestGetRejectsInvalidBook(t *testing.T) {
	svc := NewService(&stubStore{})

	if _, err := svc.Get(context.Background(), 0, "covers"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
