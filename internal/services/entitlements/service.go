package entitlements

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/trusteero/getlost-portal-sub003/internal/domain/enums"
	"github.com/trusteero/getlost-portal-sub003/internal/domain/model"
	pgrepo "github.com/trusteero/getlost-portal-sub003/internal/repo/postgres"
)

var (
	ErrValidation            = errors.New("validation error")
	ErrUnsupportedCapability = errors.New("unsupported capability")
)

type Store interface {
	Get(ctx context.Context, bookID int64, capability string) (pgrepo.EntitlementRecord, error)
}

// Service answers "is this capability unlocked for this book". It is a
// pure read surface; the payments reconciler owns all writes.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get returns the entitlement for (book, capability). An absent row
// reads as locked, never as an error.
func (s *Service) Get(ctx context.Context, bookID int64, capability string) (model.FeatureEntitlement, error) {
	if bookID <= 0 {
		return model.FeatureEntitlement{}, ErrValidation
	}
	normalized := enums.Capability(strings.ToLower(strings.TrimSpace(capability)))
	if !normalized.Valid() || !normalized.BookScoped() {
		return model.FeatureEntitlement{}, ErrUnsupportedCapability
	}
	if s.store == nil {
		return model.FeatureEntitlement{}, fmt.Errorf("entitlement store is nil")
	}

	record, err := s.store.Get(ctx, bookID, string(normalized))
	if err != nil {
		return model.FeatureEntitlement{}, err
	}

	return model.FeatureEntitlement{
		BookID:     record.BookID,
		Capability: enums.Capability(record.Capability),
		Status:     enums.EntitlementStatus(record.Status),
		UnlockedAt: record.UnlockedAt,
		PriceMinor: record.PriceMinor,
	}, nil
}
