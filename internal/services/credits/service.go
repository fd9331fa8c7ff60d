package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/trusteero/getlost-portal-sub003/internal/domain/enums"
	"github.com/trusteero/getlost-portal-sub003/internal/domain/model"
	"github.com/trusteero/getlost-portal-sub003/internal/domain/rules"
)

var (
	ErrValidation            = errors.New("validation error")
	ErrUnsupportedCapability = errors.New("unsupported capability")
)

type PurchaseCounter interface {
	CountCompletedUserScoped(ctx context.Context, ownerID int64, capability string) (int, error)
}

type ConsumptionCounter interface {
	CountByOwner(ctx context.Context, ownerID int64, capability string) (int, error)
}

// Service derives credit balances for user-scoped capabilities. The
// balance is a read model over two counts; no balance row exists and
// nothing here writes.
type Service struct {
	purchases    PurchaseCounter
	consumptions ConsumptionCounter
}

func NewService(purchases PurchaseCounter, consumptions ConsumptionCounter) *Service {
	return &Service{
		purchases:    purchases,
		consumptions: consumptions,
	}
}

func (s *Service) Summary(ctx context.Context, ownerID int64, capability string) (model.CreditSummary, error) {
	if ownerID <= 0 {
		return model.CreditSummary{}, ErrValidation
	}
	normalized := enums.Capability(strings.ToLower(strings.TrimSpace(capability)))
	if !normalized.Valid() || normalized.BookScoped() {
		return model.CreditSummary{}, ErrUnsupportedCapability
	}
	if s.purchases == nil || s.consumptions == nil {
		return model.CreditSummary{}, fmt.Errorf("credit counters are not configured")
	}

	purchased, err := s.purchases.CountCompletedUserScoped(ctx, ownerID, string(normalized))
	if err != nil {
		return model.CreditSummary{}, err
	}
	consumed, err := s.consumptions.CountByOwner(ctx, ownerID, string(normalized))
	if err != nil {
		return model.CreditSummary{}, err
	}

	remaining := rules.RemainingCredits(purchased, consumed)
	return model.CreditSummary{
		Purchased:     purchased,
		Consumed:      consumed,
		Remaining:     remaining,
		HasPermission: rules.HasCreditPermission(remaining),
	}, nil
}
