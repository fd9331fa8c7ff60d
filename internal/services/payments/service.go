package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/trusteero/getlost-portal-sub003/internal/domain/enums"
	"github.com/trusteero/getlost-portal-sub003/internal/domain/model"
	"github.com/trusteero/getlost-portal-sub003/internal/pkg/validate"
	pgrepo "github.com/trusteero/getlost-portal-sub003/internal/repo/postgres"
)

var (
	ErrValidation            = errors.New("validation error")
	ErrUnsupportedCapability = errors.New("unsupported capability")
	ErrPurchaseNotFound      = errors.New("purchase not found")
	ErrStaleConfirmation     = errors.New("stale payment confirmation")
)

const (
	ActionPurchaseCompleted = "PURCHASE_COMPLETED"
	ActionPurchaseFailed    = "PURCHASE_FAILED"
)

type PurchaseStore interface {
	CreatePending(ctx context.Context, ownerID int64, bookID *int64, capability string, amountMinor int, currency, paymentMethod string) (pgrepo.PurchaseRecord, error)
	FindByID(ctx context.Context, purchaseID int64) (pgrepo.PurchaseRecord, error)
	ListByOwner(ctx context.Context, ownerID int64, capability string) ([]pgrepo.PurchaseRecord, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, purchaseID int64, providerReference string, now time.Time) (pgrepo.PurchaseRecord, bool, error)
	MarkFailed(ctx context.Context, tx pgx.Tx, purchaseID int64, now time.Time) (pgrepo.PurchaseRecord, bool, error)
}

type EntitlementStore interface {
	Get(ctx context.Context, bookID int64, capability string) (pgrepo.EntitlementRecord, error)
	UpsertPurchased(ctx context.Context, tx pgx.Tx, bookID int64, capability string, unlockedAt time.Time, priceMinor int) (pgrepo.EntitlementRecord, error)
}

type AuditTrail interface {
	Record(ctx context.Context, ownerID int64, action string, props map[string]any)
}

type Dependencies struct {
	Pool         *pgxpool.Pool
	Purchases    PurchaseStore
	Entitlements EntitlementStore
	Logger       *zap.Logger
}

type Config struct {
	DefaultCurrency string
}

// Service owns every mutation of the purchase ledger and of feature
// entitlements. Both confirmation channels funnel into Complete, which
// makes the whole pipeline safe under at-least-once delivery.
type Service struct {
	pool         *pgxpool.Pool
	purchases    PurchaseStore
	entitlements EntitlementStore
	audit        AuditTrail
	logger       *zap.Logger
	cfg          Config
	runTx        func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
	now          func() time.Time
}

type CreateInput struct {
	BookID        *int64
	Capability    string
	AmountMinor   int
	Currency      string
	PaymentMethod string
}

type CompleteResult struct {
	Purchase         model.Purchase
	Entitlement      *model.FeatureEntitlement
	AlreadyCompleted bool
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		pool:         deps.Pool,
		purchases:    deps.Purchases,
		entitlements: deps.Entitlements,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
	s.runTx = func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
		return pgrepo.WithTx(ctx, s.pool, fn)
	}
	return s
}

func (s *Service) AttachAudit(audit AuditTrail) {
	s.audit = audit
}

// Create records a pending purchase on behalf of the checkout flow. No
// entitlement changes happen here; the purchase stays inert until a
// confirmation arrives.
func (s *Service) Create(ctx context.Context, ownerID int64, in CreateInput) (model.Purchase, error) {
	if ownerID <= 0 {
		return model.Purchase{}, ErrValidation
	}
	if s.purchases == nil {
		return model.Purchase{}, fmt.Errorf("purchase store is nil")
	}

	capability, err := normalizeCapability(in.Capability)
	if err != nil {
		return model.Purchase{}, err
	}
	if capability.BookScoped() {
		if in.BookID == nil || *in.BookID <= 0 {
			return model.Purchase{}, ErrValidation
		}
	} else if in.BookID != nil {
		return model.Purchase{}, ErrValidation
	}
	if in.AmountMinor < 0 {
		return model.Purchase{}, ErrValidation
	}

	amount := in.AmountMinor
	if amount == 0 {
		amount = defaultAmountForCapability(capability)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	if !validate.Required(in.PaymentMethod) {
		return model.Purchase{}, ErrValidation
	}
	paymentMethod := strings.ToLower(strings.TrimSpace(in.PaymentMethod))

	record, err := s.purchases.CreatePending(ctx, ownerID, in.BookID, string(capability), amount, currency, paymentMethod)
	if err != nil {
		return model.Purchase{}, err
	}

	return toPurchase(record), nil
}

// Complete applies a confirmed payment to the ledger and, for
// book-scoped purchases, to the entitlement store. Ledger update and
// entitlement upsert share one transaction; the status compare-and-set
// inside MarkCompleted serializes racing callers, so invoking this any
// number of times yields exactly one transition.
func (s *Service) Complete(ctx context.Context, confirmed model.ConfirmedPayment) (CompleteResult, error) {
	if confirmed.PurchaseID <= 0 || strings.TrimSpace(confirmed.ProviderReference) == "" {
		return CompleteResult{}, ErrValidation
	}
	if s.purchases == nil || s.entitlements == nil {
		return CompleteResult{}, fmt.Errorf("payments dependencies are not configured")
	}

	var result CompleteResult
	err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		record, changed, err := s.purchases.MarkCompleted(txCtx, tx, confirmed.PurchaseID, strings.TrimSpace(confirmed.ProviderReference), s.now().UTC())
		if err != nil {
			if errors.Is(err, pgrepo.ErrPurchaseNotFound) {
				return ErrPurchaseNotFound
			}
			return err
		}

		switch {
		case changed:
			result.Purchase = toPurchase(record)
			if record.BookID != nil {
				unlockedAt := s.now().UTC()
				if record.CompletedAt != nil {
					unlockedAt = record.CompletedAt.UTC()
				}
				entitlement, err := s.entitlements.UpsertPurchased(txCtx, tx, *record.BookID, record.Capability, unlockedAt, record.AmountMinor)
				if err != nil {
					return err
				}
				mapped := toEntitlement(entitlement)
				result.Entitlement = &mapped
			}
		case record.Status == string(enums.PurchaseStatusCompleted):
			result.Purchase = toPurchase(record)
			result.AlreadyCompleted = true
		default:
			return ErrStaleConfirmation
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStaleConfirmation) {
			s.logger.Warn("confirmation for terminally failed purchase ignored",
				zap.Int64("purchase_id", confirmed.PurchaseID),
				zap.String("provider_reference", confirmed.ProviderReference),
			)
		}
		return CompleteResult{}, err
	}

	if result.AlreadyCompleted && result.Purchase.BookID != nil {
		entitlement, err := s.entitlements.Get(ctx, *result.Purchase.BookID, string(result.Purchase.Capability))
		if err != nil {
			return CompleteResult{}, err
		}
		mapped := toEntitlement(entitlement)
		result.Entitlement = &mapped
	}

	if !result.AlreadyCompleted && s.audit != nil {
		s.audit.Record(ctx, result.Purchase.OwnerID, ActionPurchaseCompleted, map[string]any{
			"purchase_id":        result.Purchase.ID,
			"capability":         string(result.Purchase.Capability),
			"provider_reference": confirmed.ProviderReference,
			"amount_minor":       result.Purchase.AmountMinor,
		})
	}

	return result, nil
}

// Fail transitions a pending purchase to failed. Completion always
// wins: a failure signal arriving after a successful completion is a
// no-op, since failure usually travels the slower channel.
func (s *Service) Fail(ctx context.Context, purchaseID int64) error {
	if purchaseID <= 0 {
		return ErrValidation
	}
	if s.purchases == nil {
		return fmt.Errorf("purchase store is nil")
	}

	var (
		failedRecord pgrepo.PurchaseRecord
		transitioned bool
	)
	err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		record, changed, err := s.purchases.MarkFailed(txCtx, tx, purchaseID, s.now().UTC())
		if err != nil {
			if errors.Is(err, pgrepo.ErrPurchaseNotFound) {
				return ErrPurchaseNotFound
			}
			return err
		}
		failedRecord = record
		transitioned = changed
		return nil
	})
	if err != nil {
		return err
	}

	if !transitioned {
		if failedRecord.Status == string(enums.PurchaseStatusCompleted) {
			s.logger.Debug("failure signal ignored for completed purchase",
				zap.Int64("purchase_id", purchaseID),
			)
		}
		return nil
	}

	if s.audit != nil {
		s.audit.Record(ctx, failedRecord.OwnerID, ActionPurchaseFailed, map[string]any{
			"purchase_id": failedRecord.ID,
			"capability":  failedRecord.Capability,
		})
	}

	return nil
}

// Get returns the owner's purchase. Ownership mismatches read as not
// found so purchase ids cannot be probed across accounts.
func (s *Service) Get(ctx context.Context, ownerID, purchaseID int64) (model.Purchase, error) {
	if ownerID <= 0 || purchaseID <= 0 {
		return model.Purchase{}, ErrValidation
	}
	if s.purchases == nil {
		return model.Purchase{}, fmt.Errorf("purchase store is nil")
	}

	record, err := s.purchases.FindByID(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrPurchaseNotFound) {
			return model.Purchase{}, ErrPurchaseNotFound
		}
		return model.Purchase{}, err
	}
	if record.OwnerID != ownerID {
		return model.Purchase{}, ErrPurchaseNotFound
	}

	return toPurchase(record), nil
}

func (s *Service) List(ctx context.Context, ownerID int64, capability string) ([]model.Purchase, error) {
	if ownerID <= 0 {
		return nil, ErrValidation
	}
	if s.purchases == nil {
		return nil, fmt.Errorf("purchase store is nil")
	}

	filter := ""
	if strings.TrimSpace(capability) != "" {
		normalized, err := normalizeCapability(capability)
		if err != nil {
			return nil, err
		}
		filter = string(normalized)
	}

	records, err := s.purchases.ListByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, err
	}

	purchases := make([]model.Purchase, 0, len(records))
	for _, record := range records {
		purchases = append(purchases, toPurchase(record))
	}
	return purchases, nil
}

func normalizeCapability(raw string) (enums.Capability, error) {
	capability := enums.Capability(strings.ToLower(strings.TrimSpace(raw)))
	if !capability.Valid() {
		return "", ErrUnsupportedCapability
	}
	return capability, nil
}

func defaultAmountForCapability(capability enums.Capability) int {
	switch capability {
	case enums.CapabilityCovers:
		return 14999
	case enums.CapabilityReport:
		return 9999
	case enums.CapabilityBookUpload:
		return 4999
	default:
		return 0
	}
}

func toPurchase(record pgrepo.PurchaseRecord) model.Purchase {
	return model.Purchase{
		ID:                record.ID,
		OwnerID:           record.OwnerID,
		BookID:            record.BookID,
		Capability:        enums.Capability(record.Capability),
		AmountMinor:       record.AmountMinor,
		Currency:          record.Currency,
		PaymentMethod:     record.PaymentMethod,
		ProviderReference: record.ProviderReference,
		Status:            enums.PurchaseStatus(record.Status),
		CreatedAt:         record.CreatedAt,
		CompletedAt:       record.CompletedAt,
		UpdatedAt:         record.UpdatedAt,
	}
}

func toEntitlement(record pgrepo.EntitlementRecord) model.FeatureEntitlement {
	return model.FeatureEntitlement{
		BookID:     record.BookID,
		Capability: enums.Capability(record.Capability),
		Status:     enums.EntitlementStatus(record.Status),
		UnlockedAt: record.UnlockedAt,
		PriceMinor: record.PriceMinor,
	}
}
