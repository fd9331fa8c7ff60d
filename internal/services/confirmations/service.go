package confirmations

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trusteero/getlost-portal-sub003/internal/domain/model"
	"github.com/trusteero/getlost-portal-sub003/internal/infra/provider"
	"github.com/trusteero/getlost-portal-sub003/internal/services/payments"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrSignatureInvalid    = errors.New("webhook signature invalid")
	ErrIgnoredEvent        = errors.New("webhook event ignored")
	ErrNotYetConfirmed     = errors.New("payment not yet confirmed")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

const eventPaymentCompleted = "payment.completed"

// Reconciler is the single sink both confirmation channels feed into.
type Reconciler interface {
	Complete(ctx context.Context, confirmed model.ConfirmedPayment) (payments.CompleteResult, error)
	Fail(ctx context.Context, purchaseID int64) error
}

// StatusChecker is the synchronous pull side of the provider.
type StatusChecker interface {
	SessionStatus(ctx context.Context, sessionToken string) (provider.SessionStatus, error)
}

// Archive keeps verified webhook bodies for later dispute lookups.
type Archive interface {
	Store(ctx context.Context, key string, payload []byte) error
}

type Dependencies struct {
	Reconciler Reconciler
	Provider   StatusChecker
	Logger     *zap.Logger
}

// Service normalizes provider push events and client-triggered status
// checks into ConfirmedPayment values and hands them to the reconciler.
// It never mutates the ledger itself.
type Service struct {
	reconciler    Reconciler
	provider      StatusChecker
	archive       Archive
	logger        *zap.Logger
	webhookSecret []byte
	now           func() time.Time
}

type providerEvent struct {
	Type       string `json:"type"`
	PurchaseID int64  `json:"purchase_id"`
	PaymentID  string `json:"payment_id"`
}

func NewService(deps Dependencies, webhookSecret string) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		reconciler:    deps.Reconciler,
		provider:      deps.Provider,
		logger:        logger,
		webhookSecret: []byte(strings.TrimSpace(webhookSecret)),
		now:           time.Now,
	}
}

func (s *Service) AttachProvider(checker StatusChecker) {
	s.provider = checker
}

func (s *Service) AttachArchive(archive Archive) {
	s.archive = archive
}

// HandleProviderEvent processes one webhook delivery. The signature is
// an HMAC-SHA256 of the raw body; verification fails closed when no
// secret is configured. Events other than payment.completed are
// acknowledged but ignored so the provider stops retrying them.
func (s *Service) HandleProviderEvent(ctx context.Context, rawBody []byte, signatureHeader string) (payments.CompleteResult, error) {
	if len(rawBody) == 0 {
		return payments.CompleteResult{}, ErrValidation
	}
	if err := s.verifySignature(rawBody, signatureHeader); err != nil {
		return payments.CompleteResult{}, err
	}

	var event providerEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return payments.CompleteResult{}, fmt.Errorf("%w: malformed event body", ErrValidation)
	}

	s.archivePayload(ctx, rawBody)

	if event.Type != eventPaymentCompleted {
		s.logger.Debug("ignoring provider event", zap.String("type", event.Type))
		return payments.CompleteResult{}, ErrIgnoredEvent
	}
	if event.PurchaseID <= 0 || strings.TrimSpace(event.PaymentID) == "" {
		return payments.CompleteResult{}, fmt.Errorf("%w: incomplete event payload", ErrValidation)
	}

	result, err := s.reconciler.Complete(ctx, model.ConfirmedPayment{
		PurchaseID:        event.PurchaseID,
		ProviderReference: strings.TrimSpace(event.PaymentID),
	})
	if err != nil {
		return payments.CompleteResult{}, err
	}

	return result, nil
}

// VerifySessionFallback is the client-triggered pull channel. It asks
// the provider for the session state and, when the session is paid,
// routes the confirmation through the same reconciler as the webhook.
func (s *Service) VerifySessionFallback(ctx context.Context, sessionToken string, purchaseID int64) (payments.CompleteResult, error) {
	sessionToken = strings.TrimSpace(sessionToken)
	if sessionToken == "" || purchaseID <= 0 {
		return payments.CompleteResult{}, ErrValidation
	}
	if s.provider == nil {
		return payments.CompleteResult{}, ErrProviderUnavailable
	}

	status, err := s.provider.SessionStatus(ctx, sessionToken)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrUnavailable):
			return payments.CompleteResult{}, ErrProviderUnavailable
		case errors.Is(err, provider.ErrSessionNotFound):
			return payments.CompleteResult{}, fmt.Errorf("%w: unknown checkout session", ErrValidation)
		default:
			return payments.CompleteResult{}, err
		}
	}

	switch strings.ToLower(strings.TrimSpace(status.Status)) {
	case "paid", "complete", "completed":
		reference := strings.TrimSpace(status.PaymentID)
		if reference == "" {
			reference = status.SessionID
		}
		return s.reconciler.Complete(ctx, model.ConfirmedPayment{
			PurchaseID:        purchaseID,
			ProviderReference: reference,
		})
	case "failed", "canceled", "cancelled", "expired":
		if err := s.reconciler.Fail(ctx, purchaseID); err != nil {
			s.logger.Warn("failed to record payment failure",
				zap.Int64("purchase_id", purchaseID),
				zap.Error(err),
			)
		}
		return payments.CompleteResult{}, ErrPaymentFailed
	default:
		return payments.CompleteResult{}, ErrNotYetConfirmed
	}
}

func (s *Service) verifySignature(rawBody []byte, signatureHeader string) error {
	if len(s.webhookSecret) == 0 {
		return ErrSignatureInvalid
	}

	signatureHeader = strings.TrimSpace(signatureHeader)
	signatureHeader = strings.TrimPrefix(signatureHeader, "sha256=")
	provided, err := hex.DecodeString(signatureHeader)
	if err != nil || len(provided) == 0 {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, s.webhookSecret)
	mac.Write(rawBody)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrSignatureInvalid
	}

	return nil
}

func (s *Service) archivePayload(ctx context.Context, rawBody []byte) {
	if s.archive == nil {
		return
	}

	key := fmt.Sprintf("webhooks/%s/%s.json", s.now().UTC().Format("2006-01-02"), uuid.NewString())
	if err := s.archive.Store(ctx, key, rawBody); err != nil {
		s.logger.Warn("failed to archive webhook payload", zap.Error(err))
	}
}
