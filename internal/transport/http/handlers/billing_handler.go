package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/trusteero/getlost-portal-sub003/internal/domain/model"
	authsvc "github.com/trusteero/getlost-portal-sub003/internal/services/auth"
	confsvc "github.com/trusteero/getlost-portal-sub003/internal/services/confirmations"
	paymentsvc "github.com/trusteero/getlost-portal-sub003/internal/services/payments"
	ratesvc "github.com/trusteero/getlost-portal-sub003/internal/services/rate"
	"github.com/trusteero/getlost-portal-sub003/internal/transport/http/dto"
	httperrors "github.com/trusteero/getlost-portal-sub003/internal/transport/http/errors"
)

const maxWebhookBodyBytes = 1 << 20

type BillingHandler struct {
	payments      *paymentsvc.Service
	confirmations *confsvc.Service
	limiter       *ratesvc.Limiter
}

func NewBillingHandler(payments *paymentsvc.Service, confirmations *confsvc.Service, limiter *ratesvc.Limiter) *BillingHandler {
	return &BillingHandler{
		payments:      payments,
		confirmations: confirmations,
		limiter:       limiter,
	}
}

func (h *BillingHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.payments == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	var req dto.PurchaseCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	purchase, err := h.payments.Create(r.Context(), identity.UserID, paymentsvc.CreateInput{
		BookID:        req.BookID,
		Capability:    req.Capability,
		AmountMinor:   req.AmountMinor,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		switch {
		case errors.Is(err, paymentsvc.ErrValidation), errors.Is(err, paymentsvc.ErrUnsupportedCapability):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid purchase create payload")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to create purchase")
		}
		return
	}

	httperrors.Write(w, http.StatusCreated, toPurchaseResponse(purchase))
}

// Webhook is the provider push channel. Duplicates and stale events
// answer 200 so the provider stops redelivering; only a bad signature
// or an unknown purchase asks for another attempt.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.confirmations == nil {
		writeInternal(w, "CONFIRMATIONS_SERVICE_UNAVAILABLE", "confirmations service is unavailable")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "failed to read request body")
		return
	}

	result, err := h.confirmations.HandleProviderEvent(r.Context(), body, r.Header.Get("X-Provider-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, confsvc.ErrSignatureInvalid):
			writeUnauthorized(w, "SIGNATURE_INVALID", "webhook signature verification failed")
		case errors.Is(err, confsvc.ErrIgnoredEvent):
			httperrors.Write(w, http.StatusOK, dto.WebhookResponse{OK: true})
		case errors.Is(err, confsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid webhook payload")
		case errors.Is(err, paymentsvc.ErrPurchaseNotFound):
			writeNotFound(w, "PURCHASE_NOT_FOUND", "purchase not found")
		case errors.Is(err, paymentsvc.ErrStaleConfirmation):
			httperrors.Write(w, http.StatusOK, dto.WebhookResponse{OK: true, Idempotent: true})
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to process webhook")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.WebhookResponse{OK: true, Idempotent: result.AlreadyCompleted})
}

// Verify is the client-triggered fallback channel for when the webhook
// is delayed or lost. It is owner-scoped and rate-limited; the
// verification itself is idempotent, so the limit only protects the
// provider API.
func (h *BillingHandler) Verify(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.payments == nil || h.confirmations == nil {
		writeInternal(w, "CONFIRMATIONS_SERVICE_UNAVAILABLE", "confirmations service is unavailable")
		return
	}

	purchaseID, err := purchaseIDParam(r)
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid purchase id")
		return
	}

	var req dto.VerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	if h.limiter != nil {
		retryAfter, allowed, err := h.limiter.AllowVerify(r.Context(), identity.UserID)
		if err != nil {
			writeInternal(w, "INTERNAL_ERROR", "failed to check rate limit")
			return
		}
		if !allowed {
			httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
				Code:          "RATE_LIMITED",
				Message:       "too many verification attempts",
				RetryAfterSec: retryAfter,
			})
			return
		}
	}

	// Ownership check before touching the provider.
	if _, err := h.payments.Get(r.Context(), identity.UserID, purchaseID); err != nil {
		switch {
		case errors.Is(err, paymentsvc.ErrPurchaseNotFound):
			writeNotFound(w, "PURCHASE_NOT_FOUND", "purchase not found")
		case errors.Is(err, paymentsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid verify request")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to load purchase")
		}
		return
	}

	result, err := h.confirmations.VerifySessionFallback(r.Context(), req.SessionToken, purchaseID)
	if err != nil {
		switch {
		case errors.Is(err, confsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid verify request")
		case errors.Is(err, confsvc.ErrNotYetConfirmed):
			httperrors.Write(w, http.StatusAccepted, httperrors.APIError{
				Code:    "PAYMENT_PENDING",
				Message: "payment is not confirmed yet, retry later",
			})
		case errors.Is(err, confsvc.ErrPaymentFailed):
			httperrors.Write(w, http.StatusConflict, httperrors.APIError{
				Code:    "PAYMENT_FAILED",
				Message: "payment did not complete",
			})
		case errors.Is(err, confsvc.ErrProviderUnavailable):
			httperrors.Write(w, http.StatusServiceUnavailable, httperrors.APIError{
				Code:    "PROVIDER_UNAVAILABLE",
				Message: "payment provider is unavailable, retry later",
			})
		case errors.Is(err, paymentsvc.ErrPurchaseNotFound):
			writeNotFound(w, "PURCHASE_NOT_FOUND", "purchase not found")
		case errors.Is(err, paymentsvc.ErrStaleConfirmation):
			httperrors.Write(w, http.StatusConflict, httperrors.APIError{
				Code:    "PAYMENT_FAILED",
				Message: "purchase already resolved as failed",
			})
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to verify payment")
		}
		return
	}

	response := dto.VerifyResponse{
		Purchase:   toPurchaseResponse(result.Purchase),
		Idempotent: result.AlreadyCompleted,
	}
	if result.Entitlement != nil {
		mapped := toEntitlementResponse(*result.Entitlement)
		response.Entitlement = &mapped
	}

	httperrors.Write(w, http.StatusOK, response)
}

func (h *BillingHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.payments == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	purchaseID, err := purchaseIDParam(r)
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid purchase id")
		return
	}

	purchase, err := h.payments.Get(r.Context(), identity.UserID, purchaseID)
	if err != nil {
		switch {
		case errors.Is(err, paymentsvc.ErrPurchaseNotFound):
			writeNotFound(w, "PURCHASE_NOT_FOUND", "purchase not found")
		case errors.Is(err, paymentsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid purchase request")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to load purchase")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, toPurchaseResponse(purchase))
}

func (h *BillingHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.payments == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	purchases, err := h.payments.List(r.Context(), identity.UserID, r.URL.Query().Get("capability"))
	if err != nil {
		switch {
		case errors.Is(err, paymentsvc.ErrValidation), errors.Is(err, paymentsvc.ErrUnsupportedCapability):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid purchase list request")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to list purchases")
		}
		return
	}

	response := dto.PurchaseListResponse{Purchases: make([]dto.PurchaseResponse, 0, len(purchases))}
	for _, purchase := range purchases {
		response.Purchases = append(response.Purchases, toPurchaseResponse(purchase))
	}

	httperrors.Write(w, http.StatusOK, response)
}

func purchaseIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "purchaseID")
	purchaseID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || purchaseID <= 0 {
		return 0, errors.New("invalid purchase id")
	}
	return purchaseID, nil
}

func toPurchaseResponse(purchase model.Purchase) dto.PurchaseResponse {
	return dto.PurchaseResponse{
		ID:                purchase.ID,
		BookID:            purchase.BookID,
		Capability:        string(purchase.Capability),
		AmountMinor:       purchase.AmountMinor,
		Currency:          purchase.Currency,
		PaymentMethod:     purchase.PaymentMethod,
		ProviderReference: purchase.ProviderReference,
		Status:            string(purchase.Status),
		CreatedAt:         purchase.CreatedAt,
		CompletedAt:       purchase.CompletedAt,
	}
}

func toEntitlementResponse(entitlement model.FeatureEntitlement) dto.EntitlementResponse {
	return dto.EntitlementResponse{
		BookID:     entitlement.BookID,
		Capability: string(entitlement.Capability),
		Status:     string(entitlement.Status),
		UnlockedAt: entitlement.UnlockedAt,
		PriceMinor: entitlement.PriceMinor,
	}
}
