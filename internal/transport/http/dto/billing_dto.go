package dto

import "time"

type PurchaseCreateRequest struct {
	BookID        *int64 `json:"book_id,omitempty"`
	Capability    string `json:"capability"`
	AmountMinor   int    `json:"amount_minor,omitempty"`
	Currency      string `json:"currency,omitempty"`
	PaymentMethod string `json:"payment_method"`
}

type PurchaseResponse struct {
	ID                int64      `json:"id"`
	BookID            *int64     `json:"book_id,omitempty"`
	Capability        string     `json:"capability"`
	AmountMinor       int        `json:"amount_minor"`
	Currency          string     `json:"currency"`
	PaymentMethod     string     `json:"payment_method"`
	ProviderReference *string    `json:"provider_reference,omitempty"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

type PurchaseListResponse struct {
	Purchases []PurchaseResponse `json:"purchases"`
}

type WebhookResponse struct {
	OK         bool `json:"ok"`
	Idempotent bool `json:"idempotent"`
}

type VerifyRequest struct {
	SessionToken string `json:"session_token"`
}

type VerifyResponse struct {
	Purchase    PurchaseResponse     `json:"purchase"`
	Entitlement *EntitlementResponse `json:"entitlement,omitempty"`
	Idempotent  bool                 `json:"idempotent"`
}

type EntitlementResponse struct {
	BookID     int64      `json:"book_id"`
	Capability string     `json:"capability"`
	Status     string     `json:"status"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
	PriceMinor int        `json:"price_minor"`
}

type CreditSummaryResponse struct {
	Capability    string `json:"capability"`
	Purchased     int    `json:"purchased"`
	Consumed      int    `json:"consumed"`
	Remaining     int    `json:"remaining"`
	HasPermission bool   `json:"has_permission"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
