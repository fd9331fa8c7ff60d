package model

import (
	"time"

	"github.com/trusteero/getlost-portal-sub003/internal/domain/enums"
)

type Purchase struct {
	ID                int64                `json:"id"`
	OwnerID           int64                `json:"owner_id"`
	BookID            *int64               `json:"book_id,omitempty"`
	Capability        enums.Capability     `json:"capability"`
	AmountMinor       int                  `json:"amount_minor"`
	Currency          string               `json:"currency"`
	PaymentMethod     string               `json:"payment_method"`
	ProviderReference *string              `json:"provider_reference,omitempty"`
	Status            enums.PurchaseStatus `json:"status"`
	CreatedAt         time.Time            `json:"created_at"`
	CompletedAt       *time.Time           `json:"completed_at,omitempty"`
	UpdatedAt         time.Time            `json:"updated_at"`
}
