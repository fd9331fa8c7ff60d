package model

import (
	"time"

	"github.com/trusteero/getlost-portal-sub003/internal/domain/enums"
)

type FeatureEntitlement struct {
	BookID     int64                   `json:"book_id"`
	Capability enums.Capability        `json:"capability"`
	Status     enums.EntitlementStatus `json:"status"`
	UnlockedAt *time.Time              `json:"unlocked_at,omitempty"`
	PriceMinor int                     `json:"price_minor"`
}
