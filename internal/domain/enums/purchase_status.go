package enums

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
	PurchaseStatusRefunded  PurchaseStatus = "refunded"
)

// Terminal reports whether the status admits no further transition
// from this core. Refunds are an administrative action elsewhere.
func (s PurchaseStatus) Terminal() bool {
	switch s {
	case PurchaseStatusCompleted, PurchaseStatusFailed, PurchaseStatusRefunded:
		return true
	default:
		return false
	}
}

type EntitlementStatus string

const (
	EntitlementStatusLocked    EntitlementStatus = "locked"
	EntitlementStatusPurchased EntitlementStatus = "purchased"
)
