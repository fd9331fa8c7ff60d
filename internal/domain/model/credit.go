package model

// CreditSummary is a derived read model. It is recomputed from the
// purchase ledger on every call and never stored.
type CreditSummary struct {
	Purchased     int  `json:"purchased"`
	Consumed      int  `json:"consumed"`
	Remaining     int  `json:"remaining"`
	HasPermission bool `json:"has_permission"`
}
