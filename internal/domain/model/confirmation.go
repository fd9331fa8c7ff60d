package model

// ConfirmedPayment is the normalized output of both confirmation
// channels (provider webhook and client-triggered status check).
type ConfirmedPayment struct {
	PurchaseID        int64  `json:"purchase_id"`
	ProviderReference string `json:"provider_reference"`
}
