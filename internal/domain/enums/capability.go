package enums

type Capability string

const (
	// Book-scoped capabilities, unlocked per book.
	CapabilityCovers Capability = "covers"
	CapabilityReport Capability = "report"

	// User-scoped capability, accounted as consumable credits.
	CapabilityBookUpload Capability = "book_upload"
)

func (c Capability) Valid() bool {
	switch c {
	case CapabilityCovers, CapabilityReport, CapabilityBookUpload:
		return true
	default:
		return false
	}
}

// BookScoped reports whether the capability unlocks a single book.
// User-scoped capabilities carry no entitlement row; their unlock is
// implicit in ledger counts.
func (c Capability) BookScoped() bool {
	switch c {
	case CapabilityCovers, CapabilityReport:
		return true
	default:
		return false
	}
}
