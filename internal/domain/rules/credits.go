package rules

// RemainingCredits computes the spendable balance for a user-scoped
// capability. Consumption can temporarily exceed purchases when units
// are granted out-of-band; the balance never goes negative.
func RemainingCredits(purchased, consumed int) int {
	if purchased < 0 {
		purchased = 0
	}
	if consumed < 0 {
		consumed = 0
	}
	remaining := purchased - consumed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func HasCreditPermission(remaining int) bool {
	return remaining > 0
}
