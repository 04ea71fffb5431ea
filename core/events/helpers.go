package events

import "math/big"

// FormatAmount renders a possibly-nil big.Int amount for event attributes.
func FormatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
