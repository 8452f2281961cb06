package domain

// Default shipping rule in minor currency units: orders above 50.00 ship
// free, everything else pays a flat 5.99 fee.
const (
	DefaultFreeShippingThreshold int64 = 5000
	DefaultShippingFee           int64 = 599
)

// PricingConfig centralises the free-shipping threshold and the flat shipping
// fee. Cart totals and checkout quotes must share one instance so the two
// surfaces cannot drift apart.
type PricingConfig struct {
	FreeShippingThreshold int64
	ShippingFee           int64
}

// DefaultPricing returns the storefront's standard shipping rule.
func DefaultPricing() PricingConfig {
	return PricingConfig{
		FreeShippingThreshold: DefaultFreeShippingThreshold,
		ShippingFee:           DefaultShippingFee,
	}
}

// Totals computes derived cart totals over the valid lines only. Unresolved
// or malformed lines contribute nothing; an empty or fully unresolved cart
// owes no shipping.
func (p PricingConfig) Totals(lines []CartLine) CartTotals {
	var totals CartTotals
	for _, line := range lines {
		if !line.Valid() {
			continue
		}
		totals.Subtotal += line.UnitPrice * int64(line.Quantity)
		totals.ItemCount += line.Quantity
	}
	if totals.ItemCount > 0 && totals.Subtotal <= p.FreeShippingThreshold {
		totals.ShippingCost = p.ShippingFee
	}
	totals.Total = totals.Subtotal + totals.ShippingCost
	return totals
}
