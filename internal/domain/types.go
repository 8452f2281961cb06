package domain

// CartLineCore is the persistable shape of a cart line: a product reference
// and the desired quantity. Both cart backends (anonymous local storage and
// the remote cart service) hold only this shape; everything else on a line is
// display cache.
type CartLineCore struct {
	ProductID string
	Quantity  int
}

// CartLine joins the core line with denormalised display fields resolved from
// the product catalog. Display data is a cache, never authoritative; Resolved
// reports whether the catalog lookup succeeded for this line. Lines that fail
// resolution stay visible but never contribute to totals.
type CartLine struct {
	CartLineCore
	Name      string
	UnitPrice int64
	ImageURL  string
	Resolved  bool
}

// Valid reports whether the line may contribute to totals: a line whose price
// could not be confirmed is never charged.
func (l CartLine) Valid() bool {
	return l.ProductID != "" && l.Resolved && l.Name != "" && l.UnitPrice > 0 && l.Quantity > 0
}

// ProductSnapshot is a read-only catalog cache entry keyed by product id.
// Entries live for the process lifetime; catalog data changes infrequently
// relative to a session.
type ProductSnapshot struct {
	ProductID string
	Name      string
	UnitPrice int64
	ImageURL  string
}

// CouponDiscount describes a discount applied on top of computed order
// totals, never inside them. Exactly one of PercentOff or AmountOff is set.
type CouponDiscount struct {
	Code       string
	PercentOff int
	AmountOff  int64
}

// CartTotals summarises derived totals for a cart. Totals are recomputed on
// every read from the current line set and never stored.
type CartTotals struct {
	Subtotal     int64
	ShippingCost int64
	Total        int64
	ItemCount    int
}
