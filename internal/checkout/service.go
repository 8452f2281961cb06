package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/greenraise/storefront/internal/domain"
)

var (
	// ErrInvalidInput indicates the caller supplied invalid input.
	ErrInvalidInput = errors.New("checkout service: invalid input")
)

// OrderQuote is the checkout-page view of the cart: the shared cart totals
// plus the coupon discount and the final amount due.
type OrderQuote struct {
	Totals     domain.CartTotals
	CouponCode string
	Discount   int64
	AmountDue  int64
}

// Deps wires the checkout service dependencies.
type Deps struct {
	Pricing domain.PricingConfig
	Logger  func(context.Context, string, map[string]any)
	Clock   func() time.Time
}

// Service computes order totals for the checkout page. It reuses the same
// pricing configuration as the cart so the two surfaces can never disagree on
// subtotal or shipping.
type Service struct {
	pricing domain.PricingConfig
	logger  func(context.Context, string, map[string]any)
	now     func() time.Time
}

// NewService constructs a checkout service, defaulting pricing, clock, and
// logger when absent.
func NewService(deps Deps) (*Service, error) {
	pricing := deps.Pricing
	if pricing.FreeShippingThreshold == 0 && pricing.ShippingFee == 0 {
		pricing = domain.DefaultPricing()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		pricing: pricing,
		logger:  logger,
		now:     func() time.Time { return clock().UTC() },
	}, nil
}

// OrderTotals computes the quote for the given cart lines. The coupon, when
// present, discounts the order total; the discount never exceeds the total
// and the amount due never goes negative.
func (s *Service) OrderTotals(ctx context.Context, lines []domain.CartLine, coupon *domain.CouponDiscount) (OrderQuote, error) {
	if s == nil {
		return OrderQuote{}, errors.New("checkout service: not initialised")
	}

	totals := s.pricing.Totals(lines)
	quote := OrderQuote{Totals: totals, AmountDue: totals.Total}
	if coupon == nil {
		return quote, nil
	}

	if err := validateCoupon(coupon); err != nil {
		return OrderQuote{}, err
	}

	var discount int64
	switch {
	case coupon.PercentOff > 0:
		discount = totals.Total * int64(coupon.PercentOff) / 100
	default:
		discount = coupon.AmountOff
	}
	if discount > totals.Total {
		discount = totals.Total
	}

	quote.CouponCode = coupon.Code
	quote.Discount = discount
	quote.AmountDue = totals.Total - discount
	s.logger(ctx, "checkout.quote_computed", map[string]any{
		"couponCode": coupon.Code,
		"discount":   discount,
		"amountDue":  quote.AmountDue,
	})
	return quote, nil
}

func validateCoupon(coupon *domain.CouponDiscount) error {
	if coupon.PercentOff < 0 || coupon.PercentOff > 100 {
		return fmt.Errorf("%w: coupon percentage must be between 0 and 100", ErrInvalidInput)
	}
	if coupon.AmountOff < 0 {
		return fmt.Errorf("%w: coupon amount must not be negative", ErrInvalidInput)
	}
	if coupon.PercentOff > 0 && coupon.AmountOff > 0 {
		return fmt.Errorf("%w: coupon must be percentage or fixed, not both", ErrInvalidInput)
	}
	return nil
}
