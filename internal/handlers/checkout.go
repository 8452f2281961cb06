package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greenraise/storefront/internal/checkout"
	domain "github.com/greenraise/storefront/internal/domain"
	"github.com/greenraise/storefront/internal/platform/httpx"
)

// CheckoutHandlers exposes the order quote endpoint.
type CheckoutHandlers struct {
	sessions *SessionManager
	service  *checkout.Service
}

// NewCheckoutHandlers constructs the checkout handler set.
func NewCheckoutHandlers(sessions *SessionManager, service *checkout.Service) (*CheckoutHandlers, error) {
	if sessions == nil {
		return nil, errors.New("handlers: session manager is required")
	}
	if service == nil {
		return nil, errors.New("handlers: checkout service is required")
	}
	return &CheckoutHandlers{sessions: sessions, service: service}, nil
}

// Routes registers the checkout endpoints on the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	r.Post("/quote", h.quote)
}

type couponRequest struct {
	Code       string `json:"code"`
	PercentOff int    `json:"percentOff"`
	AmountOff  int64  `json:"amountOff"`
}

type quoteRequest struct {
	Coupon *couponRequest `json:"coupon"`
}

type quoteResponse struct {
	Totals     cartTotalsResponse `json:"totals"`
	CouponCode string             `json:"couponCode,omitempty"`
	Discount   int64              `json:"discount"`
	AmountDue  int64              `json:"amountDue"`
}

func (h *CheckoutHandlers) quote(w http.ResponseWriter, r *http.Request) {
	store, err := h.sessions.Store(r.Context())
	if err != nil {
		writeCartError(r.Context(), w, err)
		return
	}

	var req quoteRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	}

	var coupon *domain.CouponDiscount
	if req.Coupon != nil {
		coupon = &domain.CouponDiscount{
			Code:       req.Coupon.Code,
			PercentOff: req.Coupon.PercentOff,
			AmountOff:  req.Coupon.AmountOff,
		}
	}

	quote, err := h.service.OrderTotals(r.Context(), store.Lines(), coupon)
	if err != nil {
		if errors.Is(err, checkout.ErrInvalidInput) {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", userMessage(err), http.StatusBadRequest))
			return
		}
		httpx.WriteError(r.Context(), w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
		return
	}

	httpx.WriteJSON(r.Context(), w, http.StatusOK, quoteResponse{
		Totals: cartTotalsResponse{
			Subtotal:     quote.Totals.Subtotal,
			ShippingCost: quote.Totals.ShippingCost,
			Total:        quote.Totals.Total,
			ItemCount:    quote.Totals.ItemCount,
		},
		CouponCode: quote.CouponCode,
		Discount:   quote.Discount,
		AmountDue:  quote.AmountDue,
	})
}
