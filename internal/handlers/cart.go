package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/greenraise/storefront/internal/cart"
	"github.com/greenraise/storefront/internal/gateways"
	"github.com/greenraise/storefront/internal/platform/auth"
	"github.com/greenraise/storefront/internal/platform/httpx"
)

// CartHandlers exposes the cart store engine over HTTP.
type CartHandlers struct {
	sessions *SessionManager
}

// NewCartHandlers constructs the cart handler set.
func NewCartHandlers(sessions *SessionManager) (*CartHandlers, error) {
	if sessions == nil {
		return nil, errors.New("handlers: session manager is required")
	}
	return &CartHandlers{sessions: sessions}, nil
}

// Routes registers the cart endpoints on the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{productID}", h.updateItem)
	r.Delete("/items/{productID}", h.removeItem)
}

type cartLineResponse struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Name      string `json:"name,omitempty"`
	UnitPrice int64  `json:"unitPrice,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Resolved  bool   `json:"resolved"`
}

type cartTotalsResponse struct {
	Subtotal     int64 `json:"subtotal"`
	ShippingCost int64 `json:"shippingCost"`
	Total        int64 `json:"total"`
	ItemCount    int   `json:"itemCount"`
}

type cartResponse struct {
	Lines     []cartLineResponse `json:"lines"`
	Totals    cartTotalsResponse `json:"totals"`
	Loading   bool               `json:"loading"`
	Error     string             `json:"error,omitempty"`
	UpdatedAt string             `json:"updatedAt,omitempty"`
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	ImageURL  string `json:"imageUrl"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.resolveStore(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(r.Context(), w, http.StatusOK, buildCartResponse(store))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.resolveStore(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	var hint *cart.DisplayHint
	if req.Name != "" || req.UnitPrice > 0 || req.ImageURL != "" {
		hint = &cart.DisplayHint{Name: req.Name, UnitPrice: req.UnitPrice, ImageURL: req.ImageURL}
	}

	if err := store.AddToCart(r.Context(), req.ProductID, hint); err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(r.Context(), w, http.StatusOK, buildCartResponse(store))
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.resolveStore(w, r)
	if !ok {
		return
	}

	productID := chi.URLParam(r, "productID")
	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	if err := store.UpdateQuantity(r.Context(), productID, req.Quantity); err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(r.Context(), w, http.StatusOK, buildCartResponse(store))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.resolveStore(w, r)
	if !ok {
		return
	}

	productID := chi.URLParam(r, "productID")
	if err := store.RemoveFromCart(r.Context(), productID); err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(r.Context(), w, http.StatusOK, buildCartResponse(store))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.resolveStore(w, r)
	if !ok {
		return
	}

	if err := store.ClearCart(r.Context()); err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(r.Context(), w, http.StatusOK, buildCartResponse(store))
}

// resolveStore fetches the session's cart store and aligns its identity with
// the request's bearer token when one is present.
func (h *CartHandlers) resolveStore(w http.ResponseWriter, r *http.Request) (*cart.Store, bool) {
	store, err := h.sessions.Store(r.Context())
	if err != nil {
		writeCartError(r.Context(), w, err)
		return nil, false
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		if err := store.SetIdentity(r.Context(), identity.UID); err != nil {
			writeCartError(r.Context(), w, err)
			return nil, false
		}
	}
	return store, true
}

func buildCartResponse(store *cart.Store) cartResponse {
	lines := store.Lines()
	totals := store.Totals()

	resp := cartResponse{
		Lines: make([]cartLineResponse, 0, len(lines)),
		Totals: cartTotalsResponse{
			Subtotal:     totals.Subtotal,
			ShippingCost: totals.ShippingCost,
			Total:        totals.Total,
			ItemCount:    totals.ItemCount,
		},
		Loading: store.IsLoading(),
	}
	for _, line := range lines {
		resp.Lines = append(resp.Lines, cartLineResponse{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			ImageURL:  line.ImageURL,
			Resolved:  line.Resolved,
		})
	}
	if err := store.LastError(); err != nil {
		resp.Error = err.Error()
	}
	if updated := store.LastUpdated(); !updated.IsZero() {
		resp.UpdatedAt = updated.Format(time.RFC3339)
	}
	return resp
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", userMessage(err), http.StatusBadRequest))
	case gateways.IsNotFound(err):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", userMessage(err), http.StatusNotFound))
	case errors.Is(err, cart.ErrUnavailable), gateways.IsUnavailable(err):
		httpx.WriteError(ctx, w, httpx.NewError("upstream_unavailable", "cart backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

func userMessage(err error) string {
	msg := err.Error()
	// Strip the wrapped sentinel prefix; the code field already conveys it.
	if idx := strings.LastIndex(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}
