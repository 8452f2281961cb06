package gateways

import (
	"context"

	domain "github.com/greenraise/storefront/internal/domain"
)

// GatewayError categorises failures from external collaborators so the cart
// engine can decide between falling back and surfacing a recoverable error.
type GatewayError interface {
	error
	IsNotFound() bool
	IsUnavailable() bool
}

// CatalogGateway resolves a product id to its display snapshot.
type CatalogGateway interface {
	GetProduct(ctx context.Context, productID string) (domain.ProductSnapshot, error)
}

// RemoteCartGateway is the server-side cart persistence keyed by user id. It
// stores {productId, quantity} pairs only; denormalised display fields are
// never sent to the remote store.
type RemoteCartGateway interface {
	// GetCart returns the persisted lines for the user. A user without a cart
	// yields an empty slice, not an error.
	GetCart(ctx context.Context, userID string) ([]domain.CartLineCore, error)
	// AddItem asks the server to increment-or-insert the given line; the
	// server owns idempotent increment semantics.
	AddItem(ctx context.Context, userID string, line domain.CartLineCore) error
	// SetItemQuantity sets the absolute quantity for a product.
	SetItemQuantity(ctx context.Context, userID string, productID string, quantity int) error
	RemoveItem(ctx context.Context, userID string, productID string) error
	Clear(ctx context.Context, userID string) error
	// ReplaceCart bulk-syncs the full line set, replace-or-upsert semantics.
	// Used once after the login merge.
	ReplaceCart(ctx context.Context, userID string, lines []domain.CartLineCore) error
}

// StoredLine is the local-storage persistence shape: the core line plus the
// denormalised display fields captured when the line was created. This is the
// only place display data is persisted client-side.
type StoredLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Name      string `json:"name,omitempty"`
	UnitPrice int64  `json:"unitPrice,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

// LocalCartStore is the anonymous cart backend, a browser-local-storage
// analog holding a single document per session. Loading an absent document
// yields an empty slice.
type LocalCartStore interface {
	Load(ctx context.Context) ([]StoredLine, error)
	Save(ctx context.Context, lines []StoredLine) error
	Clear(ctx context.Context) error
}
