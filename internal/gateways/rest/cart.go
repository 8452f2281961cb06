package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "github.com/greenraise/storefront/internal/domain"
	"github.com/greenraise/storefront/internal/gateways"
)

// CartClient talks to the server-side cart persistence service. Only
// {productId, quantity} pairs cross this boundary.
type CartClient struct {
	baseURL string
	http    *http.Client
}

// NewCartClient constructs a cart persistence client for the given base URL.
func NewCartClient(baseURL string, timeout time.Duration) (*CartClient, error) {
	trimmed := trimBaseURL(baseURL)
	if trimmed == "" {
		return nil, errors.New("cart client: base url is required")
	}
	return &CartClient{
		baseURL: trimmed,
		http:    newHTTPClient(timeout),
	}, nil
}

type cartLinePayload struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (c *CartClient) cartURL(userID string, extra ...string) (string, error) {
	parts := append([]string{c.baseURL, "carts", url.PathEscape(userID)}, extra...)
	return url.JoinPath(parts[0], parts[1:]...)
}

// GetCart returns the persisted lines for the user. A missing cart document
// is an empty cart, not an error.
func (c *CartClient) GetCart(ctx context.Context, userID string) ([]domain.CartLineCore, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("cart client: user id is required")
	}

	endpoint, err := c.cartURL(uid)
	if err != nil {
		return nil, err
	}
	req, err := newJSONRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &gateways.UnavailableError{Gateway: "cart service", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return []domain.CartLineCore{}, nil
	case resp.StatusCode >= 400:
		return nil, c.statusError(resp.StatusCode, drainError(resp.Body))
	}

	var payload []cartLinePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &gateways.UnavailableError{Gateway: "cart service", Err: err}
	}

	lines := make([]domain.CartLineCore, 0, len(payload))
	for _, item := range payload {
		id := strings.TrimSpace(item.ProductID)
		if id == "" || item.Quantity <= 0 {
			continue
		}
		lines = append(lines, domain.CartLineCore{ProductID: id, Quantity: item.Quantity})
	}
	return lines, nil
}

// AddItem posts an increment-or-insert for the given line; the server owns
// the idempotent increment semantics.
func (c *CartClient) AddItem(ctx context.Context, userID string, line domain.CartLineCore) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart client: user id is required")
	}
	endpoint, err := c.cartURL(uid, "items")
	if err != nil {
		return err
	}
	body := cartLinePayload{ProductID: line.ProductID, Quantity: line.Quantity}
	return c.send(ctx, http.MethodPost, endpoint, body)
}

// SetItemQuantity sets the absolute quantity for a product line.
func (c *CartClient) SetItemQuantity(ctx context.Context, userID string, productID string, quantity int) error {
	uid := strings.TrimSpace(userID)
	pid := strings.TrimSpace(productID)
	if uid == "" || pid == "" {
		return errors.New("cart client: user id and product id are required")
	}
	endpoint, err := c.cartURL(uid, "items", url.PathEscape(pid))
	if err != nil {
		return err
	}
	body := map[string]int{"quantity": quantity}
	return c.send(ctx, http.MethodPatch, endpoint, body)
}

// RemoveItem deletes a product line; deleting an absent line succeeds.
func (c *CartClient) RemoveItem(ctx context.Context, userID string, productID string) error {
	uid := strings.TrimSpace(userID)
	pid := strings.TrimSpace(productID)
	if uid == "" || pid == "" {
		return errors.New("cart client: user id and product id are required")
	}
	endpoint, err := c.cartURL(uid, "items", url.PathEscape(pid))
	if err != nil {
		return err
	}
	return c.send(ctx, http.MethodDelete, endpoint, nil)
}

// Clear removes every line for the user.
func (c *CartClient) Clear(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart client: user id is required")
	}
	endpoint, err := c.cartURL(uid)
	if err != nil {
		return err
	}
	return c.send(ctx, http.MethodDelete, endpoint, nil)
}

// ReplaceCart bulk-syncs the full line set with replace-or-upsert semantics.
func (c *CartClient) ReplaceCart(ctx context.Context, userID string, lines []domain.CartLineCore) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart client: user id is required")
	}
	endpoint, err := c.cartURL(uid, "items")
	if err != nil {
		return err
	}
	payload := make([]cartLinePayload, 0, len(lines))
	for _, line := range lines {
		payload = append(payload, cartLinePayload{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return c.send(ctx, http.MethodPut, endpoint, payload)
}

func (c *CartClient) send(ctx context.Context, method, endpoint string, body any) error {
	req, err := newJSONRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &gateways.UnavailableError{Gateway: "cart service", Err: err}
	}
	defer resp.Body.Close()

	// Deleting something the server never had is still a success.
	if resp.StatusCode == http.StatusNotFound && method == http.MethodDelete {
		return nil
	}
	if resp.StatusCode >= 400 {
		return c.statusError(resp.StatusCode, drainError(resp.Body))
	}
	return nil
}

func (c *CartClient) statusError(status int, detail string) error {
	return &gateways.UnavailableError{
		Gateway: "cart service",
		Err:     fmt.Errorf("status %d: %s", status, detail),
	}
}

var _ gateways.RemoteCartGateway = (*CartClient)(nil)
