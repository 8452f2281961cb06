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

// CatalogClient resolves product display data against the catalog service.
type CatalogClient struct {
	baseURL string
	http    *http.Client
}

// NewCatalogClient constructs a catalog client for the given base URL. A zero
// timeout selects the package default.
func NewCatalogClient(baseURL string, timeout time.Duration) (*CatalogClient, error) {
	trimmed := trimBaseURL(baseURL)
	if trimmed == "" {
		return nil, errors.New("catalog client: base url is required")
	}
	return &CatalogClient{
		baseURL: trimmed,
		http:    newHTTPClient(timeout),
	}, nil
}

type productPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	ImageURL  string `json:"imageUrl"`
}

// GetProduct fetches the snapshot for a single product id.
func (c *CatalogClient) GetProduct(ctx context.Context, productID string) (domain.ProductSnapshot, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.ProductSnapshot{}, errors.New("catalog client: product id is required")
	}

	endpoint, err := url.JoinPath(c.baseURL, "products", url.PathEscape(id))
	if err != nil {
		return domain.ProductSnapshot{}, err
	}
	req, err := newJSONRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.ProductSnapshot{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ProductSnapshot{}, &gateways.UnavailableError{Gateway: "catalog", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ProductSnapshot{}, &gateways.NotFoundError{Resource: "product", Key: id}
	case resp.StatusCode >= 400:
		return domain.ProductSnapshot{}, &gateways.UnavailableError{
			Gateway: "catalog",
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, drainError(resp.Body)),
		}
	}

	var payload productPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.ProductSnapshot{}, &gateways.UnavailableError{Gateway: "catalog", Err: err}
	}

	snapshot := domain.ProductSnapshot{
		ProductID: id,
		Name:      strings.TrimSpace(payload.Name),
		UnitPrice: payload.UnitPrice,
		ImageURL:  strings.TrimSpace(payload.ImageURL),
	}
	return snapshot, nil
}

var _ gateways.CatalogGateway = (*CatalogClient)(nil)
