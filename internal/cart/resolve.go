package cart

import (
	"context"
	"sync"

	domain "github.com/greenraise/storefront/internal/domain"
)

// resolveLines joins persisted {productId, quantity} rows with catalog
// snapshots. Distinct ids resolve concurrently and cache-first; a line whose
// lookup fails keeps its quantity with display fields absent so the UI can
// still show it (excluded from totals until resolved).
func (s *Store) resolveLines(ctx context.Context, cores []domain.CartLineCore) []domain.CartLine {
	ordered := make([]domain.CartLineCore, 0, len(cores))
	seen := make(map[string]bool, len(cores))
	for _, core := range cores {
		if core.ProductID == "" || core.Quantity <= 0 || seen[core.ProductID] {
			continue
		}
		seen[core.ProductID] = true
		ordered = append(ordered, core)
	}
	if len(ordered) == 0 {
		return []domain.CartLine{}
	}

	resolved := make(map[string]domain.ProductSnapshot, len(ordered))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	wg.Add(len(ordered))
	for _, core := range ordered {
		core := core
		go func() {
			defer wg.Done()
			snapshot, err := s.resolveOne(ctx, core.ProductID)
			if err != nil {
				s.logger(ctx, "cart.product_resolve_failed", map[string]any{
					"productID": core.ProductID,
					"error":     err.Error(),
				})
				return
			}
			mu.Lock()
			resolved[core.ProductID] = snapshot
			mu.Unlock()
		}()
	}
	wg.Wait()

	lines := make([]domain.CartLine, 0, len(ordered))
	for _, core := range ordered {
		line := domain.CartLine{CartLineCore: core}
		if snapshot, ok := resolved[core.ProductID]; ok {
			applySnapshot(&line, snapshot)
		}
		lines = append(lines, line)
	}
	return lines
}

// resolveOne fetches a single product snapshot through the shared cache.
func (s *Store) resolveOne(ctx context.Context, productID string) (domain.ProductSnapshot, error) {
	if s.catalog == nil {
		return domain.ProductSnapshot{}, ErrUnavailable
	}
	return s.snapshots.Resolve(ctx, productID, func(ctx context.Context, id string) (domain.ProductSnapshot, error) {
		rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
		defer cancel()
		return s.catalog.GetProduct(rctx, id)
	})
}
