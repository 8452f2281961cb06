package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/greenraise/storefront/internal/domain"
	"github.com/greenraise/storefront/internal/gateways"
)

type stubCatalog struct {
	getProduct func(ctx context.Context, productID string) (domain.ProductSnapshot, error)
}

func (s *stubCatalog) GetProduct(ctx context.Context, productID string) (domain.ProductSnapshot, error) {
	if s.getProduct != nil {
		return s.getProduct(ctx, productID)
	}
	return domain.ProductSnapshot{ProductID: productID, Name: "Product " + productID, UnitPrice: 1000}, nil
}

type stubRemote struct {
	getCart         func(ctx context.Context, userID string) ([]domain.CartLineCore, error)
	addItem         func(ctx context.Context, userID string, line domain.CartLineCore) error
	setItemQuantity func(ctx context.Context, userID, productID string, quantity int) error
	removeItem      func(ctx context.Context, userID, productID string) error
	clear           func(ctx context.Context, userID string) error
	replaceCart     func(ctx context.Context, userID string, lines []domain.CartLineCore) error
}

func (s *stubRemote) GetCart(ctx context.Context, userID string) ([]domain.CartLineCore, error) {
	if s.getCart != nil {
		return s.getCart(ctx, userID)
	}
	return []domain.CartLineCore{}, nil
}

func (s *stubRemote) AddItem(ctx context.Context, userID string, line domain.CartLineCore) error {
	if s.addItem != nil {
		return s.addItem(ctx, userID, line)
	}
	return nil
}

func (s *stubRemote) SetItemQuantity(ctx context.Context, userID, productID string, quantity int) error {
	if s.setItemQuantity != nil {
		return s.setItemQuantity(ctx, userID, productID, quantity)
	}
	return nil
}

func (s *stubRemote) RemoveItem(ctx context.Context, userID, productID string) error {
	if s.removeItem != nil {
		return s.removeItem(ctx, userID, productID)
	}
	return nil
}

func (s *stubRemote) Clear(ctx context.Context, userID string) error {
	if s.clear != nil {
		return s.clear(ctx, userID)
	}
	return nil
}

func (s *stubRemote) ReplaceCart(ctx context.Context, userID string, lines []domain.CartLineCore) error {
	if s.replaceCart != nil {
		return s.replaceCart(ctx, userID, lines)
	}
	return nil
}

type memLocal struct {
	mu      sync.Mutex
	lines   []gateways.StoredLine
	loadErr error
	saveErr error
	clears  int
}

func (m *memLocal) Load(ctx context.Context) ([]gateways.StoredLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]gateways.StoredLine, len(m.lines))
	copy(out, m.lines)
	return out, nil
}

func (m *memLocal) Save(ctx context.Context, lines []gateways.StoredLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.lines = make([]gateways.StoredLine, len(lines))
	copy(m.lines, lines)
	return nil
}

func (m *memLocal) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = nil
	m.clears++
	return nil
}

func (m *memLocal) stored() []gateways.StoredLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]gateways.StoredLine, len(m.lines))
	copy(out, m.lines)
	return out
}

func newTestStore(t *testing.T, deps Deps) *Store {
	t.Helper()
	if deps.Local == nil {
		deps.Local = &memLocal{}
	}
	if deps.ReconcileDelay == 0 {
		// Far enough out that tests drive reconciliation explicitly.
		deps.ReconcileDelay = time.Hour
	}
	store, err := New(deps)
	if err != nil {
		t.Fatalf("unexpected error constructing store: %v", err)
	}
	return store
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestNewRequiresLocalStore(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatalf("expected error for missing local store")
	}
}

func TestAddToCartAnonymousPersistsLocally(t *testing.T) {
	local := &memLocal{}
	store := newTestStore(t, Deps{Local: local})
	ctx := context.Background()
	if err := store.Load(ctx); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	hint := &DisplayHint{Name: "Bamboo Toothbrush", UnitPrice: 499}
	if err := store.AddToCart(ctx, "p-1", hint); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if err := store.AddToCart(ctx, "p-1", hint); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	lines := store.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected one line after repeated add, got %d", len(lines))
	}
	if lines[0].Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", lines[0].Quantity)
	}
	stored := local.stored()
	if len(stored) != 1 || stored[0].Quantity != 2 || stored[0].Name != "Bamboo Toothbrush" {
		t.Fatalf("unexpected persisted cart %+v", stored)
	}
}

func TestAddToCartRejectsEmptyProductID(t *testing.T) {
	store := newTestStore(t, Deps{})
	if err := store.AddToCart(context.Background(), "  ", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestUpdateQuantityZeroRemovesLine(t *testing.T) {
	local := &memLocal{}
	store := newTestStore(t, Deps{Local: local})
	ctx := context.Background()
	if err := store.AddToCart(ctx, "p-1", &DisplayHint{Name: "Soap", UnitPrice: 350}); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if err := store.UpdateQuantity(ctx, "p-1", 0); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if len(store.Lines()) != 0 {
		t.Fatalf("expected line removed for zero quantity")
	}
	if len(local.stored()) != 0 {
		t.Fatalf("expected persisted cart emptied")
	}
}

func TestUpdateQuantityAbsentLineIsNoOp(t *testing.T) {
	store := newTestStore(t, Deps{})
	if err := store.UpdateQuantity(context.Background(), "ghost", 3); err != nil {
		t.Fatalf("unexpected error updating absent line: %v", err)
	}
	if len(store.Lines()) != 0 {
		t.Fatalf("expected no lines")
	}
}

func TestRemoveFromCartAbsentLineIsNoOp(t *testing.T) {
	remote := &stubRemote{
		removeItem: func(ctx context.Context, userID, productID string) error {
			t.Errorf("unexpected remote remove for absent line")
			return nil
		},
	}
	store := newTestStore(t, Deps{Remote: remote, Catalog: &stubCatalog{}})
	ctx := context.Background()
	if err := store.SetIdentity(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected identity error: %v", err)
	}
	if err := store.RemoveFromCart(ctx, "ghost"); err != nil {
		t.Fatalf("unexpected error removing absent line: %v", err)
	}
}

func TestTotalsExcludeUnresolvedLines(t *testing.T) {
	store := newTestStore(t, Deps{})
	ctx := context.Background()
	if err := store.AddToCart(ctx, "p-1", &DisplayHint{Name: "Soap", UnitPrice: 350}); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	// No hint and no catalog: the line stays visible but unresolved.
	if err := store.AddToCart(ctx, "p-2", nil); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	lines := store.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected both lines visible, got %d", len(lines))
	}
	totals := store.Totals()
	if totals.Subtotal != 350 || totals.ItemCount != 1 {
		t.Fatalf("expected unresolved line excluded from totals, got %+v", totals)
	}
}

func TestLoadAuthenticatedFallsBackToLocalOnFailure(t *testing.T) {
	local := &memLocal{lines: []gateways.StoredLine{
		{ProductID: "p-1", Quantity: 2, Name: "Soap", UnitPrice: 350},
	}}
	remote := &stubRemote{
		getCart: func(ctx context.Context, userID string) ([]domain.CartLineCore, error) {
			return nil, &gateways.UnavailableError{Gateway: "cart service", Err: errors.New("boom")}
		},
	}
	store := newTestStore(t, Deps{Local: local, Remote: remote, Catalog: &stubCatalog{}})
	ctx := context.Background()
	if err := store.SetIdentity(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected identity error: %v", err)
	}

	lines := store.Lines()
	if len(lines) != 1 || lines[0].ProductID != "p-1" || lines[0].Quantity != 2 {
		t.Fatalf("expected fallback to local cart, got %+v", lines)
	}
	if store.LastError() == nil {
		t.Fatalf("expected recoverable error surfaced")
	}
	store.DismissError()
	if store.LastError() != nil {
		t.Fatalf("expected error dismissed")
	}
}

func TestMergeOnLoginRemoteQuantityWins(t *testing.T) {
	local := &memLocal{lines: []gateways.StoredLine{
		{ProductID: "p-1", Quantity: 2, Name: "Soap", UnitPrice: 350},
		{ProductID: "p-2", Quantity: 1, Name: "Bottle", UnitPrice: 1999},
	}}
	var replaced []domain.CartLineCore
	remote := &stubRemote{
		getCart: func(ctx context.Context, userID string) ([]domain.CartLineCore, error) {
			return []domain.CartLineCore{
				{ProductID: "p-1", Quantity: 5},
				{ProductID: "p-3", Quantity: 1},
			}, nil
		},
		replaceCart: func(ctx context.Context, userID string, lines []domain.CartLineCore) error {
			replaced = lines
			return nil
		},
	}
	store := newTestStore(t, Deps{Local: local, Remote: remote, Catalog: &stubCatalog{}})
	ctx := context.Background()
	if err := store.SetIdentity(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected identity error: %v", err)
	}

	want := []domain.CartLineCore{
		{ProductID: "p-1", Quantity: 5},
		{ProductID: "p-3", Quantity: 1},
		{ProductID: "p-2", Quantity: 1},
	}
	if len(replaced) != len(want) {
		t.Fatalf("expected %d synced lines, got %+v", len(want), replaced)
	}
	for i, core := range want {
		if replaced[i] != core {
			t.Fatalf("unexpected synced line %d: got %+v want %+v", i, replaced[i], core)
		}
	}

	lines := store.Lines()
	if len(lines) != 3 {
		t.Fatalf("expected 3 merged lines, got %d", len(lines))
	}
	if lines[0].ProductID != "p-1" || lines[0].Quantity != 5 {
		t.Fatalf("expected remote quantity to win for p-1, got %+v", lines[0])
	}
	if local.clears != 1 {
		t.Fatalf("expected local cart cleared once after merge, got %d", local.clears)
	}
}

func TestMergeOnLoginRunsOncePerLogin(t *testing.T) {
	fetches := 0
	remote := &stubRemote{
		getCart: func(ctx context.Context, userID string) ([]domain.CartLineCore, error) {
			fetches++
			return []domain.CartLineCore{{ProductID: "p-1", Quantity: 1}}, nil
		},
	}
	local := &memLocal{}
	store := newTestStore(t, Deps{Local: local, Remote: remote, Catalog: &stubCatalog{}})
	ctx := context.Background()
	if err := store.SetIdentity(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected identity error: %v", err)
	}
	if err := store.MergeOnLogin(ctx); err != nil {
		t.Fatalf("unexpected merge error: %v", err)
	}
	if fetches != 1 {
		t.Fatalf("expected repeat merge to be a no-op, got %d fetches", fetches)
	}

	// Logout re-arms the merge for the next login.
	if err := store.SetIdentity(ctx, ""); err != nil {
		t.Fatalf("unexpected logout error: %v", err)
	}
	if err := store.SetIdentity(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected login error: %v", err)
	}
	if fetches != 2 {
		t.Fatalf("expected merge to run again after logout/login, got %d fetches", fetches)
	}
}

func TestMergeOnLoginFailureKeepsLocalCart(t *testing.T) {
	local := &memLocal{lines: []gateways.StoredLine{
		{ProductID: "p-1", Quantity: 2, Name: "Soap", UnitPrice: 350},
	}}
	healthy := false
	remote := &stubRemote{
		getCart: func(ctx context.Context, userID string) ([]domain.CartLineCore, error) {
			if !healthy {
				return nil, &gateways.UnavailableError{Gateway: "cart service", Err: errors.New("boom")}
			}
			return []domain.CartLineCore{}, nil
		},
	}
	store := newTestStore(t, Deps{Local: local, Remote: remote, Catalog: &stubCatalog{}})
	ctx := context.Background()
	if err := store.SetIdentity(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected identity error: %v", err)
	}

	if store.LastError() == nil {
		t.Fatalf("expected merge failure surfaced")
	}
	if local.clears != 0 {
		t.Fatalf("expected local cart untouched after failed merge")
	}
	lines := store.Lines()
	if len(lines) != 1 || lines[0].ProductID != "p-1" {
		t.Fatalf("expected local cart still shown, got %+v", lines)
	}

	// The merge stays retryable until it succeeds.
	healthy = true
	if err := store.MergeOnLogin(ctx); err != nil {
		t.Fatalf("unexpected merge error: %v", err)
	}
	if local.clears != 1 {
		t.Fatalf("expected local cart cleared after successful retry")
	}
}

func TestMergeRequiresIdentity(t *testing.T) {
	store := newTestStore(t, Deps{Remote: &stubRemote{}})
	if err := store.MergeOnLogin(context.Background()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestAuthenticatedMutationIsOptimistic(t *testing.T) {
	release := make(chan struct{})
	called := make(chan struct{})
	remote := &stubRemote{
		addItem: func(ctx context.Context, userID string, line domain.CartLineCore) error {
			close(called)
			<-release
			return nil
		},
	}
	store := newTestStore(t, Deps{Remote: remote, Catalog: &stubCatalog{}})
	ctx := context.Background()
	if err := store.SetIdentity(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected identity error: %v", err)
	}

	if err := store.AddToCart(ctx, "p-1", nil); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	// The line is visible before the remote write completes.
	lines := store.Lines()
	if len(lines) != 1 || lines[0].ProductID != "p-1" {
		t.Fatalf("expected optimistic line, got %+v", lines)
	}
	if !store.IsLoading() {
		t.Fatalf("expected pending remote write reported as loading")
	}

	<-called
	close(release)
	waitUntil(t, func() bool { return !store.IsLoading() })
	if store.LastError() != nil {
		t.Fatalf("unexpected error after settle: %v", store.LastError())
	}
}

func TestRemoteWriteFailureSurfacesRecoverableError(t *testing.T) {
	remote := &stubRemote{
		addItem: func(ctx context.Context, userID string, line domain.CartLineCore) error {
			return &gateways.UnavailableError{Gateway: "cart service", Err: errors.New("boom")}
		},
	}
	store := newTestStore(t, Deps{Remote: remote, Catalog: &stubCatalog{}})
	ctx := context.Background()
	if err := store.SetIdentity(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected identity error: %v", err)
	}
	if err := store.AddToCart(ctx, "p-1", nil); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	waitUntil(t, func() bool { return store.LastError() != nil })

	// The optimistic line stays; reconciliation corrects drift later.
	if len(store.Lines()) != 1 {
		t.Fatalf("expected optimistic line kept, got %+v", store.Lines())
	}
}

func TestReconcileAppliesServerState(t *testing.T) {
	var mu sync.Mutex
	server := []domain.CartLineCore{{ProductID: "p-1", Quantity: 1}}
	remote := &stubRemote{
		getCart: func(ctx context.Context, userID string) ([]domain.CartLineCore, error) {
			mu.Lock()
			defer mu.Unlock()
			out := make([]domain.CartLineCore, len(server))
			copy(out, server)
			return out, nil
		},
		setItemQuantity: func(ctx context.Context, userID, productID string, quantity int) error {
			// Another device raced this write; the server ends up elsewhere.
			mu.Lock()
			server = []domain.CartLineCore{{ProductID: "p-1", Quantity: 7}}
			mu.Unlock()
			return nil
		},
	}
	store := newTestStore(t, Deps{Remote: remote, Catalog: &stubCatalog{}})
	ctx := context.Background()
	if err := store.SetIdentity(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected identity error: %v", err)
	}
	if err := store.UpdateQuantity(ctx, "p-1", 3); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	waitUntil(t, func() bool { return !store.IsLoading() })

	store.mu.Lock()
	gen := store.reconcileGen
	store.mu.Unlock()
	store.runReconcile(ctx, "user-1", gen, "task-1")

	lines := store.Lines()
	if len(lines) != 1 || lines[0].Quantity != 7 {
		t.Fatalf("expected reconciliation to apply server quantity 7, got %+v", lines)
	}
}

func TestStaleReconcileIsDiscarded(t *testing.T) {
	remote := &stubRemote{
		getCart: func(ctx context.Context, userID string) ([]domain.CartLineCore, error) {
			return []domain.CartLineCore{{ProductID: "p-1", Quantity: 99}}, nil
		},
	}
	store := newTestStore(t, Deps{Remote: remote, Catalog: &stubCatalog{}})
	ctx := context.Background()
	if err := store.SetIdentity(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected identity error: %v", err)
	}
	if err := store.UpdateQuantity(ctx, "p-1", 2); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	store.mu.Lock()
	staleGen := store.reconcileGen
	store.mu.Unlock()

	// A newer mutation supersedes the pending reconciliation.
	if err := store.UpdateQuantity(ctx, "p-1", 3); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	store.runReconcile(ctx, "user-1", staleGen, "task-stale")

	lines := store.Lines()
	if len(lines) != 1 || lines[0].Quantity != 3 {
		t.Fatalf("expected stale reconcile discarded, got %+v", lines)
	}
	waitUntil(t, func() bool { return !store.IsLoading() })
}

func TestLogoutRevertsToLocalCart(t *testing.T) {
	local := &memLocal{}
	remote := &stubRemote{
		getCart: func(ctx context.Context, userID string) ([]domain.CartLineCore, error) {
			return []domain.CartLineCore{{ProductID: "p-1", Quantity: 4}}, nil
		},
	}
	store := newTestStore(t, Deps{Local: local, Remote: remote, Catalog: &stubCatalog{}})
	ctx := context.Background()
	if err := store.SetIdentity(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected identity error: %v", err)
	}
	if len(store.Lines()) != 1 {
		t.Fatalf("expected remote cart loaded")
	}

	if err := store.SetIdentity(ctx, ""); err != nil {
		t.Fatalf("unexpected logout error: %v", err)
	}
	if got := store.UserID(); got != "" {
		t.Fatalf("expected anonymous identity, got %q", got)
	}
	// Local storage was emptied by the login merge, so the anonymous cart
	// starts fresh.
	if len(store.Lines()) != 0 {
		t.Fatalf("expected empty anonymous cart after logout, got %+v", store.Lines())
	}
}

func TestClearCartAnonymous(t *testing.T) {
	local := &memLocal{}
	store := newTestStore(t, Deps{Local: local})
	ctx := context.Background()
	if err := store.AddToCart(ctx, "p-1", &DisplayHint{Name: "Soap", UnitPrice: 350}); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if err := store.ClearCart(ctx); err != nil {
		t.Fatalf("unexpected clear error: %v", err)
	}
	if len(store.Lines()) != 0 {
		t.Fatalf("expected empty cart")
	}
	if local.clears != 1 {
		t.Fatalf("expected local storage cleared, got %d", local.clears)
	}
	totals := store.Totals()
	if totals.Subtotal != 0 || totals.ShippingCost != 0 || totals.Total != 0 || totals.ItemCount != 0 {
		t.Fatalf("expected zero totals for empty cart, got %+v", totals)
	}
}
