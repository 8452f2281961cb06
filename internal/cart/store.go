package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/greenraise/storefront/internal/domain"
	"github.com/greenraise/storefront/internal/gateways"
)

var (
	errLocalStoreRequired = errors.New("cart store: local cart store is required")

	// ErrInvalidInput indicates the caller supplied invalid input.
	ErrInvalidInput = errors.New("cart store: invalid input")

	// ErrUnavailable indicates the store cannot fulfil the request due to
	// missing dependencies.
	ErrUnavailable = errors.New("cart store: unavailable")
)

const (
	defaultRemoteTimeout  = 4 * time.Second
	defaultReconcileDelay = 1500 * time.Millisecond
)

// State tracks the store lifecycle visible to the UI layer.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
)

// DisplayHint carries whatever denormalised fields the calling page already
// has for a product, used for optimistic display before (or instead of) a
// catalog lookup.
type DisplayHint struct {
	Name      string
	UnitPrice int64
	ImageURL  string
}

// Deps wires the gateways and tunables for a cart store instance.
type Deps struct {
	Catalog   gateways.CatalogGateway
	Remote    gateways.RemoteCartGateway
	Local     gateways.LocalCartStore
	Pricing   domain.PricingConfig
	Snapshots *SnapshotCache
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)
	// IDGenerator is used for internal task identifiers surfaced in logs.
	IDGenerator    func() string
	RemoteTimeout  time.Duration
	ReconcileDelay time.Duration
}

// Store owns the authoritative in-memory view of one session's cart. It
// mediates between the anonymous local-storage backend and the authenticated
// remote backend, resolves product display data through a process-lifetime
// snapshot cache, and computes totals on demand.
//
// Operations are serialised by an internal mutex, mirroring the source's
// single-threaded event model. Remote mutations are optimistic: local state
// updates first, the remote call runs asynchronously, and a deferred
// reconciliation fetch corrects any drift (last write observed wins).
// Remote failures never crash the store; they either fall back to the local
// cart or leave prior state intact and surface through LastError.
type Store struct {
	catalog   gateways.CatalogGateway
	remote    gateways.RemoteCartGateway
	local     gateways.LocalCartStore
	pricing   domain.PricingConfig
	snapshots *SnapshotCache
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
	newID     func() string

	remoteTimeout  time.Duration
	reconcileDelay time.Duration

	mu             sync.Mutex
	state          State
	userID         string
	mergedFor      string
	updatedAt      time.Time
	lines          []domain.CartLine
	lastErr        error
	pendingRemote  int
	reconcileGen   uint64
	reconcileTimer *time.Timer
	wg             sync.WaitGroup
}

// New constructs a Store enforcing dependency validation. The local cart
// store is mandatory; catalog and remote gateways may be absent for purely
// anonymous usage.
func New(deps Deps) (*Store, error) {
	if deps.Local == nil {
		return nil, errLocalStoreRequired
	}

	pricing := deps.Pricing
	if pricing.FreeShippingThreshold == 0 && pricing.ShippingFee == 0 {
		pricing = domain.DefaultPricing()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	snapshots := deps.Snapshots
	if snapshots == nil {
		snapshots = NewSnapshotCache()
	}

	remoteTimeout := deps.RemoteTimeout
	if remoteTimeout <= 0 {
		remoteTimeout = defaultRemoteTimeout
	}
	reconcileDelay := deps.ReconcileDelay
	if reconcileDelay <= 0 {
		reconcileDelay = defaultReconcileDelay
	}

	store := &Store{
		catalog:        deps.Catalog,
		remote:         deps.Remote,
		local:          deps.Local,
		pricing:        pricing,
		snapshots:      snapshots,
		now:            func() time.Time { return clock().UTC() },
		logger:         logger,
		newID:          idGen,
		remoteTimeout:  remoteTimeout,
		reconcileDelay: reconcileDelay,
		state:          StateUninitialized,
	}
	return store, nil
}

// Load populates the cart from whichever backend applies to the current
// identity. Remote fetch failures fall back to the local-storage cart and
// surface a recoverable error; Load itself fails only on misuse.
func (s *Store) Load(ctx context.Context) error {
	if s == nil || s.local == nil {
		return ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErr = nil
	s.state = StateLoading
	if s.userID == "" {
		s.loadAnonymousLocked(ctx)
	} else {
		s.loadAuthenticatedLocked(ctx)
	}
	s.state = StateReady
	return nil
}

// SetIdentity applies a session identity transition. Anonymous to
// authenticated triggers the one-time login merge; logout reverts to the
// local-storage cart and re-arms the merge guard; repeated calls with the
// same identity are no-ops.
func (s *Store) SetIdentity(ctx context.Context, userID string) error {
	if s == nil || s.local == nil {
		return ErrUnavailable
	}
	uid := strings.TrimSpace(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if uid == s.userID {
		return nil
	}

	s.cancelReconcileLocked()
	s.lastErr = nil
	wasAnonymous := s.userID == ""
	s.userID = uid

	if uid == "" {
		s.mergedFor = ""
		s.state = StateLoading
		s.loadAnonymousLocked(ctx)
		s.state = StateReady
		return nil
	}

	if wasAnonymous {
		return s.mergeLocked(ctx)
	}

	// Direct identity switch: plain reload, no merge semantics.
	s.state = StateLoading
	s.loadAuthenticatedLocked(ctx)
	s.state = StateReady
	return nil
}

// MergeOnLogin consolidates the anonymous local cart into the authenticated
// remote cart. The remote cart is the base; local-only products are appended
// with their quantities, conflicts keep the remote quantity. Re-running is a
// no-op until the next logout/login cycle. A failed merge leaves the local
// cart untouched so a retry remains possible.
func (s *Store) MergeOnLogin(ctx context.Context) error {
	if s == nil || s.local == nil {
		return ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(ctx)
}

func (s *Store) mergeLocked(ctx context.Context) error {
	if s.userID == "" {
		return fmt.Errorf("%w: merge requires an authenticated identity", ErrInvalidInput)
	}
	if s.mergedFor == s.userID {
		return nil
	}
	if s.remote == nil {
		return ErrUnavailable
	}

	s.state = StateLoading
	defer func() { s.state = StateReady }()

	stored, err := s.local.Load(ctx)
	if err != nil {
		s.logger(ctx, "cart.local_read_failed", map[string]any{"error": err.Error()})
		stored = nil
	}
	localLines := linesFromStored(stored)

	rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	remoteCores, err := s.remote.GetCart(rctx, s.userID)
	cancel()
	if err != nil {
		// Abort the merge: keep showing the local cart and leave its
		// storage intact so the merge can be retried.
		s.recordErrLocked(ctx, "cart.merge_fetch_failed", err)
		s.lines = localLines
		s.touchLocked()
		return nil
	}

	merged := mergeCores(remoteCores, coresFromLines(localLines))

	if len(merged) > 0 {
		rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
		err := s.remote.ReplaceCart(rctx, s.userID, merged)
		cancel()
		if err != nil {
			// Bulk sync failed: fall back to the remote cart alone, local
			// storage untouched.
			s.recordErrLocked(ctx, "cart.merge_sync_failed", err)
			s.lines = s.resolveLines(ctx, remoteCores)
			s.touchLocked()
			return nil
		}
	}

	s.lines = s.resolveLines(ctx, merged)
	s.touchLocked()

	// The anonymous cart must never reappear after a successful login merge,
	// even when the merged result is empty.
	if err := s.local.Clear(ctx); err != nil {
		s.logger(ctx, "cart.local_clear_failed", map[string]any{"error": err.Error()})
	}
	s.mergedFor = s.userID
	s.logger(ctx, "cart.merged", map[string]any{
		"userID": s.userID,
		"lines":  len(merged),
	})
	return nil
}

// AddToCart adds one unit of the product, incrementing the quantity when a
// line already exists. The display hint feeds optimistic rendering; in
// authenticated mode the catalog snapshot takes precedence when it resolves.
func (s *Store) AddToCart(ctx context.Context, productID string, hint *DisplayHint) error {
	if s == nil || s.local == nil {
		return ErrUnavailable
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = nil

	if idx := indexOfLine(s.lines, pid); idx >= 0 {
		s.lines[idx].Quantity++
	} else {
		line := domain.CartLine{CartLineCore: domain.CartLineCore{ProductID: pid, Quantity: 1}}
		if s.userID != "" && s.catalog != nil {
			if snapshot, err := s.resolveOne(ctx, pid); err == nil {
				applySnapshot(&line, snapshot)
			} else {
				s.logger(ctx, "cart.product_resolve_failed", map[string]any{
					"productID": pid,
					"error":     err.Error(),
				})
				applyHint(&line, hint)
			}
		} else {
			applyHint(&line, hint)
		}
		s.lines = append(s.lines, line)
	}
	s.touchLocked()

	if s.userID == "" {
		s.persistLocalLocked(ctx)
		return nil
	}

	uid := s.userID
	s.startRemoteLocked(ctx, "cart.remote_add_failed", func(rctx context.Context) error {
		return s.remote.AddItem(rctx, uid, domain.CartLineCore{ProductID: pid, Quantity: 1})
	})
	s.scheduleReconcileLocked(ctx)
	return nil
}

// UpdateQuantity sets the absolute quantity for a product line. A quantity of
// zero or below removes the line; an absent line is a no-op.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	if s == nil || s.local == nil {
		return ErrUnavailable
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if quantity <= 0 {
		return s.RemoveFromCart(ctx, pid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = nil

	idx := indexOfLine(s.lines, pid)
	if idx < 0 {
		return nil
	}
	s.lines[idx].Quantity = quantity
	s.touchLocked()

	if s.userID == "" {
		s.persistLocalLocked(ctx)
		return nil
	}

	uid := s.userID
	s.startRemoteLocked(ctx, "cart.remote_update_failed", func(rctx context.Context) error {
		return s.remote.SetItemQuantity(rctx, uid, pid, quantity)
	})
	s.scheduleReconcileLocked(ctx)
	return nil
}

// RemoveFromCart deletes the product line when present. Removing an absent
// line succeeds and changes nothing.
func (s *Store) RemoveFromCart(ctx context.Context, productID string) error {
	if s == nil || s.local == nil {
		return ErrUnavailable
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = nil

	idx := indexOfLine(s.lines, pid)
	if idx < 0 {
		return nil
	}
	s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	s.touchLocked()

	if s.userID == "" {
		s.persistLocalLocked(ctx)
		return nil
	}

	uid := s.userID
	s.startRemoteLocked(ctx, "cart.remote_remove_failed", func(rctx context.Context) error {
		return s.remote.RemoveItem(rctx, uid, pid)
	})
	s.scheduleReconcileLocked(ctx)
	return nil
}

// ClearCart empties the entire line set. There is no undo.
func (s *Store) ClearCart(ctx context.Context) error {
	if s == nil || s.local == nil {
		return ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = nil

	s.lines = nil
	s.touchLocked()

	if s.userID == "" {
		if err := s.local.Clear(ctx); err != nil {
			s.recordErrLocked(ctx, "cart.local_clear_failed", err)
		}
		return nil
	}

	uid := s.userID
	s.startRemoteLocked(ctx, "cart.remote_clear_failed", func(rctx context.Context) error {
		return s.remote.Clear(rctx, uid)
	})
	s.scheduleReconcileLocked(ctx)
	return nil
}

// Lines returns a copy of the current line set, including unresolved lines.
func (s *Store) Lines() []domain.CartLine {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

// Totals recomputes derived totals from the current line set. Safe to call on
// every render; never cached.
func (s *Store) Totals() domain.CartTotals {
	if s == nil {
		return domain.CartTotals{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pricing.Totals(s.lines)
}

// State reports the store lifecycle state.
func (s *Store) State() State {
	if s == nil {
		return StateUninitialized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsLoading reports whether an initial load is in progress or remote
// mutations are still settling.
func (s *Store) IsLoading() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateLoading || s.pendingRemote > 0
}

// UserID returns the identity the store currently serves, empty when
// anonymous.
func (s *Store) UserID() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// LastError returns the recoverable error from the most recent user action,
// or nil. Each new action resets it.
func (s *Store) LastError() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LastUpdated returns when the line set last changed, zero before first load.
func (s *Store) LastUpdated() time.Time {
	if s == nil {
		return time.Time{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// DismissError clears the surfaced recoverable error.
func (s *Store) DismissError() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

// Wait blocks until all in-flight remote mutations and any scheduled
// reconciliation have finished. Intended for shutdown.
func (s *Store) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

// --- backend loading --------------------------------------------------------

func (s *Store) loadAnonymousLocked(ctx context.Context) {
	stored, err := s.local.Load(ctx)
	if err != nil {
		s.recordErrLocked(ctx, "cart.local_read_failed", err)
		stored = nil
	}
	s.lines = linesFromStored(stored)
	s.touchLocked()
}

func (s *Store) loadAuthenticatedLocked(ctx context.Context) {
	if s.remote == nil {
		s.recordErrLocked(ctx, "cart.remote_fetch_failed", ErrUnavailable)
		s.loadAnonymousLocked(ctx)
		return
	}
	rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	cores, err := s.remote.GetCart(rctx, s.userID)
	cancel()
	if err != nil {
		// Fall back to the local-storage cart rather than leaving the UI
		// with a stale spinner.
		s.recordErrLocked(ctx, "cart.remote_fetch_failed", err)
		s.loadAnonymousLocked(ctx)
		return
	}
	s.lines = s.resolveLines(ctx, cores)
	s.touchLocked()
}

func (s *Store) persistLocalLocked(ctx context.Context) {
	if err := s.local.Save(ctx, storedFromLines(s.lines)); err != nil {
		s.recordErrLocked(ctx, "cart.local_write_failed", err)
	}
}

func (s *Store) touchLocked() {
	s.updatedAt = s.now()
}

func (s *Store) recordErrLocked(ctx context.Context, event string, err error) {
	s.lastErr = err
	s.logger(ctx, event, map[string]any{"error": err.Error()})
}

// startRemoteLocked runs a remote mutation asynchronously with a bounded
// timeout. The local state has already been updated optimistically; a failure
// surfaces through LastError and is corrected by the next reconciliation.
func (s *Store) startRemoteLocked(ctx context.Context, event string, fn func(context.Context) error) {
	if s.remote == nil {
		s.recordErrLocked(ctx, event, ErrUnavailable)
		return
	}
	s.pendingRemote++
	s.wg.Add(1)
	base := context.WithoutCancel(ctx)
	go func() {
		defer s.wg.Done()
		rctx, cancel := context.WithTimeout(base, s.remoteTimeout)
		err := fn(rctx)
		cancel()

		s.mu.Lock()
		s.pendingRemote--
		if err != nil {
			s.lastErr = err
		}
		s.mu.Unlock()
		if err != nil {
			s.logger(base, event, map[string]any{"error": err.Error()})
		}
	}()
}

// --- line helpers -----------------------------------------------------------

func indexOfLine(lines []domain.CartLine, productID string) int {
	for i, line := range lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

func applyHint(line *domain.CartLine, hint *DisplayHint) {
	if hint == nil {
		return
	}
	line.Name = strings.TrimSpace(hint.Name)
	line.UnitPrice = hint.UnitPrice
	line.ImageURL = strings.TrimSpace(hint.ImageURL)
	line.Resolved = line.Name != "" && line.UnitPrice > 0
}

func applySnapshot(line *domain.CartLine, snapshot domain.ProductSnapshot) {
	line.Name = snapshot.Name
	line.UnitPrice = snapshot.UnitPrice
	line.ImageURL = snapshot.ImageURL
	line.Resolved = true
}

func linesFromStored(stored []gateways.StoredLine) []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(stored))
	for _, item := range stored {
		pid := strings.TrimSpace(item.ProductID)
		if pid == "" || item.Quantity <= 0 {
			continue
		}
		if indexOfLine(lines, pid) >= 0 {
			continue
		}
		line := domain.CartLine{
			CartLineCore: domain.CartLineCore{ProductID: pid, Quantity: item.Quantity},
			Name:         strings.TrimSpace(item.Name),
			UnitPrice:    item.UnitPrice,
			ImageURL:     strings.TrimSpace(item.ImageURL),
		}
		line.Resolved = line.Name != "" && line.UnitPrice > 0
		lines = append(lines, line)
	}
	return lines
}

func storedFromLines(lines []domain.CartLine) []gateways.StoredLine {
	stored := make([]gateways.StoredLine, 0, len(lines))
	for _, line := range lines {
		stored = append(stored, gateways.StoredLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			ImageURL:  line.ImageURL,
		})
	}
	return stored
}

func coresFromLines(lines []domain.CartLine) []domain.CartLineCore {
	cores := make([]domain.CartLineCore, 0, len(lines))
	for _, line := range lines {
		cores = append(cores, line.CartLineCore)
	}
	return cores
}

// mergeCores unions the two line sets keyed by product id. The remote set is
// the base; local-only products are appended unchanged. Conflicting products
// keep the remote quantity; quantities are never summed.
func mergeCores(remote, local []domain.CartLineCore) []domain.CartLineCore {
	merged := make([]domain.CartLineCore, 0, len(remote)+len(local))
	have := make(map[string]bool, len(remote))
	for _, core := range remote {
		if core.ProductID == "" || core.Quantity <= 0 || have[core.ProductID] {
			continue
		}
		have[core.ProductID] = true
		merged = append(merged, core)
	}
	for _, core := range local {
		if core.ProductID == "" || core.Quantity <= 0 || have[core.ProductID] {
			continue
		}
		have[core.ProductID] = true
		merged = append(merged, core)
	}
	return merged
}
