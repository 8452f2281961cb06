package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/greenraise/storefront/internal/cart"
	"github.com/greenraise/storefront/internal/platform/requestctx"
)

// StoreFactory builds a cart store bound to one session key.
type StoreFactory func(sessionKey string) (*cart.Store, error)

var errSessionUnresolved = errors.New("handlers: session key not resolved")

// SessionManager owns the session-to-store registry. Every browser session,
// anonymous or authenticated, gets its own cart store; the product snapshot
// cache behind the stores is shared process-wide by the factory.
type SessionManager struct {
	cookieName string
	factory    StoreFactory
	newID      func() string

	mu     sync.Mutex
	stores map[string]*cart.Store
}

// NewSessionManager constructs the registry. The factory is mandatory.
func NewSessionManager(cookieName string, factory StoreFactory) (*SessionManager, error) {
	if factory == nil {
		return nil, errors.New("handlers: store factory is required")
	}
	if cookieName == "" {
		cookieName = "gr_session"
	}
	return &SessionManager{
		cookieName: cookieName,
		factory:    factory,
		newID:      func() string { return ulid.Make().String() },
		stores:     make(map[string]*cart.Store),
	}, nil
}

// Middleware resolves the session cookie, issuing a fresh one when absent,
// and stores the session key on the request context.
func (m *SessionManager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if cookie, err := r.Cookie(m.cookieName); err == nil {
				key = cookie.Value
			}
			if key == "" {
				key = m.newID()
				http.SetCookie(w, &http.Cookie{
					Name:     m.cookieName,
					Value:    key,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			ctx := requestctx.WithSessionKey(r.Context(), key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Store returns the cart store for the request's session, creating and
// loading it on first use.
func (m *SessionManager) Store(ctx context.Context) (*cart.Store, error) {
	key := requestctx.SessionKey(ctx)
	if key == "" {
		return nil, errSessionUnresolved
	}

	m.mu.Lock()
	if store, ok := m.stores[key]; ok {
		m.mu.Unlock()
		return store, nil
	}
	m.mu.Unlock()

	store, err := m.factory(key)
	if err != nil {
		return nil, err
	}
	if err := store.Load(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.stores[key]; ok {
		// Lost the race to a concurrent request for the same session.
		return existing, nil
	}
	m.stores[key] = store
	return store, nil
}

// Shutdown blocks until every store has settled its in-flight remote work.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	stores := make([]*cart.Store, 0, len(m.stores))
	for _, store := range m.stores {
		stores = append(stores, store)
	}
	m.mu.Unlock()

	for _, store := range stores {
		store.Wait()
	}
}
