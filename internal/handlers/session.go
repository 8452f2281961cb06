package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greenraise/storefront/internal/platform/auth"
	"github.com/greenraise/storefront/internal/platform/httpx"
)

// SessionHandlers drives login and logout transitions on the session's cart
// store. Login triggers the one-time cart merge; logout reverts to the
// anonymous local cart.
type SessionHandlers struct {
	sessions *SessionManager
}

// NewSessionHandlers constructs the session handler set.
func NewSessionHandlers(sessions *SessionManager) (*SessionHandlers, error) {
	if sessions == nil {
		return nil, errors.New("handlers: session manager is required")
	}
	return &SessionHandlers{sessions: sessions}, nil
}

// Routes registers the session endpoints. The caller wraps /login with the
// authenticator's RequireIdentity middleware.
func (h *SessionHandlers) Routes(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
}

func (h *SessionHandlers) login(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "login requires a session token", http.StatusUnauthorized))
		return
	}

	store, err := h.sessions.Store(r.Context())
	if err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	if err := store.SetIdentity(r.Context(), identity.UID); err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(r.Context(), w, http.StatusOK, buildCartResponse(store))
}

func (h *SessionHandlers) logout(w http.ResponseWriter, r *http.Request) {
	store, err := h.sessions.Store(r.Context())
	if err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	if err := store.SetIdentity(r.Context(), ""); err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(r.Context(), w, http.StatusOK, buildCartResponse(store))
}
