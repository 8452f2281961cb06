package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/greenraise/storefront/internal/cart"
	"github.com/greenraise/storefront/internal/checkout"
	"github.com/greenraise/storefront/internal/gateways/localdisk"
	"github.com/greenraise/storefront/internal/gateways/rest"
	"github.com/greenraise/storefront/internal/handlers"
	"github.com/greenraise/storefront/internal/platform/auth"
	"github.com/greenraise/storefront/internal/platform/config"
	"github.com/greenraise/storefront/internal/platform/observability"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := observability.NewLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	catalog, err := rest.NewCatalogClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout)
	if err != nil {
		return fmt.Errorf("catalog client: %w", err)
	}
	remoteCart, err := rest.NewCartClient(cfg.CartAPI.BaseURL, cfg.CartAPI.Timeout)
	if err != nil {
		return fmt.Errorf("cart client: %w", err)
	}

	snapshots := cart.NewSnapshotCache()
	eventLogger := observability.EventLogger(logger)

	factory := func(sessionKey string) (*cart.Store, error) {
		local, err := localdisk.NewStore(cfg.LocalStore.Dir, sessionKey)
		if err != nil {
			return nil, err
		}
		return cart.New(cart.Deps{
			Catalog:        catalog,
			Remote:         remoteCart,
			Local:          local,
			Pricing:        cfg.Pricing,
			Snapshots:      snapshots,
			Logger:         eventLogger,
			RemoteTimeout:  cfg.Cart.RemoteTimeout,
			ReconcileDelay: cfg.Cart.ReconcileDelay,
		})
	}

	sessions, err := handlers.NewSessionManager(cfg.Session.CookieName, factory)
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}

	checkoutService, err := checkout.NewService(checkout.Deps{
		Pricing: cfg.Pricing,
		Logger:  eventLogger,
	})
	if err != nil {
		return fmt.Errorf("checkout service: %w", err)
	}

	var verifier auth.TokenVerifier
	if cfg.Session.Insecure {
		logger.Warn("session verification disabled, accepting unsigned tokens")
		verifier = auth.InsecureVerifier{}
	} else {
		verifier, err = auth.NewJWTVerifier([]byte(cfg.Session.Secret), cfg.Session.Issuer, cfg.Session.Audience)
		if err != nil {
			return fmt.Errorf("session verifier: %w", err)
		}
	}
	authenticator := auth.NewAuthenticator(verifier)

	cartHandlers, err := handlers.NewCartHandlers(sessions)
	if err != nil {
		return fmt.Errorf("cart handlers: %w", err)
	}
	checkoutHandlers, err := handlers.NewCheckoutHandlers(sessions, checkoutService)
	if err != nil {
		return fmt.Errorf("checkout handlers: %w", err)
	}
	sessionHandlers, err := handlers.NewSessionHandlers(sessions)
	if err != nil {
		return fmt.Errorf("session handlers: %w", err)
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(),
			sessions.Middleware(),
			authenticator.OptionalIdentity(),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithSessionRoutes(sessionHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	// Let in-flight cart writes and reconciliations settle before exit.
	sessions.Shutdown()
	return nil
}
