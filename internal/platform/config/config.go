package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	domain "github.com/greenraise/storefront/internal/domain"
)

const (
	defaultEnvFile        = ".env"
	defaultPort           = "8080"
	defaultReadTimeout    = 15 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultIdleTimeout    = 120 * time.Second
	defaultGatewayTimeout = 5 * time.Second
	defaultRemoteTimeout  = 4 * time.Second
	defaultReconcileDelay = 1500 * time.Millisecond
	defaultLocalStoreDir  = "data/carts"
	defaultSessionCookie  = "gr_session"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Catalog    CatalogConfig
	CartAPI    CartAPIConfig
	Session    SessionConfig
	Pricing    domain.PricingConfig
	Cart       CartConfig
	LocalStore LocalStoreConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// CatalogConfig locates the product catalog service.
type CatalogConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CartAPIConfig locates the server cart persistence service.
type CartAPIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SessionConfig controls session token verification and the anonymous
// session cookie.
type SessionConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	CookieName string
	// Insecure accepts unsigned tokens; local development only.
	Insecure bool
}

// CartConfig tunes the cart store engine.
type CartConfig struct {
	RemoteTimeout  time.Duration
	ReconcileDelay time.Duration
}

// LocalStoreConfig locates anonymous cart storage on disk.
type LocalStoreConfig struct {
	Dir string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env
// overrides, and environment variables.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	if err := ctx.Err(); err != nil {
		return Config{}, err
	}

	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "STOREFRONT_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Catalog: CatalogConfig{
			BaseURL: stringWithDefault(lookup, "STOREFRONT_CATALOG_BASE_URL", ""),
			Timeout: durationWithDefault(lookup, "STOREFRONT_CATALOG_TIMEOUT", defaultGatewayTimeout),
		},
		CartAPI: CartAPIConfig{
			BaseURL: stringWithDefault(lookup, "STOREFRONT_CART_API_BASE_URL", ""),
			Timeout: durationWithDefault(lookup, "STOREFRONT_CART_API_TIMEOUT", defaultGatewayTimeout),
		},
		Session: SessionConfig{
			Secret:     stringWithDefault(lookup, "STOREFRONT_SESSION_SECRET", ""),
			Issuer:     stringWithDefault(lookup, "STOREFRONT_SESSION_ISSUER", ""),
			Audience:   stringWithDefault(lookup, "STOREFRONT_SESSION_AUDIENCE", ""),
			CookieName: stringWithDefault(lookup, "STOREFRONT_SESSION_COOKIE", defaultSessionCookie),
			Insecure:   boolWithDefault(lookup, "STOREFRONT_SESSION_INSECURE", false),
		},
		Pricing: domain.PricingConfig{
			FreeShippingThreshold: int64WithDefault(lookup, "STOREFRONT_FREE_SHIPPING_THRESHOLD", domain.DefaultFreeShippingThreshold),
			ShippingFee:           int64WithDefault(lookup, "STOREFRONT_SHIPPING_FEE", domain.DefaultShippingFee),
		},
		Cart: CartConfig{
			RemoteTimeout:  durationWithDefault(lookup, "STOREFRONT_CART_REMOTE_TIMEOUT", defaultRemoteTimeout),
			ReconcileDelay: durationWithDefault(lookup, "STOREFRONT_CART_RECONCILE_DELAY", defaultReconcileDelay),
		},
		LocalStore: LocalStoreConfig{
			Dir: stringWithDefault(lookup, "STOREFRONT_LOCAL_STORE_DIR", defaultLocalStoreDir),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Catalog.BaseURL) == "" {
		missing = append(missing, "Catalog.BaseURL")
	}
	if strings.TrimSpace(cfg.CartAPI.BaseURL) == "" {
		missing = append(missing, "CartAPI.BaseURL")
	}
	if !cfg.Session.Insecure && strings.TrimSpace(cfg.Session.Secret) == "" {
		missing = append(missing, "Session.Secret")
	}
	if cfg.Pricing.FreeShippingThreshold <= 0 {
		missing = append(missing, "Pricing.FreeShippingThreshold")
	}
	if cfg.Pricing.ShippingFee <= 0 {
		missing = append(missing, "Pricing.ShippingFee")
	}
	if cfg.Cart.RemoteTimeout <= 0 {
		missing = append(missing, "Cart.RemoteTimeout")
	}
	if cfg.Cart.ReconcileDelay <= 0 {
		missing = append(missing, "Cart.ReconcileDelay")
	}
	if strings.TrimSpace(cfg.LocalStore.Dir) == "" {
		missing = append(missing, "LocalStore.Dir")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
