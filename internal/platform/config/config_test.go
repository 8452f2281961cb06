package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_CATALOG_BASE_URL":  "https://catalog.greenraise.test",
		"STOREFRONT_CART_API_BASE_URL": "https://carts.greenraise.test",
		"STOREFRONT_SESSION_SECRET":    "dev-secret",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Pricing.FreeShippingThreshold != 5000 {
		t.Errorf("unexpected default free shipping threshold: %d", cfg.Pricing.FreeShippingThreshold)
	}
	if cfg.Pricing.ShippingFee != 599 {
		t.Errorf("unexpected default shipping fee: %d", cfg.Pricing.ShippingFee)
	}
	if cfg.Cart.RemoteTimeout != defaultRemoteTimeout {
		t.Errorf("unexpected default remote timeout: %s", cfg.Cart.RemoteTimeout)
	}
	if cfg.Cart.ReconcileDelay != defaultReconcileDelay {
		t.Errorf("unexpected default reconcile delay: %s", cfg.Cart.ReconcileDelay)
	}
	if cfg.LocalStore.Dir != defaultLocalStoreDir {
		t.Errorf("unexpected default local store dir: %s", cfg.LocalStore.Dir)
	}
	if cfg.Session.CookieName != defaultSessionCookie {
		t.Errorf("unexpected default session cookie: %s", cfg.Session.CookieName)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_SERVER_PORT":             "9090",
		"STOREFRONT_SERVER_READ_TIMEOUT":     "20s",
		"STOREFRONT_CATALOG_BASE_URL":        "https://catalog.internal",
		"STOREFRONT_CATALOG_TIMEOUT":         "2s",
		"STOREFRONT_CART_API_BASE_URL":       "https://carts.internal",
		"STOREFRONT_CART_API_TIMEOUT":        "3s",
		"STOREFRONT_SESSION_SECRET":          "prod-secret",
		"STOREFRONT_SESSION_ISSUER":          "greenraise",
		"STOREFRONT_SESSION_AUDIENCE":        "storefront",
		"STOREFRONT_FREE_SHIPPING_THRESHOLD": "7500",
		"STOREFRONT_SHIPPING_FEE":            "450",
		"STOREFRONT_CART_REMOTE_TIMEOUT":     "2500ms",
		"STOREFRONT_CART_RECONCILE_DELAY":    "500ms",
		"STOREFRONT_LOCAL_STORE_DIR":         "/var/lib/storefront/carts",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Catalog.BaseURL != "https://catalog.internal" || cfg.Catalog.Timeout != 2*time.Second {
		t.Errorf("unexpected catalog config %+v", cfg.Catalog)
	}
	if cfg.CartAPI.Timeout != 3*time.Second {
		t.Errorf("unexpected cart api config %+v", cfg.CartAPI)
	}
	if cfg.Pricing.FreeShippingThreshold != 7500 || cfg.Pricing.ShippingFee != 450 {
		t.Errorf("unexpected pricing config %+v", cfg.Pricing)
	}
	if cfg.Cart.RemoteTimeout != 2500*time.Millisecond || cfg.Cart.ReconcileDelay != 500*time.Millisecond {
		t.Errorf("unexpected cart config %+v", cfg.Cart)
	}
	if cfg.LocalStore.Dir != "/var/lib/storefront/carts" {
		t.Errorf("unexpected local store dir %s", cfg.LocalStore.Dir)
	}
}

func TestLoadValidationFailure(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	want := map[string]bool{"Catalog.BaseURL": false, "CartAPI.BaseURL": false, "Session.Secret": false}
	for _, field := range fields {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s reported missing, got %v", field, fields)
		}
	}
}

func TestLoadInsecureSessionSkipsSecret(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_CATALOG_BASE_URL":  "https://catalog.greenraise.test",
		"STOREFRONT_CART_API_BASE_URL": "https://carts.greenraise.test",
		"STOREFRONT_SESSION_INSECURE":  "true",
	}
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Session.Insecure {
		t.Errorf("expected insecure session mode")
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	contents := "" +
		"# local overrides\n" +
		"export STOREFRONT_CATALOG_BASE_URL=https://catalog.local\n" +
		"STOREFRONT_CART_API_BASE_URL=\"https://carts.local\"\n" +
		"STOREFRONT_SESSION_SECRET='file-secret'\n" +
		"STOREFRONT_SERVER_PORT=7070\n"
	if err := os.WriteFile(envPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Catalog.BaseURL != "https://catalog.local" {
		t.Errorf("unexpected catalog base url %s", cfg.Catalog.BaseURL)
	}
	if cfg.CartAPI.BaseURL != "https://carts.local" {
		t.Errorf("unexpected cart api base url %s", cfg.CartAPI.BaseURL)
	}
	if cfg.Session.Secret != "file-secret" {
		t.Errorf("unexpected session secret %s", cfg.Session.Secret)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("unexpected port %s", cfg.Server.Port)
	}
}

func TestEnvMapTakesPrecedenceOverDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("STOREFRONT_SERVER_PORT=7070\n"), 0o644); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	env := map[string]string{
		"STOREFRONT_SERVER_PORT":       "9999",
		"STOREFRONT_CATALOG_BASE_URL":  "https://catalog.greenraise.test",
		"STOREFRONT_CART_API_BASE_URL": "https://carts.greenraise.test",
		"STOREFRONT_SESSION_SECRET":    "dev-secret",
	}
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("expected env map to win, got %s", cfg.Server.Port)
	}
}
