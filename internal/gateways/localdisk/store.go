package localdisk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/greenraise/storefront/internal/gateways"
)

// Store persists the anonymous cart as a single JSON document on local disk,
// one file per session key. It is the server-side analog of the browser's
// local-storage cart: cheap, unversioned, and gone when cleared.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store writing to <dir>/<sessionKey>.json.
func NewStore(dir, sessionKey string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	key := strings.TrimSpace(sessionKey)
	if dir == "" {
		return nil, errors.New("local cart store: directory is required")
	}
	if key == "" {
		return nil, errors.New("local cart store: session key is required")
	}
	if key != filepath.Base(key) || strings.ContainsAny(key, "/\\") {
		return nil, fmt.Errorf("local cart store: invalid session key %q", sessionKey)
	}
	return &Store{path: filepath.Join(dir, key+".json")}, nil
}

// Load reads the stored cart. An absent file is an empty cart.
func (s *Store) Load(ctx context.Context) ([]gateways.StoredLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []gateways.StoredLine{}, nil
		}
		return nil, fmt.Errorf("local cart store: read: %w", err)
	}

	var lines []gateways.StoredLine
	if err := json.Unmarshal(data, &lines); err != nil {
		// A corrupt document behaves like a cleared one rather than wedging
		// the cart forever.
		return []gateways.StoredLine{}, nil
	}
	if lines == nil {
		lines = []gateways.StoredLine{}
	}
	return lines, nil
}

// Save replaces the stored cart. The write is atomic: a torn write never
// leaves a half-document behind.
func (s *Store) Save(ctx context.Context, lines []gateways.StoredLine) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if lines == nil {
		lines = []gateways.StoredLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("local cart store: encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("local cart store: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cart-*.tmp")
	if err != nil {
		return fmt.Errorf("local cart store: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("local cart store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("local cart store: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("local cart store: rename: %w", err)
	}
	return nil
}

// Clear deletes the stored cart. Clearing an absent cart succeeds.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("local cart store: clear: %w", err)
	}
	return nil
}

var _ gateways.LocalCartStore = (*Store)(nil)
