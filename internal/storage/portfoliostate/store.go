// Package portfoliostate persists one portfolio per storage key as a JSON file.
package portfoliostate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/coinledger/internal/domain"
)

const defaultStateDir = "./data/portfolios"

// Store persists portfolios per storage key so restarts keep balances, holdings and history.
type Store struct {
	mu  sync.Mutex
	dir string
}

func getStateDir() string {
	if stateDir := os.Getenv("COINLEDGER_PORTFOLIO_DIR"); stateDir != "" {
		return stateDir
	}
	return defaultStateDir
}

// NewStore creates a portfolio store rooted at dir (or the default directory when empty).
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = getStateDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create portfolio state dir")
	}

	return &Store{dir: dir}, nil
}

// Path returns the file used for key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, fileName(key))
}

// Load reads the portfolio stored under key. It returns nil, nil when nothing is stored yet.
func (s *Store) Load(ctx context.Context, key string) (*domain.Portfolio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read portfolio state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	portfolio, err := Decode(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "decode portfolio state %s", key)
	}

	return &portfolio, nil
}

// Save writes the portfolio to disk atomically via temp file.
func (s *Store) Save(ctx context.Context, key string, portfolio domain.Portfolio) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := Encode(portfolio)
	if err != nil {
		return errors.Wrap(err, "encode portfolio state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write portfolio state temp file")
	}

	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "persist portfolio state")
	}

	return nil
}

// Delete removes the portfolio stored under key. Missing files are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "delete portfolio state")
	}
	return nil
}

// fileName maps a storage key to a readable file name. The hash suffix keeps
// keys that sanitize to the same name (a.b vs a_b) apart.
func fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := sanitizeScope(key)
	if name == "" {
		name = "portfolio"
	}
	return fmt.Sprintf("%s-%s.json", name, hex.EncodeToString(sum[:4]))
}

func sanitizeScope(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}

	var b strings.Builder

	prevUnderscore := false

	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)

			prevUnderscore = false

			continue
		}

		if !prevUnderscore {
			b.WriteByte('_')

			prevUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
