// Package profilestate persists the profile registry as a single JSON file.
package profilestate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/coinledger/internal/domain"
)

const (
	defaultStateDir = "./data"
	registryFile    = "profiles.json"
)

// Store keeps all profiles and the active profile id in one file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a registry store in dir (or the default directory when empty).
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultStateDir
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create profile state dir")
	}

	return &Store{path: filepath.Join(dir, registryFile)}, nil
}

// Path returns the registry file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the registry. A missing file yields an empty registry.
func (s *Store) Load(ctx context.Context) (domain.Registry, error) {
	if err := ctx.Err(); err != nil {
		return domain.Registry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.NewRegistry(), nil
		}
		return domain.Registry{}, errors.Wrap(err, "read profile registry")
	}
	if len(payload) == 0 {
		return domain.NewRegistry(), nil
	}

	registry := domain.NewRegistry()
	if err := json.Unmarshal(payload, &registry); err != nil {
		return domain.Registry{}, errors.Wrap(err, "decode profile registry")
	}
	if registry.Profiles == nil {
		registry.Profiles = make(map[string]domain.Profile)
	}
	if _, ok := registry.Profiles[registry.Active]; !ok {
		registry.Active = ""
	}

	return registry, nil
}

// Save writes the registry atomically via temp file.
func (s *Store) Save(ctx context.Context, registry domain.Registry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode profile registry")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return errors.Wrap(err, "write profile registry temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist profile registry")
	}

	return nil
}
