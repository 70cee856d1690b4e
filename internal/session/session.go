// Package session keeps the active profile and the loaded portfolio in step.
//
// Every call that changes the active profile returns only after the ledger holds the
// portfolio of the new profile, so a trade issued right after a switch never lands on
// the previous profile's key.
package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/coinledger/internal/domain"
	"github.com/vadiminshakov/coinledger/internal/events"
	"github.com/vadiminshakov/coinledger/internal/ledger"
	"github.com/vadiminshakov/coinledger/internal/profile"
)

// Profiles is the profile registry a session drives.
type Profiles interface {
	List() []domain.Profile
	ActiveID() string
	Get(email string) (domain.Profile, bool)
	Create(ctx context.Context, name, email, pin string) (domain.Profile, error)
	Login(ctx context.Context, email, pin string) error
	SignOut(ctx context.Context) error
	Delete(ctx context.Context, email string) error
	AddCard(ctx context.Context, email string, card profile.CardInput) (domain.PaymentCard, error)
}

// Ledger is the part of the portfolio ledger a session switches.
type Ledger interface {
	Key() string
	Load(ctx context.Context, profileID string) error
	Discard(ctx context.Context, profileID string) error
}

// Session serializes profile changes with the ledger reloads they require.
type Session struct {
	mu       sync.Mutex
	profiles Profiles
	ledger   Ledger
	logger   *zap.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// New creates a session over profiles and ledger.
func New(profiles Profiles, l Ledger, opts ...Option) *Session {
	s := &Session{
		profiles: profiles,
		ledger:   l,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func (s *Session) List() []domain.Profile {
	return s.profiles.List()
}

func (s *Session) ActiveID() string {
	return s.profiles.ActiveID()
}

func (s *Session) AddCard(ctx context.Context, email string, card profile.CardInput) (domain.PaymentCard, error) {
	return s.profiles.AddCard(ctx, email, card)
}

// Create registers a profile, activates it and loads its portfolio.
func (s *Session) Create(ctx context.Context, name, email, pin string) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.profiles.Create(ctx, name, email, pin)
	if err != nil {
		return domain.Profile{}, err
	}
	return p, s.syncLocked(ctx)
}

// Login checks the pin, activates the profile and loads its portfolio.
func (s *Session) Login(ctx context.Context, email, pin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.profiles.Login(ctx, email, pin); err != nil {
		return err
	}
	return s.syncLocked(ctx)
}

// SignOut clears the active profile and moves the ledger to the default portfolio.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.profiles.SignOut(ctx); err != nil {
		return err
	}
	return s.syncLocked(ctx)
}

// Delete removes a profile together with its portfolio. A profile registered later
// under the same email starts from an empty portfolio.
func (s *Session) Delete(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles.Get(email)
	if !ok {
		return errors.Wrapf(domain.ErrProfileNotFound, "%s", email)
	}
	if err := s.profiles.Delete(ctx, p.Email); err != nil {
		return err
	}

	// unsaved state of the deleted portfolio blocks the move; Discard resets it in place
	if err := s.syncLocked(ctx); err != nil {
		s.logger.Warn("deleted portfolio still loaded", zap.String("email", p.Email), zap.Error(err))
	}
	if err := s.ledger.Discard(ctx, p.Email); err != nil {
		return err
	}

	s.logger.Info("profile and portfolio deleted", zap.String("email", p.Email))

	return s.syncLocked(ctx)
}

// Sync loads the portfolio of the active profile unless it is already loaded.
func (s *Session) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.syncLocked(ctx)
}

// Follow calls Sync for every profile switch received on switches, which catches
// switches made on the registry directly. It returns when ctx is done or switches is closed.
func (s *Session) Follow(ctx context.Context, switches <-chan events.ProfileSwitched) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-switches:
			if !ok {
				return nil
			}
			if err := s.Sync(ctx); err != nil {
				s.logger.Error("failed to follow profile switch",
					zap.String("profile", ev.ProfileID), zap.Error(err))
			}
		}
	}
}

// syncLocked reads the active profile at call time, so switch events that arrive late
// or not at all cannot point the ledger at the wrong portfolio.
func (s *Session) syncLocked(ctx context.Context) error {
	id := s.profiles.ActiveID()
	if s.ledger.Key() == ledger.StorageKey(id) {
		return nil
	}
	return s.ledger.Load(ctx, id)
}
