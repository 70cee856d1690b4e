// Package profile manages local user profiles and which one is active.
package profile

import (
	"context"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/vadiminshakov/coinledger/internal/domain"
	"github.com/vadiminshakov/coinledger/internal/events"
)

const (
	minPinLength = 4
	maxPinLength = 6
)

// Registry persists the profile registry.
type Registry interface {
	Load(ctx context.Context) (domain.Registry, error)
	Save(ctx context.Context, registry domain.Registry) error
}

// Manager keeps the profile registry and announces active profile changes.
type Manager struct {
	mu       sync.RWMutex
	store    Registry
	registry domain.Registry

	switches *events.Broadcaster[events.ProfileSwitched]
	logger   *zap.Logger
	now      func() time.Time
	hashCost int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSwitches publishes a ProfileSwitched event whenever the active profile changes.
func WithSwitches(b *events.Broadcaster[events.ProfileSwitched]) Option {
	return func(m *Manager) {
		m.switches = b
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithHashCost sets the bcrypt cost for pin hashes.
func WithHashCost(cost int) Option {
	return func(m *Manager) {
		m.hashCost = cost
	}
}

// NewManager loads the registry from store.
func NewManager(ctx context.Context, store Registry, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("registry store is required for Manager")
	}

	m := &Manager{
		store:    store,
		now:      time.Now,
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}

	registry, err := store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load profile registry")
	}
	if registry.Profiles == nil {
		registry.Profiles = make(map[string]domain.Profile)
	}
	m.registry = registry

	m.logger.Info("profiles loaded",
		zap.Int("count", len(registry.Profiles)),
		zap.String("active", registry.Active))

	return m, nil
}

// Create registers a profile and makes it active.
func (m *Manager) Create(ctx context.Context, name, email, pin string) (domain.Profile, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := validatePin(pin); err != nil {
		return domain.Profile{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), m.hashCost)
	if err != nil {
		return domain.Profile{}, errors.Wrap(err, "hash pin")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.registry.Profiles[email]; exists {
		return domain.Profile{}, errors.Wrapf(domain.ErrProfileExists, "%s", email)
	}

	p := domain.Profile{
		Email:     email,
		Name:      name,
		PinHash:   string(hash),
		Cards:     []domain.PaymentCard{},
		CreatedAt: m.now().UTC(),
	}

	next := m.registry.Clone()
	next.Profiles[email] = p
	next.Active = email
	if err := m.saveLocked(ctx, next); err != nil {
		return domain.Profile{}, err
	}

	m.logger.Info("profile created", zap.String("email", email))
	m.announce(email)

	return p.Clone(), nil
}

// Switch makes an existing profile active.
func (m *Manager) Switch(ctx context.Context, email string) error {
	email = canonical(email)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registry.Profiles[email]; !ok {
		return errors.Wrapf(domain.ErrProfileNotFound, "%s", email)
	}
	if m.registry.Active == email {
		return nil
	}

	next := m.registry.Clone()
	next.Active = email
	if err := m.saveLocked(ctx, next); err != nil {
		return err
	}

	m.logger.Info("profile switched", zap.String("email", email))
	m.announce(email)

	return nil
}

// SignOut clears the active profile.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registry.Active == "" {
		return nil
	}

	next := m.registry.Clone()
	next.Active = ""
	if err := m.saveLocked(ctx, next); err != nil {
		return err
	}

	m.logger.Info("signed out")
	m.announce("")

	return nil
}

// Delete removes a profile. Deleting the active profile signs out.
func (m *Manager) Delete(ctx context.Context, email string) error {
	email = canonical(email)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registry.Profiles[email]; !ok {
		return errors.Wrapf(domain.ErrProfileNotFound, "%s", email)
	}

	next := m.registry.Clone()
	delete(next.Profiles, email)
	wasActive := next.Active == email
	if wasActive {
		next.Active = ""
	}
	if err := m.saveLocked(ctx, next); err != nil {
		return err
	}

	m.logger.Info("profile deleted", zap.String("email", email), zap.Bool("was_active", wasActive))
	if wasActive {
		m.announce("")
	}

	return nil
}

// Active returns the active profile.
func (m *Manager) Active() (domain.Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.registry.Profiles[m.registry.Active]
	if !ok {
		return domain.Profile{}, false
	}
	return p.Clone(), true
}

// ActiveID returns the email of the active profile, or "" when nobody is signed in.
func (m *Manager) ActiveID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.registry.Active
}

// Get returns the profile registered under email.
func (m *Manager) Get(email string) (domain.Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.registry.Profiles[canonical(email)]
	if !ok {
		return domain.Profile{}, false
	}
	return p.Clone(), true
}

// List returns all profiles ordered by email.
func (m *Manager) List() []domain.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Profile, 0, len(m.registry.Profiles))
	for _, p := range m.registry.Profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })

	return out
}

// VerifyPin checks pin against the stored hash.
func (m *Manager) VerifyPin(email, pin string) error {
	p, ok := m.Get(email)
	if !ok {
		return errors.Wrapf(domain.ErrProfileNotFound, "%s", email)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PinHash), []byte(pin)); err != nil {
		return domain.ErrIncorrectPin
	}
	return nil
}

// Login verifies the pin and makes the profile active.
func (m *Manager) Login(ctx context.Context, email, pin string) error {
	if err := m.VerifyPin(email, pin); err != nil {
		return err
	}
	return m.Switch(ctx, email)
}

// AddCard stores the masked form of a payment card on the profile.
func (m *Manager) AddCard(ctx context.Context, email string, card CardInput) (domain.PaymentCard, error) {
	stored, err := card.toPaymentCard(m.now())
	if err != nil {
		return domain.PaymentCard{}, err
	}
	email = canonical(email)

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.registry.Profiles[email]
	if !ok {
		return domain.PaymentCard{}, errors.Wrapf(domain.ErrProfileNotFound, "%s", email)
	}

	next := m.registry.Clone()
	p = p.Clone()
	p.Cards = append(p.Cards, stored)
	next.Profiles[email] = p
	if err := m.saveLocked(ctx, next); err != nil {
		return domain.PaymentCard{}, err
	}

	m.logger.Info("card stored", zap.String("email", email), zap.String("card", stored.Masked()))

	return stored, nil
}

// Cards returns the stored cards of a profile.
func (m *Manager) Cards(email string) ([]domain.PaymentCard, error) {
	p, ok := m.Get(email)
	if !ok {
		return nil, errors.Wrapf(domain.ErrProfileNotFound, "%s", email)
	}
	return p.Cards, nil
}

func (m *Manager) saveLocked(ctx context.Context, next domain.Registry) error {
	if err := m.store.Save(ctx, next); err != nil {
		m.logger.Error("failed to save profile registry", zap.Error(err))
		return errors.Wrap(err, "save profile registry")
	}
	m.registry = next
	return nil
}

func (m *Manager) announce(email string) {
	m.switches.Publish(events.ProfileSwitched{ProfileID: email, Timestamp: m.now()})
}

func canonical(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeEmail(email string) (string, error) {
	email = canonical(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", errors.Wrapf(domain.ErrInvalidEmail, "%q", email)
	}
	return email, nil
}

func validatePin(pin string) error {
	if len(pin) < minPinLength || len(pin) > maxPinLength {
		return domain.ErrInvalidPin
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return domain.ErrInvalidPin
		}
	}
	return nil
}
