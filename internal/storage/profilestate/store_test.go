package profilestate

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/coinledger/internal/domain"
)

func TestStore_LoadMissingReturnsEmptyRegistry(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	reg, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reg.Profiles)
	assert.NotNil(t, reg.Profiles)
	assert.Empty(t, reg.Active)
}

func TestStore_RoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	reg := domain.NewRegistry()
	reg.Profiles["alice@example.com"] = domain.Profile{
		Email:     "alice@example.com",
		Name:      "Alice",
		PinHash:   "$2a$10$hash",
		Cards:     []domain.PaymentCard{{Last4: "4242", ExpiryMonth: 12, ExpiryYear: 2030, HolderName: "ALICE"}},
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	reg.Active = "alice@example.com"
	require.NoError(t, store.Save(ctx, reg))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Active)
	require.Contains(t, got.Profiles, "alice@example.com")
	alice := got.Profiles["alice@example.com"]
	assert.Equal(t, "Alice", alice.Name)
	assert.Equal(t, "$2a$10$hash", alice.PinHash)
	assert.Equal(t, reg.Profiles["alice@example.com"].Cards, alice.Cards)
	assert.True(t, alice.CreatedAt.Equal(reg.Profiles["alice@example.com"].CreatedAt))
}

func TestStore_DropsDanglingActive(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"profiles": {}, "active": "ghost@example.com"}`), 0o600))

	reg, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reg.Active)
}

func TestStore_CorruptFile(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"profiles": [`), 0o600))

	_, err = store.Load(context.Background())
	assert.Error(t, err)
}
