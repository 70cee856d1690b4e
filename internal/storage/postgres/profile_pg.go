package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/coinledger/internal/domain"
)

type profileRow struct {
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	PinHash   string    `db:"pin_hash"`
	Cards     []byte    `db:"cards"`
	CreatedAt time.Time `db:"created_at"`
}

// ProfileStore keeps the profile registry in the profiles and active_profile tables.
type ProfileStore struct {
	db *sqlx.DB
}

// NewProfileStore creates a ProfileStore.
func NewProfileStore(db *sqlx.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Load reads all profiles and the active one.
func (s *ProfileStore) Load(ctx context.Context) (domain.Registry, error) {
	var rows []profileRow
	query := `SELECT email, name, pin_hash, cards, created_at FROM profiles`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return domain.Registry{}, errors.Wrap(err, "select profiles")
	}

	registry := domain.NewRegistry()
	for _, row := range rows {
		p := domain.Profile{
			Email:     row.Email,
			Name:      row.Name,
			PinHash:   row.PinHash,
			CreatedAt: row.CreatedAt,
		}
		if err := json.Unmarshal(row.Cards, &p.Cards); err != nil {
			return domain.Registry{}, errors.Wrapf(err, "decode cards of %s", row.Email)
		}
		registry.Profiles[row.Email] = p
	}

	var active sql.NullString
	err := s.db.GetContext(ctx, &active, `SELECT email FROM active_profile WHERE id = 1`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.Registry{}, errors.Wrap(err, "select active profile")
	}
	if active.Valid {
		if _, ok := registry.Profiles[active.String]; ok {
			registry.Active = active.String
		}
	}

	return registry, nil
}

// Save replaces the stored registry in one transaction.
func (s *ProfileStore) Save(ctx context.Context, registry domain.Registry) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin registry transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	emails := make([]string, 0, len(registry.Profiles))
	for email, p := range registry.Profiles {
		emails = append(emails, email)

		cards, mErr := json.Marshal(p.Cards)
		if mErr != nil {
			return errors.Wrap(mErr, "encode cards")
		}
		query := `INSERT INTO profiles (email, name, pin_hash, cards, created_at)
                  VALUES ($1, $2, $3, $4, $5)
                  ON CONFLICT (email) DO UPDATE
                  SET name = EXCLUDED.name, pin_hash = EXCLUDED.pin_hash, cards = EXCLUDED.cards`
		if _, err = tx.ExecContext(ctx, query, email, p.Name, p.PinHash, cards, p.CreatedAt); err != nil {
			return errors.Wrapf(err, "upsert profile %s", email)
		}
	}

	if len(emails) == 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM profiles`)
	} else {
		query, args, inErr := sqlx.In(`DELETE FROM profiles WHERE email NOT IN (?)`, emails)
		if inErr != nil {
			return errors.Wrap(inErr, "build profile cleanup")
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(query), args...)
	}
	if err != nil {
		return errors.Wrap(err, "delete removed profiles")
	}

	var active sql.NullString
	if registry.Active != "" {
		active = sql.NullString{String: registry.Active, Valid: true}
	}
	query := `INSERT INTO active_profile (id, email) VALUES (1, $1)
              ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email`
	if _, err = tx.ExecContext(ctx, query, active); err != nil {
		return errors.Wrap(err, "store active profile")
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit registry transaction")
	}
	return nil
}
