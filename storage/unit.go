package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sgcx/compmap/org"
)

// SaveUnit upserts a unit row.
func (s *Store) SaveUnit(ctx context.Context, u *org.Unit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO units(id, sigil, name, superior_id) VALUES(?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET sigil = excluded.sigil,
			name = excluded.name, superior_id = excluded.superior_id`,
		u.ID, u.Sigil, u.Name, u.SuperiorID)
	if err != nil {
		return fmt.Errorf("save unit %s: %w", u.ID, err)
	}
	return nil
}

// Get implements org.Directory.
func (s *Store) Get(ctx context.Context, unitID string) (*org.Unit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, sigil, name, superior_id FROM units WHERE id = ?`, unitID)
	var u org.Unit
	err := row.Scan(&u.ID, &u.Sigil, &u.Name, &u.SuperiorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unit %s: %w", unitID, org.ErrUnknownUnit)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SuperiorOf implements org.Directory.
func (s *Store) SuperiorOf(ctx context.Context, unitID string) (*org.Unit, error) {
	u, err := s.Get(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if u.SuperiorID == "" {
		return nil, fmt.Errorf("unit %s: %w", unitID, org.ErrNoSuperior)
	}
	return s.Get(ctx, u.SuperiorID)
}

// BySigil returns the unit with the given sigil.
func (s *Store) BySigil(ctx context.Context, sigil string) (*org.Unit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, sigil, name, superior_id FROM units WHERE sigil = ?`, sigil)
	var u org.Unit
	err := row.Scan(&u.ID, &u.Sigil, &u.Name, &u.SuperiorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unit with sigil %s: %w", sigil, org.ErrUnknownUnit)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
