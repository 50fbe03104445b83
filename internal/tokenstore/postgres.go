package tokenstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore keeps the current token record in a Postgres tokens table.
// Save deletes all prior rows and inserts the new one inside one transaction,
// so a reader never observes an older record after Save returns.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check to ensure PostgresStore implements Store
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore constructs a store bound to the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Save persists rec as the sole current row.
func (p *PostgresStore) Save(ctx context.Context, rec Record) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tokens`); err != nil {
		return fmt.Errorf("superseding prior tokens: %w", err)
	}

	const query = `
		INSERT INTO tokens (realm_id, access_token, refresh_token, token_type, expires_at, raw, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	expiresAt := sql.NullTime{Time: rec.ExpiresAt, Valid: !rec.ExpiresAt.IsZero()}
	raw := rec.Raw
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if _, err := tx.ExecContext(ctx, query,
		rec.RealmID, rec.AccessToken, rec.RefreshToken, rec.TokenType,
		expiresAt, []byte(raw), rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("inserting token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing token: %w", err)
	}
	return nil
}

// LoadLatest returns the newest row, or ErrNoToken if the table is empty.
func (p *PostgresStore) LoadLatest(ctx context.Context) (Record, error) {
	const query = `
		SELECT realm_id, access_token, refresh_token, token_type, expires_at, raw, created_at
		FROM tokens
		ORDER BY id DESC
		LIMIT 1
	`
	var (
		rec       Record
		expiresAt sql.NullTime
		raw       []byte
	)
	err := p.db.QueryRowContext(ctx, query).Scan(
		&rec.RealmID, &rec.AccessToken, &rec.RefreshToken, &rec.TokenType,
		&expiresAt, &raw, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNoToken
		}
		return Record{}, fmt.Errorf("loading token: %w", err)
	}
	if expiresAt.Valid {
		rec.ExpiresAt = expiresAt.Time
	}
	rec.Raw = raw
	return rec, nil
}
