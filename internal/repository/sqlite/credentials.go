package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/healthos/internal/apperror"
	"github.com/sakif/healthos/internal/model"
	"github.com/sakif/healthos/internal/repository"
)

var _ repository.CredentialRepository = (*DB)(nil)

// SaveCredential replaces the stored credential with a new token pair.
// Access and refresh token are written by one statement, so a crash can
// never leave a new access token next to a stale refresh token.
func (db *DB) SaveCredential(ctx context.Context, accessToken, refreshToken string, expiresIn int64, scope string) error {
	now := db.now()
	expiresAt := now.Add(time.Duration(expiresIn) * time.Second).Unix()

	var scopeArg any
	if scope != "" {
		scopeArg = scope
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO auth_tokens (id, access_token, refresh_token, expires_at, scope, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?)`,
		accessToken, refreshToken, expiresAt, scopeArg, timestamp(now),
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving credential: %w", err)
	}
	return nil
}

func (db *DB) GetCredential(ctx context.Context) (*model.Credential, error) {
	var (
		c         model.Credential
		scope     sql.NullString
		updatedAt string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at, scope, updated_at
		 FROM auth_tokens WHERE id = 1`,
	).Scan(&c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &scope, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("credential", "1")
		}
		return nil, fmt.Errorf("sqlite: getting credential: %w", err)
	}

	c.Scope = scope.String
	if c.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("sqlite: parsing credential updated_at: %w", err)
	}
	return &c, nil
}

// DeleteCredential is idempotent: deleting a missing credential is not an error.
func (db *DB) DeleteCredential(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM auth_tokens WHERE id = 1`); err != nil {
		return fmt.Errorf("sqlite: deleting credential: %w", err)
	}
	return nil
}
