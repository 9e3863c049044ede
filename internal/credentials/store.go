package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists one token set per signed-in user in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Load returns the stored credentials for userID, or (nil, nil) when the
// user has not connected a company.
func (s *Store) Load(ctx context.Context, userID string) (*Credentials, error) {
	var (
		c      Credentials
		expiry *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT realm_id, access_token, refresh_token, expires_at
		FROM quickbooks_credentials
		WHERE user_id = $1`, userID,
	).Scan(&c.TenantID, &c.AccessToken, &c.RefreshToken, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials for user %s: %w", userID, err)
	}
	if expiry != nil {
		c.Expiry = *expiry
	}
	return &c, nil
}

// Save upserts the credentials for userID.
func (s *Store) Save(ctx context.Context, userID string, c *Credentials) error {
	var expiry *time.Time
	if !c.Expiry.IsZero() {
		expiry = &c.Expiry
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quickbooks_credentials (user_id, realm_id, access_token, refresh_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_id) DO UPDATE
		SET realm_id = EXCLUDED.realm_id,
		    access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = now()`,
		userID, c.TenantID, c.AccessToken, c.RefreshToken, expiry,
	)
	if err != nil {
		return fmt.Errorf("save credentials for user %s: %w", userID, err)
	}
	return nil
}

// Delete removes the credentials for userID.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM quickbooks_credentials WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete credentials for user %s: %w", userID, err)
	}
	return nil
}

// ForUser returns a Provider reading userID's stored credentials.
func (s *Store) ForUser(userID string) Provider {
	return ProviderFunc(func(ctx context.Context) (*Credentials, error) {
		if userID == "" {
			return nil, nil
		}
		return s.Load(ctx, userID)
	})
}
