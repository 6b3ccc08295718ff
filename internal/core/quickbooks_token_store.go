package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invoice-agent/internal/tokencrypt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RefreshBuffer is how long before expiry a token is treated as expired.
const RefreshBuffer = 5 * time.Minute

// DecryptedTokens is a user's QuickBooks OAuth credential set in clear text.
type DecryptedTokens struct {
	AccessToken  string
	RefreshToken string
	RealmID      string
	ExpiresAt    time.Time
}

// QuickBooksTokenStore persists one encrypted token record per user.
type QuickBooksTokenStore interface {
	StoreTokens(ctx context.Context, userID, accessToken, refreshToken, realmID string, expiresAt time.Time) error
	// GetTokens returns nil, nil when the user has no record.
	GetTokens(ctx context.Context, userID string) (*DecryptedTokens, error)
	// UpdateTokens returns ErrNotFound when the user has no record.
	UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error
	DeleteTokens(ctx context.Context, userID string) error
	HasValidTokens(ctx context.Context, userID string) (bool, error)
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

type quickBooksTokenStore struct {
	pool   *pgxpool.Pool
	cipher *tokencrypt.Cipher
	now    func() time.Time
}

func NewQuickBooksTokenStore(pool *pgxpool.Pool, cipher *tokencrypt.Cipher) QuickBooksTokenStore {
	return NewQuickBooksTokenStoreWithClock(pool, cipher, time.Now)
}

// NewQuickBooksTokenStoreWithClock judges expiry against now instead of the wall clock.
func NewQuickBooksTokenStoreWithClock(pool *pgxpool.Pool, cipher *tokencrypt.Cipher, now func() time.Time) QuickBooksTokenStore {
	return &quickBooksTokenStore{pool: pool, cipher: cipher, now: now}
}

// StoreTokens inserts or replaces the user's record in a single statement.
func (s *quickBooksTokenStore) StoreTokens(ctx context.Context, userID, accessToken, refreshToken, realmID string, expiresAt time.Time) error {
	encAccess, encRefresh, err := s.encryptPair(accessToken, refreshToken)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO quickbooks_tokens (user_id, encrypted_access_token, encrypted_refresh_token, realm_id, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET encrypted_access_token = EXCLUDED.encrypted_access_token,
		    encrypted_refresh_token = EXCLUDED.encrypted_refresh_token,
		    realm_id = EXCLUDED.realm_id,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = NOW()`,
		userID, encAccess, encRefresh, realmID, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store quickbooks tokens for user %s: %w", userID, err)
	}
	return nil
}

// GetTokens returns nil, nil when the user has no record.
func (s *quickBooksTokenStore) GetTokens(ctx context.Context, userID string) (*DecryptedTokens, error) {
	var encAccess, encRefresh string
	t := &DecryptedTokens{}
	err := s.pool.QueryRow(ctx, `
		SELECT encrypted_access_token, encrypted_refresh_token, realm_id, expires_at
		FROM quickbooks_tokens
		WHERE user_id = $1`,
		userID,
	).Scan(&encAccess, &encRefresh, &t.RealmID, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read quickbooks tokens for user %s: %w", userID, err)
	}

	if t.AccessToken, err = s.cipher.Decrypt(encAccess); err != nil {
		return nil, err
	}
	if t.RefreshToken, err = s.cipher.Decrypt(encRefresh); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTokens overwrites the token pair after a refresh. The realm is left alone.
func (s *quickBooksTokenStore) UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	encAccess, encRefresh, err := s.encryptPair(accessToken, refreshToken)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE quickbooks_tokens
		SET encrypted_access_token = $2,
		    encrypted_refresh_token = $3,
		    expires_at = $4,
		    updated_at = NOW()
		WHERE user_id = $1`,
		userID, encAccess, encRefresh, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update quickbooks tokens for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *quickBooksTokenStore) DeleteTokens(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM quickbooks_tokens WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("failed to delete quickbooks tokens for user %s: %w", userID, err)
	}
	return nil
}

// HasValidTokens is true when a record exists and expires more than RefreshBuffer from now.
func (s *quickBooksTokenStore) HasValidTokens(ctx context.Context, userID string) (bool, error) {
	var expiresAt time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT expires_at FROM quickbooks_tokens WHERE user_id = $1", userID,
	).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check quickbooks tokens for user %s: %w", userID, err)
	}
	return TokenUsable(expiresAt, s.now()), nil
}

// CleanupExpiredTokens deletes records already past expiry and returns how many.
func (s *quickBooksTokenStore) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM quickbooks_tokens WHERE expires_at < $1", s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired quickbooks tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *quickBooksTokenStore) encryptPair(access, refresh string) (string, string, error) {
	encAccess, err := s.cipher.Encrypt(access)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefresh, err := s.cipher.Encrypt(refresh)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return encAccess, encRefresh, nil
}

// TokenUsable reports whether a token expiring at expiresAt can still be used at now
// without a refresh.
func TokenUsable(expiresAt, now time.Time) bool {
	return now.Before(expiresAt.Add(-RefreshBuffer))
}
