package core_test

import (
	"context"
	"testing"
	"time"

	"invoice-agent/internal/core"
	"invoice-agent/internal/tokencrypt"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuickBooksTokenStore(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	cipher, err := tokencrypt.NewCipher("integration-test-key")
	require.NoError(t, err)

	now := time.Now()
	store := core.NewQuickBooksTokenStoreWithClock(pool, cipher, func() time.Time { return now })
	user := uuid.NewString()

	t.Run("missing record", func(t *testing.T) {
		toks, err := store.GetTokens(ctx, user)
		require.NoError(t, err)
		assert.Nil(t, toks)

		ok, err := store.HasValidTokens(ctx, user)
		require.NoError(t, err)
		assert.False(t, ok)

		assert.ErrorIs(t, store.UpdateTokens(ctx, user, "a", "r", now), core.ErrNotFound)
	})

	t.Run("upsert keeps one record", func(t *testing.T) {
		require.NoError(t, store.StoreTokens(ctx, user, "access-1", "refresh-1", "realm-1", now.Add(time.Hour)))
		require.NoError(t, store.StoreTokens(ctx, user, "access-2", "refresh-2", "realm-2", now.Add(time.Hour)))

		var n int
		require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM quickbooks_tokens WHERE user_id = $1", user).Scan(&n))
		assert.Equal(t, 1, n)

		toks, err := store.GetTokens(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, "access-2", toks.AccessToken)
		assert.Equal(t, "refresh-2", toks.RefreshToken)
		assert.Equal(t, "realm-2", toks.RealmID)
	})

	t.Run("stored encrypted", func(t *testing.T) {
		var enc string
		require.NoError(t, pool.QueryRow(ctx, "SELECT encrypted_access_token FROM quickbooks_tokens WHERE user_id = $1", user).Scan(&enc))
		assert.NotContains(t, enc, "access-2")
		assert.True(t, tokencrypt.IsValidEncryptedData(enc))
	})

	t.Run("expiry buffer", func(t *testing.T) {
		require.NoError(t, store.UpdateTokens(ctx, user, "a", "r", now.Add(4*time.Minute)))
		ok, err := store.HasValidTokens(ctx, user)
		require.NoError(t, err)
		assert.False(t, ok, "inside the 5 minute buffer")

		require.NoError(t, store.UpdateTokens(ctx, user, "a", "r", now.Add(6*time.Minute)))
		ok, err = store.HasValidTokens(ctx, user)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("cleanup expired", func(t *testing.T) {
		other := uuid.NewString()
		require.NoError(t, store.StoreTokens(ctx, other, "a", "r", "realm", now.Add(-time.Minute)))

		n, err := store.CleanupExpiredTokens(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		toks, err := store.GetTokens(ctx, other)
		require.NoError(t, err)
		assert.Nil(t, toks)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.DeleteTokens(ctx, user))
		toks, err := store.GetTokens(ctx, user)
		require.NoError(t, err)
		assert.Nil(t, toks)
	})
}

func TestTokenUsable(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, core.TokenUsable(now.Add(10*time.Minute), now))
	assert.False(t, core.TokenUsable(now.Add(5*time.Minute), now))
	assert.False(t, core.TokenUsable(now.Add(-time.Minute), now))
}
