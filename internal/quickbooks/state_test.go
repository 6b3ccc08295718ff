package quickbooks_test

import (
	"context"
	"os"
	"testing"
	"time"

	"invoice-agent/internal/quickbooks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStateStore(t *testing.T, s quickbooks.StateStore) {
	ctx := context.Background()
	state, err := quickbooks.NewState()
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, state, "user-1", time.Minute))
	user, err := s.Consume(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user)

	_, err = s.Consume(ctx, state)
	assert.ErrorIs(t, err, quickbooks.ErrStateInvalid, "states are single use")

	_, err = s.Consume(ctx, "never-issued")
	assert.ErrorIs(t, err, quickbooks.ErrStateInvalid)
}

func TestMemoryStateStore(t *testing.T) {
	exerciseStateStore(t, quickbooks.NewMemoryStateStore())
}

func TestMemoryStateStore_Expiry(t *testing.T) {
	s := quickbooks.NewMemoryStateStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "st", "u", -time.Second))
	_, err := s.Consume(ctx, "st")
	assert.ErrorIs(t, err, quickbooks.ErrStateInvalid)
}

func TestNewState_Unique(t *testing.T) {
	a, err := quickbooks.NewState()
	require.NoError(t, err)
	b, err := quickbooks.NewState()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
}

func TestRedisStateStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping redis integration test")
	}
	client := quickbooks.NewRedisClient(addr, "", 0)
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	exerciseStateStore(t, quickbooks.NewRedisStateStore(client, "invoice-agent-test"))
}
