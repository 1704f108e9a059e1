package upstream_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/gsecret/upstream"
)

func TestMemoryClientCreateThenGetByID(t *testing.T) {
	c := upstream.NewMemoryClient()
	ctx := context.Background()

	created, err := c.Create(ctx, "db-password", "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	fetched, err := c.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "hunter2", fetched.Value)
	assert.Equal(t, "db-password", fetched.Key)
}

func TestMemoryClientCreateOverwritesByKey(t *testing.T) {
	c := upstream.NewMemoryClient()
	ctx := context.Background()

	first, err := c.Create(ctx, "api-key", "v1")
	require.NoError(t, err)

	second, err := c.Create(ctx, "api-key", "v2")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	fetched, err := c.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", fetched.Value)
}

func TestMemoryClientGetByIDMissingReturnsNilNotError(t *testing.T) {
	c := upstream.NewMemoryClient()
	secret, err := c.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, secret)
}

func TestMemoryClientSyncReturnsEverything(t *testing.T) {
	c := upstream.NewMemoryClient()
	ctx := context.Background()
	_, _ = c.Create(ctx, "a", "1")
	_, _ = c.Create(ctx, "b", "2")

	all, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
