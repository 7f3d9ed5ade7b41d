package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"example.com/therapymatch/internal/config"
)

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := Open(ctx, config.Config{Store: config.StoreMemory, SeedOnStart: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer closeFn()

	activities, err := store.ListActivities(ctx)
	require.NoError(t, err)
	require.Len(t, activities, 5)

	chats, err := store.ListChats(ctx, "pat1")
	require.NoError(t, err)
	require.Len(t, chats, 1)
}

func TestOpenEmptyMemoryStore(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := Open(ctx, config.Config{Store: config.StoreMemory}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer closeFn()

	patients, err := store.ListPatients(ctx)
	require.NoError(t, err)
	require.Empty(t, patients)
}
