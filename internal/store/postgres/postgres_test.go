package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"tuition/internal/store"
	"tuition/internal/store/postgres"
	"tuition/internal/store/storetest"
)

func TestRepositoryBehaviour(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := store.NewDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := postgres.New(db.Client)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Ping(ctx))

	storetest.Run(t, s)
}
