package mongodb_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"tuition/internal/store"
	"tuition/internal/store/mongodb"
	"tuition/internal/store/storetest"
)

func TestRepositoryBehaviour(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}
	ctx := context.Background()
	m, err := store.NewMongo(ctx, uri, "tuition_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.DB.Drop(context.Background())
		_ = m.Close(context.Background())
	})

	// Transactions need a replica set or mongos.
	var hello bson.M
	require.NoError(t, m.DB.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello))
	if _, ok := hello["setName"]; !ok && hello["msg"] != "isdbgrid" {
		t.Skip("MONGODB_URI is a standalone server, transactions unavailable")
	}

	s := mongodb.New(m.DB)
	require.NoError(t, s.EnsureIndexes(ctx))
	require.NoError(t, s.Ping(ctx))

	storetest.Run(t, s)
}
