package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// newTestMongoStore needs a reachable MongoDB in MONGODB_URI. Each test gets a
// throwaway database.
func newTestMongoStore(t *testing.T) *MongoSessionStore {
	t.Helper()

	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := Connect(ctx, uri)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	dbName := fmt.Sprintf("userdirectory_test_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Database(dbName).Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	store := NewMongoSessionStore(OpenCollection(client, dbName, RefreshTokensCollection))
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("indexes: %v", err)
	}
	return store
}

func TestMongoSessionStoreLifecycle(t *testing.T) {
	testSessionLifecycle(t, newTestMongoStore(t))
}

func TestMongoSessionStoreRevokeAllForUser(t *testing.T) {
	testRevokeAllForUser(t, newTestMongoStore(t))
}

func TestMongoSessionStoreCreateValidates(t *testing.T) {
	testCreateValidates(t, newTestMongoStore(t))
}

func TestConnectRequiresURI(t *testing.T) {
	if _, err := Connect(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty uri")
	}
}
