package testdb

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/phrazzld/scry-deckgen/internal/platform/postgres"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// TestTimeout defines a default timeout for test database operations.
const TestTimeout = 5 * time.Second

// Environment variables holding connection strings for integration tests
const (
	DatabaseURLEnv = "DECKGEN_TEST_DATABASE_URL"
	RedisURLEnv    = "DECKGEN_TEST_REDIS_URL"
)

// GetTestDatabaseURL returns the database URL for tests, or "" if unset.
func GetTestDatabaseURL() string {
	return os.Getenv(DatabaseURLEnv)
}

// GetTestDBWithT returns a migrated database connection. It skips the test
// when no database URL is configured and closes the connection on cleanup.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		t.Skip(DatabaseURLEnv + " not set - skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	logger := discardLogger()
	db, err := postgres.Open(ctx, dbURL, postgres.DefaultPoolConfig(), logger)
	require.NoError(t, err, "Failed to open database connection")

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close database connection: %v", err)
		}
	})

	require.NoError(t, postgres.Migrate(ctx, db, postgres.MigrateUp, logger), "Failed to run migrations")
	return db
}

// GetTestRedisWithT returns a Redis client. It skips the test when no Redis
// URL is configured and closes the client on cleanup.
func GetTestRedisWithT(t *testing.T) *redis.Client {
	t.Helper()

	redisURL := os.Getenv(RedisURLEnv)
	if redisURL == "" {
		t.Skip(RedisURLEnv + " not set - skipping integration test")
	}

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err, "Failed to parse Redis URL")

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err(), "Redis ping failed")

	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
