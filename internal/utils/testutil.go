package utils

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	_ "github.com/lib/pq"
)

var loadEnvOnce sync.Once

// loadTestEnv loads the project .env so that store tests pick up MONGO_URI
// and DATABASE_URL the same way the binary does.
func loadTestEnv() {
	loadEnvOnce.Do(func() {
		_, filename, _, _ := runtime.Caller(0)
		// Project root is 2 levels up from this file
		projectRoot := filepath.Join(filepath.Dir(filename), "..", "..")
		if err := godotenv.Load(filepath.Join(projectRoot, ".env")); err != nil {
			_ = godotenv.Load()
		}
	})
}

// SetupTestMongo connects to MONGO_URI and returns a database unique to the
// test, dropped on cleanup. The test is skipped when MONGO_URI is not set.
// Transactions need MONGO_URI to point at a replica set.
func SetupTestMongo(t *testing.T) (*mongo.Client, *mongo.Database) {
	t.Helper()
	loadTestEnv()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set; skipping MongoDB test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err, "Failed to connect to MongoDB")
	require.NoError(t, client.Ping(ctx, nil), "Failed to ping MongoDB")

	db := client.Database(fmt.Sprintf("bidmate_test_%s", strings.ToLower(NewSixID().String())))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return client, db
}

// SetupTestPostgres opens DATABASE_URL with the marketplace tables dropped,
// so the caller starts from an empty schema. The test is skipped when
// DATABASE_URL is not set.
func SetupTestPostgres(t *testing.T) *sql.DB {
	t.Helper()
	loadTestEnv()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping PostgreSQL test")
	}

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err, "Failed to open PostgreSQL")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, sqlDB.PingContext(ctx), "Failed to ping PostgreSQL")

	dropTables := func() {
		_, _ = sqlDB.ExecContext(context.Background(), `DROP TABLE IF EXISTS offers; DROP TABLE IF EXISTS items; DROP TABLE IF EXISTS contacts;`)
	}
	dropTables()
	t.Cleanup(func() {
		dropTables()
		_ = sqlDB.Close()
	})
	return sqlDB
}

// SetupTestRedis connects to REDIS_ADDR. The test is skipped when it is not set.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	loadTestEnv()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping Redis test")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rdb.Ping(ctx).Err(), "Failed to ping Redis")
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
