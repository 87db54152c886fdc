package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MongoDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GET_CACHE_TTL_SECONDS", "30")

	// empty STORE_DRIVER is rejected, unset falls back to mongo
	_, err := Load("api")
	require.Error(t, err)

	t.Setenv("STORE_DRIVER", StoreDriverMongo)
	cfg, err := Load("api")
	require.NoError(t, err)
	assert.Equal(t, "api", cfg.RunMode)
	assert.Equal(t, "bidmate", cfg.MongoDbName)
	assert.Equal(t, 30*time.Second, cfg.GetCacheTTL)
	assert.Equal(t, "8080", cfg.ApiPort)
	assert.Equal(t, 2, cfg.RateLimitSoftBucketSize)
	assert.Equal(t, 20*time.Minute, cfg.CaptchaTokenTTL)
	assert.Contains(t, cfg.TurnstileVerifyURL, "challenges.cloudflare.com")
}

func TestLoad_PostgresRequiresDatabaseURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", StoreDriverPostgres)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "")

	_, err := Load("api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/bidmate?sslmode=disable")
	cfg, err := Load("all")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/bidmate?sslmode=disable", cfg.DatabaseURL)
}

func TestLoad_InvalidNumber(t *testing.T) {
	t.Setenv("STORE_DRIVER", StoreDriverMongo)
	t.Setenv("MONGO_URI", "mongodb://localhost")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REDIS_DB", "zero")

	_, err := Load("api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_DB")
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	t.Setenv("STORE_DRIVER", StoreDriverMongo)
	t.Setenv("MONGO_URI", "mongodb://localhost")
	t.Setenv("JWT_SECRET", "")

	_, err := Load("api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}
