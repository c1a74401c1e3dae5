package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable the client reads.
const EnvPrefix = "SPENDSYNC_"

// parseEnv overlays Config with SPENDSYNC_* environment variables.
//
// Each existing file in envFiles is loaded first with godotenv; variables
// already present in the process environment win over the file. Malformed
// numbers or durations panic, like the JSON and flag loaders do.
func parseEnv(cfg *Config, envFiles ...string) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
	}

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				panic(err)
			}
			*dst = d
		}
	}

	str("DATABASE_PATH", &cfg.DatabasePath)
	str("REMOTE_DSN", &cfg.RemoteDSN)
	str("HEALTH_ENDPOINT", &cfg.HealthEndpoint)
	dur("ONLINE_CHECK_INTERVAL", &cfg.OnlineCheckInterval)
	dur("SYNC_INTERVAL", &cfg.SyncInterval)
	dur("REMOTE_TIMEOUT", &cfg.RemoteTimeout)
	if v, ok := os.LookupEnv(EnvPrefix + "RETRY_CEILING"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		cfg.RetryCeiling = n
	}
	str("STATUS_ADDR", &cfg.StatusAddr)
	str("JWT_SECRET", &cfg.JWTSecret)
	str("S3_BUCKET", &cfg.S3Bucket)
	str("S3_REGION", &cfg.S3Region)
	str("S3_BASE_ENDPOINT", &cfg.S3BaseEndpoint)
	str("S3_ACCESS_KEY", &cfg.S3AccessKey)
	str("S3_SECRET_KEY", &cfg.S3SecretKey)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FILE", &cfg.LogFile)
}
