package config

import "time"

// Config holds runtime settings for the spendsync client.
//
// Fields:
//   - DatabasePath: SQLite file of the local durable store.
//   - RemoteDSN: pgx DSN of the hosted backend; empty runs against an in-process backend.
//   - HealthEndpoint: optional gRPC health endpoint probed for connectivity.
//   - OnlineCheckInterval / SyncInterval / RemoteTimeout: timing knobs.
//   - RetryCeiling: failed attempts after which a queue entry is parked.
//   - StatusAddr: listen address of the HTTP status API; empty disables it.
//   - JWTSecret: HS256 secret used to validate session tokens.
//   - S3*: receipt attachment storage; an empty bucket disables attachments.
//   - LogLevel / LogFile: logging; an empty file logs to stderr.
type Config struct {
	DatabasePath        string
	RemoteDSN           string
	HealthEndpoint      string
	OnlineCheckInterval time.Duration
	SyncInterval        time.Duration
	RemoteTimeout       time.Duration
	RetryCeiling        int
	StatusAddr          string
	JWTSecret           string
	S3Bucket            string
	S3Region            string
	S3BaseEndpoint      string
	S3AccessKey         string
	S3SecretKey         string
	LogLevel            string
	LogFile             string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "spendsync.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 5 * time.Minute
	c.RemoteTimeout = 10 * time.Second
	c.RetryCeiling = 3
	c.StatusAddr = "127.0.0.1:8089"
	c.S3Region = "us-east-1"
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment, JSON (if present) and command-line flags (if present).
// Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg, ".env")
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
