package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/flagx"
)

var knownFlags = []string{
	"-db", "-dsn", "-health", "-i", "-sync", "-timeout", "-retries", "-status", "-log-level", "-log-file",
}

// parseFlags populates Config fields from command-line flags. os.Args is
// filtered with flagx.FilterArgs first so that -c/-config and anything else
// owned by other loaders does not trip the flag set. Panics on bad values.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "path of the local database")
	fs.StringVar(&cfg.RemoteDSN, "dsn", cfg.RemoteDSN, "DSN of the hosted backend")
	fs.StringVar(&cfg.HealthEndpoint, "health", cfg.HealthEndpoint, "gRPC health endpoint of the backend")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.DurationVar(&cfg.SyncInterval, "sync", cfg.SyncInterval, "background sync interval")
	fs.DurationVar(&cfg.RemoteTimeout, "timeout", cfg.RemoteTimeout, "timeout of a single remote call")
	fs.IntVar(&cfg.RetryCeiling, "retries", cfg.RetryCeiling, "retry ceiling for queued changes")
	fs.StringVar(&cfg.StatusAddr, "status", cfg.StatusAddr, "listen address of the status API")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "log file")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
