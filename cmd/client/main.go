// Command client runs the spendsync offline-first expense client: a REPL on
// top of a local SQLite store that syncs with the hosted backend in the
// background.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/client/attachments"
	"github.com/dmitrijs2005/spendsync/internal/client/auth"
	"github.com/dmitrijs2005/spendsync/internal/client/cli"
	"github.com/dmitrijs2005/spendsync/internal/client/config"
	"github.com/dmitrijs2005/spendsync/internal/client/connectivity"
	"github.com/dmitrijs2005/spendsync/internal/client/remote"
	"github.com/dmitrijs2005/spendsync/internal/client/services"
	"github.com/dmitrijs2005/spendsync/internal/client/statusapi"
	"github.com/dmitrijs2005/spendsync/internal/client/store"
	"github.com/dmitrijs2005/spendsync/internal/client/syncer"
	"github.com/dmitrijs2005/spendsync/internal/logging"
)

// demoSecret signs tokens when the client runs against the in-process
// backend without a configured secret.
const demoSecret = "spendsync-demo"

func main() {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	local, err := store.Open(ctx, cfg.DatabasePath, store.Options{
		RetryCeiling: cfg.RetryCeiling,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer local.Close()

	var (
		backend remote.Adapter
		secret  = []byte(cfg.JWTSecret)
	)
	if cfg.RemoteDSN != "" {
		pg, err := remote.OpenPostgres(cfg.RemoteDSN, cfg.RemoteTimeout, logger)
		if err != nil {
			return fmt.Errorf("open remote: %w", err)
		}
		defer pg.Close()
		backend = pg
		if len(secret) == 0 {
			return errors.New("a JWT secret is required when a remote DSN is set")
		}
	} else {
		backend = remote.NewMemoryAdapter()
		if len(secret) == 0 {
			secret = []byte(demoSecret)
		}
		token, err := auth.IssueToken("demo", secret, 24*time.Hour)
		if err != nil {
			return err
		}
		logger.Info(ctx, "running against in-process backend", "demo_token", token)
	}

	checkers := connectivity.Any{connectivity.NewRemoteChecker(backend, cfg.RemoteTimeout)}
	if cfg.HealthEndpoint != "" {
		hc, err := connectivity.NewGRPCHealthChecker(cfg.HealthEndpoint, "", cfg.RemoteTimeout)
		if err != nil {
			return fmt.Errorf("health checker: %w", err)
		}
		defer hc.Close()
		checkers = append(checkers, hc)
	}

	session := auth.NewSession(secret, local.Metadata(), local, logger)
	if _, err := session.Restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	// The expense service and the sync service refer to each other: the
	// former nudges a cycle after each mutation, the latter refreshes the
	// view after each cycle.
	var expenses services.ExpenseService
	syncSvc := syncer.NewService(local, backend, checkers, session, logger, syncer.Options{
		Interval: cfg.SyncInterval,
		Metadata: local.Metadata(),
		OnComplete: func(ctx context.Context, res syncer.Result) {
			if expenses == nil || res.Pulled == 0 {
				return
			}
			if _, err := expenses.List(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn(ctx, "refresh after sync failed", "error", err)
			}
		},
	})
	expenses = services.NewExpenseService(local, backend, session, syncSvc, logger)

	var files cli.Attachments
	if cfg.S3Bucket != "" {
		s3store, err := attachments.NewS3Store(ctx, attachments.Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
		})
		if err != nil {
			return fmt.Errorf("attachments: %w", err)
		}
		files = s3store
	}

	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcher := connectivity.NewWatcher(checkers, cfg.OnlineCheckInterval, func(online bool) {
		syncSvc.OnNetworkChange(bgCtx, online)
	}, logger)
	go watcher.Run(bgCtx)
	go syncSvc.Run(bgCtx)

	if cfg.StatusAddr != "" {
		api := statusapi.NewServer(cfg.StatusAddr, syncSvc, local, session, logger)
		go func() {
			if err := api.Run(bgCtx); err != nil {
				logger.Error(bgCtx, "status API stopped", "error", err)
			}
		}()
	}

	app := cli.NewApp(cli.Deps{
		Expenses: expenses,
		Sync:     syncSvc,
		Session:  session,
		Queue:    local,
		Files:    files,
		Logger:   logger,
	})
	app.Run(ctx)

	cancel()
	syncSvc.Wait()
	return nil
}
