// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/cabfleet/authgate/internal/auth"
	"github.com/cabfleet/authgate/internal/auth/cassandra"
	"github.com/cabfleet/authgate/internal/auth/memory"
	"github.com/cabfleet/authgate/internal/auth/mongo"
	"github.com/cabfleet/authgate/internal/auth/postgres"
	"github.com/cabfleet/authgate/internal/config"
	"github.com/cabfleet/authgate/internal/logging"
	"github.com/cabfleet/authgate/internal/observability"
	"github.com/cabfleet/authgate/internal/web"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication gateway",
		Long: `Start the gateway: connect to the configured credential store and
serve the authentication API plus metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}

	defaults := config.Default()
	cmd.Flags().String("listen_addr", defaults.ListenAddr, "API listen address")
	cmd.Flags().String("metrics_addr", defaults.MetricsAddr, "metrics/health HTTP address")
	cmd.Flags().String("log_format", defaults.LogFormat, "log format (json or text)")
	cmd.Flags().String("store.backend", defaults.Store.Backend, "credential store backend (memory, postgres, mongo, cassandra)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.SetDefault("authgate", version, cfg.LogFormat)

	slog.Info("starting gateway",
		"listen_addr", cfg.ListenAddr,
		"store_backend", cfg.Store.Backend,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if closeErr := store.Close(closeCtx); closeErr != nil {
			slog.Warn("error closing credential store", "error", closeErr)
		}
	}()

	slog.Info("credential store ready", "backend", cfg.Store.Backend)

	gate, err := auth.NewMasterKeyGate(cfg.MasterKey)
	if err != nil {
		return err
	}

	hasher := auth.NewArgon2idHasher(auth.Argon2Params{
		Memory:  cfg.Hasher.Memory,
		Time:    cfg.Hasher.Time,
		Threads: cfg.Hasher.Threads,
	})
	tokens := auth.NewTokenService([]byte(cfg.JWTSecret), cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	loginLimiter := auth.NewLimiter(cfg.RateLimit.LoginThreshold, cfg.RateLimit.Window)
	defer loginLimiter.Stop()
	createLimiter := auth.NewLimiter(cfg.RateLimit.CreateThreshold, cfg.RateLimit.Window)
	defer createLimiter.Stop()

	flow, err := auth.NewService(store, hasher, tokens, gate, loginLimiter, createLimiter, cfg.Store.Timeout)
	if err != nil {
		return err
	}

	// Readiness tracks the store, not the process: a gateway that cannot
	// reach its store cannot authenticate anyone.
	obsServer := observability.NewServer(cfg.MetricsAddr, func() bool {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer pingCancel()
		return store.Ping(pingCtx) == nil
	})
	obsErrChan, err := obsServer.Start()
	if err != nil {
		return err
	}
	go monitorServerErrors(ctx, cancel, obsErrChan, "observability")

	apiServer := web.NewServer(cfg.ListenAddr, flow, slog.Default(), obsServer.Metrics())
	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopObservability(obsServer)
		return err
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Gateway started")
	slog.Info("gateway ready", "addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping api server", "error", err)
	}
	if err := obsServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// openStore connects the configured credential store, retrying transient
// connection failures with exponential backoff so the gateway survives a
// store that comes up slightly after it does.
func openStore(ctx context.Context, cfg *config.Config) (auth.CredentialStore, error) {
	if cfg.Store.Backend == config.BackendMemory {
		return memory.NewStore(), nil
	}

	var store auth.CredentialStore

	backoff := retry.WithMaxRetries(5, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var connectErr error
		switch cfg.Store.Backend {
		case config.BackendPostgres:
			store, connectErr = postgres.Connect(ctx, cfg.Store.PostgresDSN)
		case config.BackendMongo:
			store, connectErr = mongo.Connect(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		case config.BackendCassandra:
			store, connectErr = cassandra.Connect(cfg.Store.CassandraHosts, cfg.Store.CassandraKeyspace, cfg.Store.Timeout)
		default:
			return oops.Code("CONFIG_INVALID").Errorf("unknown store backend %q", cfg.Store.Backend)
		}
		if connectErr != nil {
			slog.Warn("store connect failed, retrying",
				"backend", cfg.Store.Backend,
				"error", connectErr,
			)
			return retry.RetryableError(connectErr)
		}
		return nil
	})
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("backend", cfg.Store.Backend).
			Wrap(err)
	}

	return store, nil
}

func stopObservability(server *observability.Server) {
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := server.Stop(stopCtx); err != nil {
		slog.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors cancels the context when a server reports a fatal
// error, turning any server failure into a full graceful shutdown. It
// exits when an error arrives, the channel closes, or the context ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
