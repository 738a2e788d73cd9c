package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/alfredjeanlab/reconciler/internal/chain"
	"github.com/alfredjeanlab/reconciler/internal/config"
	"github.com/alfredjeanlab/reconciler/internal/events"
	"github.com/alfredjeanlab/reconciler/internal/health"
	"github.com/alfredjeanlab/reconciler/internal/reconciler"
	"github.com/alfredjeanlab/reconciler/internal/store"
	"github.com/alfredjeanlab/reconciler/internal/store/postgres"
	recsync "github.com/alfredjeanlab/reconciler/internal/sync"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the purchase event reconciler",
	GroupID: "service",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			logger.Error("invalid configuration", "category", "fatal", "err", err)
			return err
		}
		return serve(cmd.Context(), cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	client := chain.NewRPCClient(cfg.RPCURL, chain.WithWaitTimeout(cfg.FinalityTimeout))
	logger.Info("using network", "network", cfg.Network, "rpc_url", cfg.RPCURL)

	// Optional attempt ledger.
	var ledger store.Ledger = store.NopLedger{}
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connecting to ledger", "category", "fatal", "err", err)
			return err
		}
		ledger = pg
		logger.Info("attempt ledger enabled")
	} else {
		logger.Info("attempt ledger disabled (RECONCILER_DATABASE_URL not set)")
	}

	// Optional outcome publisher.
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			ledger.Close()
			logger.Error("connecting to NATS", "category", "fatal", "err", err)
			return err
		}
		publisher = pub
		logger.Info("events enabled", "nats_url", cfg.NATSURL)
	} else {
		logger.Info("events disabled (RECONCILER_NATS_URL not set)")
	}

	closeSinks := func() {
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := ledger.Close(); err != nil {
			logger.Error("error closing ledger", "err", err)
		}
	}

	listener, err := reconciler.NewListener(client, reconciler.Options{
		PackageID:       cfg.PackageID,
		SecretKey:       cfg.AdminSecretKey,
		EventLimit:      cfg.EventLimit,
		PollInterval:    cfg.PollInterval,
		BackoffInterval: cfg.BackoffInterval,
		GasBudget:       cfg.GasBudget,
		Health: health.Options{
			Addr:                 cfg.HealthAddr(),
			UnhealthyErrorStreak: int64(cfg.UnhealthyErrorStreak),
		},
		Publisher: publisher,
		Ledger:    ledger,
	}, logger)
	cfg.AdminSecretKey = ""
	if err != nil {
		closeSinks()
		logger.Error("creating listener", "category", "fatal", "err", err)
		return err
	}
	defer listener.Close()

	if err := listener.Start(ctx); err != nil {
		closeSinks()
		logger.Error("starting listener", "category", "fatal", "err", err)
		return err
	}

	// Optional gRPC health service.
	var grpcServer *health.GRPCServer
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Error("gRPC health listener disabled", "addr", cfg.GRPCAddr, "err", err)
		} else {
			grpcServer = health.NewGRPCServer(listener.Monitor(), logger.With("component", "grpc"))
			go func() {
				logger.Info("gRPC health listening", "addr", lis.Addr().String())
				if err := grpcServer.Serve(lis); err != nil {
					logger.Error("gRPC server error", "err", err)
				}
			}()
		}
	}

	// Start the ledger export scheduler if a destination is configured.
	var scheduler *recsync.Scheduler
	if cfg.ExportEnabled() {
		s3Dest, err := recsync.NewS3Destination(ctx,
			cfg.ExportS3Bucket,
			cfg.ExportS3Key,
			cfg.ExportS3Region,
			cfg.ExportS3Endpoint,
		)
		if err != nil {
			logger.Error("failed to create S3 export destination", "err", err)
		} else {
			scheduler = recsync.NewScheduler(ledger, []recsync.Destination{s3Dest}, cfg.ExportInterval, logger.With("component", "export"))
			scheduler.Start()
			logger.Info("ledger export started", "interval", cfg.ExportInterval, "destination", s3Dest.Name())
		}
	}

	logger.Info("reconciler started",
		"admin", listener.Address(),
		"package", cfg.PackageID,
		"health_addr", listener.Monitor().Addr(),
	)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	logger.Info("received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownGrace)
	defer cancel()

	var shutdownErr error
	if err := listener.Stop(shutdownCtx); err != nil {
		logger.Error("listener shutdown", "err", err)
		shutdownErr = fmt.Errorf("shutdown: %w", err)
	}
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
		logger.Info("ledger export stopped")
	}
	if grpcServer != nil {
		grpcServer.Stop()
		logger.Info("gRPC server stopped")
	}
	closeSinks()

	logger.Info("shutdown complete")
	return shutdownErr
}
