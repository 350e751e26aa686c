package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blockberries/stakeberry/app"
	"github.com/blockberries/stakeberry/config"
	stakegrpc "github.com/blockberries/stakeberry/grpc"
	"github.com/blockberries/stakeberry/metrics"
	"github.com/blockberries/stakeberry/store"
)

const shutdownTimeout = 10 * time.Second

func newStartCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Serve the application to a host over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}
}

func openStore(cfg config.Storage, logger zerolog.Logger) (*store.Store, error) {
	sc := store.InMemoryConfig()
	if !cfg.InMemory {
		sc = store.DefaultConfig(filepath.Join(cfg.DataDir, "state"))
		sc.SyncWrites = cfg.SyncWrites
	}
	sc.Logger = logger.With().Str("module", "store").Logger()
	return store.Open(sc)
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	program, err := cfg.ProgramAddress()
	if err != nil {
		return err
	}

	st, err := openStore(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error().Err(err).Msg("close store")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := app.New(
		app.WithChainID(cfg.ChainID),
		app.WithProgramID(program),
		app.WithStore(st),
		app.WithMetrics(metrics.New(reg)),
		app.WithLogger(logger.With().Str("module", "app").Logger()),
	)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.GRPC.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPC.ListenAddress, err)
	}
	gs := stakegrpc.NewGRPCServer(a, logger).NewServer()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("chain_id", cfg.ChainID).
			Stringer("program", a.Ledger().ProgramID()).
			Uint64("height", a.Height()).
			Str("addr", lis.Addr().String()).
			Msg("serving gRPC")
		return gs.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		gs.GracefulStop()
		return nil
	})
	g.Go(func() error {
		return st.RunGC(ctx, cfg.Storage.GCInterval, cfg.Storage.GCDiscardRatio)
	})

	if cfg.Metrics.ListenAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
		hs := &http.Server{Addr: cfg.Metrics.ListenAddress, Handler: mux, ReadHeaderTimeout: time.Minute}

		g.Go(func() error {
			logger.Info().Str("addr", hs.Addr).Msg("serving metrics")
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	}

	err = g.Wait()
	logger.Info().Err(err).Msg("stopped")
	return err
}
