package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/civicpulse/civicpulse/internal/agent"
	"github.com/civicpulse/civicpulse/internal/api"
	"github.com/civicpulse/civicpulse/internal/config"
	"github.com/civicpulse/civicpulse/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the feedback API server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	if missing, err := store.VerifySchema(ctx); err != nil {
		return fmt.Errorf("verifying schema: %w", err)
	} else if len(missing) > 0 {
		return fmt.Errorf("schema verification failed, missing: %v", missing)
	}

	handler := api.NewHandler(api.Deps{Store: store, Logger: logger})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("civicpulse listening", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		runner := agent.NewRunner(store.Repos, agent.NewHeuristicProcessor(), cfg.Agent.PollInterval)
		runner.Run(gCtx)
		return nil
	})

	// Cache maintenance: sweep expired summary rows (reads already
	// treat them as misses, this reclaims the space) and recompute the
	// rollups the summarizer derives from storage.
	g.Go(func() error {
		summarizer := agent.NewSummarizer(store.Repos, cfg.Cache.SummaryTTL)
		ticker := time.NewTicker(cfg.Cache.PurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				n, err := store.Summaries.PurgeExpired(gCtx)
				if err != nil {
					logger.Warn("purging expired summaries", "error", err)
				} else if n > 0 {
					logger.Info("purged expired summaries", "count", n)
				}
				if err := summarizer.RefreshAll(gCtx); err != nil {
					logger.Warn("refreshing summaries", "error", err)
				}
			}
		}
	})

	return g.Wait()
}
