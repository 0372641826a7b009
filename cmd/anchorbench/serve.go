package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/shanefrancis93/anchor-research/config"
	"github.com/shanefrancis93/anchor-research/dashboard"
	"github.com/shanefrancis93/anchor-research/engine"
	"github.com/shanefrancis93/anchor-research/logger"
	"github.com/shanefrancis93/anchor-research/providers"
	"github.com/shanefrancis93/anchor-research/providers/mock"
	"github.com/shanefrancis93/anchor-research/sessionstore"
)

const serveShutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the interactive research dashboard",
	Long: `Start the dashboard server: REST endpoints for driving sessions turn
by turn, a websocket feed of live session updates, Prometheus metrics, and a
listing of previously recorded transcripts.

Scenario files are watched for changes and reloaded while the server runs.
Sessions live in memory unless --redis points at a Redis server.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().String("scenarios-dir", "scenarios", "Directory of scenario files (watched for changes)")
	serveCmd.Flags().StringP("out", "o", "", "Output directory whose transcripts are listed")
	serveCmd.Flags().String("redis", "", "Redis address for session persistence (e.g. localhost:6379)")
	serveCmd.Flags().String("model", "", "Default provider/model spec for new sessions")
	serveCmd.Flags().Bool("mock", false, "Drive sessions with the in-process mock driver")
	addSamplingFlags(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	scenariosDir, _ := cmd.Flags().GetString("scenarios-dir")
	library := dashboard.NewLibrary(scenariosDir)
	if err := library.Reload(); err != nil {
		logger.Warn("starting with an empty scenario library", "dir", scenariosDir, "error", err)
	}

	factory, settings, err := serveDriverFactory(cmd)
	if err != nil {
		return err
	}

	store, err := serveStore(cmd)
	if err != nil {
		return err
	}

	opts, err := engineOptions(cmd)
	if err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	model, _ := cmd.Flags().GetString("model")
	if useMock, _ := cmd.Flags().GetBool("mock"); useMock && model == "" {
		model = "mock"
	}

	srv := dashboard.NewServer(library, factory,
		dashboard.WithAddr(addr),
		dashboard.WithStore(store),
		dashboard.WithResultsDir(filepath.Join(outputDir(cmd, settings), "transcripts")),
		dashboard.WithDefaultModel(model),
		dashboard.WithEngineOptions(opts),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// serveDriverFactory builds the per-session driver factory. Sessions name a
// provider/model spec; mock mode accepts anything and stays offline.
func serveDriverFactory(cmd *cobra.Command) (dashboard.DriverFactory, config.Settings, error) {
	if useMock, _ := cmd.Flags().GetBool("mock"); useMock {
		factory := func(model string) (providers.Driver, error) {
			if model == "" || model == "mock" {
				model = "mock-model"
			}
			return mock.NewEmbedding("mock", model), nil
		}
		return factory, config.Settings{}, nil
	}

	configDir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, config.Settings{}, err
	}

	factory := func(spec string) (providers.Driver, error) {
		providerName, model, err := config.ParseModelSpec(spec)
		if err != nil {
			return nil, err
		}
		return engine.NewDriverFromConfig(cfg, providerName, model)
	}
	return factory, cfg.Settings, nil
}

func serveStore(cmd *cobra.Command) (sessionstore.Store, error) {
	addr, _ := cmd.Flags().GetString("redis")
	if addr == "" {
		return sessionstore.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis unreachable at %s: %w", addr, err)
	}

	logger.Info("sessions persisted to redis", "addr", addr)
	return sessionstore.NewRedisStore(client), nil
}
