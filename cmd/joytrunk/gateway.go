package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/joytrunk/joytrunk/internal/config"
	"github.com/joytrunk/joytrunk/internal/dispatch"
	"github.com/joytrunk/joytrunk/internal/employee"
	"github.com/joytrunk/joytrunk/internal/gateway/httpapi"
	"github.com/joytrunk/joytrunk/internal/observability"
	"github.com/joytrunk/joytrunk/internal/paths"
	"github.com/joytrunk/joytrunk/internal/prompt"
	"github.com/joytrunk/joytrunk/internal/ratelimit"
)

var (
	gatewayRoot string
	gatewayPort int
	gatewayDocs bool
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the local management gateway",
	RunE:  runGateway,
}

func init() {
	// Register flags on both root and gateway so that
	// `joytrunk --root path` and `joytrunk gateway --root path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, gatewayCmd} {
		cmd.Flags().StringVar(&gatewayRoot, "root", "", "JoyTrunk root directory (default $JOYTRUNK_ROOT, then ~/.joytrunk)")
		cmd.Flags().IntVar(&gatewayPort, "port", 0, "override HTTP listen port")
		cmd.Flags().BoolVar(&gatewayDocs, "docs", false, "serve generated OpenAPI documentation")
	}
}

// runGateway starts the JoyTrunk gateway and blocks until a signal arrives.
func runGateway(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	layout := paths.New(gatewayRoot)
	logger.Info("starting joytrunk gateway", slog.String("root", layout.Root))

	configStore := config.NewStore(layout, logger)
	cfg := configStore.Load()

	employees := employee.NewStore(layout, logger, goutils.Env("JOYTRUNK_TEMPLATES_DIR", ""))
	loader := prompt.NewLoader(layout, logger)

	metrics := observability.NewMetricsCollector()
	tracerSetup, err := observability.NewTracerSetup(observability.TracingConfigFromEnv())
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	dispatcher := dispatch.New(loader, employees.Configs(), logger, dispatch.WithObserver(metrics))

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: envInt("JOYTRUNK_RATE_LIMIT_PER_MINUTE", 0),
		BurstSize:         envInt("JOYTRUNK_RATE_LIMIT_BURST", 0),
	})

	port := cfg.Server.Port
	if gatewayPort != 0 {
		port = gatewayPort
	}

	gw := httpapi.NewGateway(httpapi.Config{
		ListenAddr:      fmt.Sprintf("%s:%d", cfg.Server.Host, port),
		EnableDocs:      gatewayDocs,
		RouterURL:       goutils.Env("JOYTRUNK_ROUTER_URL", ""),
		MetricsRegistry: metrics.Registry,
		Metrics:         metrics,
		Tracer:          tracerSetup.Tracer(),
	}, configStore, employees, dispatcher, limiter, logger)

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("stopping gateway", slog.String("error", err.Error()))
	}
	if tracerSetup != nil {
		if err := tracerSetup.Shutdown(shutdownCtx); err != nil {
			logger.Error("stopping tracer", slog.String("error", err.Error()))
		}
	}
	return nil
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
