package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/petal-labs/ailang-mcp/config"
	"github.com/petal-labs/ailang-mcp/health"
	"github.com/petal-labs/ailang-mcp/mcpserver"
	ailangotel "github.com/petal-labs/ailang-mcp/otel"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the AILANG tools over MCP",
		Long: "Serve the AILANG tools to an MCP client. The default transport is stdio; " +
			"--http switches to Streamable HTTP on the given address.",
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("http", "", "Serve Streamable HTTP on this address instead of stdio, e.g. 127.0.0.1:8931")
	cmd.Flags().String("jwt-secret", "", "Require HS256 bearer tokens signed with this secret on the HTTP endpoint")
	cmd.Flags().String("health-schedule", "", "Cron schedule for the ailang availability probe (default: @every 5m)")
	cmd.Flags().Bool("no-health", false, "Disable the background availability probe")
	cmd.Flags().Bool("traces", false, "Export spans over OTLP/HTTP")
	cmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP endpoint URL (default: OTEL_EXPORTER_OTLP_* environment)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	applyServeOverrides(cmd, &settings)

	version := cmd.Root().Version
	tracerProvider, shutdownTracing, err := ailangotel.NewTracerProvider(ctx, ailangotel.TracingConfig{
		Enabled:        settings.Telemetry.Traces,
		Endpoint:       settings.Telemetry.Endpoint,
		ServiceName:    "ailang-mcp",
		ServiceVersion: version,
	})
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	a, err := newApp(cmd, settings, tracerProvider.Tracer(instrumentationName))
	if err != nil {
		return err
	}

	if settings.Health.IsEnabled() {
		monitor, err := health.NewMonitor(health.MonitorConfig{
			Prober:   a.executor,
			Program:  settings.Ailang.Command,
			Args:     settings.Ailang.Args,
			Env:      settings.Ailang.Env,
			Dir:      settings.Ailang.Workdir,
			Schedule: settings.Health.Schedule,
			Timeout:  settings.Health.Timeout.Std(),
			Logger:   a.logger,
			Observer: a.observer,
		})
		if err != nil {
			return exitError(exitConfig, "%v", err)
		}
		if err := monitor.Start(ctx); err != nil {
			return fmt.Errorf("starting health monitor: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = monitor.Stop(stopCtx)
		}()
	}

	server, err := mcpserver.New(mcpserver.Config{
		Registry: a.registry,
		Version:  version,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	if addr := settings.HTTP.Addr; addr != "" {
		err = server.ListenAndServe(ctx, mcpserver.HTTPConfig{
			Addr:            addr,
			JWTSecret:       settings.HTTP.JWTSecret,
			ShutdownTimeout: shutdownTimeout,
		})
	} else {
		err = server.Serve(ctx, &mcp.StdioTransport{})
	}
	if err != nil {
		return exitError(exitRuntime, "server error: %v", err)
	}

	a.logger.Info("server stopped", slog.String("reason", "shutdown"))
	return nil
}

// applyServeOverrides layers the serve-only flags over the loaded settings.
func applyServeOverrides(cmd *cobra.Command, settings *config.File) {
	flags := cmd.Flags()
	if flags.Changed("http") {
		addr, _ := flags.GetString("http")
		settings.HTTP.Addr = strings.TrimSpace(addr)
	}
	if flags.Changed("jwt-secret") {
		settings.HTTP.JWTSecret, _ = flags.GetString("jwt-secret")
	}
	if flags.Changed("health-schedule") {
		settings.Health.Schedule, _ = flags.GetString("health-schedule")
	}
	if noHealth, _ := flags.GetBool("no-health"); noHealth {
		disabled := false
		settings.Health.Enabled = &disabled
	}
	if flags.Changed("traces") {
		settings.Telemetry.Traces, _ = flags.GetBool("traces")
	}
	if flags.Changed("otlp-endpoint") {
		settings.Telemetry.Endpoint, _ = flags.GetString("otlp-endpoint")
	}
}
