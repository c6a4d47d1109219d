package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/ailang-mcp/ailang"
	"github.com/petal-labs/ailang-mcp/config"
	"github.com/petal-labs/ailang-mcp/executor"
	ailangotel "github.com/petal-labs/ailang-mcp/otel"
	"github.com/petal-labs/ailang-mcp/tool"
)

const instrumentationName = "github.com/petal-labs/ailang-mcp"

// app holds the wiring shared by every subcommand.
type app struct {
	settings config.File
	logger   *slog.Logger
	observer *ailangotel.Observer
	executor *executor.Executor
	registry *tool.Registry
}

// loadSettings discovers the config file and applies flag overrides on top.
func loadSettings(cmd *cobra.Command) (config.File, error) {
	explicit, _ := cmd.Flags().GetString("config")

	settings := config.Default()
	path, found, err := config.Discover(explicit)
	if err != nil {
		return config.File{}, exitError(exitConfig, "%v", err)
	}
	if found {
		settings, err = config.Load(path)
		if err != nil {
			return config.File{}, exitError(exitConfig, "%v", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("ailang") {
		settings.Ailang.Command, _ = flags.GetString("ailang")
	}
	if flags.Changed("timeout") {
		timeout, _ := flags.GetDuration("timeout")
		settings.Limits.Timeout = config.Duration(timeout)
	}
	if flags.Changed("eval-timeout") {
		timeout, _ := flags.GetDuration("eval-timeout")
		settings.Limits.EvalTimeout = config.Duration(timeout)
	}
	if flags.Changed("max-output-bytes") {
		settings.Limits.MaxOutputBytes, _ = flags.GetInt("max-output-bytes")
	}
	if flags.Changed("prefix") {
		settings.Tools.Prefix, _ = flags.GetString("prefix")
	}

	if err := settings.Validate(); err != nil {
		return config.File{}, exitError(exitConfig, "invalid settings: %v", err)
	}
	return settings, nil
}

// newApp builds the executor and tool registry for settings. A nil tracer
// disables spans.
func newApp(cmd *cobra.Command, settings config.File, tracer trace.Tracer) (*app, error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}

	observer, err := ailangotel.NewObserver(otelapi.GetMeterProvider().Meter(instrumentationName), tracer)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}

	exec := executor.New(executor.Config{Logger: logger, Observer: observer})
	registry := tool.NewRegistry(tool.RegistryConfig{Logger: logger, Observer: observer})
	if err := ailang.Register(registry, exec, catalogConfig(settings)); err != nil {
		return nil, fmt.Errorf("registering ailang tools: %w", err)
	}

	return &app{
		settings: settings,
		logger:   logger,
		observer: observer,
		executor: exec,
		registry: registry,
	}, nil
}

func catalogConfig(settings config.File) ailang.Config {
	return ailang.Config{
		Program:        settings.Ailang.Command,
		Args:           settings.Ailang.Args,
		Env:            settings.Ailang.Env,
		Dir:            settings.Ailang.Workdir,
		Timeout:        settings.Limits.Timeout.Std(),
		EvalTimeout:    settings.Limits.EvalTimeout.Std(),
		MaxOutputBytes: settings.Limits.MaxOutputBytes,
		Prefix:         settings.Tools.Prefix,
	}
}
