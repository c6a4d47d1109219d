package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petal-labs/ailang-mcp/health"
)

// NewHealthCmd creates the "health" subcommand.
func NewHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the ailang program can be started",
		Long:  "Run ailang --version once and report whether it succeeded. Exits 5 when ailang is unavailable.",
		Args:  cobra.NoArgs,
		RunE:  runHealth,
	}
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	return cmd
}

type healthReport struct {
	Program    string       `json:"program"`
	State      health.State `json:"state"`
	Detail     string       `json:"detail,omitempty"`
	DurationMS int64        `json:"duration_ms"`
}

func runHealth(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd, settings, nil)
	if err != nil {
		return err
	}

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
	report := monitor.Check(cmd.Context())

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(healthReport{
			Program:    report.Program,
			State:      report.State,
			Detail:     report.Detail,
			DurationMS: report.Duration.Milliseconds(),
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "%s: %s\n", report.Program, report.State)
		if report.Detail != "" {
			fmt.Fprintf(out, "  %s\n", report.Detail)
		}
	}

	if report.State != health.StateHealthy {
		return exitError(exitUnhealthy, "%s is unavailable", report.Program)
	}
	return nil
}
