// Package cli implements the ailang-mcp command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "ailang-mcp",
		Short: "MCP server exposing the AILANG toolchain",
		Long: "ailang-mcp serves the AILANG command-line tools (prompt, check, run, builtins, eval) " +
			"to Model Context Protocol clients over stdio or Streamable HTTP.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
		Version:      version,
	}
	root.SetVersionTemplate(fmt.Sprintf("ailang-mcp version %s\n", version))

	flags := root.PersistentFlags()
	flags.Bool("verbose", false, "Enable verbose/debug logging")
	flags.Bool("quiet", false, "Suppress all log output except errors")
	flags.String("log-format", "text", "Log format: text | json")
	flags.String("config", "", "Path to config file (default: ./ailang-mcp.yaml, ./ailang-mcp.toml, ~/.ailang-mcp/config.yaml)")
	flags.String("ailang", "", "ailang program to run (default: ailang on PATH)")
	flags.Duration("timeout", 0, "Per-command timeout (default: 30s)")
	flags.Duration("eval-timeout", 0, "Timeout for eval (default: 10s)")
	flags.Int("max-output-bytes", 0, "Cap on captured stdout and stderr, each (default: 1 MiB)")
	flags.String("prefix", "", "Prefix for advertised tool names, e.g. ailang_")

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewToolsCmd())
	root.AddCommand(NewCallCmd())
	root.AddCommand(NewHealthCmd())
	return root
}
