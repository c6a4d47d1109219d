package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/ailang-mcp/tool"
)

// NewCallCmd creates the "call" subcommand.
func NewCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool locally and print its result",
		Long: "Invoke one tool through the same dispatch path the MCP server uses. " +
			"Arguments come from --json and repeated --arg key=value pairs; --arg wins on conflicts.",
		Example: "  ailang-mcp call check --arg file=examples/hello.ail\n" +
			"  ailang-mcp call eval --json '{\"expression\":\"1 + 2\"}'",
		Args: cobra.ExactArgs(1),
		RunE: runCall,
	}
	cmd.Flags().StringArray("arg", nil, "Tool argument as key=value (repeatable)")
	cmd.Flags().String("json", "", "Tool arguments as a JSON object")
	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	callArgs, err := parseCallArguments(cmd)
	if err != nil {
		return err
	}

	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd, settings, nil)
	if err != nil {
		return err
	}

	result, err := a.registry.Dispatch(cmd.Context(), tool.Call{Name: args[0], Arguments: callArgs})
	if err != nil {
		if tool.IsProtocolError(err) {
			return exitError(exitValidation, "%v", err)
		}
		msg := err.Error()
		var toolErr *tool.Error
		if errors.As(err, &toolErr) && toolErr.Message != "" {
			msg = toolErr.Message
		}
		return exitError(exitRuntime, "Error: %s", msg)
	}

	return writeResult(cmd.OutOrStdout(), result.Text())
}

func parseCallArguments(cmd *cobra.Command) (map[string]any, error) {
	raw, _ := cmd.Flags().GetString("json")
	pairs, _ := cmd.Flags().GetStringArray("arg")

	out := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, exitError(exitInputParse, "--json must be a JSON object: %v", err)
		}
		if out == nil {
			out = map[string]any{}
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, exitError(exitInputParse, "invalid --arg %q (expected key=value)", pair)
		}
		out[key] = value
	}
	return out, nil
}

func writeResult(w io.Writer, text string) error {
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := fmt.Fprint(w, text)
	return err
}
