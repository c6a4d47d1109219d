package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/spf13/cobra"

	"github.com/petal-labs/ailang-mcp/tool"
)

// NewToolsCmd creates the "tools" subcommand.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools advertised to MCP clients",
		Args:  cobra.NoArgs,
		RunE:  runTools,
	}
	cmd.Flags().Bool("json", false, "Print definitions with their input schemas as JSON")
	return cmd
}

type toolListing struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

func runTools(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd, settings, nil)
	if err != nil {
		return err
	}
	defs := a.registry.Definitions()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		listing := make([]toolListing, 0, len(defs))
		for _, def := range defs {
			listing = append(listing, toolListing{
				Name:        def.Name,
				Description: def.Description,
				InputSchema: def.Input.JSONSchema(),
			})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(listing)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPARAMETERS\tDESCRIPTION")
	for _, def := range defs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", def.Name, formatParams(def.Input), firstSentence(def.Description))
	}
	return w.Flush()
}

// formatParams renders required parameters bare and optional ones with their
// default, e.g. "file, caps=IO, ai_stub=false".
func formatParams(schema tool.Schema) string {
	if len(schema) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(schema))
	for _, p := range schema {
		switch {
		case p.Default != nil:
			parts = append(parts, fmt.Sprintf("%s=%v", p.Name, p.Default))
		case p.Required:
			parts = append(parts, p.Name)
		default:
			parts = append(parts, "["+p.Name+"]")
		}
	}
	return strings.Join(parts, ", ")
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, ". "); i >= 0 {
		return text[:i+1]
	}
	return text
}
