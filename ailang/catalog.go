// Package ailang declares the AILANG tool catalog: one definition per CLI
// subcommand, each translating bound arguments into a single invocation of the
// ailang program.
package ailang

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/petal-labs/ailang-mcp/executor"
	"github.com/petal-labs/ailang-mcp/tool"
)

const (
	// DefaultProgram is resolved through PATH.
	DefaultProgram = "ailang"
	// DefaultEvalTimeout bounds REPL evaluation, which should be quick.
	DefaultEvalTimeout = 10 * time.Second

	builtinsContextLines = 15

	noMatchesText = "No matches found"
	noOutputText  = "No output"
)

var (
	capsPattern  = regexp.MustCompile(`^[A-Za-z]+(,[A-Za-z]+)*$`)
	entryPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Runner executes a command and returns its reduced text.
type Runner interface {
	Execute(ctx context.Context, cmd executor.Command) string
}

// Config controls how the catalog invokes ailang.
type Config struct {
	Program string
	// Args are prepended to every invocation, before the subcommand.
	Args []string
	Env  map[string]string
	Dir  string

	Timeout        time.Duration
	EvalTimeout    time.Duration
	MaxOutputBytes int

	// Prefix is prepended to every tool name, e.g. "ailang_".
	Prefix string
}

// Catalog builds the tool definitions.
type Catalog struct {
	runner Runner
	cfg    Config
}

// NewCatalog creates a catalog backed by runner.
func NewCatalog(runner Runner, cfg Config) *Catalog {
	if strings.TrimSpace(cfg.Program) == "" {
		cfg.Program = DefaultProgram
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = executor.DefaultTimeout
	}
	if cfg.EvalTimeout <= 0 {
		cfg.EvalTimeout = DefaultEvalTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = executor.DefaultMaxOutputBytes
	}
	return &Catalog{runner: runner, cfg: cfg}
}

// Register adds every catalog tool to reg.
func Register(reg *tool.Registry, runner Runner, cfg Config) error {
	for _, def := range NewCatalog(runner, cfg).Definitions() {
		if err := reg.Register(def); err != nil {
			return fmt.Errorf("ailang: %w", err)
		}
	}
	return nil
}

// Definitions returns the tool definitions in their canonical order.
func (c *Catalog) Definitions() []tool.Definition {
	return []tool.Definition{
		{
			Name: c.cfg.Prefix + "prompt",
			Description: "Get the AILANG teaching prompt with current syntax rules and templates. " +
				"This is the SOURCE OF TRUTH for AILANG syntax - ALWAYS call this before writing ANY AILANG code. " +
				"Do not guess at syntax.",
			Handler: c.prompt,
		},
		{
			Name:        c.cfg.Prefix + "check",
			Description: "Type-check an AILANG file without running it. Returns any type errors found.",
			Input: tool.Schema{
				{Name: "file", Type: tool.TypeString, Required: true, Description: "Path to the .ail file to check"},
			},
			Handler: tool.Typed(c.check),
		},
		{
			Name:        c.cfg.Prefix + "run",
			Description: "Run an AILANG program with specified capabilities.",
			Input: tool.Schema{
				{Name: "file", Type: tool.TypeString, Required: true, Description: "Path to the .ail file to run"},
				{Name: "caps", Type: tool.TypeString, Default: "IO", Pattern: capsPattern, Description: "Comma-separated capabilities: IO,FS,Net,Clock,AI"},
				{Name: "entry", Type: tool.TypeString, Default: "main", Pattern: entryPattern, Description: "Entry point function name"},
				{Name: "ai_stub", Type: tool.TypeBoolean, Default: false, Description: "Use AI stub for testing"},
			},
			Handler: tool.Typed(c.run),
		},
		{
			Name: c.cfg.Prefix + "builtins",
			Description: "List AILANG builtin functions with full documentation. " +
				"This is the SOURCE OF TRUTH for stdlib - always use this for accurate, current documentation " +
				"including parameters, return types, and examples.",
			Input: tool.Schema{
				{Name: "search", Type: tool.TypeString, Description: `Optional search term to filter builtins (e.g., "httpGet", "array")`},
				{Name: "by_module", Type: tool.TypeBoolean, Default: true, Description: "Group by module (default: true)"},
				{Name: "verbose", Type: tool.TypeBoolean, Default: true, Description: "Show full documentation with examples (default: true)"},
			},
			Handler: tool.Typed(c.builtins),
		},
		{
			Name:        c.cfg.Prefix + "eval",
			Description: "Evaluate a single expression in the AILANG REPL context.",
			Input: tool.Schema{
				{Name: "expression", Type: tool.TypeString, Required: true, Description: "AILANG expression to evaluate"},
			},
			Handler: tool.Typed(c.eval),
		},
	}
}

type checkArgs struct {
	File string `json:"file"`
}

type runArgs struct {
	File   string `json:"file"`
	Caps   string `json:"caps"`
	Entry  string `json:"entry"`
	AIStub bool   `json:"ai_stub"`
}

type builtinsArgs struct {
	Search   string `json:"search"`
	ByModule bool   `json:"by_module"`
	Verbose  bool   `json:"verbose"`
}

type evalArgs struct {
	Expression string `json:"expression"`
}

func (c *Catalog) prompt(ctx context.Context, _ map[string]any) (tool.Result, error) {
	return tool.TextResult(c.runner.Execute(ctx, c.command("prompt"))), nil
}

func (c *Catalog) check(ctx context.Context, in checkArgs) (tool.Result, error) {
	return tool.TextResult(c.runner.Execute(ctx, c.command("check", operand(in.File)))), nil
}

func (c *Catalog) run(ctx context.Context, in runArgs) (tool.Result, error) {
	args := []string{"run", "--caps", in.Caps, "--entry", in.Entry}
	if in.AIStub {
		args = append(args, "--ai-stub")
	}
	args = append(args, operand(in.File))
	return tool.TextResult(c.runner.Execute(ctx, c.command(args...))), nil
}

func (c *Catalog) builtins(ctx context.Context, in builtinsArgs) (tool.Result, error) {
	args := []string{"builtins", "list"}
	if in.Verbose {
		args = append(args, "--verbose")
	}
	if in.ByModule {
		args = append(args, "--by-module")
	}

	cmd := c.command(args...)
	if term := strings.TrimSpace(in.Search); term != "" {
		cmd.Filter = func(stdout string) string {
			return contextMatches(stdout, term, builtinsContextLines)
		}
	}

	text := c.runner.Execute(ctx, cmd)
	if text == "" {
		text = noMatchesText
	}
	return tool.TextResult(text), nil
}

func (c *Catalog) eval(ctx context.Context, in evalArgs) (tool.Result, error) {
	cmd := c.command("repl", "--non-interactive")
	cmd.Name = "eval"
	cmd.Stdin = strings.NewReader(in.Expression + "\n")
	cmd.Timeout = c.cfg.EvalTimeout

	text := c.runner.Execute(ctx, cmd)
	if text == "" {
		text = noOutputText
	}
	return tool.TextResult(text), nil
}

func (c *Catalog) command(args ...string) executor.Command {
	return executor.Command{
		Name:           args[0],
		Program:        c.cfg.Program,
		Args:           append(slices.Clone(c.cfg.Args), args...),
		Env:            c.cfg.Env,
		Dir:            c.cfg.Dir,
		Timeout:        c.cfg.Timeout,
		MaxOutputBytes: c.cfg.MaxOutputBytes,
	}
}

// operand keeps a positional path from being parsed as a flag.
func operand(path string) string {
	if strings.HasPrefix(path, "-") {
		return "./" + path
	}
	return path
}
