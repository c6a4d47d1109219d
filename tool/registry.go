package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// ContentTypeText is the only content type tools produce.
const ContentTypeText = "text"

// Content is one entry of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is what a handler returns. It always carries at least one entry once
// it has passed through Dispatch.
type Result struct {
	Content []Content `json:"content"`
}

// TextResult wraps text as a single-entry result.
func TextResult(text string) Result {
	return Result{Content: []Content{{Type: ContentTypeText, Text: text}}}
}

// Text joins all text entries with newlines.
func (r Result) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}

// Handler turns bound arguments into a result. Arguments have already passed
// schema binding.
type Handler func(ctx context.Context, args map[string]any) (Result, error)

// Typed adapts a handler taking a per-tool argument struct. The bound argument
// map is decoded into In through its json tags.
func Typed[In any](fn func(ctx context.Context, in In) (Result, error)) Handler {
	return func(ctx context.Context, args map[string]any) (Result, error) {
		var in In
		data, err := json.Marshal(args)
		if err != nil {
			return Result{}, fmt.Errorf("tool: encode arguments: %w", err)
		}
		if err := json.Unmarshal(data, &in); err != nil {
			return Result{}, fmt.Errorf("tool: decode arguments: %w", err)
		}
		return fn(ctx, in)
	}
}

// Definition describes one tool in the catalog.
type Definition struct {
	Name        string
	Description string
	Input       Schema
	Handler     Handler
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Logger   *slog.Logger
	Observer Observer
	// NewCallID generates correlation IDs for dispatched calls.
	NewCallID func() string
}

// Registry is the tool catalog. Definitions are registered during startup and
// the catalog is read-only afterwards, so Dispatch needs no locking. Register
// must not be called concurrently with Dispatch.
type Registry struct {
	defs  map[string]Definition
	order []string

	logger    *slog.Logger
	observer  Observer
	newCallID func() string
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	if cfg.NewCallID == nil {
		cfg.NewCallID = uuid.NewString
	}
	return &Registry{
		defs:      make(map[string]Definition),
		logger:    cfg.Logger,
		observer:  cfg.Observer,
		newCallID: cfg.NewCallID,
	}
}

// Register adds a definition. Names are unique; a duplicate is a startup
// configuration error.
func (r *Registry) Register(def Definition) error {
	name := strings.TrimSpace(def.Name)
	if name == "" || name != def.Name {
		return fmt.Errorf("%w: invalid tool name %q", ErrInvalidDefinition, def.Name)
	}
	if def.Handler == nil {
		return fmt.Errorf("%w: tool %q has no handler", ErrInvalidDefinition, name)
	}
	if err := def.Input.check(); err != nil {
		return fmt.Errorf("tool %q: %w", name, err)
	}
	if _, exists := r.defs[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, name)
	}

	r.defs[name] = def
	r.order = append(r.order, name)
	r.logger.Debug("tool registered", slog.String("tool", name))
	return nil
}

// Get returns a definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Definitions returns all definitions in registration order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}
