package tool

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// ParamType is the declared type of one tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeBoolean ParamType = "boolean"
)

// Param declares one named tool input.
type Param struct {
	Name        string
	Type        ParamType
	Required    bool
	Default     any
	Description string
	// Pattern restricts string values; anchor it to constrain the whole value.
	Pattern *regexp.Regexp
}

// Schema is the ordered parameter list of a tool.
type Schema []Param

// check validates the schema declaration itself. It runs once, at registration.
func (s Schema) check() error {
	seen := make(map[string]struct{}, len(s))
	for _, p := range s {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("%w: parameter name is empty", ErrInvalidDefinition)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: parameter %q declared twice", ErrInvalidDefinition, name)
		}
		seen[name] = struct{}{}

		switch p.Type {
		case TypeString, TypeBoolean:
		default:
			return fmt.Errorf("%w: parameter %q has unsupported type %q", ErrInvalidDefinition, name, p.Type)
		}
		if p.Default != nil {
			if _, err := p.coerce(p.Default); err != nil {
				return fmt.Errorf("%w: parameter %q default: %v", ErrInvalidDefinition, name, err)
			}
		}
	}
	return nil
}

// Bind validates args against the schema and returns a fully populated,
// type-correct argument map. Missing optional parameters take their default;
// optional parameters without a default stay absent. Keys the schema does not
// declare are dropped.
func (s Schema) Bind(args map[string]any) (map[string]any, error) {
	bound := make(map[string]any, len(s))
	for _, p := range s {
		raw, present := args[p.Name]
		if !present || raw == nil {
			switch {
			case p.Default != nil:
				bound[p.Name] = p.Default
			case p.Required:
				return nil, invalidArgument(p.Name, "argument %q is required", p.Name)
			}
			continue
		}

		value, err := p.coerce(raw)
		if err != nil {
			return nil, err
		}
		bound[p.Name] = value
	}
	return bound, nil
}

func (p Param) coerce(raw any) (any, error) {
	switch p.Type {
	case TypeString:
		value, ok := raw.(string)
		if !ok {
			return nil, invalidArgument(p.Name, "argument %q must be a string, got %s", p.Name, jsonTypeName(raw))
		}
		if p.Pattern != nil && !p.Pattern.MatchString(value) {
			return nil, invalidArgument(p.Name, "argument %q must match %s", p.Name, p.Pattern.String())
		}
		return value, nil
	case TypeBoolean:
		switch value := raw.(type) {
		case bool:
			return value, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(value))
			if err != nil {
				return nil, invalidArgument(p.Name, "argument %q must be a boolean, got %q", p.Name, value)
			}
			return parsed, nil
		default:
			return nil, invalidArgument(p.Name, "argument %q must be a boolean, got %s", p.Name, jsonTypeName(raw))
		}
	}
	return nil, invalidArgument(p.Name, "argument %q has unsupported type %q", p.Name, p.Type)
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// JSONSchema renders the schema as a JSON Schema object for tools/list.
func (s Schema) JSONSchema() *jsonschema.Schema {
	out := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(s)),
	}
	for _, p := range s {
		prop := &jsonschema.Schema{
			Type:        string(p.Type),
			Description: p.Description,
		}
		if p.Pattern != nil {
			prop.Pattern = p.Pattern.String()
		}
		if p.Default != nil {
			if data, err := json.Marshal(p.Default); err == nil {
				prop.Default = data
			}
		}
		out.Properties[p.Name] = prop
		if p.Required && p.Default == nil {
			out.Required = append(out.Required, p.Name)
		}
	}
	return out
}
