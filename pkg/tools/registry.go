package tools

import (
	"context"
	"fmt"

	"github.com/biotwin/biotwin/pkg/llm"
	"github.com/xeipuuv/gojsonschema"
)

// Handler executes a tool with model-supplied arguments. A returned error is
// converted to a structured payload by Dispatch, never surfaced raw.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Definition declares a registered tool. Parameters is a JSON-schema
// document shared between argument validation and the model declaration.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// Registry is a fixed set of callable tools. Registration happens at
// session construction; dispatch is read-only afterwards.
type Registry struct {
	defs  map[string]Definition
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a tool definition.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", def.Name)
	}
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("tool %s: already registered", def.Name)
	}

	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Definitions returns the tool declarations in registration order, in the
// shape the model capability expects.
func (r *Registry) Definitions() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		def := r.defs[name]
		defs = append(defs, llm.ToolDef{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	return defs
}

// Dispatch validates the arguments and invokes the named tool. The returned
// map is always a usable structured result.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) map[string]any {
	def, exists := r.defs[name]
	if !exists {
		return map[string]any{
			"status":  "error",
			"message": fmt.Sprintf("unknown tool: %s", name),
		}
	}

	if args == nil {
		args = map[string]any{}
	}

	if def.Parameters != nil {
		if err := validateArgs(def.Parameters, args); err != nil {
			return map[string]any{
				"status":  "error",
				"message": fmt.Sprintf("invalid arguments for %s: %v", name, err),
			}
		}
	}

	result, err := def.Handler(ctx, args)
	if err != nil {
		return map[string]any{
			"status":  "error",
			"message": err.Error(),
		}
	}
	if result == nil {
		result = map[string]any{"status": "ok"}
	}

	return result
}

// validateArgs checks model-supplied arguments against the declared schema.
func validateArgs(schema map[string]any, args map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return err
	}

	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("%s", errs[0].String())
		}
		return fmt.Errorf("arguments do not match schema")
	}

	return nil
}
