// Package tools provides the tool framework for the agent loop.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// ErrUnknownTool is returned when a tool name matches no registered tool.
var ErrUnknownTool = errors.New("unknown tool")

// Tool defines the interface that all tools must implement.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description for the LLM.
	Description() string

	// Parameters returns the parameter schema for validation.
	Parameters() []Parameter

	// Execute runs the tool with validated arguments. Defaults for
	// missing optional parameters have already been applied.
	Execute(ctx context.Context, args map[string]any) (Output, error)
}

// Output is what a tool produces on success.
type Output struct {
	Text string
	// Image is a file path to an image the tool produced, if any.
	Image string
}

// ParamType is the basic JSON type of a parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Parameter defines a tool parameter with validation rules.
type Parameter struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Description string    `json:"description" yaml:"description"`
	Required    bool      `json:"required" yaml:"required"`
	Default     any       `json:"default,omitempty" yaml:"default,omitempty"`
	Enum        []string  `json:"enum,omitempty" yaml:"enum,omitempty"`
	// Items is the element type for array parameters.
	Items ParamType `json:"items,omitempty" yaml:"items,omitempty"`
	// Length, when positive, is the exact element count for array parameters.
	Length int `json:"length,omitempty" yaml:"length,omitempty"`
}

// Registry is a closed, ordered set of tools. It is built once and never
// mutated afterwards, so it can be shared by concurrent runs.
type Registry struct {
	order []Tool
	tools map[string]Tool
}

// NewRegistry creates a registry holding the given tools in order.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		order: make([]Tool, 0, len(tools)),
		tools: make(map[string]Tool, len(tools)),
	}
	for _, tool := range tools {
		name := tool.Name()
		if name == "" {
			return nil, errors.New("tool with empty name")
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("tool already registered: %s", name)
		}
		r.tools[name] = tool
		r.order = append(r.order, tool)
	}
	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on error.
func MustNewRegistry(tools ...Tool) *Registry {
	r, err := NewRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, exists := r.tools[name]
	return tool, exists
}

// List returns all registered tool names in registration order.
func (r *Registry) List() []string {
	return lo.Map(r.order, func(t Tool, _ int) string { return t.Name() })
}

// All returns all registered tools in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// ToolInfo contains metadata about a tool for the LLM prompt.
type ToolInfo struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Parameters  []Parameter `json:"parameters" yaml:"parameters"`
}

// ListTools returns all registered tools with their metadata.
func (r *Registry) ListTools() []ToolInfo {
	return lo.Map(r.order, func(t Tool, _ int) ToolInfo {
		return ToolInfo{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		}
	})
}

// Func adapts a plain function into a Tool.
type Func struct {
	ToolName string
	Desc     string
	Params   []Parameter
	Fn       func(ctx context.Context, args map[string]any) (Output, error)
}

func (f *Func) Name() string            { return f.ToolName }
func (f *Func) Description() string     { return f.Desc }
func (f *Func) Parameters() []Parameter { return f.Params }
func (f *Func) Execute(ctx context.Context, args map[string]any) (Output, error) {
	return f.Fn(ctx, args)
}
