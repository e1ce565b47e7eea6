package tools

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// MockTool for testing the framework
type MockTool struct {
	name        string
	description string
	params      []Parameter
	execFunc    func(ctx context.Context, args map[string]any) (Output, error)
}

func (m *MockTool) Name() string            { return m.name }
func (m *MockTool) Description() string     { return m.description }
func (m *MockTool) Parameters() []Parameter { return m.params }
func (m *MockTool) Execute(ctx context.Context, args map[string]any) (Output, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, args)
	}
	return Output{Text: "mock output"}, nil
}

func TestNewRegistry_Duplicate(t *testing.T) {
	tool := &MockTool{name: "test-tool", description: "A test tool"}

	if _, err := NewRegistry(tool); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if _, err := NewRegistry(tool, tool); err == nil {
		t.Fatal("expected error for duplicate registration")
	}
}

func TestNewRegistry_EmptyName(t *testing.T) {
	if _, err := NewRegistry(&MockTool{}); err == nil {
		t.Fatal("expected error for empty tool name")
	}
}

func TestRegistry_Get(t *testing.T) {
	registry := MustNewRegistry(&MockTool{name: "test-tool"})

	found, ok := registry.Get("test-tool")
	if !ok {
		t.Fatal("expected to find tool")
	}
	if found.Name() != "test-tool" {
		t.Fatalf("expected 'test-tool', got %s", found.Name())
	}

	_, ok = registry.Get("nonexistent")
	if ok {
		t.Fatal("expected not to find nonexistent tool")
	}
}

func TestRegistry_ListKeepsOrder(t *testing.T) {
	registry := MustNewRegistry(
		&MockTool{name: "tool-b"},
		&MockTool{name: "tool-a"},
		&MockTool{name: "tool-c"},
	)

	want := []string{"tool-b", "tool-a", "tool-c"}
	if got := registry.List(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if registry.Len() != 3 {
		t.Fatalf("expected 3 tools, got %d", registry.Len())
	}

	infos := registry.ListTools()
	if infos[0].Name != "tool-b" {
		t.Fatalf("expected first tool-b, got %s", infos[0].Name)
	}
}

func TestCheckArguments(t *testing.T) {
	params := []Parameter{
		{Name: "image_path", Type: TypeString, Required: true},
		{Name: "label", Type: TypeString, Required: true},
		{Name: "box", Type: TypeArray, Items: TypeNumber, Length: 4},
		{Name: "line_width", Type: TypeInteger},
		{Name: "mode", Type: TypeString, Enum: []string{"fast", "slow"}},
		{Name: "labels", Type: TypeBoolean},
	}

	tests := []struct {
		name    string
		args    map[string]any
		missing []string
		invalid []string
	}{
		{
			name: "valid",
			args: map[string]any{"image_path": "a.png", "label": "dog", "box": []any{0.1, 0.2, 0.3, 0.4}},
		},
		{
			name:    "missing both required",
			args:    map[string]any{},
			missing: []string{"image_path", "label"},
		},
		{
			name:    "null required counts as missing",
			args:    map[string]any{"image_path": nil, "label": "dog"},
			missing: []string{"image_path"},
		},
		{
			name:    "wrong type required",
			args:    map[string]any{"image_path": 3.0, "label": "dog"},
			invalid: []string{"image_path"},
		},
		{
			name:    "wrong optional types",
			args:    map[string]any{"image_path": "a", "label": "b", "line_width": 2.5, "labels": "yes"},
			invalid: []string{"line_width", "labels"},
		},
		{
			name:    "array length and items",
			args:    map[string]any{"image_path": "a", "label": "b", "box": []any{0.1, "x", 0.3, 0.4}},
			invalid: []string{"box"},
		},
		{
			name:    "short array",
			args:    map[string]any{"image_path": "a", "label": "b", "box": []any{0.1}},
			invalid: []string{"box"},
		},
		{
			name:    "enum",
			args:    map[string]any{"image_path": "a", "label": "b", "mode": "medium"},
			invalid: []string{"mode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckArguments(params, tt.args)
			if tt.missing == nil && tt.invalid == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var argErr *ArgumentError
			if !errors.As(err, &argErr) {
				t.Fatalf("expected *ArgumentError, got %v", err)
			}
			if !reflect.DeepEqual(argErr.Missing, tt.missing) {
				t.Errorf("missing: expected %v, got %v", tt.missing, argErr.Missing)
			}
			if !reflect.DeepEqual(argErr.Invalid, tt.invalid) {
				t.Errorf("invalid: expected %v, got %v", tt.invalid, argErr.Invalid)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	params := []Parameter{
		{Name: "color", Type: TypeString, Default: "red"},
		{Name: "line_width", Type: TypeInteger, Default: 3},
	}
	in := map[string]any{"color": "blue"}

	out := ApplyDefaults(params, in)
	if out["color"] != "blue" {
		t.Errorf("expected explicit value kept, got %v", out["color"])
	}
	if out["line_width"] != 3 {
		t.Errorf("expected default line_width, got %v", out["line_width"])
	}
	if _, ok := in["line_width"]; ok {
		t.Error("input map was modified")
	}
}

func TestFloats(t *testing.T) {
	got, err := Floats(map[string]any{"box": []any{1.0, 2, 3.5}}, "box")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []float64{1, 2, 3.5}) {
		t.Fatalf("got %v", got)
	}

	if _, err := Floats(map[string]any{"box": "nope"}, "box"); err == nil {
		t.Fatal("expected error for non-array")
	}
}
