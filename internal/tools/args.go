package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// ArgumentError lists every parameter that was missing or had the wrong type.
type ArgumentError struct {
	Missing []string
	Invalid []string
}

func (e *ArgumentError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required parameter(s): "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid parameter(s): "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// Names returns the offending parameter names, sorted.
func (e *ArgumentError) Names() []string {
	names := append(append([]string{}, e.Missing...), e.Invalid...)
	sort.Strings(names)
	return names
}

// CheckArguments validates args against params. Required parameters must be
// present; any present parameter must have the declared type and, when an
// enum is declared, one of its values. It returns *ArgumentError or nil.
func CheckArguments(params []Parameter, args map[string]any) error {
	argErr := &ArgumentError{}
	for _, def := range params {
		value, exists := args[def.Name]
		if !exists || value == nil {
			if def.Required {
				argErr.Missing = append(argErr.Missing, def.Name)
			}
			continue
		}

		if !hasType(value, def.Type) {
			argErr.Invalid = append(argErr.Invalid, def.Name)
			continue
		}

		if def.Type == TypeArray {
			items := value.([]any)
			if def.Length > 0 && len(items) != def.Length {
				argErr.Invalid = append(argErr.Invalid, def.Name)
				continue
			}
			if def.Items != "" && !lo.EveryBy(items, func(v any) bool { return hasType(v, def.Items) }) {
				argErr.Invalid = append(argErr.Invalid, def.Name)
				continue
			}
		}

		if len(def.Enum) > 0 {
			s, _ := value.(string)
			if !lo.Contains(def.Enum, s) {
				argErr.Invalid = append(argErr.Invalid, def.Name)
			}
		}
	}

	if len(argErr.Missing) == 0 && len(argErr.Invalid) == 0 {
		return nil
	}
	return argErr
}

// ApplyDefaults returns a copy of args with defaults filled in for missing
// optional parameters.
func ApplyDefaults(params []Parameter, args map[string]any) map[string]any {
	result := make(map[string]any, len(args))
	for k, v := range args {
		result[k] = v
	}

	for _, def := range params {
		if v, exists := result[def.Name]; (!exists || v == nil) && def.Default != nil {
			result[def.Name] = def.Default
		}
	}
	return result
}

func hasType(value any, t ParamType) bool {
	switch t {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeNumber:
		_, ok := toFloat(value)
		return ok
	case TypeInteger:
		f, ok := toFloat(value)
		return ok && f == math.Trunc(f)
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeArray:
		_, ok := value.([]any)
		return ok
	case TypeObject:
		_, ok := value.(map[string]any)
		return ok
	case "":
		return true
	}
	return false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// ─── accessors for tool implementations ───────────────────────────────────────

// String returns args[name] as a string, or "" when absent.
func String(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// Float returns args[name] as a float64.
func Float(args map[string]any, name string) (float64, bool) {
	return toFloat(args[name])
}

// Int returns args[name] as an int, or def when absent or not numeric.
func Int(args map[string]any, name string, def int) int {
	f, ok := toFloat(args[name])
	if !ok {
		return def
	}
	return int(f)
}

// Floats returns args[name] as a slice of float64.
func Floats(args map[string]any, name string) ([]float64, error) {
	raw, ok := args[name].([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected array", name)
	}
	out := make([]float64, 0, len(raw))
	for i, v := range raw {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%s[%d]: expected number", name, i)
		}
		out = append(out, f)
	}
	return out, nil
}
