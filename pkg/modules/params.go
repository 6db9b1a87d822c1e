package modules

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// argValidator checks the typed argument structs modules decode into.
var argValidator = validator.New()

// DecodeArgs converts a rendered argument map into a typed struct and
// validates it. The YAML round trip applies the same scalar typing rules as
// playbook parsing, so "80" and 80 both land in an int field.
func DecodeArgs(args map[string]any, out any) error {
	data, err := yaml.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := argValidator.Struct(out); err != nil {
		return fmt.Errorf("argument validation failed: %w", err)
	}
	return nil
}

// stringArg fetches an argument as a string, stringifying scalars.
func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprintf("%v", v), true
}

// boolArg fetches an argument as a bool, accepting yes/true strings.
func boolArg(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "yes" || val == "true" || val == "True" || val == "Yes"
	default:
		return false
	}
}
