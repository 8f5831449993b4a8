package config

import (
	"encoding/json"
	"fmt"

	yaml "go.yaml.in/yaml/v3"
)

// yamlToJSON re-encodes a YAML document as JSON so Parse can run it through
// the strict JSON decoder. YAML is a superset of JSON, so a plain JSON config
// file passes through with its meaning intact.
func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}

	j, err := json.Marshal(stringifyKeys(v))
	if err != nil {
		return nil, fmt.Errorf("yaml to json: %w", err)
	}
	return j, nil
}

// stringifyKeys rewrites every map key to a string; YAML permits non-string
// keys (1, true, ...) that json.Marshal rejects.
func stringifyKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringifyKeys(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = stringifyKeys(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = stringifyKeys(x[i])
		}
		return x
	default:
		return in
	}
}
