package config

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestYAMLToJSON(t *testing.T) {
	t.Parallel()

	j, err := yamlToJSON([]byte("telegram:\n  token: abc\n"))
	if err != nil {
		t.Fatalf("yamlToJSON: %v", err)
	}
	var v map[string]map[string]string
	if err := json.Unmarshal(j, &v); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if v["telegram"]["token"] != "abc" {
		t.Fatalf("round trip = %v", v)
	}
}

func TestYAMLToJSONStringifiesKeys(t *testing.T) {
	t.Parallel()

	// Non-string mapping keys are legal YAML but not legal JSON.
	j, err := yamlToJSON([]byte("1: one\ntrue: yes\n"))
	if err != nil {
		t.Fatalf("yamlToJSON: %v", err)
	}
	var v map[string]any
	if err := json.Unmarshal(j, &v); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if _, ok := v["1"]; !ok {
		t.Fatalf("integer key not stringified: %s", j)
	}
}

func TestYAMLToJSONRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := yamlToJSON([]byte("a: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "yaml") {
		t.Fatalf("err = %v", err)
	}
}
