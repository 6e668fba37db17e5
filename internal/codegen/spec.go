// Package codegen is the part-script generation pipeline: one model-written
// build script per declared part, executed through the compiler, with
// exactly one corrective regeneration on failure.
package codegen

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// PartSpec declares one part to generate. Specs come out of the analysis
// step (or a hand-written JSON file) and are consumed once each by the
// pipeline.
type PartSpec struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Role         string    `json:"role,omitempty"`
	GeometryHint string    `json:"geometry_hint,omitempty"`
	ApproxDimsMM []float64 `json:"approx_dims_mm,omitempty"`
	Features     []string  `json:"features,omitempty"`
	Appearance   string    `json:"appearance,omitempty"`
}

type specDoc struct {
	Parts []PartSpec `json:"parts"`
}

var slugRe = regexp.MustCompile(`[^a-z0-9_-]+`)

// Slugify reduces a free-form name to a key-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "part"
	}
	return s
}

// ParseSpecs accepts either a bare JSON array of part specs or a document
// with a top-level "parts" field. Missing keys are derived from names;
// duplicate keys are an error.
func ParseSpecs(b []byte) ([]PartSpec, error) {
	var parts []PartSpec
	if err := json.Unmarshal(b, &parts); err != nil {
		var doc specDoc
		if err2 := json.Unmarshal(b, &doc); err2 != nil {
			return nil, fmt.Errorf("parsing part specs: %w", err)
		}
		parts = doc.Parts
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no part specs declared")
	}

	seen := map[string]bool{}
	for i := range parts {
		if strings.TrimSpace(parts[i].Key) == "" {
			parts[i].Key = Slugify(parts[i].Name)
		} else {
			parts[i].Key = Slugify(parts[i].Key)
		}
		if parts[i].Name == "" {
			parts[i].Name = parts[i].Key
		}
		if seen[parts[i].Key] {
			return nil, fmt.Errorf("duplicate part key %q", parts[i].Key)
		}
		seen[parts[i].Key] = true
	}
	return parts, nil
}

func (s PartSpec) describe() string {
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}
