package toolset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
)

// manifestSchema is the JSON Schema for toolset manifest validation.
const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["tool_sets"],
  "properties": {
    "tool_sets": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {
            "type": "string",
            "minLength": 1
          },
          "tools": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name"],
              "properties": {
                "name": { "type": "string", "minLength": 1 },
                "description": { "type": "string" },
                "disabled": { "type": "boolean" }
              }
            }
          }
        }
      }
    }
  }
}`

// Manifest describes per-set tool overrides loaded from a JSON file.
type Manifest struct {
	ToolSets []ManifestSet `json:"tool_sets"`
}

// ManifestSet overrides tools within one tool set.
type ManifestSet struct {
	Name  string         `json:"name"`
	Tools []ManifestTool `json:"tools,omitempty"`
}

// ManifestTool overrides a single tool's description or disables it.
type ManifestTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Disabled    bool   `json:"disabled,omitempty"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(manifestSchema)
	docLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("failed to validate manifest: %w", err)
	}
	if !result.Valid() {
		errs := ""
		for _, desc := range result.Errors() {
			if errs != "" {
				errs += "; "
			}
			errs += desc.String()
		}
		return nil, fmt.Errorf("invalid manifest: %s", errs)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}
