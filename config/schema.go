package config

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/c360/semlattice/errors"
)

// configSchema is the structural contract for run configuration. Semantic
// constraints (primality, stride vs block size) live in Validate.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "primes": {
      "type": "array",
      "items": {"type": "integer", "minimum": 2}
    },
    "block_size": {"type": "integer", "minimum": 1},
    "stride": {"type": "integer", "minimum": 1},
    "momentum": {"type": "number", "minimum": 0, "maximum": 1},
    "ransac": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "min_size": {"type": "integer", "minimum": 1},
        "min_ratio": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
        "trial_budget": {"type": "integer", "minimum": 1}
      }
    },
    "hensel": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "max_depth": {"type": "integer", "minimum": 1, "maximum": 12},
        "min_consensus": {"type": "number", "exclusiveMinimum": 0, "maximum": 1}
      }
    },
    "workers": {"type": "integer", "minimum": 1},
    "seed": {"type": "integer"},
    "source": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "url": {"type": "string"},
        "subject": {"type": "string"},
        "rate_limit": {"type": "number", "minimum": 0}
      }
    },
    "metrics": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "port": {"type": "integer", "minimum": 0, "maximum": 65535},
        "path": {"type": "string"}
      }
    }
  }
}`

// validateSchema checks raw YAML against the embedded schema. The YAML is
// decoded generically and re-encoded as JSON, which is what the schema
// validator consumes.
func validateSchema(data []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Config", "validateSchema", "decode yaml")
	}
	if doc == nil {
		return nil
	}

	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return errors.WrapFatal(err, "Config", "validateSchema", "encode document")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(jsonDoc),
	)
	if err != nil {
		return errors.WrapFatal(err, "Config", "validateSchema", "run validator")
	}
	if !result.Valid() {
		detail := ""
		for _, e := range result.Errors() {
			if detail != "" {
				detail += "; "
			}
			detail += e.String()
		}
		return errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, detail),
			"Config", "validateSchema", "validate document")
	}
	return nil
}
