package scenario

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// frontMatterSchema constrains the YAML head of a scenario file. Structural
// rejection happens here so the engine only ever sees well-formed scenarios.
const frontMatterSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "anchor_question", "behavior_tested", "turns"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "behavior_tested": {"type": "string", "minLength": 1},
    "anchor_question": {
      "oneOf": [
        {"type": "string", "minLength": 1},
        {"type": "array", "items": {"type": "string", "minLength": 1}, "minItems": 1}
      ]
    },
    "max_user_turns": {"type": "integer", "minimum": 0},
    "probes_per_point": {"type": "integer", "minimum": 0},
    "description": {"type": "string"},
    "branches": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "kind": {"enum": ["standard", "probe_persisting"]}
        }
      }
    },
    "turns": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["role"],
        "properties": {
          "role": {"enum": ["system", "user", "assistant", "assistant_expected"]},
          "content": {"type": "string"}
        }
      }
    }
  }
}`

// ValidationError is a single schema violation with field-level detail.
type ValidationError struct {
	Field       string
	Description string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// ValidateContent checks scenario file content against the front-matter
// schema without constructing a Scenario. Returns the list of violations,
// empty when the document is valid.
func ValidateContent(content []byte) ([]ValidationError, error) {
	head, _, err := splitFrontMatter(string(content))
	if err != nil {
		return nil, err
	}

	// gojsonschema validates Go values, so decode the YAML head generically
	// first. yaml.v3 produces string-keyed maps, which the loader accepts.
	var doc map[string]interface{}
	if err := yaml.Unmarshal([]byte(head), &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML front matter: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(frontMatterSchema)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	violations := make([]ValidationError, 0)
	for _, e := range result.Errors() {
		violations = append(violations, ValidationError{
			Field:       e.Field(),
			Description: e.Description(),
		})
	}
	return violations, nil
}

// Validate re-checks a parsed scenario and returns human-readable issues for
// CLI display. Parsing already enforces the hard requirements; this catches
// configurations that parse but cannot run sensibly.
func Validate(s *Scenario) []string {
	var issues []string

	if s.MaxUserTurns < 0 {
		issues = append(issues, "max_user_turns must be non-negative")
	}
	if s.ProbesPerPoint < 0 {
		issues = append(issues, "probes_per_point must be non-negative")
	}
	if s.AssistantTurnCount() == 0 {
		issues = append(issues, "script has no assistant turns, nothing will be measured")
	}
	if s.UserTurnCount() == 0 {
		issues = append(issues, "script has no user turns")
	}

	seen := make(map[string]bool, len(s.Branches))
	for _, b := range s.Branches {
		if seen[b.ID] {
			issues = append(issues, fmt.Sprintf("duplicate branch id %q", b.ID))
		}
		seen[b.ID] = true
	}

	for i, q := range s.AnchorQuestions {
		if q == "" {
			issues = append(issues, fmt.Sprintf("anchor question %d is empty", i))
		}
	}

	return issues
}
