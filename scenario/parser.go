package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shanefrancis93/anchor-research/types"
)

// ErrNoFrontMatter is returned when a scenario file does not open with a
// "---" delimited YAML block.
var ErrNoFrontMatter = errors.New("missing YAML front matter")

// questionList accepts either a single string or a list of strings for the
// anchor_question field and normalizes to a list.
type questionList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (q *questionList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*q = questionList{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*q = questionList(list)
		return nil
	default:
		return fmt.Errorf("anchor_question must be a string or a list of strings")
	}
}

// frontMatter mirrors the YAML head of a scenario file before normalization.
type frontMatter struct {
	Name           string       `yaml:"name"`
	AnchorQuestion questionList `yaml:"anchor_question"`
	BehaviorTested string       `yaml:"behavior_tested"`
	MaxUserTurns   *int         `yaml:"max_user_turns"`
	ProbesPerPoint *int         `yaml:"probes_per_point"`
	Branches       []Branch     `yaml:"branches"`
	Turns          []Turn       `yaml:"turns"`
}

// splitFrontMatter separates the YAML head from the markdown body.
func splitFrontMatter(content string) (head, body string, err error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(content, "---\n") {
		return "", "", ErrNoFrontMatter
	}
	rest := content[len("---\n"):]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return "", "", ErrNoFrontMatter
	}
	head = rest[:idx]
	body = rest[idx+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	return head, body, nil
}

// Parse parses scenario file content: a YAML front-matter block followed by a
// markdown body. Required fields are name, anchor_question, behavior_tested,
// and turns; everything else is defaulted. The returned scenario is fully
// normalized and ready for the engine.
func Parse(content []byte) (*Scenario, error) {
	head, body, err := splitFrontMatter(string(content))
	if err != nil {
		return nil, err
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(head), &fm); err != nil {
		return nil, fmt.Errorf("invalid YAML front matter: %w", err)
	}

	if fm.Name == "" {
		return nil, fmt.Errorf("missing required field: name")
	}
	if len(fm.AnchorQuestion) == 0 {
		return nil, fmt.Errorf("missing required field: anchor_question")
	}
	if fm.BehaviorTested == "" {
		return nil, fmt.Errorf("missing required field: behavior_tested")
	}
	if len(fm.Turns) == 0 {
		return nil, fmt.Errorf("missing required field: turns")
	}

	s := &Scenario{
		Name:            fm.Name,
		BehaviorTested:  fm.BehaviorTested,
		AnchorQuestions: []string(fm.AnchorQuestion),
		MaxUserTurns:    DefaultMaxUserTurns,
		ProbesPerPoint:  DefaultProbesPerPoint,
		Description:     strings.TrimSpace(body),
	}
	if fm.MaxUserTurns != nil {
		s.MaxUserTurns = *fm.MaxUserTurns
	}
	if fm.ProbesPerPoint != nil {
		s.ProbesPerPoint = *fm.ProbesPerPoint
	}

	s.Turns = make([]Turn, 0, len(fm.Turns))
	for i, t := range fm.Turns {
		switch t.Role {
		case types.RoleSystem, types.RoleUser:
			if t.Content == "" {
				return nil, fmt.Errorf("turn %d: %s turn requires content", i, t.Role)
			}
			s.Turns = append(s.Turns, Turn{Role: t.Role, Content: t.Content})
		case types.RoleAssistant, "assistant_expected":
			// Assistant turns are placeholders; any scripted content is an
			// expectation note, not conversation input, and is dropped.
			s.Turns = append(s.Turns, Turn{Role: types.RoleAssistant})
		default:
			return nil, fmt.Errorf("turn %d: unknown role %q", i, t.Role)
		}
	}

	for i, b := range fm.Branches {
		if b.ID == "" {
			return nil, fmt.Errorf("branch %d: missing id", i)
		}
		switch b.Kind {
		case "", BranchStandard, BranchProbePersisting:
		default:
			return nil, fmt.Errorf("branch %q: unknown kind %q", b.ID, b.Kind)
		}
	}

	s.Branches = normalizeBranches(fm.Branches)
	return s, nil
}

// ParseFile reads and parses a scenario file.
func ParseFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	s.FilePath = path
	return s, nil
}

// normalizeBranches applies the default branch and resolves branch kinds.
// A missing branch list becomes a single standard baseline branch. A branch
// with no explicit kind is standard, except the legacy anchor_guard id, which
// older scenario files used to request probe persistence.
func normalizeBranches(in []Branch) []Branch {
	if len(in) == 0 {
		return []Branch{{
			ID:          "baseline",
			Description: "Default conversation flow",
			Kind:        BranchStandard,
		}}
	}

	out := make([]Branch, len(in))
	for i, b := range in {
		if b.Kind == "" {
			if b.ID == legacyProbePersistingID {
				b.Kind = BranchProbePersisting
			} else {
				b.Kind = BranchStandard
			}
		}
		out[i] = b
	}
	return out
}
