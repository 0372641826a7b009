// Package scenario defines the experiment description consumed by the
// conversation engine: a scripted turn sequence, the anchor probe questions
// re-asked at every assistant turn, and the set of conversation branches the
// script is forked into. Scenarios are loaded from markdown files with YAML
// front matter and are immutable once parsed.
package scenario

import (
	"github.com/shanefrancis93/anchor-research/types"
)

// Defaults applied during parsing when front matter omits the field.
const (
	// DefaultMaxUserTurns caps scripted user turns when a scenario does not
	// set its own budget. Kept deliberately small: every extra user turn
	// multiplies model calls across branches and probes.
	DefaultMaxUserTurns = 6

	// DefaultProbesPerPoint is the sampling width used by dispersion-style
	// evaluators when a scenario does not override it.
	DefaultProbesPerPoint = 4
)

// BranchKind tags how a branch treats anchor probe exchanges.
type BranchKind string

const (
	// BranchStandard keeps probe calls transient: probe responses are used
	// for evaluation only and never enter the branch's history.
	BranchStandard BranchKind = "standard"

	// BranchProbePersisting writes each probe question and its response into
	// the branch's canonical history immediately after the primary exchange,
	// so the branch's later turns "remember" having been probed. Used as a
	// comparison trajectory for decay measurement.
	BranchProbePersisting BranchKind = "probe_persisting"
)

// legacyProbePersistingID is the branch id older scenario files used to
// request probe persistence before the kind field existed.
const legacyProbePersistingID = "anchor_guard"

// Branch is one conversation trajectory derived from the shared turn script.
type Branch struct {
	ID          string     `yaml:"id" json:"id"`
	Description string     `yaml:"description" json:"description"`
	Kind        BranchKind `yaml:"kind,omitempty" json:"kind,omitempty"`
}

// PersistsProbes reports whether probe exchanges are written into this
// branch's canonical history.
func (b Branch) PersistsProbes() bool {
	return b.Kind == BranchProbePersisting
}

// Turn is one element of the scripted conversation. Assistant turns carry no
// content; they instruct the runner to call the model.
type Turn struct {
	Role    string `yaml:"role" json:"role"`
	Content string `yaml:"content,omitempty" json:"content,omitempty"`
}

// IsAssistant reports whether this turn triggers a model call.
func (t Turn) IsAssistant() bool {
	return t.Role == types.RoleAssistant
}

// Scenario is one experiment: a named turn script with branch definitions and
// anchor probe questions. Immutable after parsing; owned by the run that
// loaded it.
type Scenario struct {
	Name            string   `json:"name"`
	BehaviorTested  string   `json:"behavior_tested"`
	AnchorQuestions []string `json:"anchor_questions"`
	MaxUserTurns    int      `json:"max_user_turns"`
	ProbesPerPoint  int      `json:"probes_per_point"`
	Branches        []Branch `json:"branches"`
	Turns           []Turn   `json:"turns"`

	// Description is the markdown body following the front matter, rendered
	// by the dashboard's scenario view.
	Description string `json:"description,omitempty"`

	// FilePath records where the scenario was loaded from, when applicable.
	FilePath string `json:"-"`
}

// Branch returns the branch definition with the given id.
func (s *Scenario) Branch(id string) (Branch, bool) {
	for _, b := range s.Branches {
		if b.ID == id {
			return b, true
		}
	}
	return Branch{}, false
}

// BranchIDs returns the configured branch ids in declaration order.
func (s *Scenario) BranchIDs() []string {
	ids := make([]string, len(s.Branches))
	for i, b := range s.Branches {
		ids[i] = b.ID
	}
	return ids
}

// UserTurnCount returns the number of scripted user turns.
func (s *Scenario) UserTurnCount() int {
	n := 0
	for _, t := range s.Turns {
		if t.Role == types.RoleUser {
			n++
		}
	}
	return n
}

// AssistantTurnCount returns the number of scripted assistant placeholders.
func (s *Scenario) AssistantTurnCount() int {
	n := 0
	for _, t := range s.Turns {
		if t.IsAssistant() {
			n++
		}
	}
	return n
}
