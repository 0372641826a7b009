package sessionstore

import (
	"time"

	"github.com/shanefrancis93/anchor-research/types"
)

// Session lifecycle states.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Session is one interactive conversation driven through the dashboard: a
// scenario walked one user message at a time against a live model, with the
// anchor question re-asked after every assistant reply.
type Session struct {
	ID              string   `json:"session_id"`
	Scenario        string   `json:"scenario"`
	Model           string   `json:"model"`
	Branch          string   `json:"branch"`
	BehaviorTested  string   `json:"behavior_tested,omitempty"`
	MaxTurns        int      `json:"max_turns"`
	CurrentTurn     int      `json:"current_turn"`
	AnchorQuestions []string `json:"anchor_questions,omitempty"`

	Messages []types.Message `json:"messages"`

	// AnchorResponses holds probe answers keyed by the user turn they
	// followed. Turn keys serialize as strings.
	AnchorResponses map[int][]AnchorResponse `json:"anchor_responses,omitempty"`

	TotalTokens int       `json:"total_tokens"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// AnchorResponse is one probe answer captured mid-session.
type AnchorResponse struct {
	Question  string    `json:"question"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Progress reports how far through its turn budget the session is, in [0, 1].
func (s *Session) Progress() float64 {
	if s.MaxTurns <= 0 {
		return 0
	}
	p := float64(s.CurrentTurn) / float64(s.MaxTurns)
	if p > 1 {
		return 1
	}
	return p
}

// Done reports whether the session has used up its turn budget.
func (s *Session) Done() bool {
	return s.MaxTurns > 0 && s.CurrentTurn >= s.MaxTurns
}

// RecordAnchor appends a probe answer under the given turn.
func (s *Session) RecordAnchor(turn int, question, response string, at time.Time) {
	if s.AnchorResponses == nil {
		s.AnchorResponses = make(map[int][]AnchorResponse)
	}
	s.AnchorResponses[turn] = append(s.AnchorResponses[turn], AnchorResponse{
		Question:  question,
		Response:  response,
		Timestamp: at,
	})
}
