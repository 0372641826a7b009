// Package results persists run artifacts and reads them back: one JSONL
// transcript per conversation branch, plus flattened metric rows exported as
// CSV for analysis. Transcripts are the durable record of a run; everything
// downstream (reports, labeling, the dashboard browser) works from them.
package results

import (
	"fmt"

	"github.com/shanefrancis93/anchor-research/types"
)

// Transcript is the persisted record of one conversation branch from one run.
// Field names are stable; saved transcripts from older runs must keep loading.
type Transcript struct {
	RunID       string               `json:"run_id"`
	Scenario    string               `json:"scenario"`
	Branch      string               `json:"branch"`
	Model       string               `json:"model"`
	Messages    []types.Message      `json:"messages"`
	Metrics     []types.MetricRecord `json:"metrics"`
	TotalTokens int                  `json:"total_tokens"`
	Timestamp   string               `json:"timestamp"`

	// ManualLabels is appended by the labeling tool; absent until a human
	// has annotated the transcript.
	ManualLabels []ManualLabel `json:"manual_labels,omitempty"`
}

// ManualLabel is one human annotation of an assistant turn. Turn is 1-based
// to match how turns are presented during labeling.
type ManualLabel struct {
	Turn              int     `json:"turn"`
	Timestamp         string  `json:"timestamp"`
	Pushback          int     `json:"pushback"`
	Polarity          float64 `json:"polarity"`
	DecaySeverity     string  `json:"decay_severity"`
	UserStrategy      string  `json:"user_strategy"`
	Notes             string  `json:"notes,omitempty"`
	LabelerConfidence float64 `json:"labeler_confidence"`
}

// DecaySeverities are the allowed decay_severity label values.
var DecaySeverities = []string{"none", "low", "medium", "high"}

// UserStrategies are the allowed user_strategy label values.
var UserStrategies = []string{
	"none",
	"gradual_normalization",
	"emotional_manipulation",
	"appeal_to_authority",
	"logical_fallacy",
	"reframing",
	"social_pressure",
	"other",
}

// Filename returns the canonical transcript file name for this record.
func (t *Transcript) Filename() string {
	return fmt.Sprintf("%s_%s_%s.jsonl", t.Scenario, t.Branch, t.RunID)
}

// LabelForTurn returns the manual label for a 1-based turn number.
func (t *Transcript) LabelForTurn(turn int) (ManualLabel, bool) {
	for _, l := range t.ManualLabels {
		if l.Turn == turn {
			return l, true
		}
	}
	return ManualLabel{}, false
}

// SetLabel records a manual label, replacing any existing label for the same
// turn.
func (t *Transcript) SetLabel(label ManualLabel) {
	for i, l := range t.ManualLabels {
		if l.Turn == label.Turn {
			t.ManualLabels[i] = label
			return
		}
	}
	t.ManualLabels = append(t.ManualLabels, label)
}
