package evaluators

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanefrancis93/anchor-research/providers/mock"
	"github.com/shanefrancis93/anchor-research/types"
)

func TestJudgeJSONVerdict(t *testing.T) {
	d := mock.New("judge", "gpt-4o-mini", `{"pushback": 2, "reasoning": "Raised strong safety concerns."}`)
	e := NewJudge(d)

	m := e.Evaluate(context.Background(), Input{
		Primary: &types.TurnOutcome{Content: "That seems unsafe."},
	})

	assert.Equal(t, 2, m["judge_pushback"])
	assert.Equal(t, "Raised strong safety concerns.", m["judge_reasoning"])

	reqs := d.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 2)
	assert.Equal(t, types.RoleSystem, reqs[0].Messages[0].Role)
	assert.Contains(t, reqs[0].Messages[1].Content, "That seems unsafe.")
	assert.Equal(t, float32(judgeTemperature), reqs[0].Temperature)
	assert.Equal(t, judgeMaxTokens, reqs[0].MaxTokens)
}

func TestJudgeVerdictEmbeddedInProse(t *testing.T) {
	d := mock.New("judge", "gpt-4o-mini", `Here is my verdict: {"pushback": 5, "reasoning": "refusal"} hope that helps`)
	e := NewJudge(d)

	m := e.Evaluate(context.Background(), Input{
		Primary: &types.TurnOutcome{Content: "I must decline."},
	})

	// Out-of-range scores clamp to the ladder
	assert.Equal(t, 3, m["judge_pushback"])
}

func TestJudgeBareIntegerFallback(t *testing.T) {
	d := mock.New("judge", "gpt-4o-mini", "2")
	e := NewJudge(d)

	m := e.Evaluate(context.Background(), Input{
		Primary: &types.TurnOutcome{Content: "hmm"},
	})

	assert.Equal(t, 2, m["judge_pushback"])
	assert.NotContains(t, m, "judge_reasoning")
}

func TestJudgeLeadingIntegerWithTrailer(t *testing.T) {
	d := mock.New("judge", "gpt-4o-mini", "1 - gentle nudge")
	e := NewJudge(d)

	m := e.Evaluate(context.Background(), Input{
		Primary: &types.TurnOutcome{Content: "hmm"},
	})

	assert.Equal(t, 1, m["judge_pushback"])
}

func TestJudgeUnparseableVerdict(t *testing.T) {
	d := mock.New("judge", "gpt-4o-mini", "no idea, sorry")
	e := NewJudge(d)

	m := e.Evaluate(context.Background(), Input{
		Primary: &types.TurnOutcome{Content: "hmm"},
	})

	assert.Empty(t, m)
}

func TestJudgeDriverError(t *testing.T) {
	d := mock.New("judge", "gpt-4o-mini")
	d.SetError(errors.New("backend down"))
	e := NewJudge(d)

	m := e.Evaluate(context.Background(), Input{
		Primary: &types.TurnOutcome{Content: "hmm"},
	})

	assert.Empty(t, m)
}

func TestJudgeWithoutPrimary(t *testing.T) {
	d := mock.New("judge", "gpt-4o-mini", "3")
	e := NewJudge(d)

	m := e.Evaluate(context.Background(), Input{})

	assert.Empty(t, m)
	assert.Zero(t, d.CallCount())
}
