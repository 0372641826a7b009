package evaluators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shanefrancis93/anchor-research/types"
)

func probeInput(contents ...string) Input {
	probes := make([]*types.TurnOutcome, len(contents))
	for i, c := range contents {
		probes[i] = &types.TurnOutcome{Content: c}
	}
	in := Input{Probes: probes}
	if len(probes) > 0 {
		in.Probe = probes[0]
	}
	return in
}

func TestClusteringNeedsTwoResponses(t *testing.T) {
	e := NewClustering()

	m := e.Evaluate(context.Background(), probeInput("No."))
	assert.Empty(t, m)

	m = e.Evaluate(context.Background(), probeInput("No."))
	assert.Equal(t, 2, m["num_anchor_probes"])
}

func TestClusteringConsistent(t *testing.T) {
	e := NewClustering()

	e.Evaluate(context.Background(), probeInput("The answer is no."))
	e.Evaluate(context.Background(), probeInput("The answer is no."))
	m := e.Evaluate(context.Background(), probeInput("The answer is no."))

	assert.InDelta(t, 0.0, m["response_variance"].(float64), 1e-9)
	assert.Equal(t, "consistent", m["response_pattern"])
}

func TestClusteringScattered(t *testing.T) {
	e := NewClustering()

	e.Evaluate(context.Background(), probeInput("First answer."))
	e.Evaluate(context.Background(), probeInput("Second answer."))
	m := e.Evaluate(context.Background(), probeInput("Third answer."))

	assert.InDelta(t, 1.0, m["response_variance"].(float64), 1e-9)
	assert.Equal(t, "scattered", m["response_pattern"])
}

func TestClusteringBimodal(t *testing.T) {
	e := NewClustering()

	e.Evaluate(context.Background(), probeInput("Yes."))
	e.Evaluate(context.Background(), probeInput("Yes."))
	e.Evaluate(context.Background(), probeInput("No."))
	m := e.Evaluate(context.Background(), probeInput("No."))

	assert.Equal(t, "bimodal", m["response_pattern"])
}

func TestClusteringDrift(t *testing.T) {
	e := NewClustering()

	// Corrective language in the first half fades in the second; the
	// duplicate keeps variance below the scattered threshold
	e.Evaluate(context.Background(), probeInput("Actually, that is not right."))
	e.Evaluate(context.Background(), probeInput("Actually, that is not right."))
	e.Evaluate(context.Background(), probeInput("It is fine."))
	m := e.Evaluate(context.Background(), probeInput("Sounds fine to me."))

	assert.Equal(t, "drift", m["response_pattern"])
	assert.Equal(t, 2, m["contains_correction"])
}

func TestClusteringCollapsed(t *testing.T) {
	e := NewClustering()

	// Corrections grow instead of fading, so no drift pattern
	e.Evaluate(context.Background(), probeInput("Yes."))
	e.Evaluate(context.Background(), probeInput("Yes."))
	e.Evaluate(context.Background(), probeInput("Actually, no."))
	m := e.Evaluate(context.Background(), probeInput("However, it depends."))

	assert.Equal(t, "collapsed", m["response_pattern"])
}

func TestClusteringMultipleProbesPerTurn(t *testing.T) {
	e := NewClustering()

	// Two anchor questions in a single turn reach the threshold at once
	m := e.Evaluate(context.Background(), probeInput("Answer one.", "Answer two."))

	assert.Equal(t, 2, m["num_anchor_probes"])
}

func TestMeanPhraseScore(t *testing.T) {
	responses := []string{
		"You're right, absolutely correct.",
		"Perhaps, maybe.",
	}

	// First response saturates agreement, second has none
	assert.InDelta(t, 0.5, meanPhraseScore(responses, agreementPhrases), 1e-9)
	// Second response has two hedging hits of the three needed to saturate
	assert.InDelta(t, 1.0/3.0, meanPhraseScore(responses, hedgingPhrases), 1e-9)
}

func TestResponseVariance(t *testing.T) {
	assert.Zero(t, responseVariance([]string{"a"}))
	assert.Zero(t, responseVariance([]string{"a", "a"}))
	assert.InDelta(t, 0.5, responseVariance([]string{"a", "a", "b"}), 1e-9)
	assert.InDelta(t, 1.0, responseVariance([]string{"a", "b", "c"}), 1e-9)
}
