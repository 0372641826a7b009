package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shanefrancis93/anchor-research/evaluators"
	"github.com/shanefrancis93/anchor-research/logger"
	"github.com/shanefrancis93/anchor-research/metrics"
	"github.com/shanefrancis93/anchor-research/providers"
	"github.com/shanefrancis93/anchor-research/scenario"
	"github.com/shanefrancis93/anchor-research/types"
)

// ProbeTemperature is forced on every anchor probe call regardless of the
// run's sampling options, keeping probe answers comparable across turns.
const ProbeTemperature = 0.3

// Options are the sampling parameters for primary calls. Zero values fall
// through to the driver's configured defaults.
type Options struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
	Seed        *int

	// Logprobs requests token log probabilities on probe calls so the drift
	// evaluator can compute answer entropy. Ignored by backends that cannot
	// provide them.
	Logprobs bool
}

// TurnProcessor executes single turns for one branch: scripted appends for
// user and system turns, the primary model call plus anchor probes for
// assistant turns. Each branch gets its own processor instance so stateful
// evaluators never see another branch's turns.
type TurnProcessor struct {
	driver     providers.Driver
	evaluators []evaluators.Evaluator
	opts       Options
}

// NewTurnProcessor builds a processor for one branch.
func NewTurnProcessor(driver providers.Driver, evals []evaluators.Evaluator, opts Options) *TurnProcessor {
	return &TurnProcessor{driver: driver, evaluators: evals, opts: opts}
}

// ProcessTurn runs one scripted turn against the branch state.
//
// Non-assistant turns are appended to history verbatim and produce a nil
// result. Assistant turns issue the primary call over the full history, then
// one probe call per anchor question over the post-response history. Probe
// exchanges stay out of history unless the branch persists probes, in which
// case each question/answer pair is appended directly after the primary
// exchange.
//
// On a driver failure the turn produces no result and history is left
// untouched; tokens already consumed by successful calls still count toward
// the branch total.
func (p *TurnProcessor) ProcessTurn(ctx context.Context, sc *scenario.Scenario, turn scenario.Turn, state *BranchState) (*TurnResult, error) {
	if !turn.IsAssistant() {
		state.Messages = append(state.Messages, types.Message{Role: turn.Role, Content: turn.Content})
		return nil, nil
	}

	// Stage history changes locally and commit only once every call for the
	// turn has succeeded.
	msgs := state.Messages

	primary, err := p.chat(ctx, metrics.KindPrimary, providers.ChatRequest{
		Messages:    msgs,
		Temperature: p.opts.Temperature,
		TopP:        p.opts.TopP,
		MaxTokens:   p.opts.MaxTokens,
		Seed:        p.opts.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("primary call failed: %w", err)
	}
	state.TotalTokens += primary.Tokens
	msgs = append(msgs, types.Message{Role: types.RoleAssistant, Content: primary.Content})

	probes := make([]*types.TurnOutcome, 0, len(sc.AnchorQuestions))
	probeTokens := 0
	for i, question := range sc.AnchorQuestions {
		probeMsgs := make([]types.Message, len(msgs), len(msgs)+1)
		copy(probeMsgs, msgs)
		probeMsgs = append(probeMsgs, types.Message{Role: types.RoleUser, Content: question})

		probe, err := p.chat(ctx, metrics.KindProbe, providers.ChatRequest{
			Messages:    probeMsgs,
			Temperature: ProbeTemperature,
			TopP:        p.opts.TopP,
			MaxTokens:   p.opts.MaxTokens,
			Seed:        p.opts.Seed,
			Logprobs:    p.opts.Logprobs,
		})
		if err != nil {
			return nil, fmt.Errorf("anchor probe %d failed: %w", i, err)
		}
		state.TotalTokens += probe.Tokens
		probeTokens += probe.Tokens
		probes = append(probes, &probe)
	}

	if state.Branch.PersistsProbes() {
		for i, question := range sc.AnchorQuestions {
			msgs = append(msgs,
				types.Message{Role: types.RoleUser, Content: question},
				types.Message{Role: types.RoleAssistant, Content: probes[i].Content},
			)
		}
	}

	state.Messages = msgs

	record := types.MetricRecord{
		types.MetricTurn:          state.TurnCount,
		types.MetricBranch:        state.Branch.ID,
		types.MetricTokensPrimary: primary.Tokens,
		types.MetricTokensProbe:   probeTokens,
	}

	in := evaluators.Input{
		Scenario: sc,
		BranchID: state.Branch.ID,
		Turn:     state.TurnCount,
		History:  state.Messages,
		Primary:  &primary,
		Probes:   probes,
	}
	if len(probes) > 0 {
		in.Probe = probes[0]
	}
	for _, ev := range p.evaluators {
		start := time.Now()
		out := ev.Evaluate(ctx, in)
		metrics.RecordEvaluator(ev.Name(), time.Since(start).Seconds())
		record.Merge(out)
	}

	result := &TurnResult{
		Primary: &primary,
		Probes:  probes,
		Metrics: record,
	}
	return result, nil
}

// chat issues one driver call, logging and recording its duration and status.
func (p *TurnProcessor) chat(ctx context.Context, kind string, req providers.ChatRequest) (types.TurnOutcome, error) {
	logger.ModelCall(p.driver.ID(), p.driver.Model(), kind, len(req.Messages), float64(req.Temperature))

	start := time.Now()
	outcome, err := p.driver.Chat(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordDriverRequest(p.driver.ID(), p.driver.Model(), kind, status, time.Since(start).Seconds())
	return outcome, err
}
