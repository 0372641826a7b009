// Package engine orchestrates scripted conversation runs: it walks a
// scenario's turn script, forks it into concurrently-evolving branches,
// issues the primary and anchor-probe model calls for each branch, feeds
// every exchange through the configured evaluators, and persists one
// transcript per branch.
//
// Key types:
//   - Runner: executes one scenario across all of its branches
//   - TurnProcessor: executes a single turn for a single branch
//   - BatchRunner: fans a models x scenarios grid out over bounded workers
//
// Example usage:
//
//	runner := engine.NewRunner(driver, evaluators.DefaultFactory(nil), writer, engine.Options{})
//	states, err := runner.RunScenario(ctx, sc)
//	for id, st := range states {
//	    fmt.Printf("%s: %d turns, %d tokens\n", id, st.TurnCount, st.TotalTokens)
//	}
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shanefrancis93/anchor-research/evaluators"
	"github.com/shanefrancis93/anchor-research/logger"
	"github.com/shanefrancis93/anchor-research/metrics"
	"github.com/shanefrancis93/anchor-research/providers"
	"github.com/shanefrancis93/anchor-research/results"
	"github.com/shanefrancis93/anchor-research/scenario"
	"github.com/shanefrancis93/anchor-research/types"
)

// RunIDLayout formats run identifiers: UTC second precision with dashes in
// the time part so the ID is safe inside file names.
const RunIDLayout = "2006-01-02T15-04-05Z"

// NewRunID returns a run identifier for the current UTC time.
func NewRunID() string {
	return time.Now().UTC().Format(RunIDLayout)
}

// Runner executes one scenario across all of its branches. Construct a fresh
// Runner per scenario run; the run ID is fixed at construction and shared by
// every branch transcript the run writes.
type Runner struct {
	driver  providers.Driver
	factory evaluators.Factory
	writer  *results.Writer
	opts    Options
	runID   string
}

// NewRunner builds a runner. A nil factory disables evaluation; a nil writer
// disables transcript persistence (both useful in tests and dry runs).
func NewRunner(driver providers.Driver, factory evaluators.Factory, writer *results.Writer, opts Options) *Runner {
	return &Runner{
		driver:  driver,
		factory: factory,
		writer:  writer,
		opts:    opts,
		runID:   NewRunID(),
	}
}

// RunID returns the identifier shared by all transcripts of this run.
func (r *Runner) RunID() string {
	return r.runID
}

// RunScenario walks the scenario's turn script and returns the final state of
// every branch, keyed by branch id.
//
// Turns are processed strictly in script order. Within a turn, every branch
// is processed concurrently and the turn completes only when all branches
// have finished (or failed). A failed branch turn is logged and skipped; its
// branch simply misses that exchange and continues with the next turn. The
// shared user-turn budget is checked before processing: once exceeded, the
// remaining script is dropped for all branches.
//
// Transcripts are always written at the end, including for truncated or
// partially failed branches.
func (r *Runner) RunScenario(ctx context.Context, sc *scenario.Scenario) (map[string]*BranchState, error) {
	logger.Info("running scenario",
		"scenario", sc.Name,
		"run_id", r.runID,
		"branches", len(sc.Branches),
		"provider", r.driver.ID(),
		"model", r.driver.Model())

	metrics.RecordRunStart()
	defer metrics.RecordRunEnd()

	states := make(map[string]*BranchState, len(sc.Branches))
	processors := make(map[string]*TurnProcessor, len(sc.Branches))
	for _, branch := range sc.Branches {
		var evals []evaluators.Evaluator
		if r.factory != nil {
			evals = r.factory()
		}
		states[branch.ID] = NewBranchState(branch)
		processors[branch.ID] = NewTurnProcessor(r.driver, evals, r.opts)
	}

	userTurns := 0
	for _, turn := range sc.Turns {
		if turn.Role == types.RoleUser {
			userTurns++
			if sc.MaxUserTurns > 0 && userTurns > sc.MaxUserTurns {
				logger.Info("reached max user turns", "scenario", sc.Name, "max_user_turns", sc.MaxUserTurns)
				break
			}
		}

		r.processTurnAcrossBranches(ctx, sc, turn, states, processors)
	}

	if err := r.saveTranscripts(sc, states); err != nil {
		return states, err
	}
	return states, nil
}

// processTurnAcrossBranches runs one scripted turn for every branch in
// parallel and applies the results once all branches have finished.
func (r *Runner) processTurnAcrossBranches(
	ctx context.Context,
	sc *scenario.Scenario,
	turn scenario.Turn,
	states map[string]*BranchState,
	processors map[string]*TurnProcessor,
) {
	turnResults := make(map[string]*TurnResult, len(states))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, branch := range sc.Branches {
		wg.Add(1)
		go func(id string, state *BranchState, proc *TurnProcessor) {
			defer wg.Done()

			result, err := proc.ProcessTurn(ctx, sc, turn, state)
			if err != nil {
				logger.Error("branch turn failed",
					"scenario", sc.Name,
					"branch", id,
					"turn", state.TurnCount,
					"error", err)
				metrics.RecordBranchTurn(sc.Name, id, "error")
				return
			}
			if result == nil {
				return
			}

			mu.Lock()
			turnResults[id] = result
			mu.Unlock()
		}(branch.ID, states[branch.ID], processors[branch.ID])
	}

	wg.Wait()

	for _, branch := range sc.Branches {
		result, ok := turnResults[branch.ID]
		if !ok {
			continue
		}
		state := states[branch.ID]
		state.TurnCount++
		state.Metrics = append(state.Metrics, result.Metrics)
		metrics.RecordBranchTurn(sc.Name, branch.ID, "success")
	}
}

// saveTranscripts writes one transcript per branch. Failures are collected so
// one bad write does not stop the others.
func (r *Runner) saveTranscripts(sc *scenario.Scenario, states map[string]*BranchState) error {
	if r.writer == nil {
		return nil
	}

	var saveErrors []error
	for _, branch := range sc.Branches {
		state := states[branch.ID]
		path, err := r.writer.Write(&results.Transcript{
			RunID:       r.runID,
			Scenario:    sc.Name,
			Branch:      branch.ID,
			Model:       r.driver.Model(),
			Messages:    state.Messages,
			Metrics:     state.Metrics,
			TotalTokens: state.TotalTokens,
		})
		if err != nil {
			logger.Error("failed to save transcript", "scenario", sc.Name, "branch", branch.ID, "error", err)
			saveErrors = append(saveErrors, err)
			continue
		}
		logger.Info("transcript saved", "path", path)
	}

	if len(saveErrors) > 0 {
		return fmt.Errorf("some transcripts failed to save: %v", saveErrors)
	}
	return nil
}
