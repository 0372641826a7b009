package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shanefrancis93/anchor-research/engine"
	"github.com/shanefrancis93/anchor-research/logger"
	"github.com/shanefrancis93/anchor-research/providers"
	"github.com/shanefrancis93/anchor-research/scenario"
	"github.com/shanefrancis93/anchor-research/sessionstore"
	"github.com/shanefrancis93/anchor-research/types"
)

// DriverFactory builds a driver for a session's model spec. The manager
// closes the driver after each step, so factories must be cheap.
type DriverFactory func(model string) (providers.Driver, error)

var (
	// ErrUnknownScenario is returned when a session names a scenario the
	// library does not hold.
	ErrUnknownScenario = errors.New("unknown scenario")

	// ErrUnknownBranch is returned when a session names a branch its
	// scenario does not define.
	ErrUnknownBranch = errors.New("unknown branch")

	// ErrSessionDone is returned when a step is attempted on a session that
	// has spent its turn budget.
	ErrSessionDone = errors.New("session has spent its turn budget")
)

// Manager drives interactive sessions: one user message in, one primary
// model reply plus anchor probes out, with the same staged-commit semantics
// the batch engine uses.
type Manager struct {
	store     sessionstore.Store
	library   *Library
	newDriver DriverFactory
	opts      engine.Options
}

// NewManager wires a session manager.
func NewManager(store sessionstore.Store, library *Library, factory DriverFactory, opts engine.Options) *Manager {
	return &Manager{store: store, library: library, newDriver: factory, opts: opts}
}

// Create starts a session on a scenario. An empty branch selects the
// scenario's first branch. The scenario's opening system turn, when present,
// seeds the session history.
func (m *Manager) Create(ctx context.Context, scenarioName, model, branchID string) (*sessionstore.Session, error) {
	sc, ok := m.library.Find(scenarioName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScenario, scenarioName)
	}
	if branchID == "" {
		if len(sc.Branches) > 0 {
			branchID = sc.Branches[0].ID
		}
	} else if _, ok := sc.Branch(branchID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBranch, branchID)
	}

	session := &sessionstore.Session{
		ID:              uuid.New().String(),
		Scenario:        sc.Name,
		Model:           model,
		Branch:          branchID,
		BehaviorTested:  sc.BehaviorTested,
		MaxTurns:        sc.MaxUserTurns,
		AnchorQuestions: append([]string(nil), sc.AnchorQuestions...),
		Status:          sessionstore.StatusActive,
		CreatedAt:       time.Now().UTC(),
	}
	if len(sc.Turns) > 0 && sc.Turns[0].Role == types.RoleSystem {
		session.Messages = []types.Message{{Role: types.RoleSystem, Content: sc.Turns[0].Content}}
	}

	if err := m.store.Put(ctx, session); err != nil {
		return nil, err
	}
	logger.Info("dashboard session created",
		"session", session.ID,
		"scenario", sc.Name,
		"model", model,
		"branch", branchID)
	return session, nil
}

// Step appends a user message, obtains the model's reply, and re-asks every
// anchor question over the updated history at the probe temperature. The
// session is persisted only when every call succeeded, so a driver failure
// leaves the stored session exactly as it was.
func (m *Manager) Step(ctx context.Context, id, content string) (*sessionstore.Session, error) {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != sessionstore.StatusActive || session.Done() {
		return nil, ErrSessionDone
	}

	driver, err := m.newDriver(session.Model)
	if err != nil {
		return nil, fmt.Errorf("create driver: %w", err)
	}
	defer func() { _ = driver.Close() }()

	// The session snapshot owns the anchor questions; the live scenario only
	// contributes the branch kind, falling back to standard when the file has
	// since been removed.
	branch := scenario.Branch{ID: session.Branch}
	if sc, ok := m.library.Find(session.Scenario); ok {
		if b, ok := sc.Branch(session.Branch); ok {
			branch = b
		}
	}
	sc := &scenario.Scenario{Name: session.Scenario, AnchorQuestions: session.AnchorQuestions}

	state := engine.NewBranchState(branch)
	state.Messages = append(state.Messages, session.Messages...)
	state.TotalTokens = session.TotalTokens

	proc := engine.NewTurnProcessor(driver, nil, m.opts)
	if _, err := proc.ProcessTurn(ctx, sc, scenario.Turn{Role: types.RoleUser, Content: content}, state); err != nil {
		return nil, err
	}
	result, err := proc.ProcessTurn(ctx, sc, scenario.Turn{Role: types.RoleAssistant}, state)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	session.Messages = state.Messages
	session.TotalTokens = state.TotalTokens
	session.CurrentTurn++

	now := time.Now().UTC()
	for i, probe := range result.Probes {
		session.RecordAnchor(session.CurrentTurn, session.AnchorQuestions[i], probe.Content, now)
	}
	if session.Done() {
		session.Status = sessionstore.StatusCompleted
	}

	if err := m.store.Put(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Fork copies a session under a fresh ID so an alternative continuation can
// be explored without disturbing the original.
func (m *Manager) Fork(ctx context.Context, id string) (*sessionstore.Session, error) {
	return m.store.Fork(ctx, id, uuid.New().String())
}
