package dashboard

import (
	"sync"

	"github.com/shanefrancis93/anchor-research/scenario"
)

// Library holds the scenario set the dashboard serves, guarded for concurrent
// reads during hot reload.
type Library struct {
	dir string

	mu        sync.RWMutex
	scenarios []*scenario.Scenario
}

// NewLibrary creates a library backed by a scenario directory. Call Reload to
// populate it.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// NewStaticLibrary creates a library with a fixed scenario set and no backing
// directory. Reload is a no-op.
func NewStaticLibrary(scenarios ...*scenario.Scenario) *Library {
	return &Library{scenarios: scenarios}
}

// Dir returns the backing scenario directory, empty for static libraries.
func (l *Library) Dir() string {
	return l.dir
}

// Reload re-reads the scenario directory and swaps in the result.
func (l *Library) Reload() error {
	if l.dir == "" {
		return nil
	}
	scenarios, err := scenario.LoadDir(l.dir)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.scenarios = scenarios
	l.mu.Unlock()
	return nil
}

// All returns the current scenario set.
func (l *Library) All() []*scenario.Scenario {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*scenario.Scenario, len(l.scenarios))
	copy(out, l.scenarios)
	return out
}

// Find returns the scenario with the given name.
func (l *Library) Find(name string) (*scenario.Scenario, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return scenario.FindByName(l.scenarios, name)
}

// Names returns the loaded scenario names in order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, len(l.scenarios))
	for i, s := range l.scenarios {
		names[i] = s.Name
	}
	return names
}
