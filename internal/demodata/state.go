package demodata

import (
	"fmt"
	"sync"
	"time"
)

// Phase is a step of a seed or reset run.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhasePreflight    Phase = "preflight"
	PhaseProvisioning Phase = "provisioning"
	PhaseStage        Phase = "stage"
	PhaseTeardown     Phase = "teardown"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// State is one entry of a run's transition history.
type State struct {
	Phase Phase     `json:"phase"`
	Name  string    `json:"name,omitempty"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

func (s State) String() string {
	if s.Name == "" {
		return string(s.Phase)
	}
	return fmt.Sprintf("%s(%s)", s.Phase, s.Name)
}

var transitions = map[Phase][]Phase{
	PhaseIdle:         {PhasePreflight},
	PhasePreflight:    {PhaseProvisioning, PhaseTeardown, PhaseDone, PhaseFailed},
	PhaseProvisioning: {PhaseStage, PhaseDone, PhaseFailed},
	PhaseStage:        {PhaseStage, PhaseDone, PhaseFailed},
	PhaseTeardown:     {PhaseTeardown, PhaseDone, PhaseFailed},
}

// machine tracks a single run. Teardown goroutines report concurrently.
type machine struct {
	mu      sync.Mutex
	now     func() time.Time
	current Phase
	history []State
}

func newMachine(now func() time.Time) *machine {
	m := &machine{now: now, current: PhaseIdle}
	m.history = append(m.history, State{Phase: PhaseIdle, At: now()})
	return m
}

func (m *machine) to(p Phase, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, next := range transitions[m.current] {
		if next == p {
			m.current = p
			m.history = append(m.history, State{Phase: p, Name: name, At: m.now()})
			return nil
		}
	}
	return fmt.Errorf("demodata: invalid transition %s -> %s", m.current, p)
}

// fail moves to Failed from any non-terminal phase.
func (m *machine) fail(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == PhaseDone || m.current == PhaseFailed {
		return
	}
	m.current = PhaseFailed
	st := State{Phase: PhaseFailed, Name: name, At: m.now()}
	if err != nil {
		st.Error = err.Error()
	}
	m.history = append(m.history, st)
}

func (m *machine) phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *machine) states() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.history...)
}
