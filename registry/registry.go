// Package registry implements the Run Registry: creation and lookup of
// RunStates, and a background sweeper that evicts terminal runs once their
// retention TTL elapses. Each run owns its own browser and state for its
// lifetime; the registry only tracks the set of known runs.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jianyangg/show-and-tell/runnererr"
	"github.com/jianyangg/show-and-tell/runstate"
)

// Plan is the minimal view of a plan the registry validates: Create rejects
// an empty Name independent of whatever transport-layer validation ran
// before it, mirroring the original source's requirement that a run start
// request name a goal or plan.
type Plan struct {
	Name string
}

// Registry owns the set of known RunStates and a background sweeper that
// removes terminal, expired ones.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*runstate.RunState

	ttl           time.Duration
	sweepInterval time.Duration
	sweeperOnce   sync.Once
	stop          chan struct{}
}

// New returns a Registry that retains terminal runs for ttl and sweeps at
// sweepInterval. Both default to 300s/60s when zero.
func New(ttl, sweepInterval time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = 60 * time.Second
	}
	return &Registry{
		runs:          make(map[string]*runstate.RunState),
		ttl:           ttl,
		sweepInterval: sweepInterval,
		stop:          make(chan struct{}),
	}
}

// Create inserts a new pending RunState for plan/startURL and returns it,
// starting the background sweeper on first use. It rejects a plan with an
// empty Name.
func (r *Registry) Create(plan Plan, startURL string) (*runstate.RunState, error) {
	if plan.Name == "" {
		return nil, runnererr.New("plan name is required to start a run")
	}

	runID := uuid.New().String()
	rs := runstate.New(runID, plan.Name, startURL)

	r.mu.Lock()
	r.runs[runID] = rs
	r.mu.Unlock()

	r.sweeperOnce.Do(func() { go r.sweepLoop() })

	return rs, nil
}

// Get looks up a run by id. The second return is false for an unknown or
// already-swept run.
func (r *Registry) Get(runID string) (*runstate.RunState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.runs[runID]
	return rs, ok
}

// Remove evicts a run from the registry regardless of its status.
func (r *Registry) Remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, runID)
}

// Close stops the background sweeper. Safe to call even if the sweeper was
// never started.
func (r *Registry) Close() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

func (r *Registry) sweepOnce() {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rs := range r.runs {
		completedAt := rs.CompletedAt()
		if completedAt == nil {
			continue
		}
		if now.Sub(*completedAt) > r.ttl {
			delete(r.runs, id)
		}
	}
}
