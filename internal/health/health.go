// Package health aggregates liveness information from the engine's
// subsystems. The server registers one checker per dependency it runs
// with (the database pool when Postgres storage is active) and the
// health endpoint reports the aggregate plus per-subsystem detail.
package health

import (
	"context"
	"sync"
)

// Status is one subsystem's verdict.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes a single subsystem. Implementations should respect the
// context deadline; the endpoint runs them synchronously.
type Checker func(ctx context.Context) Status

// Registry holds the engine's registered checkers.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

type entry struct {
	name  string
	check Checker
}

// NewRegistry creates an empty registry. With no checkers registered it
// reports healthy, which is the in-memory deployment's steady state.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.entries = append(r.entries, entry{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll probes every subsystem and reports the aggregate verdict with
// the individual results. One unhealthy subsystem degrades the whole.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	entries := make([]entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(entries))

	for i, e := range entries {
		statuses[i] = e.check(ctx)
		if !statuses[i].Healthy {
			healthy = false
		}
	}

	return healthy, statuses
}
