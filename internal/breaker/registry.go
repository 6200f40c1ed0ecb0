// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package breaker

import (
	"sort"
	"sync"
)

// Registry hands out one Breaker per dependency name so that every call
// site talking to the same dependency shares its health state.
type Registry struct {
	mu       sync.Mutex
	defaults Settings
	breakers map[string]*Breaker
}

// NewRegistry creates a registry whose breakers use defaults for any
// setting not given explicitly.
func NewRegistry(defaults Settings) *Registry {
	return &Registry{
		defaults: defaults,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it with the registry defaults
// on first use.
func (r *Registry) Get(name string) *Breaker {
	return r.GetWithSettings(name, r.defaults)
}

// GetWithSettings returns the breaker for name, creating it with settings
// on first use. Settings are ignored for an existing breaker.
func (r *Registry) GetWithSettings(name string, settings Settings) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, settings)
	r.breakers[name] = b
	return b
}

// Lookup returns an existing breaker without creating one.
func (r *Registry) Lookup(name string) (*Breaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	return b, ok
}

// All returns metrics for every breaker, sorted by name.
func (r *Registry) All() []Metrics {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()

	out := make([]Metrics, 0, len(list))
	for _, b := range list {
		out = append(out, b.Metrics())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResetAll forces every breaker closed.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()

	for _, b := range list {
		b.Reset()
	}
}
