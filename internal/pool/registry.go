// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"oraflow/cli/internal/driver"
	"oraflow/cli/internal/flow"
)

// Registry shares one Manager per server name between all nodes bound to it,
// and one driver instance per driver name so client initialization happens
// once per process.
type Registry struct {
	drivers map[string]driver.Driver
	log     flow.Logger

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewRegistry returns a registry over the given drivers, keyed by name.
func NewRegistry(drivers map[string]driver.Driver, log flow.Logger) *Registry {
	return &Registry{drivers: drivers, log: log, managers: map[string]*Manager{}}
}

// Manager returns the manager for id.Name, creating it on first use. Later
// calls with the same name return the existing manager regardless of id.
func (r *Registry) Manager(id Identity) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.managers[id.Name]; ok {
		return m, nil
	}
	drv, ok := r.drivers[id.Driver]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q", id.Driver)
	}
	m := New(drv, id, r.log)
	r.managers[id.Name] = m
	return m, nil
}

// Managers returns every manager in name order.
func (r *Registry) Managers() []*Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id.Name < out[j].id.Name })
	return out
}

// CloseAll closes every manager concurrently and joins their errors.
func (r *Registry) CloseAll(ctx context.Context) error {
	managers := r.Managers()
	errs := make([]error, len(managers))
	var wg sync.WaitGroup
	for i, m := range managers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.Close(ctx)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
