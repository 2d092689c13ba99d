// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package instance

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("instance not found")

// Store persists the instance list.
type Store interface {
	Load() ([]*Instance, error)
	Save(instances []*Instance) error
}

// Registry is the set of known instances keyed by lower-cased name. Every
// change is written through to the store.
type Registry struct {
	store Store
	log   *zap.Logger

	mu        sync.RWMutex
	instances map[string]*Instance
}

func NewRegistry(store Store, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	loaded, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading instances: %w", err)
	}

	r := &Registry{
		store:     store,
		log:       log,
		instances: make(map[string]*Instance, len(loaded)),
	}
	for _, i := range loaded {
		k := key(i.Name())
		if _, ok := r.instances[k]; ok {
			log.Warn("ignoring duplicate instance", zap.String("instance", i.Name()))
			continue
		}
		r.instances[k] = i
	}
	return r, nil
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.instances[key(name)]
	return ok
}

func (r *Registry) Get(name string) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.instances[key(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return i, nil
}

// List returns the instances sorted by name.
func (r *Registry) List() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sorted()
}

func (r *Registry) sorted() []*Instance {
	keys := make([]string, 0, len(r.instances))
	for k := range r.instances {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]*Instance, len(keys))
	for n, k := range keys {
		result[n] = r.instances[k]
	}
	return result
}

func (r *Registry) Register(i *Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(i.Name())
	if _, ok := r.instances[k]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, i.Name())
	}
	r.instances[k] = i
	if err := r.store.Save(r.sorted()); err != nil {
		delete(r.instances, k)
		return fmt.Errorf("saving instances: %w", err)
	}
	return nil
}

func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(name)
	i, ok := r.instances[k]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.instances, k)
	if err := r.store.Save(r.sorted()); err != nil {
		r.instances[k] = i
		return fmt.Errorf("saving instances: %w", err)
	}
	return nil
}

// Save writes the current state of every instance.
func (r *Registry) Save() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.store.Save(r.sorted()); err != nil {
		return fmt.Errorf("saving instances: %w", err)
	}
	return nil
}
