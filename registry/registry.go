/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package registry holds the stream definitions of an engine and validates new ones.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rulego/tsstream/aggregator"
	"github.com/rulego/tsstream/naming"
	"github.com/rulego/tsstream/types"
)

// Registry maps stream names to their definitions. Definitions are immutable once created;
// callers get copies.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*types.StreamDefinition
	store  DefinitionStore
	config types.Config
	now    func() time.Time
}

// New creates a registry persisting into store.
func New(store DefinitionStore, config types.Config) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Registry{
		byName: make(map[string]*types.StreamDefinition),
		store:  store,
		config: config,
		now:    time.Now,
	}
}

// Load reads every persisted definition into the registry and returns them sorted by name.
func (r *Registry) Load() ([]*types.StreamDefinition, error) {
	defs, err := r.store.List()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	for _, def := range defs {
		r.byName[def.Name] = def
	}
	r.mu.Unlock()
	return r.List(), nil
}

// Validate checks def without registering it.
func (r *Registry) Validate(def *types.StreamDefinition) error {
	if !types.IsIdentifier(def.Name) {
		return types.NewError(types.KindInvalidSpecification, def.Name, "invalid stream name %q", def.Name)
	}
	if def.Source.IsZero() {
		return types.NewError(types.KindInvalidSpecification, def.Name, "missing source table")
	}
	if def.Destination.IsZero() {
		return types.NewError(types.KindInvalidSpecification, def.Name, "missing destination table")
	}
	if def.Source == def.Destination {
		return types.NewError(types.KindInvalidSpecification, def.Name, "destination %s is the source table", def.Destination)
	}
	if _, err := aggregator.Compile(def, r.config.WindowConfig); err != nil {
		return types.WrapError(types.KindInvalidSpecification, def.Name, err, "invalid query")
	}
	if def.SubtableExpr != "" && def.Partition == nil {
		return types.NewError(types.KindInvalidSpecification, def.Name, "SUBTABLE needs PARTITION BY")
	}
	if _, err := naming.NewNamer(def, r.config.AccountID, 1); err != nil {
		return types.WrapError(types.KindInvalidSpecification, def.Name, err, "invalid subtable expression")
	}
	return nil
}

// Create validates and registers def. It assigns the stream id and creation time and returns
// the registered copy.
func (r *Registry) Create(def *types.StreamDefinition) (*types.StreamDefinition, error) {
	def = def.Clone()
	if def.Source.DB == "" {
		def.Source.DB = r.config.DefaultDB
	}
	if def.Destination.DB == "" {
		def.Destination.DB = r.config.DefaultDB
	}
	def.Trigger.Mode = def.Trigger.Effective()
	if err := r.Validate(def); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[def.Name]; ok {
		return nil, types.NewError(types.KindDuplicateStreamName, def.Name, "stream already exists")
	}
	def.ID = uuid.NewString()
	if def.CreatedAt == 0 {
		def.CreatedAt = r.now().UnixMilli()
	}
	if err := r.store.Put(def); err != nil {
		return nil, err
	}
	r.byName[def.Name] = def
	return def.Clone(), nil
}

// Drop removes the definition of name and returns it.
func (r *Registry) Drop(name string) (*types.StreamDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.byName[name]
	if !ok {
		return nil, types.NewError(types.KindStreamNotFound, name, "no such stream")
	}
	if err := r.store.Delete(def.ID); err != nil {
		return nil, err
	}
	delete(r.byName, name)
	return def, nil
}

func (r *Registry) Get(name string) (*types.StreamDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return def.Clone(), true
}

// List returns every definition sorted by name.
func (r *Registry) List() []*types.StreamDefinition {
	r.mu.RLock()
	out := make([]*types.StreamDefinition, 0, len(r.byName))
	for _, def := range r.byName {
		out = append(out, def.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close closes the definition store.
func (r *Registry) Close() error {
	return r.store.Close()
}
