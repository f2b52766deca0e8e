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

package functions

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// AggregatorFunction is an incremental aggregate.
type AggregatorFunction interface {
	// GetName returns the lower case function name
	GetName() string
	// New creates a new empty aggregator instance
	New() AggregatorFunction
	// Add folds value observed at event time ts
	Add(ts int64, value interface{})
	// Result returns the aggregation result
	Result() interface{}
	// Reset resets the aggregator state
	Reset()
	// Clone copies the aggregator including its state
	Clone() AggregatorFunction
	// MarshalState encodes the state for checkpoints
	MarshalState() ([]byte, error)
	// UnmarshalState replaces the state with a previously encoded one
	UnmarshalState(data []byte) error
}

// Registry holds aggregate function prototypes by name.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]AggregatorFunction
}

// 全局函数注册器实例
var globalRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{functions: make(map[string]AggregatorFunction)}
}

// Register adds fn, failing when the name is taken.
func (r *Registry) Register(fn AggregatorFunction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(fn.GetName())
	if _, exists := r.functions[name]; exists {
		return fmt.Errorf("function %s already registered", name)
	}
	r.functions[name] = fn
	return nil
}

// Get returns the prototype registered under name.
func (r *Registry) Get(name string) (AggregatorFunction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.functions[strings.ToLower(name)]
	return fn, ok
}

// Unregister removes name and reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	name = strings.ToLower(name)
	_, ok := r.functions[name]
	delete(r.functions, name)
	return ok
}

// Names lists the registered function names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Register adds fn to the global registry.
func Register(fn AggregatorFunction) error {
	return globalRegistry.Register(fn)
}

// Get looks name up in the global registry.
func Get(name string) (AggregatorFunction, bool) {
	return globalRegistry.Get(name)
}

// Unregister removes name from the global registry.
func Unregister(name string) bool {
	return globalRegistry.Unregister(name)
}

// Names lists the global registry.
func Names() []string {
	return globalRegistry.Names()
}

// IsAggregatorFunction checks if a function name is an aggregator function
func IsAggregatorFunction(name string) bool {
	_, ok := Get(name)
	return ok
}

// Create creates an empty aggregator instance of name.
func Create(name string) (AggregatorFunction, error) {
	fn, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("aggregator function %s not found", name)
	}
	return fn.New(), nil
}

func init() {
	for _, fn := range []AggregatorFunction{
		NewCountFunction(),
		NewSumFunction(),
		NewAvgFunction(),
		NewMinFunction(),
		NewMaxFunction(),
		NewFirstFunction(),
		NewLastFunction(),
		NewSpreadFunction(),
	} {
		_ = Register(fn)
	}
}
