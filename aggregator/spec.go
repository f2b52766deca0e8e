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

package aggregator

import (
	"fmt"

	"github.com/rulego/tsstream/functions"
	"github.com/rulego/tsstream/types"
	"github.com/rulego/tsstream/window"
)

// Item is one compiled output column.
type Item struct {
	Kind types.SelectKind
	Name string
	// Proto creates accumulators, nil for window pseudo columns.
	Proto functions.AggregatorFunction
	Arg   *Evaluator
}

// Spec is the compiled, immutable form of a stream definition.
type Spec struct {
	Def        *types.StreamDefinition
	Items      []Item
	Assigner   *window.Assigner
	Partition  *Evaluator
	LatePolicy types.LatePolicy
	// Retention in milliseconds, only used by the update policy
	Retention int64
	// aggregates indexes the Items that hold an aggregate function
	aggregates []int
}

// Compile validates def and compiles every expression it contains.
func Compile(def *types.StreamDefinition, defaults types.WindowConfig) (*Spec, error) {
	assigner, err := window.NewAssigner(def.Window)
	if err != nil {
		return nil, err
	}
	spec := &Spec{
		Def:        def,
		Assigner:   assigner,
		LatePolicy: def.LatePolicy,
		Retention:  defaults.Retention.Milliseconds(),
	}
	if spec.LatePolicy == "" {
		spec.LatePolicy = defaults.LatePolicy
	}
	switch spec.LatePolicy {
	case types.LatePolicyUpdate, types.LatePolicyDrop:
	default:
		return nil, fmt.Errorf("unknown late policy %q", spec.LatePolicy)
	}

	hasStart := false
	for _, item := range def.Select {
		if item.Kind == types.SelectWindowStart {
			hasStart = true
		}
	}
	if !hasStart {
		spec.Items = append(spec.Items, Item{Kind: types.SelectWindowStart, Name: types.WindowStartColumn})
	}
	seen := map[string]bool{}
	for _, item := range def.Select {
		compiled := Item{Kind: item.Kind, Name: item.OutputName()}
		if seen[compiled.Name] {
			return nil, fmt.Errorf("duplicate output column %q", compiled.Name)
		}
		seen[compiled.Name] = true
		if item.Kind == types.SelectAggregate {
			proto, ok := functions.Get(item.Func)
			if !ok {
				return nil, fmt.Errorf("unknown aggregate function %q", item.Func)
			}
			if item.Arg == "*" && item.Func != "count" {
				return nil, fmt.Errorf("%s(*) is not supported", item.Func)
			}
			arg, err := CompileExpression(item.Arg)
			if err != nil {
				return nil, fmt.Errorf("argument of %s: %w", item.Func, err)
			}
			compiled.Proto, compiled.Arg = proto, arg
			spec.aggregates = append(spec.aggregates, len(spec.Items))
		}
		spec.Items = append(spec.Items, compiled)
	}
	if len(spec.aggregates) == 0 {
		return nil, fmt.Errorf("select list needs at least one aggregate function")
	}

	if def.Partition != nil {
		spec.Partition, err = CompileExpression(def.Partition.Expr)
		if err != nil {
			return nil, fmt.Errorf("partition expression: %w", err)
		}
	}
	switch def.Trigger.Mode {
	case "", types.TriggerWindowClose, types.TriggerAtOnce:
	case types.TriggerMaxDelay:
		if def.Trigger.MaxDelay <= 0 {
			return nil, fmt.Errorf("max_delay trigger needs a positive delay")
		}
	default:
		return nil, fmt.Errorf("unknown trigger %q", def.Trigger.Mode)
	}
	if def.Watermark < 0 {
		return nil, fmt.Errorf("watermark must not be negative")
	}
	return spec, nil
}

// Columns returns the destination column names, aligned with AggregateRow.Values.
func (s *Spec) Columns() []string {
	cols := make([]string, len(s.Items))
	for i, item := range s.Items {
		cols[i] = item.Name
	}
	return cols
}

// PartitionOf evaluates the partition value and key of row.
func (s *Spec) PartitionOf(row *types.Row) (interface{}, string, error) {
	if s.Partition == nil {
		return nil, "", nil
	}
	v, err := s.Partition.Eval(row)
	if err != nil {
		return nil, "", err
	}
	return v, PartitionKey(v), nil
}

// Arguments evaluates every aggregate argument of row, aligned with the aggregate items.
// Evaluation errors yield NULL for that argument.
func (s *Spec) Arguments(row *types.Row) []interface{} {
	vals := make([]interface{}, len(s.aggregates))
	for i, idx := range s.aggregates {
		v, err := s.Items[idx].Arg.Eval(row)
		if err == nil {
			vals[i] = v
		}
	}
	return vals
}

// NewArena creates the state of one partition.
func (s *Spec) NewArena(key string, value interface{}) *Arena {
	return newArena(s, key, value)
}
