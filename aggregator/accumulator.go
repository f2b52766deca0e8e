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
	"github.com/rulego/tsstream/functions"
	"github.com/rulego/tsstream/types"
	"github.com/rulego/tsstream/window"
)

// State is the lifecycle state of an accumulator.
type State int

const (
	StateOpen State = iota
	StateClosed
	StateReopened
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateReopened:
		return "reopened"
	default:
		return "unknown"
	}
}

// Accumulator is the aggregation state of one window of one partition.
type Accumulator struct {
	Window   window.Window
	State    State
	Funcs    []functions.AggregatorFunction
	Revision uint32
	// Dirty is set by updates not yet emitted
	Dirty bool
	Rows  int64
}

func newAccumulator(spec *Spec, w window.Window) *Accumulator {
	acc := &Accumulator{Window: w, State: StateOpen, Funcs: make([]functions.AggregatorFunction, len(spec.aggregates))}
	for i, idx := range spec.aggregates {
		acc.Funcs[i] = spec.Items[idx].Proto.New()
	}
	return acc
}

func (a *Accumulator) update(ts int64, args []interface{}) {
	for i, fn := range a.Funcs {
		fn.Add(ts, args[i])
	}
	a.Rows++
	a.Dirty = true
}

// emit renders the accumulator as a destination row and bumps the revision.
func (a *Accumulator) emit(spec *Spec, key string, value interface{}, final bool) types.AggregateRow {
	a.Revision++
	a.Dirty = false
	values := make([]interface{}, len(spec.Items))
	agg := 0
	for i, item := range spec.Items {
		switch item.Kind {
		case types.SelectWindowStart:
			values[i] = a.Window.Start
		case types.SelectWindowEnd:
			values[i] = a.Window.End
		default:
			values[i] = a.Funcs[agg].Result()
			agg++
		}
	}
	return types.AggregateRow{
		StreamID:       spec.Def.ID,
		PartitionKey:   key,
		PartitionValue: value,
		WindowStart:    a.Window.Start,
		WindowEnd:      a.Window.End,
		Values:         values,
		Final:          final,
		Revision:       a.Revision,
	}
}
