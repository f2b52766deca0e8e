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
	"container/heap"
	"sort"

	"github.com/rulego/tsstream/types"
	"github.com/rulego/tsstream/window"
)

// ApplyResult counts what happened to one row.
type ApplyResult struct {
	// Windows the row was added to
	Applied int
	// Windows the row missed because they were closed for good
	Late int
	// Windows reopened by the row
	Reopened int
}

// Arena owns the accumulators of one partition.
type Arena struct {
	spec  *Spec
	key   string
	value interface{}

	open     map[int64]*Accumulator
	openEnds endHeap
	// closed holds retained accumulators under the update policy
	closed     map[int64]*Accumulator
	closedEnds endHeap

	scratch []window.Window
}

func newArena(spec *Spec, key string, value interface{}) *Arena {
	return &Arena{
		spec:   spec,
		key:    key,
		value:  value,
		open:   make(map[int64]*Accumulator),
		closed: make(map[int64]*Accumulator),
	}
}

// Key returns the partition key.
func (a *Arena) Key() string {
	return a.key
}

// Value returns the partition value.
func (a *Arena) Value() interface{} {
	return a.value
}

// OpenCount returns the number of open accumulators.
func (a *Arena) OpenCount() int {
	return len(a.open)
}

// RetainedCount returns the number of closed accumulators kept for late updates.
func (a *Arena) RetainedCount() int {
	return len(a.closed)
}

// Accumulator returns the open or retained accumulator of the window starting at start.
func (a *Arena) Accumulator(start int64) (*Accumulator, bool) {
	if acc, ok := a.open[start]; ok {
		return acc, true
	}
	acc, ok := a.closed[start]
	return acc, ok
}

// Apply folds one row into every window containing it, given the current watermark.
func (a *Arena) Apply(row *types.Row, wm int64) ApplyResult {
	return a.ApplyValues(row.Ts, a.spec.Arguments(row), wm)
}

// ApplyValues is Apply with the aggregate arguments already evaluated.
func (a *Arena) ApplyValues(ts int64, args []interface{}, wm int64) ApplyResult {
	var res ApplyResult
	a.scratch = a.spec.Assigner.Assign(ts, a.scratch[:0])
	for _, w := range a.scratch {
		if acc, ok := a.open[w.Start]; ok {
			acc.update(ts, args)
			res.Applied++
			continue
		}
		if acc, ok := a.closed[w.Start]; ok {
			if a.spec.LatePolicy != types.LatePolicyUpdate || a.expired(w.End, wm) {
				res.Late++
				continue
			}
			delete(a.closed, w.Start)
			acc.State = StateReopened
			a.open[w.Start] = acc
			heap.Push(&a.openEnds, w)
			acc.update(ts, args)
			res.Applied++
			res.Reopened++
			continue
		}
		if w.End <= wm {
			if a.spec.LatePolicy != types.LatePolicyUpdate || a.expired(w.End, wm) {
				res.Late++
				continue
			}
		}
		acc := newAccumulator(a.spec, w)
		a.open[w.Start] = acc
		heap.Push(&a.openEnds, w)
		acc.update(ts, args)
		res.Applied++
	}
	return res
}

func (a *Arena) expired(end, wm int64) bool {
	if wm == window.Undefined {
		return false
	}
	return end <= wm-a.spec.Retention
}

// Advance closes every open window whose end is <= wm and returns their final rows ordered
// by window start. Retained windows that fell out of retention are released.
func (a *Arena) Advance(wm int64) []types.AggregateRow {
	if wm == window.Undefined {
		return nil
	}
	var out []types.AggregateRow
	for a.openEnds.Len() > 0 && a.openEnds[0].End <= wm {
		w := heap.Pop(&a.openEnds).(window.Window)
		acc, ok := a.open[w.Start]
		if !ok {
			continue
		}
		out = append(out, a.close(acc))
	}
	for a.closedEnds.Len() > 0 && a.expired(a.closedEnds[0].End, wm) {
		w := heap.Pop(&a.closedEnds).(window.Window)
		if acc, ok := a.closed[w.Start]; ok && acc.Window.End == w.End {
			delete(a.closed, w.Start)
		}
	}
	return out
}

func (a *Arena) close(acc *Accumulator) types.AggregateRow {
	delete(a.open, acc.Window.Start)
	acc.State = StateClosed
	row := acc.emit(a.spec, a.key, a.value, true)
	if a.spec.LatePolicy == types.LatePolicyUpdate && a.spec.Retention > 0 {
		a.closed[acc.Window.Start] = acc
		heap.Push(&a.closedEnds, acc.Window)
	}
	return row
}

// EmitDirty returns a non-final row for every open window updated since its last emission.
func (a *Arena) EmitDirty() []types.AggregateRow {
	var dirty []*Accumulator
	for _, acc := range a.open {
		if acc.Dirty {
			dirty = append(dirty, acc)
		}
	}
	sort.Slice(dirty, func(i, j int) bool { return dirty[i].Window.Start < dirty[j].Window.Start })
	out := make([]types.AggregateRow, 0, len(dirty))
	for _, acc := range dirty {
		out = append(out, acc.emit(a.spec, a.key, a.value, false))
	}
	return out
}

// CloseAll force-closes every open window regardless of the watermark.
func (a *Arena) CloseAll() []types.AggregateRow {
	open := make([]*Accumulator, 0, len(a.open))
	for _, acc := range a.open {
		open = append(open, acc)
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Window.Start < open[j].Window.Start })
	out := make([]types.AggregateRow, 0, len(open))
	for _, acc := range open {
		out = append(out, a.close(acc))
	}
	a.openEnds = a.openEnds[:0]
	return out
}

// endHeap orders windows by end, then start.
type endHeap []window.Window

func (h endHeap) Len() int { return len(h) }
func (h endHeap) Less(i, j int) bool {
	if h[i].End != h[j].End {
		return h[i].End < h[j].End
	}
	return h[i].Start < h[j].Start
}
func (h endHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *endHeap) Push(x interface{}) { *h = append(*h, x.(window.Window)) }
func (h *endHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
