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

/*
Package aggregator maintains per-partition window state for a stream.

A Spec is compiled once from a stream definition: aggregate arguments and the partition
expression become expr-lang programs (bare column names skip the VM), the window becomes an
Assigner. Each partition owns an Arena, a single-threaded store of accumulators keyed by
window start.

# Accumulator Lifecycle

	Open --(window end <= watermark)--> Closed --(late row, update policy)--> Reopened
	  ^                                                                           |
	  +---------------------------- close again ----------------------------------+

Closing emits a final AggregateRow. Under the update late policy closed accumulators are
retained until their end falls below watermark - retention so late rows can revise them;
each re-emission carries a higher Revision and overwrites the destination row.

# Usage

	spec, _ := aggregator.Compile(def, cfg.WindowConfig)
	arena := spec.NewArena("t1", "t1")
	arena.Apply(row, wm)
	for _, out := range arena.Advance(wm) {
		writer.Write(out)
	}

An Arena is not safe for concurrent use; the stream gives each partition its own goroutine.
*/
package aggregator
