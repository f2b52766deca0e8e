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
Package types provides the shared data model of the stream engine.

It defines stream definitions, source rows, emitted aggregate rows, cutover positions,
stream status values, engine configuration and the typed error taxonomy. Every other
package depends on it; it depends on nothing inside the module.

# Stream Definitions

A StreamDefinition is the parsed form of

	CREATE STREAM s1 FILL_HISTORY 1 INTO sta SUBTABLE(concat('new-', tname))
	AS SELECT _wstart, count(*), avg(i) FROM st PARTITION BY tbname tname INTERVAL(1m)

and is immutable once registered:

	def := &types.StreamDefinition{
		Name:         "s1",
		Source:       types.TableRef{DB: "d1", Name: "st"},
		Destination:  types.TableRef{DB: "d1", Name: "sta"},
		Select:       []types.SelectItem{types.WindowStart(""), types.Aggregate("count", "*", ""), types.Aggregate("avg", "i", "")},
		Window:       types.WindowSpec{Interval: time.Minute},
		Partition:    &types.PartitionSpec{Expr: "tbname", Alias: "tname"},
		SubtableExpr: "concat('new-', tname)",
		FillHistory:  true,
	}

# Timestamps

All row timestamps are int64 epoch milliseconds. Window durations are time.Duration values
that must be whole milliseconds.

# Errors

Errors raised by the engine are *StreamError values carrying an ErrorKind. Use errors.Is
with the Err* sentinels to test the kind:

	if errors.Is(err, types.ErrDuplicateStreamName) { ... }
*/
package types
