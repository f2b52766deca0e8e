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
Package stream runs one continuous query over a source super table.

A Stream establishes a cutover position by subscribing to the source and snapshotting its
commit sequence in one step. Rows below the cutover are read by the history backfill in
(ts, seq) order; rows at or above it arrive through the subscription and are queued by the
dispatcher until the backfill completes. Both paths route rows to one worker goroutine per
partition key, which owns that partition's window accumulators. Closed windows flow to the
result writer, which names the destination subtable and upserts the row keyed by window
start.

Lifecycle:

	s, err := stream.New(def, stream.Deps{Storage: store, Pool: pool, Config: cfg})
	if err != nil { ... }
	if err := s.Start(false); err != nil { ... }
	<-s.Live()
	...
	s.Drop()

Failures after Start are reported through Status and Err.
*/
package stream
