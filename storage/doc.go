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
Package storage is an in-memory reference implementation of the time-series storage engine
the stream engine runs against.

It models super tables with child tables, assigns a commit sequence number to every inserted
row, delivers committed rows to subscriptions in commit order, serves range scans ordered by
(ts, seq) and applies destination upserts atomically per row.

	st := storage.New()
	st.CreateSuperTable(src, storage.Schema{Columns: []string{"ts", "i"}, Tags: []string{"t"}})
	st.Insert(ctx, src, rows)

	sub, pos, _ := st.SubscribeSnapshot(src)
	// every row with Seq >= pos.Seq is delivered to sub,
	// every row with Seq < pos.Seq is visible to Scan
*/
package storage
