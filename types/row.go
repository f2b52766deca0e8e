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

package types

// Row is one committed source row.
type Row struct {
	// Table is the child table name, exposed as tbname.
	Table string                 `json:"table"`
	Tags  map[string]interface{} `json:"tags,omitempty"`
	Ts    int64                  `json:"ts"`
	Cols  map[string]interface{} `json:"cols"`
	// Seq is the commit sequence number, strictly increasing per super table.
	Seq uint64 `json:"seq"`
}

// Lookup resolves a column, then a tag, then tbname.
func (r *Row) Lookup(name string) (interface{}, bool) {
	if v, ok := r.Cols[name]; ok {
		return v, true
	}
	if v, ok := r.Tags[name]; ok {
		return v, true
	}
	if name == TableNameColumn {
		return r.Table, true
	}
	if name == "ts" || name == "_ts" {
		return r.Ts, true
	}
	return nil, false
}

// Env flattens the row into an expression environment.
func (r *Row) Env() map[string]interface{} {
	env := make(map[string]interface{}, len(r.Cols)+len(r.Tags)+2)
	for k, v := range r.Tags {
		env[k] = v
	}
	for k, v := range r.Cols {
		env[k] = v
	}
	env[TableNameColumn] = r.Table
	if _, ok := env["ts"]; !ok {
		env["ts"] = r.Ts
	}
	return env
}

// Less orders rows by (Ts, Seq).
func (r *Row) Less(o *Row) bool {
	if r.Ts != o.Ts {
		return r.Ts < o.Ts
	}
	return r.Seq < o.Seq
}

// Position is a cutover boundary: rows with Seq below it belong to history.
type Position struct {
	Seq uint64 `json:"seq"`
	// Ts is the max committed timestamp (fill history) or the creation time.
	Ts int64 `json:"ts"`
}

// Cursor is the last (Ts, Seq) a backfill scan delivered.
type Cursor struct {
	Ts  int64  `json:"ts"`
	Seq uint64 `json:"seq"`
}

// After reports whether row r sorts strictly after the cursor.
func (c Cursor) After(r *Row) bool {
	if r.Ts != c.Ts {
		return r.Ts > c.Ts
	}
	return r.Seq > c.Seq
}

// AggregateRow is one emitted window result.
type AggregateRow struct {
	StreamID     string `json:"streamId"`
	PartitionKey string `json:"partitionKey"`
	// PartitionValue is the raw partition expression value, stored as the destination tag.
	PartitionValue interface{}   `json:"partitionValue,omitempty"`
	WindowStart    int64         `json:"windowStart"`
	WindowEnd      int64         `json:"windowEnd"`
	Values         []interface{} `json:"values"`
	Final          bool          `json:"final"`
	Revision       uint32        `json:"revision"`
}
