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

import (
	"fmt"
	"strings"
	"time"
)

// Pseudo columns exposed by interval windows
const (
	WindowStartColumn = "_wstart"
	WindowEndColumn   = "_wend"
	// TableNameColumn is the child table name of a source row
	TableNameColumn = "tbname"
	// DefaultPartitionTag is the destination tag name used when PARTITION BY has no alias
	DefaultPartitionTag = "group_id"
)

// TableRef identifies a (super) table inside a database.
type TableRef struct {
	DB   string `json:"db"`
	Name string `json:"name"`
}

// ParseTableRef parses "db.table" or "table"; a bare name gets defaultDB.
func ParseTableRef(s, defaultDB string) TableRef {
	if i := strings.IndexByte(s, '.'); i > 0 {
		return TableRef{DB: s[:i], Name: s[i+1:]}
	}
	return TableRef{DB: defaultDB, Name: s}
}

func (t TableRef) String() string {
	if t.DB == "" {
		return t.Name
	}
	return t.DB + "." + t.Name
}

// IsZero reports whether the reference names no table.
func (t TableRef) IsZero() bool {
	return t.Name == ""
}

// SelectKind distinguishes aggregate items from window pseudo columns.
type SelectKind int

const (
	SelectAggregate SelectKind = iota
	SelectWindowStart
	SelectWindowEnd
)

// SelectItem is one output column of a stream.
type SelectItem struct {
	Kind SelectKind `json:"kind"`
	// Func is the aggregate function name, lower case.
	Func string `json:"func,omitempty"`
	// Arg is the argument expression text, "*" for count(*).
	Arg   string `json:"arg,omitempty"`
	Alias string `json:"alias,omitempty"`
}

// Aggregate builds an aggregate select item.
func Aggregate(fn, arg, alias string) SelectItem {
	return SelectItem{Kind: SelectAggregate, Func: strings.ToLower(fn), Arg: arg, Alias: alias}
}

// WindowStart builds a _wstart select item.
func WindowStart(alias string) SelectItem {
	return SelectItem{Kind: SelectWindowStart, Alias: alias}
}

// WindowEnd builds a _wend select item.
func WindowEnd(alias string) SelectItem {
	return SelectItem{Kind: SelectWindowEnd, Alias: alias}
}

// OutputName returns the destination column name of the item.
func (s SelectItem) OutputName() string {
	if s.Alias != "" {
		return s.Alias
	}
	switch s.Kind {
	case SelectWindowStart:
		return WindowStartColumn
	case SelectWindowEnd:
		return WindowEndColumn
	default:
		return fmt.Sprintf("%s(%s)", s.Func, s.Arg)
	}
}

// WindowSpec describes an INTERVAL window, optionally hopping with SLIDING.
type WindowSpec struct {
	Interval time.Duration `json:"interval"`
	// Sliding is the hop between window starts, 0 means tumbling.
	Sliding time.Duration `json:"sliding,omitempty"`
	// Offset shifts window boundaries away from the epoch.
	Offset time.Duration `json:"offset,omitempty"`
}

// Step returns the distance between consecutive window starts.
func (w WindowSpec) Step() time.Duration {
	if w.Sliding > 0 {
		return w.Sliding
	}
	return w.Interval
}

// Tumbling reports whether windows do not overlap.
func (w WindowSpec) Tumbling() bool {
	return w.Step() == w.Interval
}

// Validate checks interval, sliding and offset against each other.
func (w WindowSpec) Validate() error {
	if w.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", w.Interval)
	}
	for name, d := range map[string]time.Duration{"interval": w.Interval, "sliding": w.Sliding, "offset": w.Offset} {
		if d%time.Millisecond != 0 {
			return fmt.Errorf("%s %s is not a whole number of milliseconds", name, d)
		}
	}
	if w.Sliding < 0 || w.Sliding > w.Interval {
		return fmt.Errorf("sliding %s must be in (0, interval %s]", w.Sliding, w.Interval)
	}
	if w.Offset < 0 || w.Offset >= w.Interval {
		return fmt.Errorf("offset %s must be in [0, interval %s)", w.Offset, w.Interval)
	}
	return nil
}

// PartitionSpec is the PARTITION BY clause.
type PartitionSpec struct {
	Expr  string `json:"expr"`
	Alias string `json:"alias,omitempty"`
}

// TagName returns the destination tag that stores the partition value.
func (p *PartitionSpec) TagName() string {
	if p == nil {
		return ""
	}
	if p.Alias != "" {
		return p.Alias
	}
	if IsIdentifier(p.Expr) {
		return p.Expr
	}
	return DefaultPartitionTag
}

// IsIdentifier reports whether s is a bare column or tag name.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}

// TriggerMode controls when window results are emitted.
type TriggerMode string

const (
	// TriggerWindowClose emits a window once the watermark passes its end.
	TriggerWindowClose TriggerMode = "window_close"
	// TriggerAtOnce emits updated open windows after every processed batch. It is the
	// default when no trigger is given.
	TriggerAtOnce TriggerMode = "at_once"
	// TriggerMaxDelay emits updated open windows at most every MaxDelay.
	TriggerMaxDelay TriggerMode = "max_delay"
)

// TriggerSpec is the TRIGGER option of a stream.
type TriggerSpec struct {
	Mode     TriggerMode   `json:"mode"`
	MaxDelay time.Duration `json:"maxDelay,omitempty"`
}

// Effective returns the mode in force; an empty mode means at_once.
func (t TriggerSpec) Effective() TriggerMode {
	if t.Mode == "" {
		return TriggerAtOnce
	}
	return t.Mode
}

// LatePolicy decides what happens to rows whose window already closed.
type LatePolicy string

const (
	// LatePolicyUpdate reopens retained windows and overwrites their destination row.
	LatePolicyUpdate LatePolicy = "update"
	// LatePolicyDrop drops every row that arrives for a closed window.
	LatePolicyDrop LatePolicy = "drop"
)

// StreamDefinition is the immutable description of one stream.
type StreamDefinition struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Source       TableRef       `json:"source"`
	Destination  TableRef       `json:"destination"`
	Select       []SelectItem   `json:"select"`
	Window       WindowSpec     `json:"window"`
	Partition    *PartitionSpec `json:"partition,omitempty"`
	SubtableExpr string         `json:"subtableExpr,omitempty"`
	FillHistory  bool           `json:"fillHistory"`
	Trigger      TriggerSpec    `json:"trigger"`
	// Watermark is the allowed lateness subtracted from the max event time.
	Watermark time.Duration `json:"watermark,omitempty"`
	// LatePolicy overrides the engine default when set.
	LatePolicy LatePolicy `json:"latePolicy,omitempty"`
	CreatedAt  int64      `json:"createdAt"`
}

// Clone returns a deep copy so callers cannot mutate a registered definition.
func (d *StreamDefinition) Clone() *StreamDefinition {
	c := *d
	c.Select = append([]SelectItem(nil), d.Select...)
	if d.Partition != nil {
		p := *d.Partition
		c.Partition = &p
	}
	return &c
}

// PartitionTag returns the destination tag name, empty for unpartitioned streams.
func (d *StreamDefinition) PartitionTag() string {
	return d.Partition.TagName()
}

// Columns returns the destination column names in order. The first column is always the
// window start.
func (d *StreamDefinition) Columns() []string {
	cols := make([]string, 0, len(d.Select)+1)
	hasStart := false
	for _, item := range d.Select {
		if item.Kind == SelectWindowStart {
			hasStart = true
			break
		}
	}
	if !hasStart {
		cols = append(cols, WindowStartColumn)
	}
	for _, item := range d.Select {
		cols = append(cols, item.OutputName())
	}
	return cols
}
