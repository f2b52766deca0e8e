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

package window

import (
	"fmt"

	"github.com/rulego/tsstream/types"
)

// Window is the half open interval [Start, End) in epoch milliseconds.
type Window struct {
	Start int64
	End   int64
}

func (w Window) Contains(ts int64) bool {
	return ts >= w.Start && ts < w.End
}

// Assigner maps timestamps to windows.
type Assigner struct {
	interval int64
	step     int64
	offset   int64
}

// NewAssigner validates spec and builds an assigner for it.
func NewAssigner(spec types.WindowSpec) (*Assigner, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid window: %w", err)
	}
	return &Assigner{
		interval: spec.Interval.Milliseconds(),
		step:     spec.Step().Milliseconds(),
		offset:   spec.Offset.Milliseconds(),
	}, nil
}

// Interval returns the window length in milliseconds.
func (a *Assigner) Interval() int64 {
	return a.interval
}

// Align returns the start of the latest window containing ts.
func (a *Assigner) Align(ts int64) int64 {
	return floorDiv(ts-a.offset, a.step)*a.step + a.offset
}

// Assign appends every window containing ts to dst, oldest first.
func (a *Assigner) Assign(ts int64, dst []Window) []Window {
	last := a.Align(ts)
	first := last
	for first-a.step > ts-a.interval {
		first -= a.step
	}
	for start := first; start <= last; start += a.step {
		dst = append(dst, Window{Start: start, End: start + a.interval})
	}
	return dst
}

// At returns the window starting at start.
func (a *Assigner) At(start int64) Window {
	return Window{Start: start, End: start + a.interval}
}

// floorDiv rounds toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
