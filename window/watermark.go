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
	"math"
	"time"

	"go.uber.org/atomic"
)

// Undefined is the watermark before any event was observed.
const Undefined = math.MinInt64

// Watermark represents a watermark for event time processing
// Watermark indicates that no events with timestamp less than watermark time are expected
type Watermark struct {
	// lateness is the maximum allowed out-of-orderness in milliseconds
	lateness int64
	// idleTimeout is the idle source timeout: when no data arrives within this duration,
	// watermark advances based on processing time (0 means disabled)
	idleTimeout time.Duration

	current   *atomic.Int64
	maxEvent  *atomic.Int64
	lastEvent *atomic.Int64

	now func() time.Time
}

// NewWatermark creates a watermark with the given lateness and idle timeout.
func NewWatermark(lateness, idleTimeout time.Duration) *Watermark {
	return &Watermark{
		lateness:    lateness.Milliseconds(),
		idleTimeout: idleTimeout,
		current:     atomic.NewInt64(Undefined),
		maxEvent:    atomic.NewInt64(Undefined),
		lastEvent:   atomic.NewInt64(0),
		now:         time.Now,
	}
}

// Observe records an event time and returns the resulting watermark.
func (wm *Watermark) Observe(ts int64) int64 {
	wm.lastEvent.Store(wm.now().UnixNano())
	for {
		prev := wm.maxEvent.Load()
		if ts <= prev || wm.maxEvent.CompareAndSwap(prev, ts) {
			break
		}
	}
	return wm.advance(wm.maxEvent.Load() - wm.lateness)
}

// Inject moves the watermark to ts unless it is already past it.
func (wm *Watermark) Inject(ts int64) int64 {
	return wm.advance(ts)
}

// Idle advances the watermark by processing time when the source has been idle for longer
// than the idle timeout. It reports whether the watermark moved.
func (wm *Watermark) Idle() (int64, bool) {
	if wm.idleTimeout <= 0 || wm.maxEvent.Load() == Undefined {
		return wm.current.Load(), false
	}
	now := wm.now()
	if now.Sub(time.Unix(0, wm.lastEvent.Load())) <= wm.idleTimeout {
		return wm.current.Load(), false
	}
	before := wm.current.Load()
	after := wm.advance(now.UnixMilli() - wm.lateness)
	return after, after != before
}

// Current returns the current watermark.
func (wm *Watermark) Current() int64 {
	return wm.current.Load()
}

// MaxEventTime returns the largest observed event time.
func (wm *Watermark) MaxEventTime() int64 {
	return wm.maxEvent.Load()
}

// Restore resets the watermark to a checkpointed value.
func (wm *Watermark) Restore(current int64) {
	wm.advance(current)
	for {
		prev := wm.maxEvent.Load()
		candidate := current + wm.lateness
		if current == Undefined || candidate <= prev || wm.maxEvent.CompareAndSwap(prev, candidate) {
			return
		}
	}
}

// IsLate reports whether a window ending at end is already closed.
func (wm *Watermark) IsLate(end int64) bool {
	return end <= wm.current.Load()
}

func (wm *Watermark) advance(candidate int64) int64 {
	for {
		prev := wm.current.Load()
		if candidate <= prev {
			return prev
		}
		if wm.current.CompareAndSwap(prev, candidate) {
			return candidate
		}
	}
}
