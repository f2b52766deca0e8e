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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/tsstream/types"
)

func TestTumblingAssign(t *testing.T) {
	a, err := NewAssigner(types.WindowSpec{Interval: time.Minute})
	require.NoError(t, err)

	tests := []struct {
		ts    int64
		start int64
	}{
		{0, 0},
		{59999, 0},
		{60000, 60000},
		{1700000012345, 1699999980000},
		{-1, -60000},
	}
	for _, tt := range tests {
		got := a.Assign(tt.ts, nil)
		require.Len(t, got, 1)
		assert.Equal(t, tt.start, got[0].Start, "ts %d", tt.ts)
		assert.Equal(t, tt.start+60000, got[0].End)
		assert.True(t, got[0].Contains(tt.ts))
	}
}

func TestOffsetAssign(t *testing.T) {
	a, err := NewAssigner(types.WindowSpec{Interval: 10 * time.Second, Offset: 3 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), a.Align(3000))
	assert.Equal(t, int64(-7000), a.Align(2999))
	assert.Equal(t, int64(13000), a.Align(22999))
}

func TestSlidingAssign(t *testing.T) {
	a, err := NewAssigner(types.WindowSpec{Interval: time.Minute, Sliding: 20 * time.Second})
	require.NoError(t, err)
	got := a.Assign(65000, nil)
	assert.Equal(t, []Window{{20000, 80000}, {40000, 100000}, {60000, 120000}}, got)

	got = a.Assign(60000, nil)
	assert.Equal(t, []Window{{20000, 80000}, {40000, 100000}, {60000, 120000}}, got)
	for _, w := range got {
		assert.True(t, w.Contains(60000))
	}

	// a row on a boundary leaves the window that ends there
	got = a.Assign(80000, nil)
	assert.Equal(t, int64(40000), got[0].Start)
}

func TestInvalidWindow(t *testing.T) {
	for _, spec := range []types.WindowSpec{
		{},
		{Interval: time.Second, Sliding: 2 * time.Second},
		{Interval: time.Second, Offset: time.Second},
		{Interval: 1500 * time.Microsecond},
	} {
		_, err := NewAssigner(spec)
		assert.Error(t, err, "%+v", spec)
	}
}

func TestWatermarkObserve(t *testing.T) {
	wm := NewWatermark(2*time.Second, 0)
	assert.Equal(t, int64(Undefined), wm.Current())

	assert.Equal(t, int64(8000), wm.Observe(10000))
	assert.Equal(t, int64(8000), wm.Observe(5000))
	assert.True(t, wm.IsLate(8000))
	assert.False(t, wm.IsLate(8001))

	assert.Equal(t, int64(20000), wm.Inject(20000))
	assert.Equal(t, int64(20000), wm.Observe(12000))
	assert.Equal(t, int64(12000), wm.MaxEventTime())
}

func TestWatermarkIdle(t *testing.T) {
	wm := NewWatermark(time.Second, 50*time.Millisecond)
	now := time.UnixMilli(1000000)
	wm.now = func() time.Time { return now }

	_, moved := wm.Idle()
	assert.False(t, moved, "no events yet")

	wm.Observe(500000)
	now = now.Add(40 * time.Millisecond)
	_, moved = wm.Idle()
	assert.False(t, moved)

	now = now.Add(20 * time.Millisecond)
	current, moved := wm.Idle()
	assert.True(t, moved)
	assert.Equal(t, now.UnixMilli()-1000, current)
}

func TestWatermarkRestore(t *testing.T) {
	wm := NewWatermark(time.Second, 0)
	wm.Restore(Undefined)
	assert.Equal(t, int64(Undefined), wm.Current())
	wm.Restore(5000)
	assert.Equal(t, int64(5000), wm.Current())
	assert.Equal(t, int64(6000), wm.MaxEventTime())
	assert.Equal(t, int64(5000), wm.Observe(3000))
}
