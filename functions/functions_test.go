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

package functions

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(t *testing.T, name string, values ...interface{}) AggregatorFunction {
	t.Helper()
	fn, err := Create(name)
	require.NoError(t, err)
	for i, v := range values {
		fn.Add(int64(i), v)
	}
	return fn
}

func TestBuiltinAggregates(t *testing.T) {
	values := []interface{}{3, nil, "7", "x", 2.5, int64(-1)}
	tests := []struct {
		name string
		want interface{}
	}{
		{"count", int64(5)},
		{"sum", 11.5},
		{"avg", 11.5 / 4},
		{"min", -1.0},
		{"max", 7.0},
		{"spread", 8.0},
		{"first", 3},
		{"last", int64(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, feed(t, tt.name, values...).Result())
		})
	}
}

func TestEmptyAggregates(t *testing.T) {
	assert.Equal(t, int64(0), feed(t, "count").Result())
	for _, name := range []string{"sum", "avg", "min", "max", "spread"} {
		assert.Nil(t, feed(t, name, nil, "not a number").Result(), name)
	}
	// first and last keep non-numeric values, only NULL is skipped
	for _, name := range []string{"first", "last"} {
		assert.Nil(t, feed(t, name).Result(), name)
		assert.Nil(t, feed(t, name, nil).Result(), name)
		assert.Equal(t, "not a number", feed(t, name, nil, "not a number").Result(), name)
	}
}

func TestFirstLastUseTimestamps(t *testing.T) {
	first, _ := Create("first")
	last, _ := Create("last")
	for _, p := range []struct {
		ts int64
		v  string
	}{{20, "b"}, {10, "a"}, {30, "c"}, {10, "a2"}, {30, "c2"}} {
		first.Add(p.ts, p.v)
		last.Add(p.ts, p.v)
	}
	assert.Equal(t, "a", first.Result())
	assert.Equal(t, "c2", last.Result())
}

func TestCompensatedSum(t *testing.T) {
	var k CompensatedSum
	k.Add(1e16)
	k.Add(1.0)
	k.Add(-1e16)
	assert.Equal(t, 1.0, k.Value())

	naive := 0.0
	for _, v := range []float64{1e16, 1.0, -1e16} {
		naive += v
	}
	assert.NotEqual(t, naive, k.Value())
}

func TestSumIsReproducible(t *testing.T) {
	values := make([]interface{}, 0, 1000)
	for i := 0; i < 1000; i++ {
		values = append(values, math.Sin(float64(i))*1e6)
	}
	a := feed(t, "sum", values...).Result()
	b := feed(t, "sum", values...).Result()
	assert.Equal(t, math.Float64bits(a.(float64)), math.Float64bits(b.(float64)))
}

func TestStateRoundTrip(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			fn := feed(t, name, 4, 8, 15)
			data, err := fn.MarshalState()
			require.NoError(t, err)

			restored, err := Create(name)
			require.NoError(t, err)
			require.NoError(t, restored.UnmarshalState(data))
			restored.Add(3, 16)
			fn.Add(3, 16)
			assert.InDelta(t, toFloatOrZero(fn.Result()), toFloatOrZero(restored.Result()), 1e-9)
		})
	}
}

func toFloatOrZero(v interface{}) float64 {
	f, _ := toFloat(v)
	return f
}

func TestCloneAndReset(t *testing.T) {
	fn := feed(t, "avg", 1, 2, 3)
	c := fn.Clone()
	fn.Reset()
	assert.Nil(t, fn.Result())
	assert.Equal(t, 2.0, c.Result())
}

func TestRegistry(t *testing.T) {
	assert.True(t, IsAggregatorFunction("COUNT"))
	assert.False(t, IsAggregatorFunction("median"))
	_, err := Create("median")
	assert.Error(t, err)
	assert.Error(t, Register(NewSumFunction()))

	r := NewRegistry()
	require.NoError(t, r.Register(NewSpreadFunction()))
	assert.Equal(t, []string{"spread"}, r.Names())
	assert.True(t, r.Unregister("SPREAD"))
	assert.False(t, r.Unregister("spread"))
	assert.Equal(t, []string{"avg", "count", "first", "last", "max", "min", "spread", "sum"}, Names())
}
