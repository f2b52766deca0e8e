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
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BaseFunction carries the name of an aggregate.
type BaseFunction struct {
	name        string
	description string
}

// NewBaseFunction 创建基础函数
func NewBaseFunction(name, description string) *BaseFunction {
	return &BaseFunction{name: name, description: description}
}

func (bf *BaseFunction) GetName() string {
	return bf.name
}

func (bf *BaseFunction) GetDescription() string {
	return bf.description
}

func toFloat(value interface{}) (float64, bool) {
	if value == nil {
		return 0, false
	}
	v, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, false
	}
	return v, true
}

// CountFunction counts non-NULL values.
type CountFunction struct {
	*BaseFunction
	N int64 `json:"n"`
}

func NewCountFunction() *CountFunction {
	return &CountFunction{BaseFunction: NewBaseFunction("count", "Count non-NULL values")}
}

func (f *CountFunction) New() AggregatorFunction {
	return &CountFunction{BaseFunction: f.BaseFunction}
}

func (f *CountFunction) Add(_ int64, value interface{}) {
	if value != nil {
		f.N++
	}
}

func (f *CountFunction) Result() interface{} { return f.N }
func (f *CountFunction) Reset()              { f.N = 0 }

func (f *CountFunction) Clone() AggregatorFunction {
	c := *f
	return &c
}

func (f *CountFunction) MarshalState() ([]byte, error) { return json.Marshal(f) }

func (f *CountFunction) UnmarshalState(data []byte) error { return json.Unmarshal(data, f) }

// SumFunction sums numeric values.
type SumFunction struct {
	*BaseFunction
	Total     CompensatedSum `json:"total"`
	HasValues bool           `json:"has"`
}

func NewSumFunction() *SumFunction {
	return &SumFunction{BaseFunction: NewBaseFunction("sum", "Calculate sum of numeric values")}
}

func (f *SumFunction) New() AggregatorFunction {
	return &SumFunction{BaseFunction: f.BaseFunction}
}

func (f *SumFunction) Add(_ int64, value interface{}) {
	if v, ok := toFloat(value); ok {
		f.Total.Add(v)
		f.HasValues = true
	}
}

func (f *SumFunction) Result() interface{} {
	if !f.HasValues {
		return nil
	}
	return f.Total.Value()
}

func (f *SumFunction) Reset() {
	f.Total = CompensatedSum{}
	f.HasValues = false
}

func (f *SumFunction) Clone() AggregatorFunction {
	c := *f
	return &c
}

func (f *SumFunction) MarshalState() ([]byte, error) { return json.Marshal(f) }

func (f *SumFunction) UnmarshalState(data []byte) error { return json.Unmarshal(data, f) }

// AvgFunction averages numeric values.
type AvgFunction struct {
	*BaseFunction
	Total CompensatedSum `json:"total"`
	N     int64          `json:"n"`
}

func NewAvgFunction() *AvgFunction {
	return &AvgFunction{BaseFunction: NewBaseFunction("avg", "Calculate average of numeric values")}
}

func (f *AvgFunction) New() AggregatorFunction {
	return &AvgFunction{BaseFunction: f.BaseFunction}
}

func (f *AvgFunction) Add(_ int64, value interface{}) {
	if v, ok := toFloat(value); ok {
		f.Total.Add(v)
		f.N++
	}
}

func (f *AvgFunction) Result() interface{} {
	if f.N == 0 {
		return nil
	}
	return f.Total.Value() / float64(f.N)
}

func (f *AvgFunction) Reset() {
	f.Total = CompensatedSum{}
	f.N = 0
}

func (f *AvgFunction) Clone() AggregatorFunction {
	c := *f
	return &c
}

func (f *AvgFunction) MarshalState() ([]byte, error) { return json.Marshal(f) }

func (f *AvgFunction) UnmarshalState(data []byte) error { return json.Unmarshal(data, f) }

// extremum backs min, max and spread.
type extremum struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	HasValues bool    `json:"has"`
}

func (e *extremum) add(value interface{}) {
	v, ok := toFloat(value)
	if !ok {
		return
	}
	if !e.HasValues {
		e.Min, e.Max, e.HasValues = v, v, true
		return
	}
	if v < e.Min {
		e.Min = v
	}
	if v > e.Max {
		e.Max = v
	}
}

// MinFunction returns the smallest value.
type MinFunction struct {
	*BaseFunction
	extremum
}

func NewMinFunction() *MinFunction {
	return &MinFunction{BaseFunction: NewBaseFunction("min", "Find minimum value")}
}

func (f *MinFunction) New() AggregatorFunction {
	return &MinFunction{BaseFunction: f.BaseFunction}
}

func (f *MinFunction) Add(_ int64, value interface{}) { f.add(value) }

func (f *MinFunction) Result() interface{} {
	if !f.HasValues {
		return nil
	}
	return f.Min
}

func (f *MinFunction) Reset() { f.extremum = extremum{} }

func (f *MinFunction) Clone() AggregatorFunction {
	c := *f
	return &c
}

func (f *MinFunction) MarshalState() ([]byte, error) { return json.Marshal(f.extremum) }

func (f *MinFunction) UnmarshalState(data []byte) error { return json.Unmarshal(data, &f.extremum) }

// MaxFunction returns the largest value.
type MaxFunction struct {
	*BaseFunction
	extremum
}

func NewMaxFunction() *MaxFunction {
	return &MaxFunction{BaseFunction: NewBaseFunction("max", "Find maximum value")}
}

func (f *MaxFunction) New() AggregatorFunction {
	return &MaxFunction{BaseFunction: f.BaseFunction}
}

func (f *MaxFunction) Add(_ int64, value interface{}) { f.add(value) }

func (f *MaxFunction) Result() interface{} {
	if !f.HasValues {
		return nil
	}
	return f.Max
}

func (f *MaxFunction) Reset() { f.extremum = extremum{} }

func (f *MaxFunction) Clone() AggregatorFunction {
	c := *f
	return &c
}

func (f *MaxFunction) MarshalState() ([]byte, error) { return json.Marshal(f.extremum) }

func (f *MaxFunction) UnmarshalState(data []byte) error { return json.Unmarshal(data, &f.extremum) }

// SpreadFunction returns max - min.
type SpreadFunction struct {
	*BaseFunction
	extremum
}

func NewSpreadFunction() *SpreadFunction {
	return &SpreadFunction{BaseFunction: NewBaseFunction("spread", "Difference between maximum and minimum value")}
}

func (f *SpreadFunction) New() AggregatorFunction {
	return &SpreadFunction{BaseFunction: f.BaseFunction}
}

func (f *SpreadFunction) Add(_ int64, value interface{}) { f.add(value) }

func (f *SpreadFunction) Result() interface{} {
	if !f.HasValues {
		return nil
	}
	return f.Max - f.Min
}

func (f *SpreadFunction) Reset() { f.extremum = extremum{} }

func (f *SpreadFunction) Clone() AggregatorFunction {
	c := *f
	return &c
}

func (f *SpreadFunction) MarshalState() ([]byte, error) { return json.Marshal(f.extremum) }

func (f *SpreadFunction) UnmarshalState(data []byte) error { return json.Unmarshal(data, &f.extremum) }

// selection backs first and last.
type selection struct {
	Ts        int64       `json:"ts"`
	Value     interface{} `json:"v"`
	HasValues bool        `json:"has"`
}

// FirstFunction returns the value with the smallest timestamp. Ties keep the value applied
// first.
type FirstFunction struct {
	*BaseFunction
	selection
}

func NewFirstFunction() *FirstFunction {
	return &FirstFunction{BaseFunction: NewBaseFunction("first", "Value with the earliest timestamp")}
}

func (f *FirstFunction) New() AggregatorFunction {
	return &FirstFunction{BaseFunction: f.BaseFunction}
}

func (f *FirstFunction) Add(ts int64, value interface{}) {
	if value == nil {
		return
	}
	if !f.HasValues || ts < f.Ts {
		f.selection = selection{Ts: ts, Value: value, HasValues: true}
	}
}

func (f *FirstFunction) Result() interface{} { return f.Value }
func (f *FirstFunction) Reset()              { f.selection = selection{} }

func (f *FirstFunction) Clone() AggregatorFunction {
	c := *f
	return &c
}

func (f *FirstFunction) MarshalState() ([]byte, error) { return json.Marshal(f.selection) }

func (f *FirstFunction) UnmarshalState(data []byte) error { return json.Unmarshal(data, &f.selection) }

// LastFunction returns the value with the largest timestamp. Ties keep the value applied
// last.
type LastFunction struct {
	*BaseFunction
	selection
}

func NewLastFunction() *LastFunction {
	return &LastFunction{BaseFunction: NewBaseFunction("last", "Value with the latest timestamp")}
}

func (f *LastFunction) New() AggregatorFunction {
	return &LastFunction{BaseFunction: f.BaseFunction}
}

func (f *LastFunction) Add(ts int64, value interface{}) {
	if value == nil {
		return
	}
	if !f.HasValues || ts >= f.Ts {
		f.selection = selection{Ts: ts, Value: value, HasValues: true}
	}
}

func (f *LastFunction) Result() interface{} { return f.Value }
func (f *LastFunction) Reset()              { f.selection = selection{} }

func (f *LastFunction) Clone() AggregatorFunction {
	c := *f
	return &c
}

func (f *LastFunction) MarshalState() ([]byte, error) { return json.Marshal(f.selection) }

func (f *LastFunction) UnmarshalState(data []byte) error { return json.Unmarshal(data, &f.selection) }
