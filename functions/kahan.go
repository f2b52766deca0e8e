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

import "math"

// CompensatedSum accumulates float64 values with Neumaier's algorithm.
type CompensatedSum struct {
	Sum  float64 `json:"s"`
	Comp float64 `json:"c"`
}

// Add folds x into the sum.
func (k *CompensatedSum) Add(x float64) {
	t := k.Sum + x
	if math.Abs(k.Sum) >= math.Abs(x) {
		k.Comp += (k.Sum - t) + x
	} else {
		k.Comp += (x - t) + k.Sum
	}
	k.Sum = t
}

// Value returns the compensated total.
func (k CompensatedSum) Value() float64 {
	return k.Sum + k.Comp
}
