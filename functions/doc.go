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
Package functions provides the aggregate functions available in stream SELECT lists.

Every function implements AggregatorFunction: New returns an empty accumulator, Add folds one
value (with its event timestamp) into it, Result reads the current value. Accumulators can
serialize their state so window state survives a checkpoint.

# Built-in Functions

	COUNT(*)     - number of rows, int64
	COUNT(col)   - number of non-NULL values, int64
	SUM(col)     - compensated float64 sum
	AVG(col)     - compensated float64 mean
	MIN(col)     - smallest value
	MAX(col)     - largest value
	FIRST(col)   - value with the smallest timestamp
	LAST(col)    - value with the largest timestamp
	SPREAD(col)  - MAX(col) - MIN(col)

NULL values and values that cannot be converted to a number are ignored by every function
except COUNT(*). A function over no values returns nil (COUNT returns 0).

# Numeric Reproducibility

Sums use Neumaier compensated summation. Values are applied in (ts, seq) order for history and
in commit order for live rows, so identical input always yields bit-identical results.

# Custom Functions

	functions.Register(myPercentile{})
	fn, _ := functions.Create("percentile")
*/
package functions
