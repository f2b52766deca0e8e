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
Package window assigns rows to interval windows and tracks the event time watermark.

# Window Assignment

Windows are aligned to the epoch plus an optional offset:

	start = floor((ts - offset) / sliding) * sliding + offset
	end   = start + interval

A tumbling window has sliding == interval, so every row falls into exactly one window. A
sliding (hopping) window has sliding < interval and every row falls into interval/sliding
windows:

	a, _ := window.NewAssigner(types.WindowSpec{Interval: time.Minute, Sliding: 20 * time.Second})
	a.Assign(65000, nil) // [20000,80000) [40000,100000) [60000,120000)

# Watermark

The watermark is the maximum event time seen minus the allowed lateness. It only moves
forward. A window closes once its end is <= the watermark. When the source is idle for longer
than the idle timeout the watermark advances by processing time instead.
*/
package window
