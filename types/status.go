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

// StreamStatus is the lifecycle state of a stream.
type StreamStatus int32

const (
	StatusCreating StreamStatus = iota
	StatusBackfilling
	StatusLive
	StatusFailed
	StatusDropped
)

func (s StreamStatus) String() string {
	switch s {
	case StatusCreating:
		return "creating"
	case StatusBackfilling:
		return "backfilling"
	case StatusLive:
		return "live"
	case StatusFailed:
		return "failed"
	case StatusDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the stream will never process rows again without Resume.
func (s StreamStatus) Terminal() bool {
	return s == StatusFailed || s == StatusDropped
}
