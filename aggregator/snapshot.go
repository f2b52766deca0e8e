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

package aggregator

import (
	"container/heap"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type accumulatorState struct {
	Start    int64    `json:"start"`
	State    State    `json:"state"`
	Revision uint32   `json:"rev"`
	Dirty    bool     `json:"dirty,omitempty"`
	Rows     int64    `json:"rows"`
	Funcs    [][]byte `json:"funcs"`
}

type arenaState struct {
	Key    string             `json:"key"`
	Value  interface{}        `json:"value,omitempty"`
	Open   []accumulatorState `json:"open"`
	Closed []accumulatorState `json:"closed,omitempty"`
}

// Snapshot encodes every open and retained accumulator.
func (a *Arena) Snapshot() ([]byte, error) {
	st := arenaState{Key: a.key, Value: a.value}
	for _, acc := range a.open {
		s, err := encodeAccumulator(acc)
		if err != nil {
			return nil, err
		}
		st.Open = append(st.Open, s)
	}
	for _, acc := range a.closed {
		s, err := encodeAccumulator(acc)
		if err != nil {
			return nil, err
		}
		st.Closed = append(st.Closed, s)
	}
	return json.Marshal(st)
}

func encodeAccumulator(acc *Accumulator) (accumulatorState, error) {
	s := accumulatorState{
		Start:    acc.Window.Start,
		State:    acc.State,
		Revision: acc.Revision,
		Dirty:    acc.Dirty,
		Rows:     acc.Rows,
		Funcs:    make([][]byte, len(acc.Funcs)),
	}
	for i, fn := range acc.Funcs {
		data, err := fn.MarshalState()
		if err != nil {
			return s, fmt.Errorf("encode %s state of window %d: %w", fn.GetName(), acc.Window.Start, err)
		}
		s.Funcs[i] = data
	}
	return s, nil
}

// RestoreArena rebuilds an arena from a Snapshot.
func (s *Spec) RestoreArena(data []byte) (*Arena, error) {
	var st arenaState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode arena: %w", err)
	}
	a := newArena(s, st.Key, st.Value)
	for _, as := range st.Open {
		acc, err := s.decodeAccumulator(as)
		if err != nil {
			return nil, err
		}
		a.open[acc.Window.Start] = acc
		heap.Push(&a.openEnds, acc.Window)
	}
	for _, as := range st.Closed {
		acc, err := s.decodeAccumulator(as)
		if err != nil {
			return nil, err
		}
		a.closed[acc.Window.Start] = acc
		heap.Push(&a.closedEnds, acc.Window)
	}
	return a, nil
}

func (s *Spec) decodeAccumulator(as accumulatorState) (*Accumulator, error) {
	acc := newAccumulator(s, s.Assigner.At(as.Start))
	if len(as.Funcs) != len(acc.Funcs) {
		return nil, fmt.Errorf("window %d has %d function states, want %d", as.Start, len(as.Funcs), len(acc.Funcs))
	}
	for i, fn := range acc.Funcs {
		if err := fn.UnmarshalState(as.Funcs[i]); err != nil {
			return nil, fmt.Errorf("decode %s state of window %d: %w", fn.GetName(), as.Start, err)
		}
	}
	acc.State = as.State
	acc.Revision = as.Revision
	acc.Dirty = as.Dirty
	acc.Rows = as.Rows
	return acc, nil
}

