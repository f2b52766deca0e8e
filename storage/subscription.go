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

package storage

import (
	"sync"

	"github.com/rulego/tsstream/types"
)

// Subscription receives committed rows of one super table in commit order. Its buffer is
// unbounded so writers never block on a slow consumer.
type Subscription struct {
	table *superTable

	mu     sync.Mutex
	buf    []types.Row
	closed bool
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newSubscription(t *superTable) *Subscription {
	return &Subscription{
		table:  t,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *Subscription) push(rows []types.Row) {
	if len(rows) == 0 {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, rows...)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Notify fires after new rows were buffered.
func (s *Subscription) Notify() <-chan struct{} {
	return s.notify
}

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Drain takes every buffered row.
func (s *Subscription) Drain() []types.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.buf
	s.buf = nil
	return rows
}

// Pending returns the number of buffered rows.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Close detaches the subscription from its table and discards buffered rows.
func (s *Subscription) Close() {
	s.table.unsubscribe(s)
	s.terminate()
}

func (s *Subscription) terminate() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.buf = nil
		s.mu.Unlock()
		close(s.done)
	})
}
