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

// Package txn tracks DDL operations that are not yet fully applied, the equivalent of
// SHOW TRANSACTIONS.
package txn

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Kind names the DDL operation of a transaction.
type Kind string

const (
	CreateStream Kind = "create-stream"
	DropStream   Kind = "drop-stream"
)

// Info describes a pending transaction.
type Info struct {
	ID        uint64
	Kind      Kind
	Target    string
	StartedAt time.Time
}

// Txn is a pending transaction; Commit makes it invisible.
type Txn struct {
	info    Info
	tracker *Tracker
	once    sync.Once
}

// Info returns the transaction description.
func (t *Txn) Info() Info {
	return t.info
}

// Commit removes the transaction from the pending set. Calling it again has no effect.
func (t *Txn) Commit() {
	t.once.Do(func() { t.tracker.finish(t.info.ID) })
}

// Tracker holds the pending transactions of an engine.
type Tracker struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]Info
	// idle is closed whenever nothing is pending
	idle chan struct{}
}

func NewTracker() *Tracker {
	idle := make(chan struct{})
	close(idle)
	return &Tracker{pending: make(map[uint64]Info), idle: idle}
}

// Begin opens a transaction of kind on target.
func (t *Tracker) Begin(kind Kind, target string) *Txn {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	info := Info{ID: t.nextID, Kind: kind, Target: target, StartedAt: time.Now()}
	if len(t.pending) == 0 {
		t.idle = make(chan struct{})
	}
	t.pending[info.ID] = info
	return &Txn{info: info, tracker: t}
}

func (t *Tracker) finish(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[id]; !ok {
		return
	}
	delete(t.pending, id)
	if len(t.pending) == 0 {
		close(t.idle)
	}
}

// Pending returns the number of uncommitted transactions.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// List returns the pending transactions ordered by id.
func (t *Tracker) List() []Info {
	t.mu.Lock()
	out := make([]Info, 0, len(t.pending))
	for _, info := range t.pending {
		out = append(out, info)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Idle returns a channel closed once no transaction is pending. A transaction begun after
// the call is not covered by the returned channel.
func (t *Tracker) Idle() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idle
}

// Wait blocks until no transaction is pending or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	for {
		select {
		case <-t.Idle():
			if t.Pending() == 0 {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
