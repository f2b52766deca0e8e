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

// Package checkpoint persists backfill progress so an interrupted history scan can resume
// without reprocessing or losing rows.
package checkpoint

import (
	"sync"
	"time"

	"github.com/rulego/tsstream/types"
)

// Checkpoint is the resumable state of one stream's backfill.
type Checkpoint struct {
	StreamID string         `json:"streamId"`
	Cutover  types.Position `json:"cutover"`
	// Cursor is the last (ts, seq) fully applied by every partition.
	Cursor    types.Cursor `json:"cursor"`
	HasCursor bool         `json:"hasCursor"`
	Watermark int64        `json:"watermark"`
	// Partitions maps a partition key to its encoded accumulator arena.
	Partitions map[string][]byte `json:"partitions"`
	Batches    int               `json:"batches"`
	SavedAt    time.Time         `json:"savedAt"`
}

// Store saves and loads checkpoints keyed by stream id.
type Store interface {
	Save(cp *Checkpoint) error
	// Load returns nil, nil when the stream has no checkpoint.
	Load(streamID string) (*Checkpoint, error)
	Delete(streamID string) error
	Close() error
}

// MemoryStore keeps checkpoints in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*Checkpoint)}
}

func (m *MemoryStore) Save(cp *Checkpoint) error {
	c := cp.clone()
	m.mu.Lock()
	m.data[cp.StreamID] = c
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(streamID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.data[streamID]
	if !ok {
		return nil, nil
	}
	return cp.clone(), nil
}

func (m *MemoryStore) Delete(streamID string) error {
	m.mu.Lock()
	delete(m.data, streamID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func (cp *Checkpoint) clone() *Checkpoint {
	c := *cp
	c.Partitions = make(map[string][]byte, len(cp.Partitions))
	for k, v := range cp.Partitions {
		c.Partitions[k] = append([]byte(nil), v...)
	}
	return &c
}
