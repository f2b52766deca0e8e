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

package registry

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/rulego/tsstream/types"
)

var (
	streamsBucket = []byte("streams")
	json          = jsoniter.ConfigCompatibleWithStandardLibrary
)

// DefinitionStore persists stream definitions keyed by stream id.
type DefinitionStore interface {
	Put(def *types.StreamDefinition) error
	Delete(id string) error
	List() ([]*types.StreamDefinition, error)
	Close() error
}

// MemoryStore keeps definitions for the life of the process.
type MemoryStore struct {
	mu   sync.Mutex
	defs map[string]*types.StreamDefinition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{defs: make(map[string]*types.StreamDefinition)}
}

func (m *MemoryStore) Put(def *types.StreamDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[def.ID] = def.Clone()
	return nil
}

func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.defs, id)
	return nil
}

func (m *MemoryStore) List() ([]*types.StreamDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.StreamDefinition, 0, len(m.defs))
	for _, def := range m.defs {
		out = append(out, def.Clone())
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

// BoltStore keeps definitions in the streams bucket of a bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (or creates) the definition database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create definition dir for %s", path)
	}
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open definition db %s", path)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(streamsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create streams bucket")
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Put(def *types.StreamDefinition) error {
	value, err := json.Marshal(def)
	if err != nil {
		return errors.Wrapf(err, "encode stream %s", def.Name)
	}
	return errors.Wrapf(b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(streamsBucket).Put([]byte(def.ID), value)
	}), "save stream %s", def.Name)
}

func (b *BoltStore) Delete(id string) error {
	return errors.Wrapf(b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(streamsBucket).Delete([]byte(id))
	}), "delete stream %s", id)
}

func (b *BoltStore) List() ([]*types.StreamDefinition, error) {
	var out []*types.StreamDefinition
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(streamsBucket).ForEach(func(k, v []byte) error {
			def := &types.StreamDefinition{}
			if err := json.Unmarshal(v, def); err != nil {
				return errors.Wrapf(err, "decode stream %s", k)
			}
			out = append(out, def)
			return nil
		})
	})
	return out, errors.Wrap(err, "list streams")
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
