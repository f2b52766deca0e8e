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

package checkpoint

import (
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var (
	checkpointBucket = []byte("checkpoints")
	json             = jsoniter.ConfigCompatibleWithStandardLibrary
)

// BoltStore persists checkpoints in a bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (or creates) the checkpoint database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create checkpoint dir for %s", path)
	}
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open checkpoint db %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create checkpoint bucket")
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Save(cp *Checkpoint) error {
	value, err := json.Marshal(cp)
	if err != nil {
		return errors.Wrapf(err, "encode checkpoint of %s", cp.StreamID)
	}
	return errors.Wrapf(b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(checkpointBucket).Put([]byte(cp.StreamID), value)
	}), "save checkpoint of %s", cp.StreamID)
}

func (b *BoltStore) Load(streamID string) (*Checkpoint, error) {
	var cp *Checkpoint
	err := b.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(checkpointBucket).Get([]byte(streamID))
		if value == nil {
			return nil
		}
		cp = &Checkpoint{}
		// value is only valid for the life of the transaction, Unmarshal copies it
		return json.Unmarshal(value, cp)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "load checkpoint of %s", streamID)
	}
	return cp, nil
}

func (b *BoltStore) Delete(streamID string) error {
	return errors.Wrapf(b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(checkpointBucket).Delete([]byte(streamID))
	}), "delete checkpoint of %s", streamID)
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
