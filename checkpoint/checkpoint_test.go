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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/tsstream/types"
)

func sample() *Checkpoint {
	return &Checkpoint{
		StreamID:   "9b1deb4d",
		Cutover:    types.Position{Seq: 101, Ts: 1700000000000},
		Cursor:     types.Cursor{Ts: 1699999999000, Seq: 42},
		HasCursor:  true,
		Watermark:  1699999999000,
		Partitions: map[string][]byte{"t1": []byte(`{"open":[]}`), "t2": nil},
		Batches:    3,
		SavedAt:    time.UnixMilli(1700000001000).UTC(),
	}
}

func testStore(t *testing.T, store Store) {
	loaded, err := store.Load("missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	cp := sample()
	require.NoError(t, store.Save(cp))
	cp.Partitions["t1"][0] = 'X'

	loaded, err = store.Load(cp.StreamID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, cp.Cutover, loaded.Cutover)
	assert.Equal(t, cp.Cursor, loaded.Cursor)
	assert.True(t, loaded.HasCursor)
	assert.Equal(t, 3, loaded.Batches)
	assert.Equal(t, `{"open":[]}`, string(loaded.Partitions["t1"]))
	assert.True(t, cp.SavedAt.Equal(loaded.SavedAt))

	require.NoError(t, store.Delete(cp.StreamID))
	loaded, err = store.Load(cp.StreamID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	testStore(t, store)
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	store, err := OpenBoltStore(path)
	require.NoError(t, err)
	testStore(t, store)

	require.NoError(t, store.Save(sample()))
	require.NoError(t, store.Close())

	reopened, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	loaded, err := reopened.Load(sample().StreamID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(1699999999000), loaded.Watermark)
}
