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

package tsstream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/tsstream/storage"
	"github.com/rulego/tsstream/types"
)

const createSQL = `CREATE STREAM s1 FILL_HISTORY 1 INTO sta SUBTABLE(concat('new-', tname))
	AS SELECT _wstart, count(*), avg(i) FROM st PARTITION BY tbname tname INTERVAL(1m)`

var st = types.TableRef{DB: "d1", Name: "st"}

func newSource(t *testing.T) *storage.Store {
	t.Helper()
	store := storage.New()
	require.NoError(t, store.CreateSuperTable(st, storage.Schema{Columns: []string{"i"}}))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func insertRows(t *testing.T, store *storage.Store, tables []string, from int64, n int) {
	t.Helper()
	var rows []types.Row
	for k := 0; k < n; k++ {
		for _, table := range tables {
			rows = append(rows, types.Row{Table: table, Ts: from + int64(k)*10_000, Cols: map[string]interface{}{"i": k}})
		}
	}
	require.NoError(t, store.Insert(context.Background(), st, rows))
}

func countAll(t *testing.T, store *storage.Store) int64 {
	t.Helper()
	rows, err := store.Results(types.TableRef{DB: "d1", Name: "sta"}, "")
	require.NoError(t, err)
	var n int64
	for _, r := range rows {
		n += r.Values["count(*)"].(int64)
	}
	return n
}

func waitLive(t *testing.T, e *Engine, name string) {
	t.Helper()
	s, ok := e.Stream(name)
	require.True(t, ok)
	select {
	case <-s.Live():
	case <-time.After(5 * time.Second):
		t.Fatalf("stream %s is %s: %v", name, s.Status(), s.Err())
	}
}

func flush(t *testing.T, e *Engine, name string) {
	t.Helper()
	s, ok := e.Stream(name)
	require.True(t, ok)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
}

func TestExecuteLifecycle(t *testing.T) {
	store := newSource(t)
	insertRows(t, store, []string{"t1", "t2", "t3"}, 0, 30)
	e, err := Open(WithStorage(store), WithLowLatency(), WithDiscardLog())
	require.NoError(t, err)
	defer e.Close()

	res, err := e.Execute(createSQL)
	require.NoError(t, err)
	require.NotNil(t, res.Stream)
	assert.Equal(t, "s1", res.Stream.Name)
	assert.NotEmpty(t, res.Stream.ID)
	assert.Zero(t, e.PendingTransactions())
	require.NoError(t, e.WaitTransactions(context.Background()))

	waitLive(t, e, "s1")
	flush(t, e, "s1")
	subs, err := store.Subtables(types.TableRef{DB: "d1", Name: "sta"})
	require.NoError(t, err)
	require.Len(t, subs, 3)
	for _, sub := range subs {
		assert.True(t, strings.HasPrefix(sub.Name, "new-t"), sub.Name)
		assert.Contains(t, sub.Name, "_1.d1.sta_")
	}
	assert.Equal(t, int64(90), countAll(t, store))

	res, err = e.Execute("SHOW STREAMS")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "s1", res.Rows[0][0])
	assert.Equal(t, "live", res.Rows[0][1])

	res, err = e.Execute("SHOW TRANSACTIONS")
	require.NoError(t, err)
	assert.Empty(t, res.Rows)

	_, err = e.Execute(createSQL)
	assert.True(t, errors.Is(err, types.ErrDuplicateStreamName))
	_, err = e.Execute(strings.Replace(createSQL, "CREATE STREAM", "CREATE STREAM IF NOT EXISTS", 1))
	assert.NoError(t, err)

	_, err = e.Execute("DROP STREAM s1")
	require.NoError(t, err)
	_, err = e.Execute("DROP STREAM s1")
	assert.True(t, errors.Is(err, types.ErrStreamNotFound))
	_, err = e.Execute("DROP STREAM IF EXISTS s1")
	assert.NoError(t, err)
	assert.Empty(t, e.ListStreams())
}

func TestExecuteRejectsInvalidStatements(t *testing.T) {
	e, err := Open(WithStorage(newSource(t)), WithDiscardLog())
	require.NoError(t, err)
	defer e.Close()

	for _, sql := range []string{
		"CREATE STREAM s1 INTO sta AS SELECT count(*) FROM st INTERVAL(0s)",
		"CREATE STREAM s1 INTO sta AS SELECT _wstart FROM st INTERVAL(1m)",
		"CREATE STREAM s1 INTO sta AS SELECT median(i) FROM st INTERVAL(1m)",
		"CREATE STREAM s1 INTO sta AS SELECT count(*) FROM st INTERVAL(1m) SLIDING(2m)",
		"CREATE STREAM s1 INTO sta SUBTABLE(upper(tbname)) AS SELECT count(*) FROM st PARTITION BY tbname INTERVAL(1m)",
		"SELECT * FROM st",
	} {
		_, err := e.Execute(sql)
		assert.True(t, errors.Is(err, types.ErrInvalidSpecification), sql)
	}
	assert.Empty(t, e.ListStreams())
	assert.Zero(t, e.PendingTransactions())
}

func TestCreateFailsWithoutSource(t *testing.T) {
	e, err := Open(WithDiscardLog())
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Execute(createSQL)
	assert.True(t, errors.Is(err, types.ErrCutoverUnavailable))
	assert.Empty(t, e.ListStreams())

	// creating the source makes the same statement succeed
	require.NoError(t, e.Storage().CreateSuperTable(st, storage.Schema{Columns: []string{"i"}}))
	_, err = e.Execute(createSQL)
	assert.NoError(t, err)
}

func TestReopenRestoresStreams(t *testing.T) {
	store := newSource(t)
	dir := t.TempDir()
	insertRows(t, store, []string{"t1", "t2"}, 0, 12)

	e, err := Open(WithStorage(store), WithDataDir(dir), WithLowLatency(), WithDiscardLog())
	require.NoError(t, err)
	_, err = e.Execute(createSQL)
	require.NoError(t, err)
	waitLive(t, e, "s1")
	require.NoError(t, e.Close())

	insertRows(t, store, []string{"t1", "t2"}, 120_000, 6)
	e, err = Open(WithStorage(store), WithDataDir(dir), WithLowLatency(), WithDiscardLog())
	require.NoError(t, err)
	defer e.Close()
	infos := e.ListStreams()
	require.Len(t, infos, 1)
	assert.Equal(t, "s1", infos[0].Definition.Name)

	waitLive(t, e, "s1")
	flush(t, e, "s1")
	assert.Equal(t, int64(36), countAll(t, store))
}

func TestResumeAfterScanFailure(t *testing.T) {
	store := newSource(t)
	insertRows(t, store, []string{"t1"}, 0, 10)
	store.SetFaults(storage.Faults{Scan: func(types.TableRef) error { return errors.New("io error") }})

	cfg := types.LowLatencyConfig()
	cfg.BackfillConfig.Retry = types.RetryConfig{MinBackoff: time.Millisecond, MaxBackoff: time.Millisecond, MaxRetries: 1}
	e, err := Open(WithStorage(store), WithConfig(cfg), WithDiscardLog())
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Execute(createSQL)
	require.NoError(t, err)
	s, _ := e.Stream("s1")
	assert.Eventually(t, func() bool { return s.Status() == types.StatusFailed }, 5*time.Second, time.Millisecond)
	assert.True(t, errors.Is(s.Err(), types.ErrBackfillScanFailure))
	assert.Error(t, e.Resume("nope"))

	store.SetFaults(storage.Faults{})
	require.NoError(t, e.Resume("s1"))
	waitLive(t, e, "s1")
	flush(t, e, "s1")
	assert.Equal(t, int64(10), countAll(t, store))
	assert.Error(t, e.Resume("s1"))
}

func TestDefaultTriggerWritesOpenWindows(t *testing.T) {
	store := newSource(t)
	e, err := Open(WithStorage(store), WithDiscardLog())
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Execute(`CREATE STREAM s1 INTO sta SUBTABLE(concat('new-', tname))
		AS SELECT _wstart, count(*), avg(i) FROM st PARTITION BY tbname tname INTERVAL(1m)`)
	require.NoError(t, err)
	waitLive(t, e, "s1")

	now := time.Now().UnixMilli()
	var rows []types.Row
	for _, table := range []string{"t1", "t2", "t3"} {
		rows = append(rows,
			types.Row{Table: table, Ts: now, Cols: map[string]interface{}{"i": 1}},
			types.Row{Table: table, Ts: now + 1000, Cols: map[string]interface{}{"i": 2}})
	}
	require.NoError(t, store.Insert(context.Background(), st, rows))

	// no watermark ever passes the open window, at_once still writes it
	assert.Eventually(t, func() bool {
		subs, err := store.Subtables(types.TableRef{DB: "d1", Name: "sta"})
		if err != nil || len(subs) != 3 {
			return false
		}
		results, err := store.Results(types.TableRef{DB: "d1", Name: "sta"}, "")
		if err != nil {
			return false
		}
		var n int64
		for _, r := range results {
			n += r.Values["count(*)"].(int64)
		}
		return n == 6
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWindowsConvergeWithoutFlush(t *testing.T) {
	store := newSource(t)
	const base = int64(1_700_000_000_000)
	insert := func(from, n int) {
		rows := make([]types.Row, 0, 2*n)
		for k := from; k < from+n; k++ {
			for _, table := range []string{"t1", "t2"} {
				rows = append(rows, types.Row{Table: table, Ts: base + int64(k), Cols: map[string]interface{}{"i": k}})
			}
		}
		require.NoError(t, store.Insert(context.Background(), st, rows))
	}
	insert(0, 1000)

	e, err := Open(WithStorage(store), WithLowLatency(), WithDiscardLog())
	require.NoError(t, err)
	defer e.Close()
	_, err = e.Execute("CREATE STREAM s3 FILL_HISTORY 1 INTO sta3 AS SELECT _wstart, count(*) cnt FROM st INTERVAL(10a)")
	require.NoError(t, err)
	insert(1000, 1000)

	dest := types.TableRef{DB: "d1", Name: "sta3"}
	converged := func() bool {
		rows, err := store.Results(dest, "")
		if err != nil || len(rows) != 200 {
			return false
		}
		for _, r := range rows {
			if r.Values["cnt"] != int64(20) {
				return false
			}
		}
		return true
	}
	assert.Eventually(t, converged, 10*time.Second, 10*time.Millisecond)

	before, err := store.Results(dest, "")
	require.NoError(t, err)
	require.Len(t, before, 200)
	for i := 1; i < len(before); i++ {
		assert.Equal(t, int64(10), before[i].Values["_wstart"].(int64)-before[i-1].Values["_wstart"].(int64))
	}

	time.Sleep(100 * time.Millisecond)
	after, err := store.Results(dest, "")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
