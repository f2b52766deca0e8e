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

package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/tsstream/checkpoint"
	"github.com/rulego/tsstream/logger"
	"github.com/rulego/tsstream/storage"
	"github.com/rulego/tsstream/types"
)

var source = types.TableRef{DB: "d1", Name: "st"}

const interval = 10 * time.Second

type env struct {
	t     *testing.T
	store *storage.Store
	pool  *ants.Pool
	cps   *checkpoint.MemoryStore
	cfg   types.Config
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := storage.New()
	require.NoError(t, store.CreateSuperTable(source, storage.Schema{Columns: []string{"i"}, Tags: []string{"loc"}}))
	pool, err := ants.NewPool(16)
	require.NoError(t, err)
	cfg := types.LowLatencyConfig()
	cfg.BackfillConfig.BatchSize = 64
	cfg.BackfillConfig.Retry = types.RetryConfig{MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, MaxRetries: 2}
	cfg.WriterConfig.Retry = types.RetryConfig{MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, MaxRetries: 2}
	e := &env{t: t, store: store, pool: pool, cps: checkpoint.NewMemoryStore(), cfg: cfg}
	t.Cleanup(func() {
		pool.Release()
		_ = store.Close()
	})
	return e
}

func (e *env) insert(table string, ts int64, i int) {
	e.t.Helper()
	rows := []types.Row{{Table: table, Tags: map[string]interface{}{"loc": "bj"}, Ts: ts, Cols: map[string]interface{}{"i": i}}}
	require.NoError(e.t, e.store.Insert(context.Background(), source, rows))
}

// insertRange inserts n rows one second apart per table.
func (e *env) insertRange(tables []string, from int64, n int) {
	e.t.Helper()
	for k := 0; k < n; k++ {
		for _, table := range tables {
			e.insert(table, from+int64(k)*1000, k)
		}
	}
}

func (e *env) def(name string, fill bool) *types.StreamDefinition {
	return &types.StreamDefinition{
		ID:          "id-" + name,
		Name:        name,
		Source:      source,
		Destination: types.TableRef{DB: "d1", Name: name + "_out"},
		Select: []types.SelectItem{
			types.WindowStart(""),
			types.Aggregate("count", "*", "cnt"),
			types.Aggregate("sum", "i", "total"),
		},
		Window:       types.WindowSpec{Interval: interval},
		Partition:    &types.PartitionSpec{Expr: "tbname", Alias: "tname"},
		SubtableExpr: "concat('new-', tname)",
		FillHistory:  fill,
		CreatedAt:    time.Now().UnixMilli(),
	}
}

func (e *env) start(def *types.StreamDefinition, resume bool) *Stream {
	e.t.Helper()
	s, err := New(def, Deps{Storage: e.store, Checkpoints: e.cps, Pool: e.pool, Logger: logger.NewDiscardLogger(), Config: e.cfg})
	require.NoError(e.t, err)
	require.NoError(e.t, s.Start(resume))
	e.t.Cleanup(s.Stop)
	return s
}

func waitLive(t *testing.T, s *Stream) {
	t.Helper()
	select {
	case <-s.Live():
	case <-time.After(5 * time.Second):
		t.Fatalf("stream %s not live, status %s, err %v", s.Name(), s.Status(), s.Err())
	}
}

func flush(t *testing.T, s *Stream) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
}

func totalCount(t *testing.T, store *storage.Store, dest types.TableRef) int64 {
	t.Helper()
	rows, err := store.Results(dest, "")
	require.NoError(t, err)
	var n int64
	for _, r := range rows {
		n += r.Values["cnt"].(int64)
	}
	return n
}

func TestPartitionFanOut(t *testing.T) {
	e := newEnv(t)
	e.insertRange([]string{"t1", "t2", "t3"}, 0, 30)
	def := e.def("s1", true)
	s := e.start(def, false)
	waitLive(t, s)
	flush(t, s)

	subs, err := e.store.Subtables(def.Destination)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	for i, sub := range subs {
		tname := fmt.Sprintf("t%d", i+1)
		assert.True(t, strings.HasPrefix(sub.Name, "new-"+tname+"_1.d1.s1_out_"), sub.Name)
		assert.Equal(t, tname, sub.Tags["tname"])
	}
	assert.Equal(t, int64(90), totalCount(t, e.store, def.Destination))
	assert.Equal(t, int64(3), s.Stats().Partitions)
}

func TestRowConservationAcrossCutover(t *testing.T) {
	e := newEnv(t)
	tables := []string{"t1", "t2"}
	e.insertRange(tables, 0, 100)
	def := e.def("s1", true)
	s := e.start(def, false)
	e.insertRange(tables, 100_000, 100)

	waitLive(t, s)
	assert.Eventually(t, func() bool { return s.Stats().LiveRows == 200 }, 5*time.Second, 5*time.Millisecond)
	flush(t, s)

	st := s.Stats()
	assert.Equal(t, int64(200), st.HistoricalRows)
	assert.Equal(t, int64(400), totalCount(t, e.store, def.Destination))
	assert.Equal(t, uint64(201), s.Cutover().Seq)
}

func TestWindowBoundaries(t *testing.T) {
	e := newEnv(t)
	e.insertRange([]string{"t1"}, 0, 95)
	def := e.def("s1", true)
	s := e.start(def, false)
	waitLive(t, s)
	flush(t, s)

	rows, err := e.store.Results(def.Destination, "")
	require.NoError(t, err)
	require.Len(t, rows, 10)
	for i, r := range rows {
		assert.Equal(t, int64(i)*interval.Milliseconds(), r.Values["_wstart"])
		assert.Equal(t, r.Ts, r.Values["_wstart"])
		if i > 0 {
			assert.Equal(t, interval.Milliseconds(), r.Ts-rows[i-1].Ts)
		}
	}
	assert.Equal(t, int64(5), rows[9].Values["cnt"])
}

func TestConvergenceUnderConcurrentLoad(t *testing.T) {
	e := newEnv(t)
	tables := []string{"t1", "t2", "t3", "t4"}
	e.insertRange(tables, 0, 50)

	const writers, perWriter = 4, 200
	var wg sync.WaitGroup
	startWriters := make(chan struct{})
	for w := 0; w < writers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-startWriters
			for k := 0; k < perWriter; k++ {
				rows := []types.Row{{Table: tables[w], Ts: 50_000 + int64(k)*100, Cols: map[string]interface{}{"i": k}}}
				assert.NoError(t, e.store.Insert(context.Background(), source, rows))
			}
		}()
	}
	close(startWriters)
	def := e.def("s1", true)
	s := e.start(def, false)
	wg.Wait()

	waitLive(t, s)
	expected := int64(len(tables)*50 + writers*perWriter)
	assert.Eventually(t, func() bool {
		st := s.Stats()
		return st.HistoricalRows+st.LiveRows == expected
	}, 5*time.Second, 5*time.Millisecond)
	flush(t, s)
	assert.Equal(t, expected, totalCount(t, e.store, def.Destination))

	before, err := e.store.Results(def.Destination, "")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	flush(t, s)
	after, err := e.store.Results(def.Destination, "")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Zero(t, s.Stats().LateRows)
}

func TestSubtableNamingIsStable(t *testing.T) {
	e := newEnv(t)
	e.insertRange([]string{"t1", "t2"}, 0, 20)
	def := e.def("s1", true)
	s := e.start(def, false)
	waitLive(t, s)
	flush(t, s)
	first, err := e.store.Subtables(def.Destination)
	require.NoError(t, err)

	e.insertRange([]string{"t1", "t2"}, 60_000, 20)
	assert.Eventually(t, func() bool { return s.Stats().LiveRows == 40 }, 5*time.Second, 5*time.Millisecond)
	flush(t, s)
	second, err := e.store.Subtables(def.Destination)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, second, 2)
	assert.Equal(t, s.namer.Name("t1"), s.namer.Name("t1"))
}

func TestDropDuringBackfill(t *testing.T) {
	e := newEnv(t)
	e.cfg.BackfillConfig.BatchSize = 10
	e.cfg.BackfillConfig.CheckpointEvery = 2
	e.insertRange([]string{"t1", "t2"}, 0, 300)
	e.store.SetFaults(storage.Faults{Scan: func(types.TableRef) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	}})

	dropped := e.start(e.def("s1", true), false)
	other := e.def("s2", true)
	kept := e.start(other, false)

	assert.Eventually(t, func() bool { return dropped.Stats().Batches >= 3 }, 5*time.Second, time.Millisecond)
	require.Equal(t, types.StatusBackfilling, dropped.Status())
	dropped.Drop()
	assert.Equal(t, types.StatusDropped, dropped.Status())
	cp, err := e.cps.Load("id-s1")
	require.NoError(t, err)
	assert.Nil(t, cp)

	waitLive(t, kept)
	flush(t, kept)
	assert.Equal(t, int64(600), totalCount(t, e.store, other.Destination))
	assert.NoError(t, kept.Err())
}

func TestBackfillScanFailure(t *testing.T) {
	e := newEnv(t)
	e.insertRange([]string{"t1"}, 0, 10)
	e.store.SetFaults(storage.Faults{Scan: func(types.TableRef) error { return errors.New("disk gone") }})
	s := e.start(e.def("s1", true), false)

	assert.Eventually(t, func() bool { return s.Status() == types.StatusFailed }, 5*time.Second, time.Millisecond)
	assert.True(t, errors.Is(s.Err(), types.ErrBackfillScanFailure))
}

func TestBackfillTimeoutAndResume(t *testing.T) {
	e := newEnv(t)
	e.cfg.BackfillConfig.BatchSize = 10
	e.cfg.BackfillConfig.CheckpointEvery = 1
	e.cfg.BackfillConfig.Timeout = 40 * time.Millisecond
	e.insertRange([]string{"t1", "t2"}, 0, 200)
	e.store.SetFaults(storage.Faults{Scan: func(types.TableRef) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}})

	def := e.def("s1", true)
	first := e.start(def, false)
	assert.Eventually(t, func() bool { return first.Status() == types.StatusFailed }, 5*time.Second, time.Millisecond)
	var serr *types.StreamError
	require.True(t, errors.As(first.Err(), &serr))
	assert.Equal(t, types.KindBackfillTimeout, serr.Kind)
	assert.True(t, serr.Recoverable())
	first.Stop()

	cp, err := e.cps.Load(def.ID)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.True(t, cp.HasCursor)

	// rows committed while the stream was down are picked up by the catch-up scan
	e.insertRange([]string{"t1", "t2"}, 200_000, 5)
	e.store.SetFaults(storage.Faults{})
	e.cfg.BackfillConfig.Timeout = 0
	resumed := e.start(def, true)
	waitLive(t, resumed)
	flush(t, resumed)
	assert.Equal(t, int64(410), totalCount(t, e.store, def.Destination))
	assert.Equal(t, cp.Cutover, resumed.Cutover())

	cp, err = e.cps.Load(def.ID)
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestLiveOnlyDropsPreCutoverRows(t *testing.T) {
	e := newEnv(t)
	e.insertRange([]string{"t1"}, 0, 5)
	def := e.def("s1", false)
	def.CreatedAt = 100_000
	s := e.start(def, false)
	waitLive(t, s)

	e.insert("t1", 50_000, 1)
	e.insert("t1", 100_000, 2)
	e.insert("t1", 101_000, 3)
	assert.Eventually(t, func() bool {
		st := s.Stats()
		return st.PreCutoverRows == 1 && st.LiveRows == 2
	}, 5*time.Second, time.Millisecond)
	flush(t, s)
	assert.Equal(t, int64(2), totalCount(t, e.store, def.Destination))
	assert.Zero(t, s.Stats().HistoricalRows)
}

func TestWatermarkClosesWindows(t *testing.T) {
	e := newEnv(t)
	def := e.def("s1", false)
	def.CreatedAt = 0
	def.Trigger = types.TriggerSpec{Mode: types.TriggerWindowClose}
	s := e.start(def, false)
	waitLive(t, s)

	e.insert("t1", 1_000, 1)
	e.insert("t1", 2_000, 2)
	e.insert("t1", 12_000, 3)
	// the window [0, 10s) closes once the watermark reaches 12s
	assert.Eventually(t, func() bool {
		rows, err := e.store.Results(def.Destination, "")
		return err == nil && len(rows) == 1 && rows[0].Values["cnt"] == int64(2)
	}, 5*time.Second, time.Millisecond)

	s.AdvanceWatermark(20_000)
	assert.Eventually(t, func() bool {
		rows, err := e.store.Results(def.Destination, "")
		return err == nil && len(rows) == 2
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, int64(20_000), s.Watermark())
}

func TestLatePolicies(t *testing.T) {
	tests := []struct {
		name   string
		policy types.LatePolicy
		late   int64
		count  int64
	}{
		{name: "update", policy: types.LatePolicyUpdate, late: 0, count: 3},
		{name: "drop", policy: types.LatePolicyDrop, late: 1, count: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			def := e.def("s1", false)
			def.CreatedAt = 0
			def.LatePolicy = tt.policy
			def.Trigger = types.TriggerSpec{Mode: types.TriggerWindowClose}
			s := e.start(def, false)
			waitLive(t, s)

			e.insert("t1", 1_000, 1)
			e.insert("t1", 2_000, 2)
			e.insert("t1", 15_000, 3)
			assert.Eventually(t, func() bool { return s.Stats().Windows >= 1 }, 5*time.Second, time.Millisecond)
			e.insert("t1", 3_000, 4)
			assert.Eventually(t, func() bool { return s.Stats().LiveRows == 4 }, 5*time.Second, time.Millisecond)
			flush(t, s)

			rows, err := e.store.Results(def.Destination, "")
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, tt.count, rows[0].Values["cnt"])
			assert.Equal(t, tt.late, s.Stats().LateRows)
		})
	}
}

func TestAtOnceTrigger(t *testing.T) {
	e := newEnv(t)
	def := e.def("s1", false)
	def.CreatedAt = 0
	def.Trigger = types.TriggerSpec{Mode: types.TriggerAtOnce}
	s := e.start(def, false)
	waitLive(t, s)

	e.insert("t1", 1_000, 5)
	assert.Eventually(t, func() bool {
		rows, err := e.store.Results(def.Destination, "")
		return err == nil && len(rows) == 1 && rows[0].Values["total"] == float64(5)
	}, 5*time.Second, time.Millisecond)
	e.insert("t1", 2_000, 6)
	assert.Eventually(t, func() bool {
		rows, err := e.store.Results(def.Destination, "")
		return err == nil && len(rows) == 1 && rows[0].Values["total"] == float64(11)
	}, 5*time.Second, time.Millisecond)
}

func TestDefaultTriggerEmitsOpenWindow(t *testing.T) {
	e := newEnv(t)
	e.insertRange([]string{"t1"}, 0, 25)
	def := e.def("s1", true)
	require.Empty(t, def.Trigger.Mode)
	s := e.start(def, false)
	waitLive(t, s)

	// the last window [20s, 30s) is still open, its rows are written anyway
	assert.Eventually(t, func() bool {
		rows, err := e.store.Results(def.Destination, "")
		if err != nil || len(rows) != 3 {
			return false
		}
		return rows[0].Values["cnt"] == int64(10) && rows[1].Values["cnt"] == int64(10) && rows[2].Values["cnt"] == int64(5)
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, types.StatusLive, s.Status())
}

func TestDestinationWriteFailure(t *testing.T) {
	e := newEnv(t)
	e.cfg.WriterConfig.RetryBudget = 2
	e.store.SetFaults(storage.Faults{Upsert: func(types.TableRef, string) error { return errors.New("read only") }})
	def := e.def("s1", false)
	def.CreatedAt = 0
	s := e.start(def, false)
	waitLive(t, s)

	e.insert("t1", 1_000, 1)
	e.insert("t1", 11_000, 1)
	assert.Eventually(t, func() bool { return s.Status() == types.StatusFailed }, 5*time.Second, time.Millisecond)
	assert.True(t, errors.Is(s.Err(), types.ErrDestinationWriteFailure))
	assert.Positive(t, s.Stats().WriteErrors)
}

func TestCutoverUnavailable(t *testing.T) {
	e := newEnv(t)
	def := e.def("s1", true)
	def.Source = types.TableRef{DB: "d1", Name: "missing"}
	s, err := New(def, Deps{Storage: e.store, Pool: e.pool, Config: e.cfg})
	require.NoError(t, err)
	err = s.Start(false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrCutoverUnavailable))
	assert.Equal(t, types.StatusFailed, s.Status())
	s.Stop()
}

func TestNewRejectsInvalidDefinition(t *testing.T) {
	e := newEnv(t)
	def := e.def("s1", true)
	def.SubtableExpr = "upper(tname)"
	_, err := New(def, Deps{Storage: e.store, Pool: e.pool, Config: e.cfg})
	assert.True(t, errors.Is(err, types.ErrInvalidSpecification))
}
