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
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"

	"github.com/rulego/tsstream/aggregator"
	"github.com/rulego/tsstream/checkpoint"
	"github.com/rulego/tsstream/logger"
	"github.com/rulego/tsstream/naming"
	"github.com/rulego/tsstream/storage"
	"github.com/rulego/tsstream/types"
	"github.com/rulego/tsstream/window"
)

// Storage is the part of the table store a stream reads from and writes to.
type Storage interface {
	SubscribeSnapshot(ref types.TableRef) (*storage.Subscription, types.Position, error)
	Scan(ctx context.Context, ref types.TableRef, opts storage.ScanOptions) ([]types.Row, error)
	EnsureSuperTable(ref types.TableRef, schema storage.Schema) error
	EnsureSubtable(ctx context.Context, ref types.TableRef, name string, tags map[string]interface{}) (bool, error)
	Upsert(ctx context.Context, ref types.TableRef, subtable string, ts int64, values map[string]interface{}) error
}

// Deps are the shared services a stream runs on. The pool is owned by the caller.
type Deps struct {
	Storage     Storage
	Checkpoints checkpoint.Store
	Pool        *ants.Pool
	Logger      logger.Logger
	Config      types.Config
}

// Stream is one running continuous query: cutover, backfill, live dispatch, partition
// workers and the result writer.
type Stream struct {
	def   *types.StreamDefinition
	spec  *aggregator.Spec
	namer *naming.Namer
	deps  Deps
	log   logger.Logger
	stats *StatsCollector

	status *atomic.Int32
	errMu  sync.RWMutex
	err    error

	wm      *window.Watermark
	cutover types.Position
	sub     *storage.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	workersMu sync.RWMutex
	workers   map[string]*partitionWorker

	writer *writer

	backfillDone chan []types.Row
	live         chan struct{}
	liveOnce     sync.Once
	started      *atomic.Bool
	stopOnce     sync.Once
}

// New compiles def into a stream that is not running yet.
func New(def *types.StreamDefinition, deps Deps) (*Stream, error) {
	if deps.Storage == nil {
		return nil, fmt.Errorf("stream %s: storage is required", def.Name)
	}
	if deps.Checkpoints == nil {
		deps.Checkpoints = checkpoint.NewMemoryStore()
	}
	if deps.Logger == nil {
		deps.Logger = logger.GetDefault()
	}
	spec, err := aggregator.Compile(def, deps.Config.WindowConfig)
	if err != nil {
		return nil, types.WrapError(types.KindInvalidSpecification, def.Name, err, "compile")
	}
	namer, err := naming.NewNamer(def, deps.Config.AccountID, deps.Config.WriterConfig.CacheSize)
	if err != nil {
		return nil, types.WrapError(types.KindInvalidSpecification, def.Name, err, "subtable expression")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		def:          def,
		spec:         spec,
		namer:        namer,
		deps:         deps,
		log:          logger.With(deps.Logger, "stream", def.Name),
		stats:        NewStatsCollector(def.Name),
		status:       atomic.NewInt32(int32(types.StatusCreating)),
		wm:           window.NewWatermark(def.Watermark, deps.Config.WindowConfig.IdleTimeout),
		ctx:          ctx,
		cancel:       cancel,
		workers:      make(map[string]*partitionWorker),
		backfillDone: make(chan []types.Row, 1),
		live:         make(chan struct{}),
		started:      atomic.NewBool(false),
	}
	s.writer = newWriter(s)
	return s, nil
}

// Start installs the subscription and launches the stream goroutines. With resume set a
// saved backfill checkpoint is restored when one exists. Start returns once routing is
// installed; the backfill continues in the background.
func (s *Stream) Start(resume bool) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("stream %s already started", s.def.Name)
	}
	var tags []string
	if tag := s.def.PartitionTag(); tag != "" {
		tags = []string{tag}
	}
	schema := storage.Schema{Columns: s.spec.Columns(), Tags: tags}
	if err := s.deps.Storage.EnsureSuperTable(s.def.Destination, schema); err != nil {
		e := types.WrapError(types.KindDestinationWriteFailure, s.def.Name, err, "destination %s", s.def.Destination)
		s.fail(e)
		return e
	}

	plan, err := s.establishCutover(resume)
	if err != nil {
		s.fail(err)
		return err
	}

	if plan.backfill {
		s.setStatus(types.StatusBackfilling)
		s.log.Info("backfilling history below seq %d (cutover ts %d)", plan.cutover.Seq, plan.cutover.Ts)
		s.wg.Add(1)
		go s.backfill(plan)
	} else {
		s.markLive()
	}
	s.wg.Add(1)
	go s.dispatch(plan.backfill)
	if s.needsTicker() {
		s.wg.Add(1)
		go s.tick()
	}
	return nil
}

// Definition returns the definition the stream runs.
func (s *Stream) Definition() *types.StreamDefinition {
	return s.def
}

func (s *Stream) Name() string {
	return s.def.Name
}

// Status returns the lifecycle state.
func (s *Stream) Status() types.StreamStatus {
	return types.StreamStatus(s.status.Load())
}

// Err returns the error that moved the stream to Failed, if any.
func (s *Stream) Err() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return s.err
}

// Live is closed once the stream finished backfilling and applies rows directly.
func (s *Stream) Live() <-chan struct{} {
	return s.live
}

// Cutover returns the boundary between history and live rows.
func (s *Stream) Cutover() types.Position {
	return s.cutover
}

// Watermark returns the current stream watermark.
func (s *Stream) Watermark() int64 {
	return s.wm.Current()
}

// Stats returns the stream counters.
func (s *Stream) Stats() Stats {
	return s.stats.Snapshot()
}

// AdvanceWatermark moves the watermark to ts and closes every window ending at or before it.
func (s *Stream) AdvanceWatermark(ts int64) {
	wm := s.wm.Inject(ts)
	s.broadcast(message{kind: msgTick, wm: wm})
}

// Flush force-closes every open window and waits until all results are written.
func (s *Stream) Flush(ctx context.Context) error {
	if err := s.fanOut(ctx, msgFlush, nil); err != nil {
		return err
	}
	return s.writer.WaitIdle(ctx)
}

// Drop stops the stream for good and releases its checkpoint and metrics.
func (s *Stream) Drop() {
	s.stopOnce.Do(func() {
		s.status.Store(int32(types.StatusDropped))
		s.teardown()
		if err := s.deps.Checkpoints.Delete(s.def.ID); err != nil {
			s.log.Warn("delete checkpoint: %v", err)
		}
		deleteMetrics(s.def.Name)
		s.log.Info("dropped")
	})
}

// Stop halts the stream but keeps its checkpoint so it can be resumed.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		s.teardown()
		s.log.Debug("stopped")
	})
}

func (s *Stream) teardown() {
	s.cancel()
	if s.sub != nil {
		s.sub.Close()
	}
	s.wg.Wait()
	s.writer.Stop()
	s.workersMu.Lock()
	s.workers = make(map[string]*partitionWorker)
	s.workersMu.Unlock()
}

func (s *Stream) setStatus(st types.StreamStatus) {
	for {
		cur := s.status.Load()
		if types.StreamStatus(cur).Terminal() {
			return
		}
		if s.status.CompareAndSwap(cur, int32(st)) {
			return
		}
	}
}

func (s *Stream) markLive() {
	s.setStatus(types.StatusLive)
	if s.Status() != types.StatusLive {
		return
	}
	s.liveOnce.Do(func() { close(s.live) })
}

// fail records err, moves the stream to Failed and stops its goroutines without waiting
// for them. It is safe to call from any stream goroutine.
func (s *Stream) fail(err *types.StreamError) {
	for {
		cur := s.status.Load()
		if types.StreamStatus(cur).Terminal() {
			return
		}
		if s.status.CompareAndSwap(cur, int32(types.StatusFailed)) {
			break
		}
	}
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
	s.log.Error("stream failed: %v", err)
	s.cancel()
	if s.sub != nil {
		s.sub.Close()
	}
	s.writer.abort()
}

func (s *Stream) needsTicker() bool {
	return s.deps.Config.WindowConfig.IdleTimeout > 0 || s.def.Trigger.Mode == types.TriggerMaxDelay
}
