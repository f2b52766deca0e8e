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
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rulego/tsstream/aggregator"
	"github.com/rulego/tsstream/types"
	"github.com/rulego/tsstream/window"
)

type msgKind int

const (
	msgRow msgKind = iota
	// msgTick carries a new watermark and optionally asks for dirty open windows
	msgTick
	// msgBarrier asks for a snapshot of the arena
	msgBarrier
	// msgFlush force-closes every open window
	msgFlush
)

type message struct {
	kind      msgKind
	row       types.Row
	wm        int64
	emitDirty bool
	reply     chan<- partitionReply
}

type partitionReply struct {
	key   string
	state []byte
	err   error
}

// partitionWorker exclusively owns the arena of one partition key. Its mailbox is unbounded
// so routing never waits on a slow partition.
type partitionWorker struct {
	stream *Stream
	arena  *aggregator.Arena
	wm     int64

	mu      sync.Mutex
	mailbox []message
	notify  chan struct{}
}

func (w *partitionWorker) send(m message) {
	w.mu.Lock()
	w.mailbox = append(w.mailbox, m)
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *partitionWorker) run(ctx context.Context) {
	defer w.stream.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.notify:
		}
		w.mu.Lock()
		batch := w.mailbox
		w.mailbox = nil
		w.mu.Unlock()
		w.process(batch)
	}
}

func (w *partitionWorker) process(batch []message) {
	s := w.stream
	var out []types.AggregateRow
	for i := range batch {
		m := &batch[i]
		if (m.kind == msgRow || m.kind == msgTick) && m.wm > w.wm {
			w.wm = m.wm
		}
		switch m.kind {
		case msgRow:
			res := w.arena.Apply(&m.row, w.wm)
			if res.Late > 0 {
				s.stats.addLate(res.Late)
			}
			if res.Reopened > 0 {
				s.log.Debug("partition %q: row at %d reopened %d window(s)", w.arena.Key(), m.row.Ts, res.Reopened)
			}
			out = append(out, w.arena.Advance(w.wm)...)
		case msgTick:
			out = append(out, w.arena.Advance(w.wm)...)
			if m.emitDirty {
				out = append(out, w.arena.EmitDirty()...)
			}
		case msgBarrier:
			w.emit(out)
			out = nil
			state, err := w.arena.Snapshot()
			m.reply <- partitionReply{key: w.arena.Key(), state: state, err: err}
		case msgFlush:
			out = append(out, w.arena.Advance(w.wm)...)
			out = append(out, w.arena.CloseAll()...)
			w.emit(out)
			out = nil
			m.reply <- partitionReply{key: w.arena.Key()}
		}
	}
	if s.def.Trigger.Effective() == types.TriggerAtOnce {
		out = append(out, w.arena.EmitDirty()...)
	}
	w.emit(out)
}

func (w *partitionWorker) emit(rows []types.AggregateRow) {
	if len(rows) == 0 {
		return
	}
	w.stream.stats.addWindows(len(rows))
	w.stream.writer.enqueue(rows)
}

// worker returns the worker of key, starting it on first use.
func (s *Stream) worker(key string, value interface{}) *partitionWorker {
	s.workersMu.RLock()
	w, ok := s.workers[key]
	s.workersMu.RUnlock()
	if ok {
		return w
	}
	return s.installWorker(s.spec.NewArena(key, value), s.wm.Current())
}

func (s *Stream) installWorker(arena *aggregator.Arena, wm int64) *partitionWorker {
	s.workersMu.Lock()
	defer s.workersMu.Unlock()
	if w, ok := s.workers[arena.Key()]; ok {
		return w
	}
	w := &partitionWorker{
		stream: s,
		arena:  arena,
		wm:     wm,
		notify: make(chan struct{}, 1),
	}
	s.workers[arena.Key()] = w
	s.stats.incPartitions()
	s.wg.Add(1)
	go w.run(s.ctx)
	return w
}

func (s *Stream) snapshotWorkers() []*partitionWorker {
	s.workersMu.RLock()
	defer s.workersMu.RUnlock()
	out := make([]*partitionWorker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	return out
}

func (s *Stream) broadcast(m message) {
	for _, w := range s.snapshotWorkers() {
		w.send(m)
	}
}

// fanOut sends a request to every worker and waits for all replies. Replies are passed to
// collect, which may be nil.
func (s *Stream) fanOut(ctx context.Context, kind msgKind, collect func(partitionReply)) error {
	workers := s.snapshotWorkers()
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			reply := make(chan partitionReply, 1)
			w.send(message{kind: kind, reply: reply})
			select {
			case r := <-reply:
				if r.err != nil {
					return r.err
				}
				if collect != nil {
					mu.Lock()
					collect(r)
					mu.Unlock()
				}
				return nil
			case <-gctx.Done():
				return gctx.Err()
			case <-s.ctx.Done():
				return s.ctx.Err()
			}
		})
	}
	return g.Wait()
}

// route hands rows to their partition workers stamped with the watermark in force before
// the batch, then advances the watermark to the batch maximum.
func (s *Stream) route(rows []types.Row, phase string) {
	if len(rows) == 0 {
		return
	}
	wm := s.wm.Current()
	maxTs := int64(window.Undefined)
	for i := range rows {
		row := &rows[i]
		value, key, err := s.spec.PartitionOf(row)
		if err != nil {
			s.log.Warn("partition expression on %s at %d: %v", row.Table, row.Ts, err)
			value, key = nil, aggregator.PartitionKey(nil)
		}
		s.worker(key, value).send(message{kind: msgRow, row: *row, wm: wm})
		if row.Ts > maxTs {
			maxTs = row.Ts
		}
	}
	s.stats.addRows(phase, len(rows))
	s.broadcast(message{kind: msgTick, wm: s.wm.Observe(maxTs)})
}
