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
	"sort"
	"sync"
	"time"

	"github.com/grafana/dskit/backoff"

	"github.com/rulego/tsstream/types"
)

// outbox holds the unwritten rows of one partition keyed by window start.
type outbox struct {
	key      string
	rows     map[int64]types.AggregateRow
	draining bool
}

// writer persists emitted windows into destination subtables. Outboxes are drained by tasks
// on the shared pool; at most one task drains a given outbox.
type writer struct {
	s       *Stream
	columns []string
	tagName string

	retryCtx    context.Context
	cancelRetry context.CancelFunc
	inflight    sync.WaitGroup

	mu       sync.Mutex
	outboxes map[string]*outbox
	known    map[string]struct{}
	failures int
	stopped  bool
}

func newWriter(s *Stream) *writer {
	ctx, cancel := context.WithCancel(context.Background())
	return &writer{
		s:           s,
		columns:     s.spec.Columns(),
		tagName:     s.def.PartitionTag(),
		retryCtx:    ctx,
		cancelRetry: cancel,
		outboxes:    make(map[string]*outbox),
		known:       make(map[string]struct{}),
	}
}

// enqueue adds rows to their outboxes. A newer revision of a window replaces the pending one.
func (w *writer) enqueue(rows []types.AggregateRow) {
	var start []*outbox
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	for _, row := range rows {
		ob, ok := w.outboxes[row.PartitionKey]
		if !ok {
			ob = &outbox{key: row.PartitionKey, rows: make(map[int64]types.AggregateRow)}
			w.outboxes[row.PartitionKey] = ob
		}
		if cur, ok := ob.rows[row.WindowStart]; !ok || row.Revision >= cur.Revision {
			ob.rows[row.WindowStart] = row
		}
		if !ob.draining {
			ob.draining = true
			start = append(start, ob)
		}
	}
	w.mu.Unlock()
	for _, ob := range start {
		w.submit(ob)
	}
}

func (w *writer) submit(ob *outbox) {
	w.inflight.Add(1)
	err := w.s.deps.Pool.Submit(func() {
		defer w.inflight.Done()
		w.drain(ob)
	})
	if err != nil {
		w.inflight.Done()
		w.mu.Lock()
		ob.draining = false
		w.mu.Unlock()
		w.s.fail(types.WrapError(types.KindDestinationWriteFailure, w.s.def.Name, err, "submit write task"))
	}
}

func (w *writer) drain(ob *outbox) {
	budget := w.s.deps.Config.WriterConfig.RetryBudget
	for {
		w.mu.Lock()
		if w.stopped || len(ob.rows) == 0 {
			ob.draining = false
			w.mu.Unlock()
			return
		}
		batch := make([]types.AggregateRow, 0, len(ob.rows))
		for _, row := range ob.rows {
			batch = append(batch, row)
		}
		ob.rows = make(map[int64]types.AggregateRow)
		w.mu.Unlock()

		sort.Slice(batch, func(i, j int) bool { return batch[i].WindowStart < batch[j].WindowStart })
		var failed []types.AggregateRow
		var lastErr error
		for _, row := range batch {
			if err := w.write(row); err != nil {
				failed = append(failed, row)
				lastErr = err
			}
		}

		w.mu.Lock()
		if len(failed) == 0 {
			w.failures = 0
			w.mu.Unlock()
			continue
		}
		for _, row := range failed {
			if _, ok := ob.rows[row.WindowStart]; !ok {
				ob.rows[row.WindowStart] = row
			}
		}
		w.failures++
		exhausted := budget > 0 && w.failures >= budget
		if exhausted || w.stopped {
			ob.draining = false
		}
		w.mu.Unlock()
		if exhausted {
			w.s.fail(types.WrapError(types.KindDestinationWriteFailure, w.s.def.Name, lastErr,
				"%d rows of partition %q not written after %d attempts", len(failed), ob.key, budget))
			return
		}
		if w.retryCtx.Err() != nil {
			w.mu.Lock()
			ob.draining = false
			w.mu.Unlock()
			return
		}
	}
}

// write creates the subtable of row on first use and upserts the row, retrying with backoff.
func (w *writer) write(row types.AggregateRow) error {
	name := w.s.namer.Name(row.PartitionKey)
	b := backoff.New(w.retryCtx, backoffConfig(w.s.deps.Config.WriterConfig.Retry))
	var lastErr error
	for b.Ongoing() {
		err := w.writeOnce(name, row)
		if err == nil {
			w.s.stats.incWrites()
			return nil
		}
		lastErr = err
		w.s.stats.incWriteErrors()
		w.s.log.Warn("write %s window %d (attempt %d): %v", name, row.WindowStart, b.NumRetries()+1, err)
		b.Wait()
	}
	if lastErr == nil {
		lastErr = b.Err()
	}
	return lastErr
}

func (w *writer) writeOnce(name string, row types.AggregateRow) error {
	st := w.s.deps.Storage
	dest := w.s.def.Destination
	if !w.isKnown(name) {
		var tags map[string]interface{}
		if w.tagName != "" {
			tags = map[string]interface{}{w.tagName: row.PartitionValue}
		}
		created, err := st.EnsureSubtable(context.Background(), dest, name, tags)
		if err != nil {
			return err
		}
		if created {
			w.s.log.Debug("created subtable %s for partition %q", name, row.PartitionKey)
		}
		w.mu.Lock()
		w.known[name] = struct{}{}
		w.mu.Unlock()
	}
	values := make(map[string]interface{}, len(w.columns))
	for i, col := range w.columns {
		if i < len(row.Values) {
			values[col] = row.Values[i]
		}
	}
	return st.Upsert(context.Background(), dest, name, row.WindowStart, values)
}

func (w *writer) isKnown(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.known[name]
	return ok
}

func (w *writer) idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return true
	}
	for _, ob := range w.outboxes {
		if ob.draining || len(ob.rows) > 0 {
			return false
		}
	}
	return true
}

// WaitIdle blocks until every enqueued row was written or the stream failed.
func (w *writer) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for !w.idle() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return w.s.Err()
}

// Pending returns the number of rows waiting to be written.
func (w *writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, ob := range w.outboxes {
		n += len(ob.rows)
	}
	return n
}

// abort stops retries and new drains without waiting.
func (w *writer) abort() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.cancelRetry()
}

// Stop aborts the writer, waits for in-flight tasks and discards what is left.
func (w *writer) Stop() {
	w.abort()
	w.inflight.Wait()
	w.mu.Lock()
	w.outboxes = make(map[string]*outbox)
	w.mu.Unlock()
}
