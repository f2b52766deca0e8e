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
	"time"

	"github.com/grafana/dskit/backoff"

	"github.com/rulego/tsstream/checkpoint"
	"github.com/rulego/tsstream/storage"
	"github.com/rulego/tsstream/types"
)

func backoffConfig(c types.RetryConfig) backoff.Config {
	cfg := backoff.Config{
		MinBackoff: c.MinBackoff,
		MaxBackoff: c.MaxBackoff,
		MaxRetries: c.MaxRetries,
	}
	// zero retries means forever to backoff
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return cfg
}

// backfill scans the history below the cutover in (ts, seq) order and routes it to the
// partition workers batch by batch.
func (s *Stream) backfill(plan *cutoverPlan) {
	defer s.wg.Done()
	cfg := s.deps.Config.BackfillConfig
	started := time.Now()

	ctx := s.ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, cfg.Timeout)
		defer cancel()
	}

	cursor, batches := plan.cursor, plan.batches
	for plan.cutover.Seq > 1 {
		if err := ctx.Err(); err != nil {
			s.abortBackfill(err)
			return
		}
		rows, err := s.scanWithRetry(ctx, storage.ScanOptions{After: cursor, MaxSeq: plan.cutover.Seq, Limit: cfg.BatchSize})
		if err != nil {
			s.abortBackfill(err)
			return
		}
		if len(rows) == 0 {
			break
		}
		s.route(rows, PhaseHistory)
		last := rows[len(rows)-1]
		cursor = &types.Cursor{Ts: last.Ts, Seq: last.Seq}
		batches++
		s.stats.batches.Inc()

		if cfg.CheckpointEvery > 0 && batches%cfg.CheckpointEvery == 0 {
			if err := s.saveCheckpoint(ctx, plan.cutover, *cursor, batches); err != nil {
				if ctx.Err() != nil {
					s.abortBackfill(ctx.Err())
					return
				}
				s.log.Warn("checkpoint after %d batches: %v", batches, err)
			}
		}
		if len(rows) < cfg.BatchSize {
			break
		}
	}

	var catchUp []types.Row
	if plan.catchUpTo > plan.catchUpFrom {
		rows, err := s.scanWithRetry(ctx, storage.ScanOptions{MinSeq: plan.catchUpFrom, MaxSeq: plan.catchUpTo})
		if err != nil {
			s.abortBackfill(err)
			return
		}
		catchUp = rows
	}

	elapsed := time.Since(started)
	backfillDuration.WithLabelValues(s.def.Name).Set(elapsed.Seconds())
	if err := s.deps.Checkpoints.Delete(s.def.ID); err != nil {
		s.log.Warn("delete checkpoint: %v", err)
	}
	s.log.Info("backfill done: %d batches, %d rows in %s", batches, s.stats.historical.Load(), elapsed)

	select {
	case s.backfillDone <- catchUp:
	case <-s.ctx.Done():
	}
}

func (s *Stream) scanWithRetry(ctx context.Context, opts storage.ScanOptions) ([]types.Row, error) {
	b := backoff.New(ctx, backoffConfig(s.deps.Config.BackfillConfig.Retry))
	var lastErr error
	for b.Ongoing() {
		rows, err := s.deps.Storage.Scan(ctx, s.def.Source, opts)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		s.log.Warn("scan %s (attempt %d): %v", s.def.Source, b.NumRetries()+1, err)
		b.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, lastErr
}

// abortBackfill maps a backfill error onto the stream state. Cancellation of the stream
// itself is a drop or shutdown and leaves the status alone.
func (s *Stream) abortBackfill(err error) {
	if s.ctx.Err() != nil {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		s.fail(types.WrapError(types.KindBackfillTimeout, s.def.Name, err,
			"backfill exceeded %s", s.deps.Config.BackfillConfig.Timeout))
		return
	}
	s.fail(types.WrapError(types.KindBackfillScanFailure, s.def.Name, err, "scan %s", s.def.Source))
}

// saveCheckpoint collects a snapshot from every partition after all rows up to cursor were
// applied, waits for the writer to persist emitted windows and stores the result.
func (s *Stream) saveCheckpoint(ctx context.Context, cutover types.Position, cursor types.Cursor, batches int) error {
	parts := make(map[string][]byte)
	err := s.fanOut(ctx, msgBarrier, func(r partitionReply) {
		parts[r.key] = r.state
	})
	if err != nil {
		return err
	}
	if err := s.writer.WaitIdle(ctx); err != nil {
		return err
	}
	cp := &checkpoint.Checkpoint{
		StreamID:   s.def.ID,
		Cutover:    cutover,
		Cursor:     cursor,
		HasCursor:  true,
		Watermark:  s.wm.Current(),
		Partitions: parts,
		Batches:    batches,
		SavedAt:    time.Now(),
	}
	if err := s.deps.Checkpoints.Save(cp); err != nil {
		return err
	}
	s.stats.checkpoints.Inc()
	s.log.Debug("checkpoint at (%d, %d) after %d batches", cursor.Ts, cursor.Seq, batches)
	return nil
}
