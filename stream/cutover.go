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
	"github.com/rulego/tsstream/types"
	"github.com/rulego/tsstream/window"
)

// cutoverPlan is what the backfill needs to know about the history range.
type cutoverPlan struct {
	backfill bool
	// cutover bounds the historical scan: rows with Seq below it are history.
	cutover types.Position
	// cursor resumes a scan after the last checkpointed row.
	cursor  *types.Cursor
	batches int
	// catchUp re-reads [catchUpFrom, catchUpTo) after the scan when a checkpoint was restored.
	catchUpFrom uint64
	catchUpTo   uint64
}

// establishCutover subscribes to the source and snapshots its commit position in one step,
// so every row is either below the cutover (history) or delivered by the subscription (live).
func (s *Stream) establishCutover(resume bool) (*cutoverPlan, *types.StreamError) {
	sub, pos, err := s.deps.Storage.SubscribeSnapshot(s.def.Source)
	if err != nil {
		return nil, types.WrapError(types.KindCutoverUnavailable, s.def.Name, err, "snapshot source %s", s.def.Source)
	}
	s.sub = sub

	if !s.def.FillHistory {
		s.cutover = types.Position{Seq: pos.Seq, Ts: s.def.CreatedAt}
		s.log.Info("live from ts %d", s.cutover.Ts)
		return &cutoverPlan{cutover: s.cutover}, nil
	}

	plan := &cutoverPlan{backfill: true, cutover: pos}
	if resume {
		if err := s.restore(plan, pos); err != nil {
			return nil, err
		}
	}
	s.cutover = plan.cutover
	return plan, nil
}

// restore loads the backfill checkpoint, if any, into plan and the partition workers.
func (s *Stream) restore(plan *cutoverPlan, pos types.Position) *types.StreamError {
	cp, err := s.deps.Checkpoints.Load(s.def.ID)
	if err != nil {
		return types.WrapError(types.KindCutoverUnavailable, s.def.Name, err, "load checkpoint")
	}
	if cp == nil {
		return nil
	}
	if cp.Cutover.Seq > pos.Seq {
		s.log.Warn("checkpoint cutover seq %d is ahead of source seq %d, starting over", cp.Cutover.Seq, pos.Seq)
		return nil
	}
	for key, data := range cp.Partitions {
		arena, err := s.spec.RestoreArena(data)
		if err != nil {
			return types.WrapError(types.KindCutoverUnavailable, s.def.Name, err, "restore partition %q", key)
		}
		s.installWorker(arena, cp.Watermark)
	}
	if cp.Watermark != window.Undefined {
		s.wm.Restore(cp.Watermark)
	}
	plan.cutover = cp.Cutover
	plan.batches = cp.Batches
	if cp.HasCursor {
		cursor := cp.Cursor
		plan.cursor = &cursor
	}
	plan.catchUpFrom, plan.catchUpTo = cp.Cutover.Seq, pos.Seq
	s.log.Info("resumed from checkpoint after %d batches, %d partitions, catch-up seq [%d, %d)",
		cp.Batches, len(cp.Partitions), plan.catchUpFrom, plan.catchUpTo)
	return nil
}
