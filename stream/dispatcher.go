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
	"sort"

	"github.com/rulego/tsstream/types"
)

// dispatch is the single consumer of the live subscription. While the backfill runs, rows
// are queued in arrival order; once it completes the queue is drained in (ts, seq) order and
// later rows are routed as they arrive.
func (s *Stream) dispatch(backfilling bool) {
	defer s.wg.Done()
	var queue []types.Row
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.sub.Done():
			return
		case <-s.sub.Notify():
			rows := s.sub.Drain()
			if backfilling {
				queue = append(queue, rows...)
				continue
			}
			s.routeLive(rows)
		case catchUp := <-s.backfillDone:
			pending := append(catchUp, queue...)
			pending = append(pending, s.sub.Drain()...)
			queue = nil
			backfilling = false
			sort.SliceStable(pending, func(i, j int) bool { return pending[i].Less(&pending[j]) })
			s.log.Debug("draining %d queued live rows", len(pending))
			batch := s.deps.Config.BackfillConfig.BatchSize
			if batch <= 0 {
				batch = len(pending)
			}
			for len(pending) > 0 {
				n := batch
				if n > len(pending) {
					n = len(pending)
				}
				s.routeLive(pending[:n])
				pending = pending[n:]
			}
			s.markLive()
			s.log.Info("live")
		}
	}
}

// routeLive routes subscription rows, dropping rows before the cutover time of a stream
// without history.
func (s *Stream) routeLive(rows []types.Row) {
	if !s.def.FillHistory {
		kept := rows[:0]
		for _, r := range rows {
			if r.Ts < s.cutover.Ts {
				continue
			}
			kept = append(kept, r)
		}
		if dropped := len(rows) - len(kept); dropped > 0 {
			s.stats.addPreCutover(dropped)
		}
		rows = kept
	}
	s.route(rows, PhaseLive)
}
