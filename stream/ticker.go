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
	"time"

	"github.com/rulego/tsstream/types"
)

// tick drives processing-time work: the idle source watermark and the max_delay trigger.
func (s *Stream) tick() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.deps.Config.WindowConfig.TickInterval)
	defer ticker.Stop()
	maxDelay := s.def.Trigger.Mode == types.TriggerMaxDelay
	lastEmit := time.Now()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			emitDirty := maxDelay && now.Sub(lastEmit) >= s.def.Trigger.MaxDelay
			if emitDirty {
				lastEmit = now
			}
			wm, moved := s.wm.Current(), false
			// history drives the watermark while backfilling
			if s.Status() == types.StatusLive {
				wm, moved = s.wm.Idle()
			}
			if moved {
				s.log.Debug("source idle, watermark advanced to %d", wm)
			}
			if moved || emitDirty {
				s.broadcast(message{kind: msgTick, wm: wm, emitDirty: emitDirty})
			}
		}
	}
}
