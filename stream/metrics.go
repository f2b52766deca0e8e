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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

const (
	LabelStream = "stream"
	LabelPhase  = "phase"

	PhaseHistory = "history"
	PhaseLive    = "live"
)

// rowsIngested counts source rows handed to partition workers
var rowsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tsstream",
	Subsystem: "stream",
	Name:      "rows_total",
	Help:      "Total number of source rows routed to partitions",
}, []string{LabelStream, LabelPhase})

var lateRows = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tsstream",
	Subsystem: "stream",
	Name:      "late_rows_total",
	Help:      "Total number of rows dropped because their window was closed",
}, []string{LabelStream})

var preCutoverRows = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tsstream",
	Subsystem: "stream",
	Name:      "pre_cutover_rows_total",
	Help:      "Total number of live rows older than the cutover of a stream without history",
}, []string{LabelStream})

var windowsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tsstream",
	Subsystem: "stream",
	Name:      "windows_emitted_total",
	Help:      "Total number of window results emitted",
}, []string{LabelStream})

var destinationWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tsstream",
	Subsystem: "writer",
	Name:      "writes_total",
	Help:      "Total number of destination rows written",
}, []string{LabelStream})

var destinationWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tsstream",
	Subsystem: "writer",
	Name:      "write_errors_total",
	Help:      "Total number of failed destination write attempts",
}, []string{LabelStream})

var backfillDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "tsstream",
	Subsystem: "backfill",
	Name:      "duration_seconds",
	Help:      "Wall time the history backfill took",
}, []string{LabelStream})

// activePartitions is used to indicate the number of partition workers
var activePartitions = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "tsstream",
	Subsystem: "stream",
	Name:      "active_partitions",
	Help:      "Number of partition workers of a stream",
}, []string{LabelStream})

func deleteMetrics(stream string) {
	for _, phase := range []string{PhaseHistory, PhaseLive} {
		rowsIngested.DeleteLabelValues(stream, phase)
	}
	lateRows.DeleteLabelValues(stream)
	preCutoverRows.DeleteLabelValues(stream)
	windowsEmitted.DeleteLabelValues(stream)
	destinationWrites.DeleteLabelValues(stream)
	destinationWriteErrors.DeleteLabelValues(stream)
	backfillDuration.DeleteLabelValues(stream)
	activePartitions.DeleteLabelValues(stream)
}

// Stats is a point in time copy of a stream's counters.
type Stats struct {
	HistoricalRows int64 `json:"historicalRows"`
	LiveRows       int64 `json:"liveRows"`
	LateRows       int64 `json:"lateRows"`
	PreCutoverRows int64 `json:"preCutoverRows"`
	Windows        int64 `json:"windows"`
	Writes         int64 `json:"writes"`
	WriteErrors    int64 `json:"writeErrors"`
	Partitions     int64 `json:"partitions"`
	Batches        int64 `json:"batches"`
	Checkpoints    int64 `json:"checkpoints"`
}

// StatsCollector statistics information collector
// Mirrors every counter into the prometheus vectors of its stream
type StatsCollector struct {
	stream string

	historical  *atomic.Int64
	live        *atomic.Int64
	late        *atomic.Int64
	preCutover  *atomic.Int64
	windows     *atomic.Int64
	writes      *atomic.Int64
	writeErrors *atomic.Int64
	partitions  *atomic.Int64
	batches     *atomic.Int64
	checkpoints *atomic.Int64
}

// NewStatsCollector creates a new statistics collector
func NewStatsCollector(stream string) *StatsCollector {
	return &StatsCollector{
		stream:      stream,
		historical:  atomic.NewInt64(0),
		live:        atomic.NewInt64(0),
		late:        atomic.NewInt64(0),
		preCutover:  atomic.NewInt64(0),
		windows:     atomic.NewInt64(0),
		writes:      atomic.NewInt64(0),
		writeErrors: atomic.NewInt64(0),
		partitions:  atomic.NewInt64(0),
		batches:     atomic.NewInt64(0),
		checkpoints: atomic.NewInt64(0),
	}
}

func (sc *StatsCollector) addRows(phase string, n int) {
	if n == 0 {
		return
	}
	if phase == PhaseHistory {
		sc.historical.Add(int64(n))
	} else {
		sc.live.Add(int64(n))
	}
	rowsIngested.WithLabelValues(sc.stream, phase).Add(float64(n))
}

func (sc *StatsCollector) addLate(n int) {
	sc.late.Add(int64(n))
	lateRows.WithLabelValues(sc.stream).Add(float64(n))
}

func (sc *StatsCollector) addPreCutover(n int) {
	sc.preCutover.Add(int64(n))
	preCutoverRows.WithLabelValues(sc.stream).Add(float64(n))
}

func (sc *StatsCollector) addWindows(n int) {
	sc.windows.Add(int64(n))
	windowsEmitted.WithLabelValues(sc.stream).Add(float64(n))
}

func (sc *StatsCollector) incWrites() {
	sc.writes.Inc()
	destinationWrites.WithLabelValues(sc.stream).Inc()
}

func (sc *StatsCollector) incWriteErrors() {
	sc.writeErrors.Inc()
	destinationWriteErrors.WithLabelValues(sc.stream).Inc()
}

func (sc *StatsCollector) incPartitions() {
	sc.partitions.Inc()
	activePartitions.WithLabelValues(sc.stream).Inc()
}

// Snapshot returns the current counters.
func (sc *StatsCollector) Snapshot() Stats {
	return Stats{
		HistoricalRows: sc.historical.Load(),
		LiveRows:       sc.live.Load(),
		LateRows:       sc.late.Load(),
		PreCutoverRows: sc.preCutover.Load(),
		Windows:        sc.windows.Load(),
		Writes:         sc.writes.Load(),
		WriteErrors:    sc.writeErrors.Load(),
		Partitions:     sc.partitions.Load(),
		Batches:        sc.batches.Load(),
		Checkpoints:    sc.checkpoints.Load(),
	}
}
