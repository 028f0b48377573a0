// Package stats logs periodic pipeline throughput and keeps the depth
// gauges current.
package stats

import (
	"log"
	"sync/atomic"
	"time"

	"framecast/internal/metrics"
	"framecast/internal/pipeline"
)

// logInterval is how often the average frame rate is logged.
const logInterval = 10 * time.Second

// Reporter refreshes the depth gauges once a second and, every logInterval,
// logs the average request rate derived from the global frame index.
type Reporter struct {
	FrameIndex *atomic.Uint64
	Queue      *pipeline.FrameQueue
	Map        *pipeline.FrameMap
	Metrics    *metrics.Metrics
	Shutdown   *atomic.Bool
}

// Run loops until shutdown.
func (r *Reporter) Run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	previous := r.FrameIndex.Load()
	var seconds, sweptBefore uint64
	for !r.Shutdown.Load() {
		<-ticker.C
		seconds++

		r.Metrics.QueueDepth.Set(float64(r.Queue.Len()))
		r.Metrics.ReorderDepth.Set(float64(r.Map.Len()))
		if swept := r.Map.Dropped(); swept > sweptBefore {
			r.Metrics.FramesDropped.WithLabelValues("straggler").Add(float64(swept - sweptBefore))
			sweptBefore = swept
		}

		if seconds == uint64(logInterval/time.Second) {
			current := r.FrameIndex.Load()
			log.Printf("stats: average frame rate of the last %v: %d fps",
				logInterval, (current-previous)/seconds)
			previous = current
			seconds = 0
		}
	}
	log.Println("stats: exiting")
}
