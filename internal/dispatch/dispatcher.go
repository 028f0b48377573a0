// Package dispatch drives the renderer fleet: one persistent TCP
// connection per configured endpoint, each running a request/response loop
// at the renderer's natural pace, supervised with reconnect on failure.
package dispatch

import (
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"framecast/internal/camera"
	"framecast/internal/metrics"
	"framecast/internal/pipeline"
	"framecast/internal/protocol"
)

const (
	// reconnectDelay is how long a supervisor sleeps between connect
	// attempts to a down renderer.
	reconnectDelay = time.Second
	// connectFailureLogInterval limits connect-failure logging to one
	// line per this many consecutive failures.
	connectFailureLogInterval = 30
	// receiveStatsInterval is how many frames pass between logging the
	// average frame receive time of a connection.
	receiveStatsInterval = 100
)

// Dispatcher multiplexes frame requests across the renderer fleet. Frame
// indices come from one shared atomic counter, so frames from different
// renderers interleave in the queue; the reorder map downstream restores
// order.
type Dispatcher struct {
	endpoints  []string
	queue      *pipeline.FrameQueue
	cameras    *camera.Manager
	frameIndex *atomic.Uint64
	metrics    *metrics.Metrics
	shutdown   *atomic.Bool
}

// New returns a dispatcher for the given renderer endpoints.
func New(endpoints []string, queue *pipeline.FrameQueue, cameras *camera.Manager,
	frameIndex *atomic.Uint64, m *metrics.Metrics, shutdown *atomic.Bool) *Dispatcher {
	return &Dispatcher{
		endpoints:  endpoints,
		queue:      queue,
		cameras:    cameras,
		frameIndex: frameIndex,
		metrics:    m,
		shutdown:   shutdown,
	}
}

// Run spawns one supervisor per endpoint and blocks until all of them have
// observed shutdown and returned.
func (d *Dispatcher) Run() {
	log.Printf("dispatcher: connecting to %d renderer(s)", len(d.endpoints))

	var wg sync.WaitGroup
	for _, endpoint := range d.endpoints {
		wg.Add(1)
		go func(endpoint string) {
			defer wg.Done()
			d.supervise(endpoint)
		}(endpoint)
	}
	wg.Wait()

	log.Println("dispatcher: closed all renderer connections")
}

// supervise keeps one endpoint connected until shutdown: connect, serve the
// connection until it dies, reconnect.
func (d *Dispatcher) supervise(endpoint string) {
	failures := 0
	for !d.shutdown.Load() {
		conn, err := net.DialTimeout("tcp", endpoint, reconnectDelay)
		if err != nil {
			failures++
			if failures%connectFailureLogInterval == 0 {
				log.Printf("dispatcher(%s): failed to connect %d times: %v; retrying",
					endpoint, failures, err)
			}
			time.Sleep(reconnectDelay)
			continue
		}

		failures = 0
		log.Printf("dispatcher(%s): connected", endpoint)
		d.metrics.RendererConnects.WithLabelValues(endpoint).Inc()

		// Close the socket when shutdown flips so a read blocked on a
		// hung renderer cannot stall the join.
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if d.shutdown.Load() {
						conn.Close()
						return
					}
				}
			}
		}()

		d.serve(endpoint, conn)
		close(done)
		conn.Close()
		d.metrics.RendererDisconnects.WithLabelValues(endpoint).Inc()

		if !d.shutdown.Load() {
			log.Printf("dispatcher(%s): connection is dead, reconnecting", endpoint)
		}
	}
	log.Printf("dispatcher(%s): exiting", endpoint)
}

// serve runs the request/response loop on one live connection. Any I/O or
// decode error returns so the supervisor can reconnect.
func (d *Dispatcher) serve(endpoint string, conn net.Conn) {
	var frames uint64
	var elapsed time.Duration

	for !d.shutdown.Load() {
		req := protocol.FrameRequest{
			Index:  d.frameIndex.Add(1) - 1,
			Camera: d.cameras.Get(),
		}
		req.IsLeft = req.Camera.IsLeft

		if err := protocol.WriteMessage(conn, protocol.MarshalFrameRequest(req)); err != nil {
			log.Printf("dispatcher(%s): send request %d: %v", endpoint, req.Index, err)
			d.metrics.RendererErrors.WithLabelValues(endpoint).Inc()
			return
		}

		started := time.Now()
		payload, err := protocol.ReadMessage(conn)
		if err != nil {
			log.Printf("dispatcher(%s): receive frame %d: %v", endpoint, req.Index, err)
			d.metrics.RendererErrors.WithLabelValues(endpoint).Inc()
			return
		}
		took := time.Since(started)

		frame, err := protocol.ParseRenderedFrame(payload)
		if err != nil {
			// The framing is still aligned; drop the exchange and keep
			// the connection.
			log.Printf("dispatcher(%s): decode frame %d: %v", endpoint, req.Index, err)
			d.metrics.RendererErrors.WithLabelValues(endpoint).Inc()
			continue
		}

		d.metrics.FramesReceived.Inc()
		d.metrics.FrameReceiveSeconds.WithLabelValues(endpoint).Observe(took.Seconds())
		frames++
		elapsed += took
		if frames%receiveStatsInterval == 0 {
			log.Printf("dispatcher(%s): frame receive average over %d frames: %v",
				endpoint, receiveStatsInterval, elapsed/receiveStatsInterval)
			elapsed = 0
		}

		// A full queue means the convert stage is behind; once the push
		// timeout runs out, drop the frame rather than stall the renderer
		// further. The feeder's take timeout already tolerates the gap.
		if err := d.queue.Push(frame); err != nil {
			log.Printf("dispatcher(%s): queue full, dropping frame %d", endpoint, frame.Index)
			d.metrics.RecordFrameDropped("queue_full")
		}
	}
}
