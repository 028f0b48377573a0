package pipeline

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"framecast/internal/codec"
	"framecast/internal/metrics"
	"framecast/internal/overlay"
	"framecast/pkg/models"
)

// codecYieldDelay is how long feed and drain sleep when the encoder asks
// them to back off, yielding the encoder lock to the other side.
const codecYieldDelay = time.Millisecond

// convertStatsInterval is how many frames pass between logging the average
// conversion time.
const convertStatsInterval = 100

// PacketSink receives each encoder packet as it is drained.
type PacketSink interface {
	ConsumePacket(pkt models.EncoderPacket)
}

// ConvertStage pops raw frames, draws the diagnostic overlays onto them,
// converts them to the encoder's pixel format, and stages them for
// in-order release.
type ConvertStage struct {
	Queue    *FrameQueue
	Map      *FrameMap
	Codec    *codec.Manager
	Overlay  *overlay.Renderer
	Metrics  *metrics.Metrics
	Shutdown *atomic.Bool
}

// Run loops until shutdown.
func (s *ConvertStage) Run() {
	var frames uint64
	var elapsed time.Duration

	for !s.Shutdown.Load() {
		frame, err := s.Queue.Pop()
		if err != nil {
			continue
		}
		started := time.Now()

		s.Overlay.RenderString(frame, overlay.LeftBottom,
			fmt.Sprintf("index=%d", frame.Index))
		s.Overlay.RenderString(frame, overlay.LeftTop, timestamp())
		s.Overlay.RenderString(frame, overlay.Center, formatMatrix(frame.Camera))

		// The config read lock pins the encoder dimensions for the whole
		// conversion, so the frame we stage matches the codec it will
		// feed.
		handle := s.Codec.GetConfig()
		cfg := handle.Config()
		converted, err := codec.ConvertRGBToI420(frame, cfg.Width, cfg.Height)
		if err != nil {
			handle.Release()
			log.Printf("convert: frame %d: %v", frame.Index, err)
			s.Metrics.RecordFrameDropped("convert_error")
			continue
		}

		err = s.Map.Insert(converted.Index, converted)
		handle.Release()
		if err != nil {
			s.Metrics.RecordFrameDropped("map_full")
			continue
		}
		s.Metrics.FramesConverted.Inc()
		s.Metrics.ConvertDuration.Observe(time.Since(started).Seconds())

		frames++
		elapsed += time.Since(started)
		if frames%convertStatsInterval == 0 {
			log.Printf("convert: frame processing average over %d frames: %v",
				convertStatsInterval, elapsed/convertStatsInterval)
			elapsed = 0
		}
	}
	log.Println("convert: exiting")
}

// FeedStage releases converted frames in strictly ascending index order
// and hands them to the encoder. It never waits for a late frame beyond
// the map timeout: the index advances every iteration, and the encoder's
// periodic keyframes resynchronise decoders across the gap.
type FeedStage struct {
	Map      *FrameMap
	Codec    *codec.Manager
	Metrics  *metrics.Metrics
	Shutdown *atomic.Bool
}

// Run loops until shutdown.
func (s *FeedStage) Run() {
	var expected uint64
	for !s.Shutdown.Load() {
		frame, err := s.Map.TakeInOrder(expected)
		expected++
		if err != nil {
			if errors.Is(err, ErrMapTimeout) {
				log.Printf("feed: timeout waiting for frame %d, skipping", expected-1)
				s.Metrics.RecordFrameDropped("timeout")
			}
			continue
		}
		if !s.feed(frame) {
			break
		}
	}
	log.Println("feed: exiting")
}

// feed pushes one frame into the encoder, backing off while the encoder
// wants draining first. It reports false when the pipeline must stop.
func (s *FeedStage) feed(frame *models.ConvertedFrame) bool {
	for !s.Shutdown.Load() {
		// Skip frames converted for a superseded resolution; the convert
		// stage is already producing matching ones.
		handle := s.Codec.GetConfig()
		cfg := handle.Config()
		if frame.Width != cfg.Width || frame.Height != cfg.Height {
			handle.Release()
			s.Metrics.RecordFrameDropped("stale_resolution")
			return true
		}

		result, err := s.Codec.Feed(frame)
		handle.Release()
		switch result {
		case codec.FeedAccepted:
			s.Metrics.FramesEncoded.Inc()
			return true
		case codec.FeedNeedsDrain:
			time.Sleep(codecYieldDelay)
		case codec.FeedFlushed:
			log.Println("feed: encoder is flushed, no more frames accepted")
			s.Shutdown.Store(true)
			return false
		default:
			log.Printf("feed: encoder failed: %v", err)
			s.Shutdown.Store(true)
			return false
		}
	}
	return false
}

// DrainStage pulls compressed packets out of the encoder and hands them to
// the packet sink, in production order.
type DrainStage struct {
	Codec    *codec.Manager
	Sink     PacketSink
	Shutdown *atomic.Bool
}

// Run loops until shutdown.
func (s *DrainStage) Run() {
	for !s.Shutdown.Load() {
		pkt, result, err := s.Codec.Drain()
		switch result {
		case codec.DrainPacket:
			s.Sink.ConsumePacket(pkt)
		case codec.DrainWouldBlock:
			time.Sleep(codecYieldDelay)
		case codec.DrainEndOfStream:
			log.Println("drain: encoder end of stream")
			s.Shutdown.Store(true)
		default:
			log.Printf("drain: encoder failed: %v", err)
			s.Shutdown.Store(true)
		}
	}
	log.Println("drain: exiting")
}

// timestamp renders the local wall clock as HH:MM:SS.mmm for the top-left
// overlay.
func timestamp() string {
	now := time.Now()
	return fmt.Sprintf("%s.%03d", now.Format("15:04:05"), now.Nanosecond()/1e6)
}

// formatMatrix renders the camera's view matrix as the 4x4 homogeneous
// matrix shown in the centre overlay, one row per line.
func formatMatrix(cam models.Camera) string {
	var b strings.Builder
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			fmt.Fprintf(&b, "%+08.5f ", cam.Matrix[row*4+col])
		}
		b.WriteByte('\n')
	}
	b.WriteString("+0.00000 +0.00000 +0.00000 +1.00000 ")
	return b.String()
}
