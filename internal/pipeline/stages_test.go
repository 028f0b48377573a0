package pipeline

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"framecast/internal/codec"
	"framecast/internal/metrics"
	"framecast/pkg/models"
)

// One shared instance: metrics register once in the default prometheus
// registry and a second New would panic.
var testMetrics = metrics.New()

// recordingEncoder accepts frames and echoes one packet per fed frame.
type recordingEncoder struct {
	mu      sync.Mutex
	fed     []uint64
	packets []models.EncoderPacket
}

func (r *recordingEncoder) Feed(frame *models.ConvertedFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fed = append(r.fed, frame.Index)
	r.packets = append(r.packets, models.EncoderPacket{
		Data:     []byte{byte(frame.Index), 0xEE},
		Keyframe: frame.Index == 0,
	})
	return nil
}

func (r *recordingEncoder) Drain() (models.EncoderPacket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.packets) == 0 {
		return models.EncoderPacket{}, codec.ErrAgain
	}
	pkt := r.packets[0]
	r.packets = r.packets[1:]
	return pkt, nil
}

func (r *recordingEncoder) Close() error { return nil }

func (r *recordingEncoder) fedIndices() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.fed...)
}

// collectSink gathers packets handed to the drain stage.
type collectSink struct {
	mu      sync.Mutex
	packets []models.EncoderPacket
}

func (c *collectSink) ConsumePacket(pkt models.EncoderPacket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, pkt)
}

func (c *collectSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

func newStubCodec(t *testing.T) (*codec.Manager, *recordingEncoder) {
	t.Helper()
	enc := &recordingEncoder{}
	m, err := codec.NewManager(models.CodecConfig{
		Codec:  "libx264",
		PixFmt: models.PixelFormatYUV420P,
		Width:  64,
		Height: 48,
	}, func(models.CodecConfig) (codec.Encoder, error) { return enc, nil })
	if err != nil {
		t.Fatalf("codec.NewManager failed: %v", err)
	}
	return m, enc
}

func stagedFrame(index uint64) *models.ConvertedFrame {
	return &models.ConvertedFrame{Index: index, Width: 64, Height: 48}
}

func TestFeedStageFeedsInOrderAndSkipsGaps(t *testing.T) {
	codecMgr, enc := newStubCodec(t)
	defer codecMgr.Close()

	m := NewFrameMap(10, 100*time.Millisecond, 0)
	var shutdown atomic.Bool

	stage := &FeedStage{Map: m, Codec: codecMgr, Metrics: testMetrics, Shutdown: &shutdown}
	done := make(chan struct{})
	go func() {
		stage.Run()
		close(done)
	}()

	// Frames 0, 1 and 3: the feeder must time out on 2 and move on.
	m.Insert(0, stagedFrame(0))
	m.Insert(1, stagedFrame(1))
	m.Insert(3, stagedFrame(3))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(enc.fedIndices()) == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	shutdown.Store(true)
	<-done

	fed := enc.fedIndices()
	if len(fed) != 3 {
		t.Fatalf("encoder saw %d frames, want 3 (fed=%v)", len(fed), fed)
	}
	for i, want := range []uint64{0, 1, 3} {
		if fed[i] != want {
			t.Errorf("feed order %v, want [0 1 3]", fed)
			break
		}
	}
}

func TestFeedStageDropsStaleResolution(t *testing.T) {
	codecMgr, enc := newStubCodec(t)
	defer codecMgr.Close()

	m := NewFrameMap(10, 100*time.Millisecond, 0)
	var shutdown atomic.Bool

	stage := &FeedStage{Map: m, Codec: codecMgr, Metrics: testMetrics, Shutdown: &shutdown}
	done := make(chan struct{})
	go func() {
		stage.Run()
		close(done)
	}()

	// Frame 0 was converted for a resolution the codec no longer runs at.
	stale := &models.ConvertedFrame{Index: 0, Width: 32, Height: 32}
	m.Insert(0, stale)
	m.Insert(1, stagedFrame(1))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(enc.fedIndices()) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	shutdown.Store(true)
	<-done

	fed := enc.fedIndices()
	if len(fed) != 1 || fed[0] != 1 {
		t.Errorf("encoder saw %v, want only frame 1", fed)
	}
}

func TestDrainStageDeliversPackets(t *testing.T) {
	codecMgr, enc := newStubCodec(t)
	defer codecMgr.Close()

	sink := &collectSink{}
	var shutdown atomic.Bool

	enc.mu.Lock()
	enc.packets = []models.EncoderPacket{
		{Data: []byte{0, 1}, Keyframe: true},
		{Data: []byte{1, 2}},
	}
	enc.mu.Unlock()

	stage := &DrainStage{Codec: codecMgr, Sink: sink, Shutdown: &shutdown}
	done := make(chan struct{})
	go func() {
		stage.Run()
		close(done)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sink.count() == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	shutdown.Store(true)
	<-done

	if sink.count() != 2 {
		t.Fatalf("sink received %d packets, want 2", sink.count())
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if !sink.packets[0].Keyframe || sink.packets[1].Keyframe {
		t.Error("keyframe flags lost in drain")
	}
}
