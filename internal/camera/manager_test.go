package camera

import (
	"sync"
	"testing"

	"framecast/internal/codec"
	"framecast/pkg/models"
)

// nullEncoder satisfies codec.Encoder without doing anything.
type nullEncoder struct{}

func (nullEncoder) Feed(*models.ConvertedFrame) error { return nil }
func (nullEncoder) Drain() (models.EncoderPacket, error) {
	return models.EncoderPacket{}, codec.ErrAgain
}
func (nullEncoder) Close() error { return nil }

// countingOpen counts encoder constructions, i.e. initial open plus one per
// reconfiguration.
func countingOpen(opens *int) codec.OpenFunc {
	return func(models.CodecConfig) (codec.Encoder, error) {
		*opens++
		return nullEncoder{}, nil
	}
}

func newTestCodec(t *testing.T, opens *int) *codec.Manager {
	t.Helper()
	m, err := codec.NewManager(models.CodecConfig{
		Codec:  "libx264",
		PixFmt: models.PixelFormatYUV420P,
		Width:  1280,
		Height: 720,
	}, countingOpen(opens))
	if err != nil {
		t.Fatalf("codec.NewManager failed: %v", err)
	}
	return m
}

func TestManagerInitialState(t *testing.T) {
	m := NewManager(1280, 720)
	cam := m.Get()
	if cam.Width != 1280 || cam.Height != 720 {
		t.Errorf("initial camera is %dx%d, want 1280x720", cam.Width, cam.Height)
	}
	if cam.Matrix != models.InitialCameraMatrix {
		t.Errorf("initial matrix = %v", cam.Matrix)
	}
}

func TestManagerSetReplacesState(t *testing.T) {
	m := NewManager(1280, 720)

	cam := models.NewCamera(1280, 720)
	cam.Matrix[0] = 0.25
	if err := m.Set(cam); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := m.Get(); got.Matrix[0] != 0.25 {
		t.Errorf("Get returned matrix[0]=%v after Set", got.Matrix[0])
	}
}

func TestManagerRoundsOddDimensionsDown(t *testing.T) {
	opens := 0
	codecMgr := newTestCodec(t, &opens)
	m := NewManager(1280, 720, codecMgr)

	cam := models.Camera{Matrix: models.InitialCameraMatrix, Width: 1921, Height: 1081}
	if err := m.Set(cam); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got := m.Get()
	if got.Width != 1920 || got.Height != 1080 {
		t.Errorf("stored camera is %dx%d, want 1920x1080", got.Width, got.Height)
	}

	handle := codecMgr.GetConfig()
	cfg := handle.Config()
	handle.Release()
	if cfg.Width != 1920 || cfg.Height != 1080 {
		t.Errorf("codec reconfigured to %dx%d, want 1920x1080", cfg.Width, cfg.Height)
	}
}

func TestManagerReconfiguresOnlyOnResolutionChange(t *testing.T) {
	opens := 0
	codecMgr := newTestCodec(t, &opens)
	m := NewManager(1280, 720, codecMgr)
	if opens != 1 {
		t.Fatalf("initial open count %d, want 1", opens)
	}

	// Same resolution, new matrix: the encoder must not be rebuilt.
	cam := models.NewCamera(1280, 720)
	cam.Matrix[5] = 2
	if err := m.Set(cam); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if opens != 1 {
		t.Errorf("encoder rebuilt on a matrix-only update (opens=%d)", opens)
	}

	// New resolution: exactly one reconfiguration.
	if err := m.Set(models.NewCamera(1920, 1080)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if opens != 2 {
		t.Errorf("open count %d after resolution change, want 2", opens)
	}
}

func TestManagerLastWriteWins(t *testing.T) {
	m := NewManager(640, 480)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Get()
			}
		}()
	}
	last := models.NewCamera(640, 480)
	last.Matrix[11] = 9
	m.Set(last)
	wg.Wait()

	if got := m.Get(); got.Matrix[11] != 9 {
		t.Errorf("final state lost the last Set: %v", got.Matrix[11])
	}
}
