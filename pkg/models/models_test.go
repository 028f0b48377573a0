package models

import "testing"

func TestNewCameraRoundsDown(t *testing.T) {
	cam := NewCamera(1921, 1081)
	if cam.Width != 1920 || cam.Height != 1080 {
		t.Errorf("NewCamera(1921, 1081) = %dx%d, want 1920x1080", cam.Width, cam.Height)
	}
	if cam.Matrix != InitialCameraMatrix {
		t.Errorf("NewCamera matrix = %v", cam.Matrix)
	}
}

func TestRawFrameValidate(t *testing.T) {
	frame := &RawFrame{
		Camera: Camera{Width: 4, Height: 2},
		Scene:  make([]byte, 4*2*3),
	}
	if err := frame.Validate(); err != nil {
		t.Errorf("valid frame rejected: %v", err)
	}

	frame.Scene = frame.Scene[:5]
	if err := frame.Validate(); err == nil {
		t.Error("undersized scene plane accepted")
	}

	frame.Scene = make([]byte, 4*2*3)
	frame.Depth = make([]byte, 3)
	if err := frame.Validate(); err == nil {
		t.Error("undersized depth plane accepted")
	}

	frame.Depth = make([]byte, 4*2)
	if err := frame.Validate(); err != nil {
		t.Errorf("valid depth plane rejected: %v", err)
	}
}

func TestCodecConfigWithResolution(t *testing.T) {
	cfg := CodecConfig{Width: 1280, Height: 720, Bitrate: 400000}
	next := cfg.WithResolution(1919, 1079)
	if next.Width != 1918 || next.Height != 1078 {
		t.Errorf("WithResolution(1919, 1079) = %dx%d, want 1918x1078", next.Width, next.Height)
	}
	if cfg.Width != 1280 {
		t.Error("WithResolution mutated the receiver")
	}
	if next.Bitrate != 400000 {
		t.Error("WithResolution dropped unrelated fields")
	}
}
