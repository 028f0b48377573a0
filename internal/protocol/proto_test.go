package protocol

import (
	"bytes"
	"testing"

	"framecast/pkg/models"
)

func sampleCamera() models.Camera {
	cam := models.NewCamera(640, 480)
	cam.Matrix[3] = 1.25
	cam.Matrix[7] = -0.5
	return cam
}

func TestCameraRoundTrip(t *testing.T) {
	want := sampleCamera()
	got, err := ParseCamera(AppendCamera(nil, want))
	if err != nil {
		t.Fatalf("ParseCamera failed: %v", err)
	}
	if got != want {
		t.Errorf("round trip changed camera:\n got %+v\nwant %+v", got, want)
	}
}

func TestCameraIsLeftRoundTrip(t *testing.T) {
	want := sampleCamera()
	want.IsLeft = true
	got, err := ParseCamera(AppendCamera(nil, want))
	if err != nil {
		t.Fatalf("ParseCamera failed: %v", err)
	}
	if !got.IsLeft {
		t.Error("is_left lost in round trip")
	}
}

func TestCameraRejectsShortMatrix(t *testing.T) {
	// A message cut off inside the matrix field must not parse.
	raw := AppendCamera(nil, sampleCamera())
	// Corrupt: truncate the buffer inside the matrix field.
	if _, err := ParseCamera(raw[:10]); err == nil {
		t.Fatal("ParseCamera accepted a truncated message")
	}
}

func TestFrameRequestRoundTrip(t *testing.T) {
	want := FrameRequest{Index: 42, Camera: sampleCamera()}
	got, err := ParseFrameRequest(MarshalFrameRequest(want))
	if err != nil {
		t.Fatalf("ParseFrameRequest failed: %v", err)
	}
	if got != want {
		t.Errorf("round trip changed request:\n got %+v\nwant %+v", got, want)
	}
}

func TestRenderedFrameRoundTrip(t *testing.T) {
	cam := models.NewCamera(4, 2)
	want := &models.RawFrame{
		Index:  7,
		Camera: cam,
		Scene:  bytes.Repeat([]byte{9}, 4*2*3),
	}
	got, err := ParseRenderedFrame(MarshalRenderedFrame(want))
	if err != nil {
		t.Fatalf("ParseRenderedFrame failed: %v", err)
	}
	if got.Index != 7 || got.Camera != cam {
		t.Errorf("metadata changed: %+v", got)
	}
	if !bytes.Equal(got.Scene, want.Scene) {
		t.Error("scene plane changed in round trip")
	}
	if got.Depth != nil {
		t.Error("depth plane materialised from nothing")
	}
}

func TestRenderedFrameWithDepth(t *testing.T) {
	cam := models.NewCamera(4, 2)
	want := &models.RawFrame{
		Index:  8,
		Camera: cam,
		Scene:  bytes.Repeat([]byte{1}, 4*2*3),
		Depth:  bytes.Repeat([]byte{2}, 4*2),
	}
	got, err := ParseRenderedFrame(MarshalRenderedFrame(want))
	if err != nil {
		t.Fatalf("ParseRenderedFrame failed: %v", err)
	}
	if !bytes.Equal(got.Depth, want.Depth) {
		t.Error("depth plane changed in round trip")
	}
}

func TestRenderedFrameRejectsWrongPlaneSize(t *testing.T) {
	cam := models.NewCamera(4, 2)
	frame := &models.RawFrame{
		Index:  9,
		Camera: cam,
		Scene:  []byte{1, 2, 3}, // far too small for 4x2
	}
	if _, err := ParseRenderedFrame(MarshalRenderedFrame(frame)); err == nil {
		t.Fatal("parse accepted a frame whose scene plane does not match its dimensions")
	}
}

// TestCameraWireFormat pins the encoding against a hand-computed vector so
// an accidental field renumbering cannot slip through.
func TestCameraWireFormat(t *testing.T) {
	cam := models.Camera{Width: 2, Height: 2}
	raw := AppendCamera(nil, cam)

	// Field 1 (matrix): tag 0x0A, length 48, then 12 float32 zeroes.
	if raw[0] != 0x0A || raw[1] != 48 {
		t.Fatalf("matrix field header = %x %x, want 0a 30", raw[0], raw[1])
	}
	// Field 2 (width): tag 0x10, varint 2.
	if raw[50] != 0x10 || raw[51] != 2 {
		t.Fatalf("width field = %x %x, want 10 02", raw[50], raw[51])
	}
	// Field 3 (height): tag 0x18, varint 2.
	if raw[52] != 0x18 || raw[53] != 2 {
		t.Fatalf("height field = %x %x, want 18 02", raw[52], raw[53])
	}
}
