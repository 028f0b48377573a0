package models

import "fmt"

// RawFrame is one rendered frame as received from a renderer: the request's
// index, the camera it was rendered with, and the pixel planes. Scene is
// packed RGB (3 bytes per pixel, row-major); Depth, when present, is 8-bit
// grayscale. A RawFrame is owned by exactly one pipeline stage at a time and
// is consumed when converted.
type RawFrame struct {
	Index  uint64
	Camera Camera
	Scene  []byte
	Depth  []byte
}

// Validate checks that the pixel buffers match the embedded camera
// dimensions exactly.
func (f *RawFrame) Validate() error {
	want := int(f.Camera.Width) * int(f.Camera.Height) * 3
	if len(f.Scene) != want {
		return fmt.Errorf("scene plane is %d bytes, want %d for %dx%d",
			len(f.Scene), want, f.Camera.Width, f.Camera.Height)
	}
	if f.Depth != nil {
		want := int(f.Camera.Width) * int(f.Camera.Height)
		if len(f.Depth) != want {
			return fmt.Errorf("depth plane is %d bytes, want %d for %dx%d",
				len(f.Depth), want, f.Camera.Width, f.Camera.Height)
		}
	}
	return nil
}

// ConvertedFrame carries the same frame after colour-space conversion to the
// encoder's pixel format. Planes are stored with the stride the conversion
// produced; Width and Height are the encoder dimensions the frame was
// converted for, which may differ from the camera's if a resolution change
// was in flight.
type ConvertedFrame struct {
	Index  uint64
	Camera Camera
	Width  int
	Height int
	Stride int
	// Y, Cb and Cr planes for 4:2:0 output. Chroma planes use Stride/2.
	Y  []byte
	Cb []byte
	Cr []byte
}

// EncoderPacket is one compressed access unit produced by the encoder.
type EncoderPacket struct {
	Data     []byte
	Keyframe bool
}
