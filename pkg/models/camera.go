package models

// CameraMatrixSize is the number of floats in a row-major 3x4 view matrix.
const CameraMatrixSize = 12

// InitialCameraMatrix is the view matrix used before the first camera
// update arrives: x axis kept, y and z axes flipped, with a 0.5 translation
// on each axis.
var InitialCameraMatrix = [CameraMatrixSize]float32{
	1.0, 0.0, 0.0, 0.5,
	0.0, -1.0, 0.0, 0.5,
	0.0, 0.0, -1.0, 0.5,
}

// Camera holds the view parameters a renderer needs to produce one frame:
// a 3x4 row-major view matrix and the requested image dimensions.
// IsLeft selects the eye in stereo deployments; monoscopic builds leave it
// false everywhere.
type Camera struct {
	Matrix [CameraMatrixSize]float32
	Width  uint32
	Height uint32
	IsLeft bool
}

// NewCamera returns a Camera with the initial view matrix and the given
// dimensions rounded down to even, as the encoder requires.
func NewCamera(width, height uint32) Camera {
	return Camera{
		Matrix: InitialCameraMatrix,
		Width:  width &^ 1,
		Height: height &^ 1,
	}
}

// RoundDimensions rounds the camera's width and height down to even values.
func (c *Camera) RoundDimensions() {
	c.Width &^= 1
	c.Height &^= 1
}
