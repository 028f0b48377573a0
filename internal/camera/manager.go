// Package camera stores the live view state that drives outgoing render
// requests.
package camera

import (
	"fmt"
	"sync"

	"framecast/internal/codec"
	"framecast/pkg/models"
)

// Manager guards the current camera and reconfigures the owned codecs when
// an update changes the output resolution. One writer (the camera-control
// server) and many readers (dispatcher workers) share it; a plain mutex is
// enough because both operations are brief.
type Manager struct {
	mu     sync.Mutex
	cam    models.Camera
	codecs []*codec.Manager
}

// NewManager returns a manager seeded with the initial view matrix at the
// given resolution. codecs are every encoder whose output resolution must
// track the camera (scene and, in stereo deployments, depth).
func NewManager(width, height uint32, codecs ...*codec.Manager) *Manager {
	return &Manager{
		cam:    models.NewCamera(width, height),
		codecs: codecs,
	}
}

// Set replaces the stored camera. If the update changes the resolution,
// every owned codec is reconfigured first, so a request snapshotted after
// Set returns always finds a matching encoder. Odd dimensions are rounded
// down to even.
func (m *Manager) Set(cam models.Camera) error {
	cam.RoundDimensions()

	m.mu.Lock()
	defer m.mu.Unlock()

	if cam.Width != m.cam.Width || cam.Height != m.cam.Height {
		for _, c := range m.codecs {
			if err := c.Reconfigure(int(cam.Width), int(cam.Height)); err != nil {
				return fmt.Errorf("resolution change to %dx%d: %w", cam.Width, cam.Height, err)
			}
		}
	}
	m.cam = cam
	return nil
}

// Get returns a copy of the current camera.
func (m *Manager) Get() models.Camera {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cam
}
