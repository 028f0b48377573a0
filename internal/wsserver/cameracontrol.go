package wsserver

import (
	"log"
	"sync/atomic"

	"framecast/internal/camera"
	"framecast/internal/metrics"
	"framecast/internal/protocol"
)

// receivedLoggingInterval limits camera-receipt logging: updates arrive at
// input frame rate, so only every n-th is logged.
const receivedLoggingInterval = 1000

// CameraControlServer accepts binary Camera messages from control clients
// and applies them to the camera manager. No reply is sent.
type CameraControlServer struct {
	*Server
	cameras  *camera.Manager
	metrics  *metrics.Metrics
	shutdown *atomic.Bool
	received atomic.Uint64
}

// NewCameraControlServer returns an unstarted control server.
func NewCameraControlServer(port uint16, cameras *camera.Manager, m *metrics.Metrics,
	shutdown *atomic.Bool) *CameraControlServer {
	s := &CameraControlServer{
		Server:   NewServer("CameraControlServer", port),
		cameras:  cameras,
		metrics:  m,
		shutdown: shutdown,
	}
	s.onMessage = s.handleCamera
	return s
}

func (s *CameraControlServer) handleCamera(data []byte) {
	cam, err := protocol.ParseCamera(data)
	if err != nil {
		log.Printf("CameraControlServer: failed to decode camera update: %v", err)
		return
	}

	prev := s.cameras.Get()
	if err := s.cameras.Set(cam); err != nil {
		// The encoder could not be rebuilt for the new resolution; the
		// pipeline cannot continue.
		log.Printf("CameraControlServer: %v", err)
		s.shutdown.Store(true)
		return
	}
	s.metrics.CameraUpdates.Inc()
	if now := s.cameras.Get(); now.Width != prev.Width || now.Height != prev.Height {
		s.metrics.ResolutionChanges.Inc()
		log.Printf("CameraControlServer: resolution changed %dx%d -> %dx%d",
			prev.Width, prev.Height, now.Width, now.Height)
	}

	if s.received.Add(1)%receivedLoggingInterval == 1 {
		log.Printf("CameraControlServer: receiving camera matrix (%dx%d)", cam.Width, cam.Height)
	}
}
