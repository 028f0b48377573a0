package wsserver

import (
	"framecast/internal/metrics"
	"framecast/pkg/models"
)

// PacketStreamServer fans encoder packets out to every connected viewer.
// Viewers never send; the message handler stays nil.
type PacketStreamServer struct {
	*Server
	metrics *metrics.Metrics
}

// NewPacketStreamServer returns an unstarted fan-out server.
func NewPacketStreamServer(port uint16, m *metrics.Metrics) *PacketStreamServer {
	s := &PacketStreamServer{
		Server:  NewServer("PacketStreamServer", port),
		metrics: m,
	}
	s.onConnect = m.RecordViewerStart
	s.onDisconnect = m.RecordViewerStop
	return s
}

// ConsumePacket broadcasts one encoder packet to all viewers. Byte 0 of
// the packet is overwritten to carry the keyframe flag (0 = keyframe,
// 1 = delta frame) — an agreed side channel with the browser decoder,
// which never reads the original value.
func (s *PacketStreamServer) ConsumePacket(pkt models.EncoderPacket) {
	if len(pkt.Data) == 0 {
		return
	}
	if pkt.Keyframe {
		pkt.Data[0] = 0
	} else {
		pkt.Data[0] = 1
	}
	s.SendToAll(pkt.Data)
	s.metrics.RecordPacket(len(pkt.Data), pkt.Keyframe)
}
