package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Pipeline metrics
	FramesReceived  prometheus.Counter
	FramesConverted prometheus.Counter
	FramesEncoded   prometheus.Counter
	FramesDropped   *prometheus.CounterVec
	ConvertDuration prometheus.Histogram
	QueueDepth      prometheus.Gauge
	ReorderDepth    prometheus.Gauge

	// Packet metrics
	PacketsBroadcast prometheus.Counter
	PacketBytes      prometheus.Counter
	Keyframes        prometheus.Counter

	// Renderer metrics
	RendererConnects    *prometheus.CounterVec
	RendererDisconnects *prometheus.CounterVec
	RendererErrors      *prometheus.CounterVec
	FrameReceiveSeconds *prometheus.HistogramVec

	// Viewer metrics
	ActiveViewers prometheus.Gauge
	TotalViewers  prometheus.Counter

	// Camera metrics
	CameraUpdates     prometheus.Counter
	ResolutionChanges prometheus.Counter
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "framecast_frames_received_total",
			Help: "Total raw frames received from renderers",
		}),
		FramesConverted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "framecast_frames_converted_total",
			Help: "Total frames colour-converted and staged for encoding",
		}),
		FramesEncoded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "framecast_frames_encoded_total",
			Help: "Total frames fed to the encoder",
		}),
		FramesDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "framecast_frames_dropped_total",
				Help: "Total frames dropped",
			},
			[]string{"reason"}, // timeout, straggler, queue_full, map_full, convert_error, stale_resolution
		),
		ConvertDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "framecast_convert_duration_seconds",
			Help:    "Time spent converting and overlaying one frame",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "framecast_raw_queue_depth",
			Help: "Raw frames waiting for conversion",
		}),
		ReorderDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "framecast_reorder_map_depth",
			Help: "Converted frames staged for in-order encoding",
		}),

		PacketsBroadcast: promauto.NewCounter(prometheus.CounterOpts{
			Name: "framecast_packets_broadcast_total",
			Help: "Total encoder packets broadcast to viewers",
		}),
		PacketBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "framecast_packet_bytes_total",
			Help: "Total compressed bytes broadcast to viewers",
		}),
		Keyframes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "framecast_keyframes_total",
			Help: "Total keyframes produced by the encoder",
		}),

		RendererConnects: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "framecast_renderer_connects_total",
				Help: "Total successful renderer connections",
			},
			[]string{"renderer"},
		),
		RendererDisconnects: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "framecast_renderer_disconnects_total",
				Help: "Total renderer connection losses",
			},
			[]string{"renderer"},
		),
		RendererErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "framecast_renderer_errors_total",
				Help: "Total renderer I/O or decode errors",
			},
			[]string{"renderer"},
		),
		FrameReceiveSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "framecast_frame_receive_seconds",
				Help:    "Round-trip time from request send to frame received",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
			},
			[]string{"renderer"},
		),

		ActiveViewers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "framecast_active_viewers",
			Help: "Number of currently connected packet-stream viewers",
		}),
		TotalViewers: promauto.NewCounter(prometheus.CounterOpts{
			Name: "framecast_viewers_total",
			Help: "Total viewer connections since server start",
		}),

		CameraUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "framecast_camera_updates_total",
			Help: "Total camera updates received on the control socket",
		}),
		ResolutionChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "framecast_resolution_changes_total",
			Help: "Total encoder reconfigurations due to resolution change",
		}),
	}

	return m
}

// RecordFrameDropped records a dropped frame
func (m *Metrics) RecordFrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordPacket records one broadcast packet
func (m *Metrics) RecordPacket(size int, keyframe bool) {
	m.PacketsBroadcast.Inc()
	m.PacketBytes.Add(float64(size))
	if keyframe {
		m.Keyframes.Inc()
	}
}

// RecordViewerStart records a viewer connecting
func (m *Metrics) RecordViewerStart() {
	m.ActiveViewers.Inc()
	m.TotalViewers.Inc()
}

// RecordViewerStop records a viewer disconnecting
func (m *Metrics) RecordViewerStop() {
	m.ActiveViewers.Dec()
}
