// Package codec owns the video encoder: lifecycle, thread-safe feed and
// drain, and live reconfiguration when the output resolution changes.
package codec

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"framecast/pkg/models"
)

// ErrAgain is the transient "not now" signal from an encoder: Feed must
// wait for a drain, or Drain has no packet ready. Callers sleep briefly and
// retry.
var ErrAgain = errors.New("codec: resource temporarily unavailable")

// FeedResult classifies the outcome of Manager.Feed.
type FeedResult int

const (
	// FeedAccepted means the encoder took the frame.
	FeedAccepted FeedResult = iota
	// FeedNeedsDrain means the encoder is backpressuring; drain packets,
	// then retry.
	FeedNeedsDrain
	// FeedFlushed means the encoder is gone and accepts no more frames.
	FeedFlushed
	// FeedFatal means the encoder failed; the pipeline must shut down.
	FeedFatal
)

// DrainResult classifies the outcome of Manager.Drain.
type DrainResult int

const (
	// DrainPacket means a packet was produced.
	DrainPacket DrainResult = iota
	// DrainWouldBlock means no packet is ready yet.
	DrainWouldBlock
	// DrainEndOfStream means the encoder has emitted its final packet.
	DrainEndOfStream
	// DrainFatal means the encoder failed; the pipeline must shut down.
	DrainFatal
)

// Encoder is the feed-frame / drain-packet contract the manager drives.
// Implementations return ErrAgain for transient refusal and io.EOF from
// Drain once the stream has ended.
type Encoder interface {
	Feed(frame *models.ConvertedFrame) error
	Drain() (models.EncoderPacket, error)
	Close() error
}

// OpenFunc constructs an encoder for a configuration. It exists so tests
// can substitute a stub for the ffmpeg process.
type OpenFunc func(models.CodecConfig) (Encoder, error)

// Manager guards one encoder and its configuration. The configuration is
// under a reader-writer lock: feeders hold a read lock across frame
// preparation so the frame they build matches the encoder they will feed,
// while Reconfigure takes the write lock, then the encoder lock — always in
// that order — to swap both atomically.
type Manager struct {
	cfgMu sync.RWMutex
	cfg   models.CodecConfig

	encMu sync.Mutex
	enc   Encoder

	open OpenFunc
}

// NewManager opens an encoder for cfg (dimensions rounded down to even)
// and returns the manager owning it.
func NewManager(cfg models.CodecConfig, open OpenFunc) (*Manager, error) {
	if open == nil {
		open = func(cfg models.CodecConfig) (Encoder, error) {
			return OpenFFmpegEncoder(cfg)
		}
	}
	cfg = cfg.WithResolution(cfg.Width, cfg.Height)
	enc, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open encoder: %w", err)
	}
	return &Manager{cfg: cfg, enc: enc, open: open}, nil
}

// ConfigHandle holds the configuration read lock. Callers that will feed a
// frame keep the handle for the whole preparation so no reconfiguration
// can slip between reading the dimensions and feeding the frame.
type ConfigHandle struct {
	m   *Manager
	cfg models.CodecConfig
}

// Config returns the configuration snapshot the handle pins.
func (h ConfigHandle) Config() models.CodecConfig { return h.cfg }

// Release drops the read lock. The handle must not be used afterwards.
func (h ConfigHandle) Release() { h.m.cfgMu.RUnlock() }

// GetConfig acquires a shared read lock on the configuration and returns a
// handle that holds it until released.
func (m *Manager) GetConfig() ConfigHandle {
	m.cfgMu.RLock()
	return ConfigHandle{m: m, cfg: m.cfg}
}

// Feed hands frame to the encoder under the exclusive encoder lock.
func (m *Manager) Feed(frame *models.ConvertedFrame) (FeedResult, error) {
	m.encMu.Lock()
	defer m.encMu.Unlock()

	if m.enc == nil {
		return FeedFlushed, nil
	}
	switch err := m.enc.Feed(frame); {
	case err == nil:
		return FeedAccepted, nil
	case errors.Is(err, ErrAgain):
		return FeedNeedsDrain, nil
	case errors.Is(err, io.EOF):
		return FeedFlushed, nil
	default:
		return FeedFatal, err
	}
}

// Drain pulls one packet from the encoder under the exclusive encoder
// lock.
func (m *Manager) Drain() (models.EncoderPacket, DrainResult, error) {
	m.encMu.Lock()
	defer m.encMu.Unlock()

	if m.enc == nil {
		return models.EncoderPacket{}, DrainEndOfStream, nil
	}
	pkt, err := m.enc.Drain()
	switch {
	case err == nil:
		return pkt, DrainPacket, nil
	case errors.Is(err, ErrAgain):
		return models.EncoderPacket{}, DrainWouldBlock, nil
	case errors.Is(err, io.EOF):
		return models.EncoderPacket{}, DrainEndOfStream, nil
	default:
		return models.EncoderPacket{}, DrainFatal, err
	}
}

// Reconfigure tears the encoder down and opens a fresh one at the new
// resolution (rounded down to even). It holds the configuration write lock
// and then the encoder lock, fencing out every feeder and drainer for the
// duration. A failure to open the new encoder is fatal: the manager is
// left without an encoder and feeders observe FeedFlushed.
func (m *Manager) Reconfigure(width, height int) error {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	m.encMu.Lock()
	defer m.encMu.Unlock()

	if m.enc != nil {
		m.enc.Close()
		m.enc = nil
	}
	m.cfg = m.cfg.WithResolution(width, height)

	enc, err := m.open(m.cfg)
	if err != nil {
		return fmt.Errorf("reopen encoder at %dx%d: %w", m.cfg.Width, m.cfg.Height, err)
	}
	m.enc = enc
	log.Printf("codec: reconfigured to %dx%d", m.cfg.Width, m.cfg.Height)
	return nil
}

// Close tears down the encoder. Subsequent feeds observe FeedFlushed and
// drains observe DrainEndOfStream.
func (m *Manager) Close() {
	m.encMu.Lock()
	defer m.encMu.Unlock()
	if m.enc != nil {
		m.enc.Close()
		m.enc = nil
	}
}
