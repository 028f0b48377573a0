package pipeline

import (
	"errors"
	"sync"
	"time"

	"framecast/pkg/models"
)

// ErrMapTimeout reports that a reorder-map operation waited out its
// deadline. For TakeInOrder it means the frame for the expected index never
// arrived; the feeder logs it and moves on to the next index.
var ErrMapTimeout = errors.New("frame map: operation timed out")

const (
	// DefaultMapCapacity bounds the number of converted frames staged for
	// in-order release.
	DefaultMapCapacity = 100
	// DefaultMapTimeout is how long Insert and TakeInOrder wait before
	// giving up.
	DefaultMapTimeout = time.Second
	// DefaultDropInterval is how many successful takes pass between
	// straggler sweeps.
	DefaultDropInterval = 1000
)

// FrameMap stages converted frames by index so a single consumer can
// release them in strictly ascending order even though convert workers
// finish out of order. Entries whose index falls behind the consumer are
// stragglers; a periodic sweep discards them so they cannot pin memory or
// block inserters.
type FrameMap struct {
	mu       sync.Mutex
	inserter *sync.Cond
	getter   *sync.Cond

	frames       map[uint64]*models.ConvertedFrame
	capacity     int
	timeout      time.Duration
	dropInterval uint64
	takes        uint64
	dropped      uint64
}

// NewFrameMap returns a map bounded at capacity. Non-positive arguments
// select the defaults.
func NewFrameMap(capacity int, timeout time.Duration, dropInterval int) *FrameMap {
	if capacity <= 0 {
		capacity = DefaultMapCapacity
	}
	if timeout <= 0 {
		timeout = DefaultMapTimeout
	}
	if dropInterval <= 0 {
		dropInterval = DefaultDropInterval
	}
	m := &FrameMap{
		frames:       make(map[uint64]*models.ConvertedFrame),
		capacity:     capacity,
		timeout:      timeout,
		dropInterval: uint64(dropInterval),
	}
	m.inserter = sync.NewCond(&m.mu)
	m.getter = sync.NewCond(&m.mu)
	return m
}

// Insert stores frame under index and wakes all waiting getters. If the map
// stays full past the timeout, Insert fails with ErrMapTimeout and the
// caller retains ownership.
func (m *FrameMap) Insert(index uint64, frame *models.ConvertedFrame) error {
	deadline := time.Now().Add(m.timeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.frames) >= m.capacity {
		if !m.waitUntil(m.inserter, deadline) {
			return ErrMapTimeout
		}
	}
	m.frames[index] = frame
	// Broadcast rather than Signal: the one consumer waits on a specific
	// index, and a Signal could land on a stale waiter from a previous
	// timeout cycle.
	m.getter.Broadcast()
	return nil
}

// TakeInOrder waits until the frame for index is present, removes it, and
// returns it. If the frame does not show up within the timeout it fails
// with ErrMapTimeout and the caller advances to the next index. Every
// dropInterval successful takes — or whenever the map is at capacity — it
// also evicts every entry keyed below index, reclaiming stragglers the
// consumer has already moved past.
func (m *FrameMap) TakeInOrder(index uint64) (*models.ConvertedFrame, error) {
	deadline := time.Now().Add(m.timeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		frame, ok := m.frames[index]
		if ok {
			full := len(m.frames) >= m.capacity
			delete(m.frames, index)
			m.takes++
			if m.takes%m.dropInterval == 0 || full {
				m.sweepLocked(index)
			}
			m.inserter.Signal()
			return frame, nil
		}
		if !m.waitUntil(m.getter, deadline) {
			// The consumer is about to skip past index; anything older
			// can never be taken either.
			m.sweepLocked(index)
			return nil, ErrMapTimeout
		}
	}
}

// Dropped reports the total number of straggler frames swept so far.
func (m *FrameMap) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Len reports the current number of staged frames.
func (m *FrameMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// sweepLocked discards every entry with a key below index. Callers hold
// m.mu.
func (m *FrameMap) sweepLocked(index uint64) {
	var swept int
	for key := range m.frames {
		if key < index {
			delete(m.frames, key)
			swept++
		}
	}
	if swept > 0 {
		m.dropped += uint64(swept)
		m.inserter.Broadcast()
	}
}

func (m *FrameMap) waitUntil(cond *sync.Cond, deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}
	timer := time.AfterFunc(remaining, func() {
		m.mu.Lock()
		cond.Broadcast()
		m.mu.Unlock()
	})
	cond.Wait()
	timer.Stop()
	return time.Now().Before(deadline)
}
