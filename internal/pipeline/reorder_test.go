package pipeline

import (
	"errors"
	"testing"
	"time"

	"framecast/pkg/models"
)

func converted(index uint64) *models.ConvertedFrame {
	return &models.ConvertedFrame{Index: index}
}

func TestMapReleasesInOrder(t *testing.T) {
	m := NewFrameMap(10, 100*time.Millisecond, 0)

	// Insert out of order, as parallel converters would.
	for _, i := range []uint64{2, 0, 3, 1} {
		if err := m.Insert(i, converted(i)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	for i := uint64(0); i < 4; i++ {
		frame, err := m.TakeInOrder(i)
		if err != nil {
			t.Fatalf("TakeInOrder(%d) failed: %v", i, err)
		}
		if frame.Index != i {
			t.Errorf("TakeInOrder(%d) returned frame %d", i, frame.Index)
		}
	}
}

func TestMapTakeWaitsForInsert(t *testing.T) {
	m := NewFrameMap(10, time.Second, 0)

	done := make(chan *models.ConvertedFrame, 1)
	go func() {
		frame, _ := m.TakeInOrder(5)
		done <- frame
	}()

	time.Sleep(20 * time.Millisecond)
	m.Insert(5, converted(5))

	select {
	case frame := <-done:
		if frame == nil || frame.Index != 5 {
			t.Errorf("TakeInOrder(5) got %v", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("TakeInOrder never woke up")
	}
}

func TestMapTakeTimeout(t *testing.T) {
	m := NewFrameMap(10, 50*time.Millisecond, 0)
	m.Insert(1, converted(1))

	if _, err := m.TakeInOrder(0); !errors.Is(err, ErrMapTimeout) {
		t.Fatalf("TakeInOrder(0) returned %v, want ErrMapTimeout", err)
	}

	// The consumer advances past 0; frame 1 must still be takeable.
	frame, err := m.TakeInOrder(1)
	if err != nil {
		t.Fatalf("TakeInOrder(1) after timeout failed: %v", err)
	}
	if frame.Index != 1 {
		t.Errorf("TakeInOrder(1) returned frame %d", frame.Index)
	}
}

func TestMapStragglerSweep(t *testing.T) {
	// No take succeeds here, so the drop interval is never reached; only
	// the timeout sweep can clear the entries.
	m := NewFrameMap(10, 50*time.Millisecond, 2)

	m.Insert(0, converted(0))
	m.Insert(1, converted(1))
	m.Insert(5, converted(5)) // straggler-to-be: indices 2-4 never arrive

	if _, err := m.TakeInOrder(6); !errors.Is(err, ErrMapTimeout) {
		t.Fatalf("TakeInOrder(6) returned %v, want timeout", err)
	}
	// The timeout at 6 sweeps everything below 6.
	if n := m.Len(); n != 0 {
		t.Errorf("map holds %d entries after sweep at 6, want 0", n)
	}
	if d := m.Dropped(); d != 3 {
		t.Errorf("Dropped() = %d, want 3", d)
	}
}

func TestMapPeriodicSweep(t *testing.T) {
	m := NewFrameMap(10, 50*time.Millisecond, 2)

	m.Insert(0, converted(0))
	m.Insert(1, converted(1))
	m.Insert(10, converted(10))
	m.Insert(11, converted(11))

	// Takes 10 and 11: the second take hits the drop interval and sweeps
	// the stale entries 0 and 1.
	if _, err := m.TakeInOrder(10); err != nil {
		t.Fatalf("TakeInOrder(10) failed: %v", err)
	}
	if _, err := m.TakeInOrder(11); err != nil {
		t.Fatalf("TakeInOrder(11) failed: %v", err)
	}

	if n := m.Len(); n != 0 {
		t.Errorf("map holds %d entries after periodic sweep, want 0", n)
	}
	if d := m.Dropped(); d != 2 {
		t.Errorf("Dropped() = %d, want 2", d)
	}
}

func TestMapInsertTimeoutWhenFull(t *testing.T) {
	m := NewFrameMap(2, 50*time.Millisecond, 0)
	m.Insert(0, converted(0))
	m.Insert(1, converted(1))

	if err := m.Insert(2, converted(2)); !errors.Is(err, ErrMapTimeout) {
		t.Fatalf("Insert on full map returned %v, want ErrMapTimeout", err)
	}
}

func TestMapTakeUnblocksInserter(t *testing.T) {
	m := NewFrameMap(2, 500*time.Millisecond, 1000)
	m.Insert(0, converted(0))
	m.Insert(1, converted(1))

	done := make(chan error, 1)
	go func() {
		done <- m.Insert(5, converted(5))
	}()

	time.Sleep(20 * time.Millisecond)
	// Taking 0 frees a slot and must wake the blocked inserter.
	if _, err := m.TakeInOrder(0); err != nil {
		t.Fatalf("TakeInOrder(0) failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("blocked Insert finished with %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Insert never completed")
	}
}

func TestMapNoDoubleRelease(t *testing.T) {
	m := NewFrameMap(10, 50*time.Millisecond, 0)
	m.Insert(0, converted(0))

	if _, err := m.TakeInOrder(0); err != nil {
		t.Fatalf("first TakeInOrder(0) failed: %v", err)
	}
	if _, err := m.TakeInOrder(0); !errors.Is(err, ErrMapTimeout) {
		t.Fatalf("second TakeInOrder(0) returned %v, want timeout", err)
	}
}
