package web

import (
	"testing"
	"time"
)

func recvAttitude(t *testing.T, ch <-chan AttitudeSnapshot) AttitudeSnapshot {
	t.Helper()
	select {
	case att, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed")
		}
		return att
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for attitude")
	}
	return AttitudeSnapshot{}
}

func TestAttitudeBroadcaster_FanOutAndReplayLast(t *testing.T) {
	b := NewAttitudeBroadcaster()
	id1, ch1 := b.Subscribe(4)

	b.PublishSnapshot(validSnapshot(1))
	if got := recvAttitude(t, ch1); got.Step != 1 {
		t.Fatalf("sub1 step=%d", got.Step)
	}

	// Late subscriber gets the last value immediately.
	_, ch2 := b.Subscribe(4)
	if got := recvAttitude(t, ch2); got.Step != 1 {
		t.Fatalf("sub2 step=%d", got.Step)
	}
	if b.Subscribers() != 2 {
		t.Fatalf("subscribers=%d", b.Subscribers())
	}

	b.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
	b.Unsubscribe(id1) // idempotent
}

func TestAttitudeBroadcaster_DropsForSlowSubscriber(t *testing.T) {
	b := NewAttitudeBroadcaster()
	_, ch := b.Subscribe(1)
	for i := uint64(1); i <= 5; i++ {
		b.PublishSnapshot(validSnapshot(i))
	}
	if got := recvAttitude(t, ch); got.Step != 1 {
		t.Fatalf("step=%d want 1", got.Step)
	}
	select {
	case att := <-ch:
		t.Fatalf("unexpected buffered value %+v", att)
	default:
	}
}

func TestAttitudeBroadcaster_Close(t *testing.T) {
	b := NewAttitudeBroadcaster()
	_, ch := b.Subscribe(1)
	b.Close()
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	_, late := b.Subscribe(1)
	if _, ok := <-late; ok {
		t.Fatalf("expected closed channel for late subscriber")
	}
	b.PublishSnapshot(validSnapshot(1)) // no panic after close

	var nilB *AttitudeBroadcaster
	nilB.Publish(AttitudeSnapshot{})
	nilB.Close()
	if nilB.Subscribers() != 0 {
		t.Fatalf("nil broadcaster has subscribers")
	}
}
