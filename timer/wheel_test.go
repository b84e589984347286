package timer

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func TestWheelRearmReplaces(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	w := NewWheel(clock.now)
	key := Key{AssocID: 1, Kind: T1Init}

	w.Arm(key, time.Second)
	w.Arm(key, 3*time.Second)
	if w.Len() != 1 {
		t.Fatalf("Len() = %d after re-arming, want 1", w.Len())
	}
	if d, _ := w.Deadline(key); !d.Equal(clock.t.Add(3 * time.Second)) {
		t.Errorf("Deadline() = %v, want %v", d, clock.t.Add(3*time.Second))
	}

	clock.t = clock.t.Add(2 * time.Second)
	if got := w.Poll(nil); len(got) != 0 {
		t.Errorf("Poll() = %v before the replaced deadline", got)
	}

	clock.t = clock.t.Add(time.Second)
	got := w.Poll(nil)
	if len(got) != 1 || got[0].Key != key {
		t.Fatalf("Poll() = %v, want one expiry of %v", got, key)
	}
	if w.Len() != 0 {
		t.Errorf("Len() = %d after expiry, want 0", w.Len())
	}
}

func TestWheelPollOrder(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	w := NewWheel(clock.now)

	w.Arm(Key{AssocID: 3, Kind: T2Shutdown}, 3*time.Second)
	w.Arm(Key{AssocID: 1, Kind: T1Init}, time.Second)
	w.Arm(Key{AssocID: 2, Kind: T1Cookie}, 2*time.Second)
	w.Arm(Key{AssocID: 4, Kind: T3Rtx}, time.Hour)

	clock.t = clock.t.Add(time.Minute)
	got := w.Poll(nil)
	if len(got) != 3 {
		t.Fatalf("len(Poll()) = %d, want 3", len(got))
	}
	for i, id := range []uint32{1, 2, 3} {
		if got[i].Key.AssocID != id {
			t.Errorf("expiry %d is association %d, want %d", i, got[i].Key.AssocID, id)
		}
	}
}

func TestWheelDisarm(t *testing.T) {
	w := NewWheel(nil)
	k1 := Key{AssocID: 1, Kind: T1Init}
	k2 := Key{AssocID: 1, Path: 1, Kind: Heartbeat}
	k3 := Key{AssocID: 2, Kind: T1Init}
	w.Arm(k1, time.Hour)
	w.Arm(k2, time.Hour)
	w.Arm(k3, time.Hour)

	if !w.Disarm(k3) {
		t.Error("Disarm() = false for a pending timer")
	}
	if w.Disarm(k3) {
		t.Error("Disarm() = true for a cancelled timer")
	}

	w.DisarmAssoc(1)
	if w.Len() != 0 {
		t.Errorf("Len() = %d after DisarmAssoc, want 0", w.Len())
	}
}
