// Package timer implements the single-shot protocol timers armed by the transmit path.
package timer

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// Kind is the protocol timer kind.
type Kind uint8

const (
	T1Init Kind = iota
	T1Cookie
	T2Shutdown
	T3Rtx
	T5ShutdownGuard
	Heartbeat
)

var kindNames = [...]string{
	T1Init:          "T1-init",
	T1Cookie:        "T1-cookie",
	T2Shutdown:      "T2-shutdown",
	T3Rtx:           "T3-rtx",
	T5ShutdownGuard: "T5-shutdown-guard",
	Heartbeat:       "heartbeat",
}

// String implements [fmt.Stringer].
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Key identifies one timer.
type Key struct {
	AssocID uint32
	Path    int
	Kind    Kind
}

// Expiry is a timer that fired.
type Expiry struct {
	Key      Key
	Deadline time.Time
}

// Wheel holds pending single-shot timers.
//
// Wheel is not safe for concurrent use. Each worker thread owns its own wheel.
type Wheel struct {
	now       func() time.Time
	deadlines map[Key]time.Time
}

// NewWheel returns an empty wheel that reads the time from now.
// If now is nil, [time.Now] is used.
func NewWheel(now func() time.Time) *Wheel {
	if now == nil {
		now = time.Now
	}
	return &Wheel{
		now:       now,
		deadlines: make(map[Key]time.Time),
	}
}

// Arm schedules the timer to fire d from now, replacing any pending timer with the same key.
func (w *Wheel) Arm(key Key, d time.Duration) {
	w.deadlines[key] = w.now().Add(d)
}

// Disarm cancels the timer. It reports whether the timer was pending.
func (w *Wheel) Disarm(key Key) bool {
	_, ok := w.deadlines[key]
	delete(w.deadlines, key)
	return ok
}

// DisarmAssoc cancels every timer of the association.
func (w *Wheel) DisarmAssoc(id uint32) {
	for key := range w.deadlines {
		if key.AssocID == id {
			delete(w.deadlines, key)
		}
	}
}

// Deadline returns the deadline of a pending timer.
func (w *Wheel) Deadline(key Key) (time.Time, bool) {
	d, ok := w.deadlines[key]
	return d, ok
}

// Len returns the number of pending timers.
func (w *Wheel) Len() int {
	return len(w.deadlines)
}

// Poll removes the timers due at or before the current time and appends them to dst,
// ordered by deadline.
func (w *Wheel) Poll(dst []Expiry) []Expiry {
	now := w.now()
	start := len(dst)
	for key, deadline := range w.deadlines {
		if !deadline.After(now) {
			dst = append(dst, Expiry{Key: key, Deadline: deadline})
			delete(w.deadlines, key)
		}
	}
	slices.SortFunc(dst[start:], func(a, b Expiry) int {
		if c := a.Deadline.Compare(b.Deadline); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Key.AssocID, b.Key.AssocID); c != 0 {
			return c
		}
		return cmp.Compare(a.Key.Kind, b.Key.Kind)
	})
	return dst
}
