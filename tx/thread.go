package tx

import (
	"iter"
	"sync"
	"time"

	"github.com/database64128/sctptx-go/assoc"
	"github.com/database64128/sctptx-go/pktbuf"
	"github.com/database64128/sctptx-go/timer"
)

// Allocator hands out packet buffers. *pktbuf.Pool implements it.
type Allocator interface {
	// Alloc appends up to n buffers to dst and returns the extended slice.
	Alloc(dst []*pktbuf.Buffer, n int) []*pktbuf.Buffer

	// Release returns b and its chained segments.
	Release(b *pktbuf.Buffer)

	// Reset prepares b for reuse as the head of a new packet.
	Reset(b *pktbuf.Buffer)
}

// Timers arms protocol timers. *timer.Wheel implements it.
type Timers interface {
	// Arm schedules the timer, replacing any pending timer with the same key.
	Arm(key timer.Key, d time.Duration)

	// DisarmAssoc cancels every timer of the association.
	DisarmAssoc(id uint32)
}

// Dest is a downstream destination of the output batcher.
type Dest uint8

const (
	// DestOutput is the transmit state machine stage.
	DestOutput Dest = iota

	// DestIPLookup is the network-layer stage.
	DestIPLookup

	numDests
)

// Family is the IP address family of a batch.
type Family uint8

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
	numFamilies
)

func familyOf(is4 bool) Family {
	if is4 {
		return FamilyIPv4
	}
	return FamilyIPv6
}

// String implements [fmt.Stringer].
func (f Family) String() string {
	if f == FamilyIPv4 {
		return "ipv4"
	}
	return "ipv6"
}

// Frame is an ordered batch of packets handed to a [Stage].
type Frame struct {
	Family  Family
	Buffers []*pktbuf.Buffer
}

var framePool = sync.Pool{
	New: func() any {
		return &Frame{}
	},
}

// NewFrame returns an empty frame from the frame pool.
func NewFrame() *Frame {
	return framePool.Get().(*Frame)
}

// Release clears f and returns it to the frame pool.
// The buffers in f are not released.
func (f *Frame) Release() {
	clear(f.Buffers)
	f.Buffers = f.Buffers[:0]
	framePool.Put(f)
}

// Stage is a downstream pipeline stage.
type Stage interface {
	// Frame returns an empty frame to fill.
	Frame() *Frame

	// Submit hands a filled frame to the stage.
	// The stage takes ownership of the frame and its buffers.
	Submit(t *Thread, f *Frame)
}

// Thread is the per-thread transmit context.
// All state reachable from a Thread is owned by the goroutine that runs it.
type Thread struct {
	// Index is the thread's index among its engine's threads.
	Index int

	Alloc  Allocator
	Assocs *assoc.Table
	Timers Timers

	txBuffers []*pktbuf.Buffer
	slots     [numDests][numFamilies]*Frame
	counters  [numCodes]uint64

	// pending is the control chunk being flushed by flushOutput.
	pending pendingSend
}

// pendingSend tracks one control chunk through the output stage.
// commit holds association updates that apply only once the chunk is accepted.
type pendingSend struct {
	b      *pktbuf.Buffer
	commit func()
}

// NewThread returns a thread context.
func NewThread(index int, alloc Allocator, assocs *assoc.Table, timers Timers) *Thread {
	return &Thread{
		Index:  index,
		Alloc:  alloc,
		Assocs: assocs,
		Timers: timers,
	}
}

// Count returns the value of the counter.
func (t *Thread) Count(code Code) uint64 {
	return t.counters[code]
}

// Counts yields every counter with its code, in code order.
func (t *Thread) Counts() iter.Seq2[Code, uint64] {
	return func(yield func(Code, uint64) bool) {
		for i, n := range t.counters {
			if !yield(Code(i), n) {
				return
			}
		}
	}
}

func (t *Thread) count(code Code) {
	t.counters[code]++
}

// getBuffer returns a buffer reset for a new packet,
// refilling the thread's cache up to refill buffers at a time.
func (t *Thread) getBuffer(refill int) *pktbuf.Buffer {
	if len(t.txBuffers) == 0 {
		t.txBuffers = t.Alloc.Alloc(t.txBuffers, refill)
		if len(t.txBuffers) == 0 {
			return nil
		}
	}
	last := len(t.txBuffers) - 1
	b := t.txBuffers[last]
	t.txBuffers[last] = nil
	t.txBuffers = t.txBuffers[:last]
	t.Alloc.Reset(b)
	return b
}

// Close returns the thread's cached buffers to its allocator.
// Batches must have been flushed.
func (t *Thread) Close() {
	for _, b := range t.txBuffers {
		t.Alloc.Release(b)
	}
	clear(t.txBuffers)
	t.txBuffers = t.txBuffers[:0]
}
