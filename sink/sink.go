// Package sink implements downstream stages that take finished packets from the transmit path.
package sink

import (
	"sync/atomic"

	"github.com/database64128/sctptx-go/tx"
)

// Discard is a stage that counts and releases every packet it receives.
type Discard struct {
	packets atomic.Uint64
}

// Frame implements [tx.Stage.Frame].
func (*Discard) Frame() *tx.Frame {
	return tx.NewFrame()
}

// Submit implements [tx.Stage.Submit].
func (d *Discard) Submit(t *tx.Thread, f *tx.Frame) {
	d.packets.Add(uint64(len(f.Buffers)))
	release(t, f)
}

// Packets returns the number of packets discarded so far.
func (d *Discard) Packets() uint64 {
	return d.packets.Load()
}

// release returns the frame's buffers to the thread's allocator and the frame to its pool.
func release(t *tx.Thread, f *tx.Frame) {
	for _, b := range f.Buffers {
		t.Alloc.Release(b)
	}
	f.Release()
}
