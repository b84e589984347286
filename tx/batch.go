package tx

import "github.com/database64128/sctptx-go/pktbuf"

// enqueue appends b to the thread's batch for dest and the address family.
// The batch is handed to the stage when flush is true or the batch is full.
func (e *Engine) enqueue(t *Thread, dest Dest, b *pktbuf.Buffer, is4, flush bool) {
	fam := familyOf(is4)
	b.Meta.Flags |= pktbuf.FlagLocallyOriginated
	b.Meta.Error = 0

	slot := &t.slots[dest][fam]
	f := *slot
	if f == nil {
		f = e.stage(dest, fam).Frame()
		f.Family = fam
		*slot = f
	}
	f.Buffers = append(f.Buffers, b)

	if flush || len(f.Buffers) >= e.cfg.FrameSize {
		*slot = nil
		e.stage(dest, fam).Submit(t, f)
	}
}

// EnqueueOutput hands b, framed by [Engine.PushHeader] or a chunk builder,
// to the transmit state machine.
func (e *Engine) EnqueueOutput(t *Thread, b *pktbuf.Buffer, flush bool) {
	is4 := true
	if a := t.Assocs.Lookup(b.Meta.AssocID); a != nil {
		is4 = a.Path(a.PathForState()).Is4()
	}
	e.enqueue(t, DestOutput, b, is4, flush)
}

// FlushThread hands every non-empty batch of the thread to its stage.
//
// Output batches are drained first, so packets they accept
// leave in the same call.
func (e *Engine) FlushThread(t *Thread) {
	for dest := range numDests {
		for fam := range numFamilies {
			slot := &t.slots[dest][fam]
			f := *slot
			if f == nil {
				continue
			}
			*slot = nil
			e.stage(dest, fam).Submit(t, f)
		}
	}
}
