package tx

import (
	"errors"

	"github.com/database64128/sctptx-go/chunk"
	"github.com/database64128/sctptx-go/pktbuf"
	"github.com/database64128/sctptx-go/timer"
	"go.uber.org/zap"
)

// outputStage is the transmit state machine stage.
// Packets it accepts are finalized and batched for IP lookup.
type outputStage struct {
	e *Engine
}

// Frame implements [Stage.Frame].
func (s *outputStage) Frame() *Frame {
	return NewFrame()
}

// Submit implements [Stage.Submit].
func (s *outputStage) Submit(t *Thread, f *Frame) {
	for _, b := range f.Buffers {
		s.e.output1(t, b)
	}
	f.Release()
}

// output1 runs one packet through the transmit state machine.
func (e *Engine) output1(t *Thread, b *pktbuf.Buffer) {
	a := t.Assocs.Lookup(b.Meta.AssocID)
	if a == nil {
		e.drop(t, b, CodeInvalidConnection)
		return
	}

	path := a.PathForState()
	sc := a.Path(path)

	l4 := b.Bytes()
	if b.Meta.Flags&pktbuf.FlagL3HeaderPresent != 0 {
		l4 = l4[b.Meta.L4Offset-b.Offset():]
	}
	h, err := chunk.ParseCommonHeader(l4)
	if err != nil {
		e.drop(t, b, CodeUnknownChunk)
		return
	}
	ch, err := chunk.ParseHeader(l4[chunk.CommonHeaderLen:])
	if err != nil {
		e.drop(t, b, CodeUnknownChunk)
		return
	}

	if !sc.MatchPorts(h.SrcPort, h.DstPort) {
		e.logger.Warn("Dropped packet with mismatched ports",
			zap.Int("thread", t.Index),
			zap.Uint32("assocID", a.ID),
			zap.Uint16("srcPort", h.SrcPort.Uint16()),
			zap.Uint16("dstPort", h.DstPort.Uint16()),
			zap.Uint16("localPort", sc.LocalPort.Uint16()),
			zap.Uint16("remotePort", sc.RemotePort.Uint16()),
		)
		e.drop(t, b, CodeUnknownChunk)
		return
	}

	st, v := transition(a.State, ch.Type)
	switch v {
	case verdictAccept:
	case verdictReject:
		e.logger.Warn("Dropped chunk not allowed in association state",
			zap.Int("thread", t.Index),
			zap.Uint32("assocID", a.ID),
			zap.Stringer("state", a.State),
			zap.Stringer("chunkType", ch.Type),
		)
		e.drop(t, b, CodeUnknownChunk)
		return
	default:
		e.logger.Error("Dropped chunk for association in unknown state",
			zap.Int("thread", t.Index),
			zap.Uint32("assocID", a.ID),
			zap.Stringer("state", a.State),
			zap.Stringer("chunkType", ch.Type),
		)
		e.drop(t, b, CodeInvalidState)
		return
	}

	if err = e.finalize(b, sc); err != nil {
		code := CodeNoBuffer
		if errors.Is(err, errBogusChecksum) {
			code = CodeBogusChecksum
		}
		e.logger.Warn("Failed to finalize outbound packet",
			zap.Int("thread", t.Index),
			zap.Uint32("assocID", a.ID),
			zap.Stringer("chunkType", ch.Type),
			zap.Error(err),
		)
		e.drop(t, b, code)
		return
	}

	if t.pending.b == b {
		if t.pending.commit != nil {
			t.pending.commit()
		}
		t.pending.b = nil
	}
	if ch.Type == chunk.TypeData && a.RTTTime.IsZero() {
		a.RTTTime = e.now()
		a.RTTSeq = a.SndNxt
	}
	if st.next != a.State {
		e.setState(t, a, st.next, ch.Type)
	}
	if st.arm {
		t.Timers.Arm(timer.Key{AssocID: a.ID, Path: path, Kind: st.timer}, a.RTO)
	}

	t.count(CodePktsSent)
	e.enqueue(t, DestIPLookup, b, sc.Is4(), false)
}

// drop counts the cause and releases b.
func (e *Engine) drop(t *Thread, b *pktbuf.Buffer, code Code) {
	b.Meta.Error = uint8(code)
	t.count(code)
	if ce := e.logger.Check(zap.DebugLevel, "Dropped outbound packet"); ce != nil {
		ce.Write(
			zap.Int("thread", t.Index),
			zap.Uint32("assocID", b.Meta.AssocID),
			zap.Stringer("cause", code),
		)
	}
	t.Alloc.Release(b)
}
