package tx

import (
	"github.com/database64128/sctptx-go/assoc"
	"github.com/database64128/sctptx-go/chunk"
	"github.com/database64128/sctptx-go/pktbuf"
	"github.com/database64128/sctptx-go/timer"
	"go.uber.org/zap"
)

// getBuffer returns a fresh buffer from the thread's cache.
func (e *Engine) getBuffer(t *Thread) (*pktbuf.Buffer, error) {
	b := t.getBuffer(e.cfg.FrameSize)
	if b == nil {
		t.count(CodeNoBuffer)
		return nil, ErrNoBuffer
	}
	return b, nil
}

type prepareFunc func(e *Engine, b *pktbuf.Buffer, a *assoc.Association, path int) error

// build gets a buffer and runs prepare on it.
// On failure the buffer is released and the association is unchanged.
func (e *Engine) build(t *Thread, a *assoc.Association, path int, prepare prepareFunc) (*pktbuf.Buffer, error) {
	b, err := e.getBuffer(t)
	if err != nil {
		return nil, err
	}
	if err = prepare(e, b, a, path); err != nil {
		t.Alloc.Release(b)
		return nil, err
	}
	return b, nil
}

// buildFinal is like build, but also pushes the IP header and stores the checksum.
func (e *Engine) buildFinal(t *Thread, a *assoc.Association, path int, prepare prepareFunc) (*pktbuf.Buffer, error) {
	b, err := e.build(t, a, path, prepare)
	if err != nil {
		return nil, err
	}
	if err = e.finalize(b, a.Path(path)); err != nil {
		t.Alloc.Release(b)
		return nil, err
	}
	return b, nil
}

// SendInit starts association setup: it sends INIT straight to IP lookup,
// starts an RTT measurement, arms T1-init, and moves the association to COOKIE_WAIT.
func (e *Engine) SendInit(t *Thread, a *assoc.Association) error {
	path := a.PathForState()

	// Snapshot the fields prepareInit overwrites, in case the packet cannot be finalized.
	localTag, sndNxt, sndUna := a.LocalTag, a.SndNxt, a.SndUna

	b, err := e.build(t, a, path, (*Engine).prepareInit)
	if err != nil {
		return err
	}
	sc := a.Path(path)
	if err = e.finalize(b, sc); err != nil {
		a.LocalTag, a.SndNxt, a.SndUna = localTag, sndNxt, sndUna
		t.Alloc.Release(b)
		return err
	}

	a.RTTTime = e.now()
	a.RTTSeq = a.SndNxt
	a.RTOBackoff = 0

	e.enqueue(t, DestIPLookup, b, sc.Is4(), true)
	t.Timers.Arm(timer.Key{AssocID: a.ID, Path: path, Kind: timer.T1Init}, a.RTO)
	e.setState(t, a, assoc.StateCookieWait, chunk.TypeInit)
	return nil
}

// SendShutdown sends SHUTDOWN through the transmit state machine,
// which moves the association to SHUTDOWN_SENT and arms T2-shutdown.
//
// It returns [ErrUnackedData] without sending while DATA is outstanding.
func (e *Engine) SendShutdown(t *Thread, a *assoc.Association) error {
	if e.outstanding(a) {
		return ErrUnackedData
	}
	return e.sendOutput(t, a, (*Engine).prepareShutdown)
}

// SendShutdownAck sends SHUTDOWN_ACK to IP lookup, arms T2-shutdown,
// and moves the association to SHUTDOWN_ACK_SENT.
//
// It returns [ErrUnackedData] without sending while DATA is outstanding.
func (e *Engine) SendShutdownAck(t *Thread, a *assoc.Association) error {
	if e.outstanding(a) {
		return ErrUnackedData
	}

	path := a.PathForState()
	b, err := e.buildFinal(t, a, path, (*Engine).prepareShutdownAck)
	if err != nil {
		return err
	}

	e.enqueue(t, DestIPLookup, b, a.Path(path).Is4(), false)
	t.Timers.Arm(timer.Key{AssocID: a.ID, Path: path, Kind: timer.T2Shutdown}, a.RTO)
	e.setState(t, a, assoc.StateShutdownAckSent, chunk.TypeShutdownAck)
	return nil
}

// SendShutdownComplete sends SHUTDOWN_COMPLETE to IP lookup and closes the association.
// The association's timers are cancelled and it is removed from the thread's table.
func (e *Engine) SendShutdownComplete(t *Thread, a *assoc.Association) error {
	path := a.PathForState()
	b, err := e.buildFinal(t, a, path, (*Engine).prepareShutdownComplete)
	if err != nil {
		return err
	}

	e.enqueue(t, DestIPLookup, b, a.Path(path).Is4(), false)
	e.setState(t, a, assoc.StateClosed, chunk.TypeShutdownComplete)
	t.Timers.DisarmAssoc(a.ID)
	t.Assocs.Delete(a.ID)
	return nil
}

// SendInitAck answers a peer's INIT. Once the INIT_ACK is accepted,
// the association records the peer's initiate tag and initial TSN
// and takes the new local tag.
func (e *Engine) SendInitAck(t *Thread, a *assoc.Association, init chunk.Init) error {
	var tag uint32
	path := a.PathForState()
	b, err := e.build(t, a, path, func(e *Engine, b *pktbuf.Buffer, a *assoc.Association, path int) (err error) {
		tag, err = e.prepareInitAck(b, a, path, init.InitiateTag)
		return err
	})
	if err != nil {
		return err
	}
	return e.flushOutput(t, a, b, path, func() {
		a.RemoteTag = init.InitiateTag
		a.RcvLas = init.InitialTSN - 1
		a.LocalTag = tag
		a.SndNxt = tag
		a.SndUna = tag
	})
}

// SendCookieEcho echoes a.PeerCookie. The transmit state machine moves
// the association from COOKIE_WAIT to COOKIE_ECHOED and arms T1-cookie.
func (e *Engine) SendCookieEcho(t *Thread, a *assoc.Association) error {
	return e.sendOutput(t, a, (*Engine).prepareCookieEcho)
}

// SendCookieAck acknowledges the peer's COOKIE_ECHO.
func (e *Engine) SendCookieAck(t *Thread, a *assoc.Association) error {
	return e.sendOutput(t, a, (*Engine).prepareCookieAck)
}

// SendSack acknowledges DATA up to a.RcvLas.
func (e *Engine) SendSack(t *Thread, a *assoc.Association) error {
	return e.sendOutput(t, a, (*Engine).prepareSack)
}

// SendHeartbeat checks the path with the given heartbeat information.
func (e *Engine) SendHeartbeat(t *Thread, a *assoc.Association, info []byte) error {
	return e.sendOutput(t, a, func(e *Engine, b *pktbuf.Buffer, a *assoc.Association, path int) error {
		return pushChunk(b, a, path, a.RemoteTag, chunk.Heartbeat{Info: info})
	})
}

// SendHeartbeatAck answers a HEARTBEAT, echoing its information.
func (e *Engine) SendHeartbeatAck(t *Thread, a *assoc.Association, info []byte) error {
	return e.sendOutput(t, a, func(e *Engine, b *pktbuf.Buffer, a *assoc.Association, path int) error {
		return pushChunk(b, a, path, a.RemoteTag, chunk.HeartbeatAck{Info: info})
	})
}

// sendOutput builds a control chunk and flushes it through the transmit state machine.
func (e *Engine) sendOutput(t *Thread, a *assoc.Association, prepare prepareFunc) error {
	path := a.PathForState()
	b, err := e.build(t, a, path, prepare)
	if err != nil {
		return err
	}
	return e.flushOutput(t, a, b, path, nil)
}

// flushOutput submits b to the output stage and waits for its verdict.
// commit, if not nil, runs when the state machine accepts b.
// It returns [ErrRejected] if b was dropped.
func (e *Engine) flushOutput(t *Thread, a *assoc.Association, b *pktbuf.Buffer, path int, commit func()) error {
	t.pending = pendingSend{b: b, commit: commit}
	e.enqueue(t, DestOutput, b, a.Path(path).Is4(), true)
	accepted := t.pending.b == nil
	t.pending = pendingSend{}
	if !accepted {
		return ErrRejected
	}
	return nil
}

func (e *Engine) setState(t *Thread, a *assoc.Association, next assoc.State, ct chunk.Type) {
	if ce := e.logger.Check(zap.DebugLevel, "Association state changed"); ce != nil {
		ce.Write(
			zap.Int("thread", t.Index),
			zap.Uint32("assocID", a.ID),
			zap.Stringer("chunkType", ct),
			zap.Stringer("from", a.State),
			zap.Stringer("to", next),
		)
	}
	a.State = next
}
