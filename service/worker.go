package service

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/database64128/sctptx-go/assoc"
	"github.com/database64128/sctptx-go/timer"
	"github.com/database64128/sctptx-go/tx"
	"go.uber.org/zap"
)

// worker owns one transmit thread and the associations sharded to it.
// Everything reachable from a worker is touched only by the goroutine running it.
type worker struct {
	logger *zap.Logger
	engine *tx.Engine
	thread *tx.Thread
	wheel  *timer.Wheel
	rtoMax time.Duration

	maxInitRetransmits  int
	maxAssocRetransmits int

	expired []timer.Expiry
}

// run locks the goroutine to an OS thread, optionally pinned to a CPU,
// and drives the worker until ctx is canceled.
func (w *worker) run(ctx context.Context, interval time.Duration, pin bool) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if pin {
		cpu := w.thread.Index % runtime.NumCPU()
		if err := pinToCPU(cpu); err != nil {
			w.logger.Warn("Failed to pin worker to CPU",
				zap.Int("thread", w.thread.Index),
				zap.Int("cpu", cpu),
				zap.Error(err),
			)
		}
	}

	w.start()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case <-ticker.C:
			w.cycle()
		}
	}
}

// start sends INIT on every association of the worker.
func (w *worker) start() {
	for a := range w.thread.Assocs.All() {
		if err := w.engine.SendInit(w.thread, a); err != nil {
			w.logger.Warn("Failed to send INIT",
				zap.Int("thread", w.thread.Index),
				zap.Uint32("assocID", a.ID),
				zap.Error(err),
			)
			// Try again when T1-init would have fired.
			w.wheel.Arm(timer.Key{AssocID: a.ID, Path: a.PathForState(), Kind: timer.T1Init}, a.RTO)
		}
	}
	w.engine.FlushThread(w.thread)
}

// cycle handles the expired timers and flushes the thread's batches.
func (w *worker) cycle() {
	w.expired = w.wheel.Poll(w.expired[:0])
	for _, exp := range w.expired {
		w.handleExpiry(exp.Key)
	}
	w.engine.FlushThread(w.thread)
}

func (w *worker) handleExpiry(key timer.Key) {
	a := w.thread.Assocs.Lookup(key.AssocID)
	if a == nil {
		return
	}

	switch key.Kind {
	case timer.T1Init:
		if a.State == assoc.StateClosed || a.State == assoc.StateCookieWait {
			w.retransmit(a, key, w.maxInitRetransmits, w.engine.SendInit)
		}
	case timer.T1Cookie:
		if a.State == assoc.StateCookieEchoed {
			w.retransmit(a, key, w.maxInitRetransmits, w.engine.SendCookieEcho)
		}
	case timer.T2Shutdown:
		switch a.State {
		case assoc.StateShutdownSent:
			w.retransmit(a, key, w.maxAssocRetransmits, w.engine.SendShutdown)
		case assoc.StateShutdownAckSent:
			w.retransmit(a, key, w.maxAssocRetransmits, w.engine.SendShutdownAck)
		}
	default:
		if ce := w.logger.Check(zap.DebugLevel, "Ignored timer expiry"); ce != nil {
			ce.Write(
				zap.Int("thread", w.thread.Index),
				zap.Uint32("assocID", a.ID),
				zap.Stringer("timer", key.Kind),
				zap.Stringer("state", a.State),
			)
		}
	}
}

// retransmit backs off the RTO and resends, or drops the association once limit retransmissions were made.
// The retransmission count is kept in a.RTOBackoff.
func (w *worker) retransmit(a *assoc.Association, key timer.Key, limit int, send func(*tx.Thread, *assoc.Association) error) {
	if a.RTOBackoff >= limit {
		w.logger.Warn("Association unreachable, dropping",
			zap.Int("thread", w.thread.Index),
			zap.Uint32("assocID", a.ID),
			zap.Stringer("timer", key.Kind),
			zap.Stringer("state", a.State),
			zap.Stringer("remoteAddress", a.Path(key.Path).Remote),
			zap.Int("retransmits", a.RTOBackoff),
		)
		w.drop(a)
		return
	}

	backoff := a.RTOBackoff + 1
	a.RTO = min(2*a.RTO, w.rtoMax)
	if err := send(w.thread, a); err != nil {
		w.logger.Warn("Failed to retransmit",
			zap.Int("thread", w.thread.Index),
			zap.Uint32("assocID", a.ID),
			zap.Stringer("timer", key.Kind),
			zap.Stringer("state", a.State),
			zap.Error(err),
		)
		// The state no longer allows the chunk. Retrying cannot succeed.
		if errors.Is(err, tx.ErrRejected) {
			return
		}
		w.wheel.Arm(key, a.RTO)
	}
	// SendInit restarts the backoff count.
	a.RTOBackoff = backoff

	if ce := w.logger.Check(zap.DebugLevel, "Retransmitted"); ce != nil {
		ce.Write(
			zap.Int("thread", w.thread.Index),
			zap.Uint32("assocID", a.ID),
			zap.Stringer("timer", key.Kind),
			zap.Int("retransmits", backoff),
			zap.Duration("rto", a.RTO),
		)
	}
}

func (w *worker) drop(a *assoc.Association) {
	a.State = assoc.StateClosed
	w.wheel.DisarmAssoc(a.ID)
	w.thread.Assocs.Delete(a.ID)
}

// shutdown sends SHUTDOWN on established associations, flushes, and returns the thread's buffers.
func (w *worker) shutdown() {
	for a := range w.thread.Assocs.All() {
		if a.State != assoc.StateEstablished {
			continue
		}
		a.RTOBackoff = 0
		if err := w.engine.SendShutdown(w.thread, a); err != nil {
			w.logger.Warn("Failed to send SHUTDOWN",
				zap.Int("thread", w.thread.Index),
				zap.Uint32("assocID", a.ID),
				zap.Error(err),
			)
		}
	}
	w.engine.FlushThread(w.thread)
	w.thread.Close()

	fields := make([]zap.Field, 0, 8)
	fields = append(fields,
		zap.Int("thread", w.thread.Index),
		zap.Int("associations", w.thread.Assocs.Len()),
	)
	for code, n := range w.thread.Counts() {
		fields = append(fields, zap.Uint64(code.String(), n))
	}
	w.logger.Info("Stopped worker", fields...)
}
